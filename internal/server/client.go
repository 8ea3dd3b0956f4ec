package server

import "fmt"

// WebSocketPath is where browsers connect for live reload.
const WebSocketPath = "/__assetforge/ws"

// clientScript reloads the page, swaps stylesheets in place and shows the
// build error overlay.
const clientScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var delay = 1000;
  function toast(text) {
    var el = document.createElement("div");
    el.textContent = text;
    el.style.cssText = "position:fixed;right:1em;bottom:1em;padding:.5em 1em;background:#222;color:#fff;font:12px sans-serif;z-index:2147483647;border-radius:3px";
    document.body.appendChild(el);
    setTimeout(function () { el.remove(); }, 1500);
  }
  function overlay(html) {
    var el = document.getElementById("__assetforge_overlay");
    if (!html) { if (el) { el.remove(); } return; }
    if (!el) {
      el = document.createElement("div");
      el.id = "__assetforge_overlay";
      document.body.appendChild(el);
    }
    el.innerHTML = html;
  }
  function swap(paths) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    links.forEach(function (link) {
      var url = new URL(link.href, location.href);
      if (url.origin !== location.origin || paths.indexOf(url.pathname) < 0) { return; }
      url.searchParams.set("v", Date.now());
      link.href = url.toString();
    });
  }
  function connect() {
    var ws = new WebSocket(proto + location.host + %q);
    ws.onopen = function () { delay = 1000; };
    ws.onmessage = function (event) {
      var msg = JSON.parse(event.data);
      switch (msg.type) {
        case "reload":
          if (msg.notify) { toast("Reloading"); }
          location.reload();
          break;
        case "css":
          swap(msg.paths || []);
          if (msg.notify) { toast("Injected " + (msg.paths || []).join(", ")); }
          break;
        case "error":
          overlay(msg.content);
          break;
        case "clear":
          overlay("");
          break;
      }
    };
    ws.onclose = function () {
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 10000);
    };
  }
  connect();
})();
</script>
`

// ClientScript returns the snippet injected into every served page.
func ClientScript() string {
	return fmt.Sprintf(clientScript, WebSocketPath)
}

package server

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/assetforge/internal/errors"
)

// NotFound renders the dev server's 404 page.
func NotFound(path string, roots []string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>Not found</title>`)
		b.WriteString(`<style>body{font:14px/1.5 system-ui,sans-serif;margin:3em;color:#222}code{background:#f3f3f3;padding:.1em .3em}</style>`)
		b.WriteString(`</head><body><h1>404</h1><p>No file matches <code>`)
		b.WriteString(templ.EscapeString(path))
		b.WriteString(`</code> in:</p><ul>`)
		for _, root := range roots {
			b.WriteString(`<li><code>`)
			b.WriteString(templ.EscapeString(root))
			b.WriteString(`</code></li>`)
		}
		b.WriteString(`</ul></body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ErrorOverlay renders the build errors shown over the page.
func ErrorOverlay(errs []*errors.BuildError) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div style="position:fixed;inset:0;overflow:auto;background:rgba(20,20,20,.92);color:#eee;font:13px/1.5 ui-monospace,monospace;padding:2em;z-index:2147483646">`)
		b.WriteString(`<h2 style="color:#ff5555;margin-top:0">`)
		b.WriteString(strconv.Itoa(len(errs)))
		b.WriteString(` build error`)
		if len(errs) != 1 {
			b.WriteString(`s`)
		}
		b.WriteString(`</h2>`)
		for _, e := range errs {
			b.WriteString(`<section style="margin-bottom:1.5em">`)
			if e.Kind != "" {
				fmt.Fprintf(&b, `<div style="color:#999">%s</div>`, templ.EscapeString(string(e.Kind)))
			}
			b.WriteString(`<div style="color:#ff8888">`)
			b.WriteString(templ.EscapeString(e.Error()))
			b.WriteString(`</div>`)
			if len(e.Frame) > 0 {
				b.WriteString(`<pre style="background:#111;padding:1em;overflow:auto">`)
				b.WriteString(templ.EscapeString(e.CodeFrame()))
				b.WriteString(`</pre>`)
			}
			b.WriteString(`</section>`)
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

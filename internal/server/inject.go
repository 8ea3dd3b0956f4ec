package server

import (
	"bytes"

	"golang.org/x/net/html"
)

// InjectScript inserts snippet before the last closing body tag of page,
// or appends it when the page has none.
func InjectScript(page []byte, snippet string) []byte {
	at := -1
	offset := 0

	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := z.Raw()
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				at = offset
			}
		}
		offset += len(raw)
	}

	if at < 0 {
		out := make([]byte, 0, len(page)+len(snippet))
		out = append(out, page...)
		return append(out, snippet...)
	}

	out := make([]byte, 0, len(page)+len(snippet))
	out = append(out, page[:at]...)
	out = append(out, snippet...)
	return append(out, page[at:]...)
}

// Package links extracts outgoing hyperlinks from crawled pages so the
// crawler can re-seed its own queue.
package links

import (
	"bytes"
	"net/url"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extract returns up to limit absolute http(s) URLs referenced by <a href>
// elements in doc, resolved against base, in document order and
// deduplicated. Fragments are dropped so anchors within one page collapse
// to a single URL. limit <= 0 means no limit.
func Extract(base *url.URL, doc []byte, limit int) []string {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})

	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}

		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if link, ok := resolve(base, href(n)); ok {
				if _, dup := seen[link]; !dup {
					seen[link] = struct{}{}
					out = append(out, link)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(root)

	return out
}

func href(n *html.Node) string {
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			return attr.Val
		}
	}
	return ""
}

func resolve(base *url.URL, raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}

	abs.Fragment = ""
	return abs.String(), true
}

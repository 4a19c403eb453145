// Package htmltext extracts indexable text from HTML documents.
package htmltext

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extract parses doc and returns its visible text and the content of the
// first <title> element.
//
// Text is collected by depth-first traversal with <script> and <style>
// subtrees skipped; text nodes are joined with single spaces and runs of
// whitespace collapsed. The parser is tolerant: malformed markup yields
// whatever text the tree still contains, never an error. Title text also
// appears in the visible text, mirroring a plain DFS over the document.
func Extract(doc []byte) (text, title string) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return "", ""
	}

	var parts []string
	var titleParts []string
	titleSeen := false

	var walk func(n *html.Node, inTitle bool)
	walk = func(n *html.Node, inTitle bool) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Title:
				if titleSeen {
					break
				}
				titleSeen = true
				inTitle = true
			}
		case html.TextNode:
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				parts = append(parts, trimmed)
				if inTitle {
					titleParts = append(titleParts, trimmed)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inTitle)
		}
	}
	walk(root, false)

	return collapse(strings.Join(parts, " ")), collapse(strings.Join(titleParts, " "))
}

// collapse squeezes all whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

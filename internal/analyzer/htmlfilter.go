package analyzer

import (
	"strings"

	"golang.org/x/net/html"
)

// boilerplateMarkers are substrings checked against an element's class or
// id attribute (case-insensitive) to decide whether its subtree is
// navigational chrome rather than page content.
var boilerplateMarkers = []string{
	"nav", "menu", "sidebar", "footer", "header",
	"cookie", "banner", "promo", "ads", "badge",
}

// droppedElements never contribute text, regardless of class/id.
var droppedElements = map[string]bool{
	"script": true, "style": true, "noscript": true,
}

// blockElements emit a trailing newline after their text content so the
// tokenizer sees separate block-level runs as separate whitespace-joined
// chunks instead of one another's neighbors.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"li": true, "ul": true, "ol": true, "header": true, "footer": true,
}

// StripHTML is the default character filter: it parses text as HTML and
// walks the DOM, emitting only the text of non-boilerplate, non-script
// elements, with block-level elements separated by newlines.
//
// If the input does not parse as HTML (rare; the tokenizer's
// html.Parse is lenient and essentially never errors on arbitrary text),
// it falls back to returning the text unchanged.
func StripHTML(text string) string {
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return text
	}
	var sb strings.Builder
	walkHTML(doc, &sb)
	return sb.String()
}

// ExtractMeta captures the document title and heading text separately
// from the body, for use by the search API's result titling. It is not
// part of the token-producing pipeline.
type ExtractMeta struct {
	Title    string
	Headings []string
}

// ExtractTitleAndHeadings walks the same DOM as StripHTML but collects
// <title> and <h1>-<h6> text instead of filtering body content.
func ExtractTitleAndHeadings(text string) ExtractMeta {
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return ExtractMeta{}
	}
	var meta ExtractMeta
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				meta.Title = strings.TrimSpace(textContent(n))
			case "h1", "h2", "h3", "h4", "h5", "h6":
				if txt := strings.TrimSpace(textContent(n)); txt != "" {
					meta.Headings = append(meta.Headings, txt)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return meta
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func walkHTML(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if droppedElements[n.Data] {
			return
		}
		if hasBoilerplateClassOrID(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, sb)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		sb.WriteString("\n")
	}
}

func hasBoilerplateClassOrID(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" && attr.Key != "id" {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, marker := range boilerplateMarkers {
			if strings.Contains(val, marker) {
				return true
			}
		}
	}
	return false
}

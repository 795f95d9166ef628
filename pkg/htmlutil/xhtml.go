package htmlutil

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// removedElements are dropped with their content when sanitizing. None of them
// can be rendered by an EPUB reading system without scripting or network.
var removedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Noscript: true, atom.Style: true, atom.Link: true,
	atom.Meta: true, atom.Base: true, atom.Title: true, atom.Head: true,
	atom.Iframe: true, atom.Frame: true, atom.Frameset: true,
	atom.Object: true, atom.Embed: true, atom.Applet: true,
	atom.Form: true, atom.Input: true, atom.Button: true, atom.Select: true, atom.Textarea: true,
	atom.Video: true, atom.Audio: true, atom.Source: true, atom.Track: true,
	atom.Canvas: true, atom.Template: true, atom.Svg: true, atom.Math: true,
	atom.Xmp: true, atom.Plaintext: true, atom.Noembed: true, atom.Noframes: true,
}

// ParseBody parses s as the content of an HTML body and returns the body
// element. Any <html>, <head> or <body> wrappers in s are absorbed.
func ParseBody(s string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if body := FindFirst(doc, atom.Body); body != nil {
		return body, nil
	}
	return nil, errors.New("document has no body")
}

// FindFirst returns the first element with the given atom in document order.
func FindFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every element with the given atom in document order.
func FindAll(n *html.Node, a atom.Atom) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = append(found, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return found
}

// Attr returns the value of the named attribute.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr replaces or appends the named attribute.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes every attribute named key.
func RemoveAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// Remove detaches n from its parent.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Sanitize strips everything under n that would make the markup invalid or
// active inside an XHTML content document: comments, removedElements, event
// handler attributes, javascript: links and attributes whose names are not
// XML names.
func Sanitize(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		switch c.Type {
		case html.CommentNode, html.DoctypeNode:
			n.RemoveChild(c)
			continue
		case html.TextNode:
			c.Data = stripInvalidXMLChars(c.Data)
		case html.ElementNode:
			if removedElements[c.DataAtom] || !isXMLName(c.Data) {
				n.RemoveChild(c)
				continue
			}
			c.Attr = sanitizeAttrs(c.Attr)
		}
		Sanitize(c)
	}
}

func sanitizeAttrs(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" || !isXMLName(key) || key == "xmlns" || strings.HasPrefix(key, "on") || seen[key] {
			continue
		}
		if (key == "href" || key == "src") && strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.Val)), "javascript:") {
			continue
		}
		seen[key] = true
		a.Key = key
		a.Val = stripInvalidXMLChars(a.Val)
		kept = append(kept, a)
	}
	return kept
}

// isXMLName reports whether s is an XML name without a namespace prefix.
func isXMLName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == utf8.RuneError {
			return false
		}
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}

// stripInvalidXMLChars drops the control characters XML 1.0 forbids.
func stripInvalidXMLChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		if r == 0xFFFE || r == 0xFFFF {
			return -1
		}
		return r
	}, s)
}

// RenderChildren serializes the children of n. Void elements are self-closed
// and text and attribute values are escaped, so the output is well-formed XML
// as long as n was sanitized.
func RenderChildren(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", errors.WithStack(err)
		}
	}
	return buf.String(), nil
}

// ToXHTML parses an HTML fragment, sanitizes it and renders it back as markup
// that can be embedded in an XHTML document body.
func ToXHTML(s string) (string, error) {
	body, err := ParseBody(s)
	if err != nil {
		return "", err
	}
	Sanitize(body)
	return RenderChildren(body)
}

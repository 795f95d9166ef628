package epub

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// TOCEntry is one table of contents entry.
type TOCEntry struct {
	Title    string
	Href     string
	Children []TOCEntry
}

// NavHTML represents the EPUB 3 navigation document structure.
type NavHTML struct {
	XMLName   xml.Name `xml:"html"`
	Xmlns     string   `xml:"xmlns,attr,omitempty"`
	XmlnsEpub string   `xml:"xmlns:epub,attr,omitempty"`
	Head      struct {
		Title string `xml:"title"`
	} `xml:"head"`
	Body struct {
		Nav []NavElement `xml:"nav"`
	} `xml:"body"`
}

// NavElement represents a nav element in the navigation document. Type is
// written as epub:type and read back by local name.
type NavElement struct {
	Type    string `xml:"epub:type,attr"`
	ID      string `xml:"id,attr,omitempty"`
	Heading string `xml:"h2,omitempty"`
	OL      *NavOL `xml:"ol"`
}

// NavOL represents an ordered list in the navigation.
type NavOL struct {
	Items []NavLI `xml:"li"`
}

// NavLI represents a list item in the navigation.
type NavLI struct {
	A        *NavLink `xml:"a"`
	Span     *NavSpan `xml:"span"`
	Children *NavOL   `xml:"ol"`
}

// NavLink represents an anchor element.
type NavLink struct {
	Href string `xml:"href,attr"`
	Text string `xml:",chardata"`
}

// NavSpan represents a span element (heading without link).
type NavSpan struct {
	Text string `xml:",chardata"`
}

// navElementIn is NavElement for decoding, matching epub:type by local name.
type navElementIn struct {
	Type string `xml:"type,attr"`
	OL   *NavOL `xml:"ol"`
}

type navHTMLIn struct {
	Body struct {
		Nav []navElementIn `xml:"nav"`
	} `xml:"body"`
}

func buildNav(book *Book) ([]byte, error) {
	nav := NavHTML{Xmlns: nsXHTML, XmlnsEpub: nsOPS}
	nav.Head.Title = book.Title
	nav.Body.Nav = []NavElement{{
		Type:    "toc",
		ID:      "toc",
		Heading: book.Title,
		OL: &NavOL{Items: []NavLI{
			{A: &NavLink{Href: sectionFile, Text: book.Title}},
		}},
	}}
	return marshalDocument(nav, true)
}

// parseNavDocument parses an EPUB 3 navigation document and returns the
// entries of its toc nav.
func parseNavDocument(r io.Reader) ([]TOCEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var nav navHTMLIn
	if err := xml.Unmarshal(data, &nav); err != nil {
		return nil, errors.WithStack(err)
	}

	for _, n := range nav.Body.Nav {
		if n.Type == "toc" && n.OL != nil {
			return parseNavOL(n.OL), nil
		}
	}

	return nil, nil
}

// parseNavOL recursively parses an ordered list into entries.
func parseNavOL(ol *NavOL) []TOCEntry {
	if ol == nil {
		return nil
	}

	entries := make([]TOCEntry, 0, len(ol.Items))
	for _, li := range ol.Items {
		e := TOCEntry{}

		if li.A != nil {
			e.Title = strings.TrimSpace(li.A.Text)
			e.Href = li.A.Href
		} else if li.Span != nil {
			e.Title = strings.TrimSpace(li.Span.Text)
		}

		// Skip items without a title
		if e.Title == "" {
			continue
		}

		if li.Children != nil {
			e.Children = parseNavOL(li.Children)
		}

		entries = append(entries, e)
	}

	return entries
}

// NCX represents the EPUB 2 NCX structure.
type NCX struct {
	XMLName xml.Name `xml:"ncx"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	Version string   `xml:"version,attr,omitempty"`
	Head    struct {
		Meta []NCXMeta `xml:"meta"`
	} `xml:"head"`
	DocTitle struct {
		Text string `xml:"text"`
	} `xml:"docTitle"`
	NavMap struct {
		NavPoints []NCXNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type NCXMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

// NCXNavPoint represents a navigation point in NCX.
type NCXNavPoint struct {
	ID        string `xml:"id,attr"`
	PlayOrder int    `xml:"playOrder,attr,omitempty"`
	NavLabel  struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []NCXNavPoint `xml:"navPoint"`
}

func buildNCX(book *Book) ([]byte, error) {
	ncx := NCX{Xmlns: nsNCX, Version: "2005-1"}
	ncx.Head.Meta = []NCXMeta{
		{Name: "dtb:uid", Content: book.Identifier},
		{Name: "dtb:depth", Content: "1"},
		{Name: "dtb:totalPageCount", Content: "0"},
		{Name: "dtb:maxPageNumber", Content: "0"},
	}
	ncx.DocTitle.Text = book.Title

	point := NCXNavPoint{ID: sectionID, PlayOrder: 1}
	point.NavLabel.Text = book.Title
	point.Content.Src = sectionFile
	ncx.NavMap.NavPoints = []NCXNavPoint{point}

	return marshalDocument(ncx, false)
}

// parseNCX parses an EPUB 2 NCX file and returns its entries.
func parseNCX(r io.Reader) ([]TOCEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var ncx NCX
	if err := xml.Unmarshal(data, &ncx); err != nil {
		return nil, errors.WithStack(err)
	}

	return parseNCXNavPoints(ncx.NavMap.NavPoints), nil
}

// parseNCXNavPoints recursively parses NCX navigation points.
func parseNCXNavPoints(navPoints []NCXNavPoint) []TOCEntry {
	entries := make([]TOCEntry, 0, len(navPoints))
	for _, np := range navPoints {
		title := strings.TrimSpace(np.NavLabel.Text)
		if title == "" {
			continue
		}

		e := TOCEntry{Title: title, Href: np.Content.Src}
		if len(np.Children) > 0 {
			e.Children = parseNCXNavPoints(np.Children)
		}

		entries = append(entries, e)
	}
	return entries
}

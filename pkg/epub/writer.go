// Package epub writes single-section EPUB 3 books (with an EPUB 2 NCX for
// older reading systems) and reads back their package metadata.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	MediaType = "application/epub+zip"

	mimetypePath  = "mimetype"
	containerPath = "META-INF/container.xml"
	contentDir    = "EPUB/"
	packageFile   = "content.opf"
	navFile       = "nav.xhtml"
	ncxFile       = "toc.ncx"
	sectionFile   = "0.xhtml"
	StylesheetRef = "style/default.css"

	mediaTypeXHTML = "application/xhtml+xml"
	mediaTypeNCX   = "application/x-dtbncx+xml"
	mediaTypeCSS   = "text/css"

	nsOPF   = "http://www.idpf.org/2007/opf"
	nsDC    = "http://purl.org/dc/elements/1.1/"
	nsXHTML = "http://www.w3.org/1999/xhtml"
	nsOPS   = "http://www.idpf.org/2007/ops"
	nsNCX   = "http://www.daisy.org/z3986/2005/ncx/"

	modifiedLayout = "2006-01-02T15:04:05Z"
)

const containerXML = xml.Header + `<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="` + contentDir + packageFile + `" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

// Book is everything needed to write one article as an EPUB.
type Book struct {
	// Identifier is the package's unique identifier, normally from
	// IdentifierFor.
	Identifier string
	Title      string
	// Creator is omitted from the package when empty.
	Creator  string
	Language string
	// Description is plain text and omitted from the package when empty.
	Description string
	Modified    time.Time
	// Body is well-formed XHTML markup placed inside the section's <body>.
	Body       string
	Stylesheet []byte
	// Resources are additional files, with hrefs relative to the section.
	Resources []Resource
}

type Resource struct {
	Href      string
	MediaType string
	Data      []byte
}

// IdentifierFor derives a stable urn:uuid identifier (UUIDv5 in the URL
// namespace) from a bookmark URL, so rebuilding the same article yields the
// same book identity.
func IdentifierFor(url string) string {
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}

// Write serializes book as an EPUB container. The mimetype entry is written
// first and uncompressed.
func Write(w io.Writer, book *Book) error {
	if book.Identifier == "" {
		return errors.New("book identifier is required")
	}
	if book.Language == "" {
		return errors.New("book language is required")
	}

	zw := zip.NewWriter(w)
	modified := book.Modified.UTC()
	if modified.IsZero() {
		modified = time.Now().UTC()
	}

	put := func(name string, method uint16, data []byte) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   method,
			Modified: modified,
		})
		if err != nil {
			return errors.Wrapf(err, "creating %s", name)
		}
		if _, err := fw.Write(data); err != nil {
			return errors.Wrapf(err, "writing %s", name)
		}
		return nil
	}

	if err := put(mimetypePath, zip.Store, []byte(MediaType)); err != nil {
		return err
	}
	if err := put(containerPath, zip.Deflate, []byte(containerXML)); err != nil {
		return err
	}

	opf, err := buildPackage(book, modified)
	if err != nil {
		return err
	}
	ncx, err := buildNCX(book)
	if err != nil {
		return err
	}
	nav, err := buildNav(book)
	if err != nil {
		return err
	}

	files := []struct {
		name string
		data []byte
	}{
		{packageFile, opf},
		{ncxFile, ncx},
		{navFile, nav},
		{StylesheetRef, book.Stylesheet},
		{sectionFile, buildSection(book)},
	}
	for _, f := range files {
		if err := put(contentDir+f.name, zip.Deflate, f.data); err != nil {
			return err
		}
	}

	for _, r := range book.Resources {
		// Compressed image formats gain nothing from deflate.
		method := zip.Deflate
		if strings.HasPrefix(r.MediaType, "image/") {
			method = zip.Store
		}
		if err := put(contentDir+r.Href, method, r.Data); err != nil {
			return err
		}
	}

	return errors.Wrap(zw.Close(), "finalizing epub")
}

func buildSection(book *Book) []byte {
	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString("<!DOCTYPE html>\n")
	fmt.Fprintf(&sb, `<html xmlns="%s" xmlns:epub="%s" xml:lang="%s" lang="%s">`, nsXHTML, nsOPS, escape(book.Language), escape(book.Language))
	sb.WriteString("\n<head>\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", escape(book.Title))
	fmt.Fprintf(&sb, `<link rel="stylesheet" type="text/css" href="%s"/>`, StylesheetRef)
	sb.WriteString("\n</head>\n<body>\n")
	sb.WriteString(book.Body)
	sb.WriteString("\n</body>\n</html>\n")
	return []byte(sb.String())
}

func escape(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

func marshalDocument(v any, doctype bool) ([]byte, error) {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	prefix := xml.Header
	if doctype {
		prefix += "<!DOCTYPE html>\n"
	}
	return append([]byte(prefix), out...), nil
}

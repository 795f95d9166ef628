package epub

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Structures for writing the package document. Element names carry their
// prefix literally since encoding/xml has no prefix control on output.

type opfPackage struct {
	XMLName          xml.Name    `xml:"package"`
	Xmlns            string      `xml:"xmlns,attr"`
	Version          string      `xml:"version,attr"`
	UniqueIdentifier string      `xml:"unique-identifier,attr"`
	Metadata         opfMetadata `xml:"metadata"`
	Manifest         opfManifest `xml:"manifest"`
	Spine            opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	XmlnsDC     string      `xml:"xmlns:dc,attr"`
	Identifier  opfID       `xml:"dc:identifier"`
	Title       string      `xml:"dc:title"`
	Language    string      `xml:"dc:language"`
	Creator     *opfCreator `xml:"dc:creator,omitempty"`
	Description string      `xml:"dc:description,omitempty"`
	Meta        []opfMeta   `xml:"meta"`
}

type opfID struct {
	Text string `xml:",chardata"`
	ID   string `xml:"id,attr"`
}

type opfCreator struct {
	Text string `xml:",chardata"`
	ID   string `xml:"id,attr"`
}

type opfMeta struct {
	Text     string `xml:",chardata"`
	Property string `xml:"property,attr"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr,omitempty"`
}

type opfSpine struct {
	Toc   string         `xml:"toc,attr"`
	Items []opfSpineItem `xml:"itemref"`
}

type opfSpineItem struct {
	IDRef string `xml:"idref,attr"`
}

const (
	sectionID = "chapter_0"
	ncxID     = "ncx"
)

func buildPackage(book *Book, modified time.Time) ([]byte, error) {
	pkg := opfPackage{
		Xmlns:            nsOPF,
		Version:          "3.0",
		UniqueIdentifier: "id",
		Metadata: opfMetadata{
			XmlnsDC:     nsDC,
			Identifier:  opfID{Text: book.Identifier, ID: "id"},
			Title:       book.Title,
			Language:    book.Language,
			Description: book.Description,
			Meta: []opfMeta{
				{Property: "dcterms:modified", Text: modified.Format(modifiedLayout)},
			},
		},
		Manifest: opfManifest{Items: []opfManifestItem{
			{ID: ncxID, Href: ncxFile, MediaType: mediaTypeNCX},
			{ID: "nav", Href: navFile, MediaType: mediaTypeXHTML, Properties: "nav"},
			{ID: "style_default", Href: StylesheetRef, MediaType: mediaTypeCSS},
			{ID: sectionID, Href: sectionFile, MediaType: mediaTypeXHTML},
		}},
		Spine: opfSpine{
			Toc:   ncxID,
			Items: []opfSpineItem{{IDRef: sectionID}},
		},
	}
	if book.Creator != "" {
		pkg.Metadata.Creator = &opfCreator{Text: book.Creator, ID: "creator"}
	}
	for i, r := range book.Resources {
		pkg.Manifest.Items = append(pkg.Manifest.Items, opfManifestItem{
			ID:        resourceID(i, r.Href),
			Href:      r.Href,
			MediaType: r.MediaType,
		})
	}
	return marshalDocument(pkg, false)
}

// resourceID turns an href into an XML ID that is unique within the manifest.
func resourceID(i int, href string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, path.Base(href))
	return "res" + strconv.Itoa(i) + "_" + base
}

// Package mirrors an OPF package document for reading. Element matching is by
// local name, so prefixed and unprefixed Dublin Core elements both decode.
type Package struct {
	XMLName          xml.Name `xml:"package"`
	Version          string   `xml:"version,attr"`
	UniqueIdentifier string   `xml:"unique-identifier,attr"`
	Metadata         struct {
		Title []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
		} `xml:"title"`
		Creator []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
		} `xml:"creator"`
		Identifier []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
		} `xml:"identifier"`
		Language    string `xml:"language"`
		Description string `xml:"description"`
		Meta        []struct {
			Text     string `xml:",chardata"`
			Name     string `xml:"name,attr"`
			Content  string `xml:"content,attr"`
			Property string `xml:"property,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Item []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc     string `xml:"toc,attr"`
		Itemref []struct {
			Idref string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type containerDoc struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// Info is the package-level description of an EPUB file.
type Info struct {
	Identifier  string
	Title       string
	Creators    []string
	Language    string
	Description string
	Modified    string
	// PackagePath is the archive path of the OPF document.
	PackagePath string
	// MimetypeFirst reports whether the archive starts with an uncompressed
	// mimetype entry holding the EPUB media type.
	MimetypeFirst bool
	Manifest      []ManifestItem
	Spine         []string
	TOC           []TOCEntry
}

type ManifestItem struct {
	ID         string
	Href       string
	Path       string
	MediaType  string
	Properties string
	Size       uint64
}

// Open reads the package metadata, manifest and table of contents of the EPUB
// at path.
func Open(path string) (*Info, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer zr.Close()

	return Read(&zr.Reader)
}

// Read is Open for an already opened archive.
func Read(zr *zip.Reader) (*Info, error) {
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	info := &Info{}
	if len(zr.File) > 0 {
		first := zr.File[0]
		if first.Name == mimetypePath && first.Method == zip.Store {
			data, err := readZipFile(first)
			if err != nil {
				return nil, err
			}
			info.MimetypeFirst = string(data) == MediaType
		}
	}

	containerFile, ok := files[containerPath]
	if !ok {
		return nil, errors.New("no container.xml found")
	}
	data, err := readZipFile(containerFile)
	if err != nil {
		return nil, err
	}
	var c containerDoc
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "parsing container.xml")
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return nil, errors.New("container.xml has no rootfile")
	}
	info.PackagePath = c.Rootfiles[0].FullPath

	opfFile, ok := files[info.PackagePath]
	if !ok {
		return nil, errors.Errorf("package document %s not found", info.PackagePath)
	}
	data, err = readZipFile(opfFile)
	if err != nil {
		return nil, err
	}
	pkg := &Package{}
	if err := xml.Unmarshal(data, pkg); err != nil {
		return nil, errors.Wrap(err, "parsing package document")
	}

	// Manifest hrefs are relative to the package document.
	basePath := path.Dir(info.PackagePath)
	if basePath == "." {
		basePath = ""
	} else {
		basePath += "/"
	}

	for _, id := range pkg.Metadata.Identifier {
		if id.ID == pkg.UniqueIdentifier || info.Identifier == "" {
			info.Identifier = strings.TrimSpace(id.Text)
		}
	}
	if len(pkg.Metadata.Title) > 0 {
		info.Title = strings.TrimSpace(pkg.Metadata.Title[0].Text)
	}
	for _, c := range pkg.Metadata.Creator {
		info.Creators = append(info.Creators, strings.TrimSpace(c.Text))
	}
	info.Language = strings.TrimSpace(pkg.Metadata.Language)
	info.Description = strings.TrimSpace(pkg.Metadata.Description)
	for _, m := range pkg.Metadata.Meta {
		if m.Property == "dcterms:modified" {
			info.Modified = strings.TrimSpace(m.Text)
		}
	}

	var navPath, ncxPath string
	for _, item := range pkg.Manifest.Item {
		mi := ManifestItem{
			ID:         item.ID,
			Href:       item.Href,
			Path:       basePath + item.Href,
			MediaType:  item.MediaType,
			Properties: item.Properties,
		}
		if f, ok := files[mi.Path]; ok {
			mi.Size = f.UncompressedSize64
		}
		info.Manifest = append(info.Manifest, mi)

		if hasProperty(item.Properties, "nav") {
			navPath = mi.Path
		}
		if item.ID == pkg.Spine.Toc {
			ncxPath = mi.Path
		}
	}
	for _, ref := range pkg.Spine.Itemref {
		info.Spine = append(info.Spine, ref.Idref)
	}

	switch {
	case navPath != "" && files[navPath] != nil:
		info.TOC, err = parseZipEntry(files[navPath], parseNavDocument)
	case ncxPath != "" && files[ncxPath] != nil:
		info.TOC, err = parseZipEntry(files[ncxPath], parseNCX)
	}
	if err != nil {
		return nil, err
	}

	return info, nil
}

func hasProperty(properties, name string) bool {
	for _, p := range strings.Fields(properties) {
		if p == name {
			return true
		}
	}
	return false
}

func parseZipEntry(f *zip.File, parse func(io.Reader) ([]TOCEntry, error)) ([]TOCEntry, error) {
	r, err := f.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer r.Close()
	return parse(r)
}

func readZipFile(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	return data, errors.WithStack(err)
}

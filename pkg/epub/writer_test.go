package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBook() *Book {
	return &Book{
		Identifier: IdentifierFor("https://example.com/story"),
		Title:      "Rust & <Go>",
		Creator:    "Jane Doe for example.com",
		Language:   "en",
		Modified:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Body:       `<h1>Rust &amp; &lt;Go&gt;</h1><p>Hello<br/>world</p><img src="images/abc.jpg" alt=""/>`,
		Stylesheet: []byte("body { margin: 0; }"),
		Resources: []Resource{
			{Href: "images/abc.jpg", MediaType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
			{Href: "images/def.png", MediaType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		},
	}
}

func writeBook(t *testing.T, book *Book) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, book))
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return zr
}

func zipEntry(t *testing.T, zr *zip.Reader, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name == name {
			data, err := readZipFile(f)
			require.NoError(t, err)
			return data
		}
	}
	t.Fatalf("no entry %s", name)
	return nil
}

func assertWellFormed(t *testing.T, data []byte) {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return
		}
		require.NoError(t, err, string(data))
	}
}

func TestIdentifierFor(t *testing.T) {
	t.Parallel()

	a := IdentifierFor("https://example.com/story")
	assert.Equal(t, a, IdentifierFor("https://example.com/story"))
	assert.NotEqual(t, a, IdentifierFor("https://example.com/other"))
	assert.True(t, strings.HasPrefix(a, "urn:uuid:"))
	// Version 5 UUIDs carry a 5 in the version nibble.
	assert.Equal(t, byte('5'), a[len("urn:uuid:")+14])
}

func TestWrite_Layout(t *testing.T) {
	t.Parallel()

	zr := writeBook(t, testBook())

	require.NotEmpty(t, zr.File)
	assert.Equal(t, "mimetype", zr.File[0].Name)
	assert.Equal(t, zip.Store, zr.File[0].Method)
	assert.Equal(t, MediaType, string(zipEntry(t, zr, "mimetype")))

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"mimetype",
		"META-INF/container.xml",
		"EPUB/content.opf",
		"EPUB/toc.ncx",
		"EPUB/nav.xhtml",
		"EPUB/style/default.css",
		"EPUB/0.xhtml",
		"EPUB/images/abc.jpg",
		"EPUB/images/def.png",
	}, names)

	for _, name := range []string{"META-INF/container.xml", "EPUB/content.opf", "EPUB/toc.ncx", "EPUB/nav.xhtml", "EPUB/0.xhtml"} {
		assertWellFormed(t, zipEntry(t, zr, name))
	}
	assert.Equal(t, "body { margin: 0; }", string(zipEntry(t, zr, "EPUB/style/default.css")))
}

func TestWrite_Section(t *testing.T) {
	t.Parallel()

	zr := writeBook(t, testBook())
	section := string(zipEntry(t, zr, "EPUB/0.xhtml"))

	assert.Contains(t, section, `<title>Rust &amp; &lt;Go&gt;</title>`)
	assert.Contains(t, section, `<link rel="stylesheet" type="text/css" href="style/default.css"/>`)
	assert.Contains(t, section, `xml:lang="en"`)
	assert.Contains(t, section, `<p>Hello<br/>world</p>`)
}

func TestWrite_ReadBack(t *testing.T) {
	t.Parallel()

	book := testBook()
	info, err := Read(writeBook(t, book))
	require.NoError(t, err)

	assert.True(t, info.MimetypeFirst)
	assert.Equal(t, "EPUB/content.opf", info.PackagePath)
	assert.Equal(t, book.Identifier, info.Identifier)
	assert.Equal(t, "Rust & <Go>", info.Title)
	assert.Equal(t, []string{"Jane Doe for example.com"}, info.Creators)
	assert.Equal(t, "en", info.Language)
	assert.Equal(t, "2026-03-01T12:00:00Z", info.Modified)
	assert.Equal(t, []string{"chapter_0"}, info.Spine)

	byHref := map[string]ManifestItem{}
	for _, item := range info.Manifest {
		byHref[item.Href] = item
	}
	assert.Equal(t, "nav", byHref["nav.xhtml"].Properties)
	assert.Equal(t, "text/css", byHref["style/default.css"].MediaType)
	assert.Equal(t, "application/xhtml+xml", byHref["0.xhtml"].MediaType)
	assert.Equal(t, "image/jpeg", byHref["images/abc.jpg"].MediaType)
	assert.Equal(t, "EPUB/images/abc.jpg", byHref["images/abc.jpg"].Path)
	assert.Equal(t, uint64(3), byHref["images/abc.jpg"].Size)
	assert.Equal(t, "image/png", byHref["images/def.png"].MediaType)

	require.Len(t, info.TOC, 1)
	assert.Equal(t, "Rust & <Go>", info.TOC[0].Title)
	assert.Equal(t, "0.xhtml", info.TOC[0].Href)
}

func TestWrite_NoCreator(t *testing.T) {
	t.Parallel()

	book := testBook()
	book.Creator = ""
	zr := writeBook(t, book)

	assert.NotContains(t, string(zipEntry(t, zr, "EPUB/content.opf")), "dc:creator")
	info, err := Read(zr)
	require.NoError(t, err)
	assert.Empty(t, info.Creators)
}

func TestWrite_Description(t *testing.T) {
	t.Parallel()

	book := testBook()
	zr := writeBook(t, book)
	assert.NotContains(t, string(zipEntry(t, zr, "EPUB/content.opf")), "dc:description")

	book.Description = "A short & plain summary"
	info, err := Read(writeBook(t, book))
	require.NoError(t, err)
	assert.Equal(t, "A short & plain summary", info.Description)
}

func TestWrite_NCX(t *testing.T) {
	t.Parallel()

	zr := writeBook(t, testBook())
	entries, err := parseNCX(bytes.NewReader(zipEntry(t, zr, "EPUB/toc.ncx")))
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "Rust & <Go>", entries[0].Title)
	assert.Equal(t, "0.xhtml", entries[0].Href)
	assert.Contains(t, string(zipEntry(t, zr, "EPUB/toc.ncx")), `content="`+testBook().Identifier+`"`)
}

func TestWrite_RequiresIdentifierAndLanguage(t *testing.T) {
	t.Parallel()

	book := testBook()
	book.Identifier = ""
	require.Error(t, Write(io.Discard, book))

	book = testBook()
	book.Language = ""
	require.Error(t, Write(io.Discard, book))
}

func TestRead_MissingContainer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("mimetype")
	require.NoError(t, err)
	_, err = w.Write([]byte(MediaType))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	_, err = Read(zr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "container.xml")
}

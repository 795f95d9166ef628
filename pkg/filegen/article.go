package filegen

import (
	"context"
	"html"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/wbip/wbip/pkg/assets"
	"github.com/wbip/wbip/pkg/config"
	"github.com/wbip/wbip/pkg/enrich"
	"github.com/wbip/wbip/pkg/epub"
	"github.com/wbip/wbip/pkg/htmlutil"
	"github.com/wbip/wbip/pkg/images"
	"github.com/wbip/wbip/pkg/instapaper"
	"github.com/wbip/wbip/pkg/models"
)

const (
	defaultTitle = "No Title"
	// emailAuthor is the byline for bookmarks saved from email rather than
	// the web.
	emailAuthor = "email"
	headerSep   = " &middot; "
)

// TextSource returns the readable HTML of a saved bookmark, or "" when there
// is none.
type TextSource interface {
	GetText(ctx context.Context, creds instapaper.Credentials, id int64) (string, error)
}

type ImageProcessor interface {
	Process(ctx context.Context, htmlContent string, dropImages bool) (*images.Result, error)
}

// ArticleGenerator turns one bookmark into an EPUB.
type ArticleGenerator struct {
	text      TextSource
	enricher  enrich.Enricher
	images    ImageProcessor
	domains   config.DomainMap
	language  string
	leadImage bool
	now       func() time.Time
}

func NewArticleGenerator(cfg *config.Config, text TextSource, enricher enrich.Enricher, processor ImageProcessor, domains config.DomainMap) *ArticleGenerator {
	if domains == nil {
		domains = config.DomainMap{}
	}
	return &ArticleGenerator{
		text:      text,
		enricher:  enricher,
		images:    processor,
		domains:   domains,
		language:  cfg.BookLanguage,
		leadImage: cfg.IncludeLeadImage,
		now:       time.Now,
	}
}

// Generate fetches the bookmark's text and writes the finished book to
// destPath. The file only appears at destPath once it is complete.
func (g *ArticleGenerator) Generate(ctx context.Context, destPath string, bookmark *models.Bookmark, creds instapaper.Credentials) error {
	text, err := g.text.GetText(ctx, creds, bookmark.ID)
	if err != nil {
		return NewGenerationError(FileTypeEPUB, err, "failed to fetch article text")
	}
	if strings.TrimSpace(text) == "" {
		return NewGenerationError(FileTypeEPUB, ErrNoContent, "upstream returned no text")
	}

	tmpPath := destPath + ".tmp"
	destFile, err := os.Create(tmpPath)
	if err != nil {
		return NewGenerationError(FileTypeEPUB, err, "failed to create destination file")
	}
	defer func() {
		destFile.Close()
		os.Remove(tmpPath) // Clean up temp file if we don't rename it
	}()

	if err := g.Render(ctx, destFile, bookmark, text); err != nil {
		return err
	}

	if err := destFile.Close(); err != nil {
		return NewGenerationError(FileTypeEPUB, err, "failed to close destination file")
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return NewGenerationError(FileTypeEPUB, err, "failed to finalize destination file")
	}
	return nil
}

// Render builds the book for bookmark from already fetched article text and
// writes it to w.
func (g *ArticleGenerator) Render(ctx context.Context, w io.Writer, bookmark *models.Bookmark, text string) error {
	log := logger.FromContext(ctx)

	var meta *enrich.Metadata
	if isWebURL(bookmark.URL) {
		meta = g.enricher.Enrich(ctx, bookmark.URL)
	}
	head := g.buildHeader(bookmark, meta)

	content := head.markup
	if g.leadImage && meta != nil && meta.LeadImageURL != "" && !strings.Contains(strings.ToLower(text), "<img") {
		content += `<p><img src="` + html.EscapeString(meta.LeadImageURL) + `" alt=""/></p>`
	}
	content += "\n" + text

	res, err := g.images.Process(ctx, content, bookmark.HasTag(models.TagNoImages))
	if err != nil {
		return NewGenerationError(FileTypeEPUB, err, "failed to process article images")
	}
	if len(res.Skipped) > 0 {
		log.Info("images skipped", logger.Data{"bookmark_id": bookmark.ID, "skipped": len(res.Skipped), "embedded": len(res.Assets)})
	}

	book := &epub.Book{
		Identifier: epub.IdentifierFor(bookmark.URL),
		Title:      head.title,
		Creator:    head.attribution,
		Language:   g.language,
		Modified:   g.now(),
		Body:       res.HTML,
		Stylesheet: assets.DefaultStylesheet,
	}
	if meta != nil {
		book.Description = htmlutil.StripTags(meta.Excerpt)
	}
	for _, a := range res.Assets {
		book.Resources = append(book.Resources, epub.Resource{Href: a.Href(), MediaType: a.MediaType, Data: a.Data})
	}

	if err := epub.Write(w, book); err != nil {
		return NewGenerationError(FileTypeEPUB, err, "failed to write epub")
	}
	return nil
}

type header struct {
	title string
	// attribution is the book's creator, e.g. "Jane Doe for The Times".
	attribution string
	// markup is the title heading and byline prepended to the article.
	markup string
}

// buildHeader derives the title, byline and attribution for a bookmark. meta
// is nil when the bookmark was not enriched.
func (g *ArticleGenerator) buildHeader(bookmark *models.Bookmark, meta *enrich.Metadata) header {
	title := strings.TrimSpace(bookmark.Title)
	if title == "" {
		title = defaultTitle
	}

	web := isWebURL(bookmark.URL)
	domain := ""
	if web {
		domain = g.domains.Lookup(displayHost(bookmark.URL))
	}

	author := ""
	switch {
	case !web:
		author = emailAuthor
	case meta != nil && meta.Author != "":
		author = meta.Author
	case meta != nil && meta.Domain != "":
		// The enrichment domain only stands in for a missing author when it
		// names a different site than the bookmark's own.
		if site := g.domains.Lookup(strings.TrimPrefix(strings.ToLower(meta.Domain), "www.")); site != domain {
			author = site
		}
	}

	byline := ""
	attribution := ""
	if web {
		byline = `<a href="` + html.EscapeString(bookmark.URL) + `">` + html.EscapeString(domain) + `</a>`
		attribution = domain
	}
	if author != "" {
		if byline != "" {
			byline += headerSep
		}
		byline += "by " + html.EscapeString(author)
		if attribution != "" {
			attribution = author + " for " + attribution
		} else {
			attribution = author
		}
	}

	return header{
		title:       title,
		attribution: attribution,
		markup:      "<h1>" + html.EscapeString(title) + "</h1><div>" + byline + "</div>",
	}
}

// isWebURL reports whether rawURL is an absolute http or https URL.
func isWebURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// displayHost returns the URL's host without a leading "www.".
func displayHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

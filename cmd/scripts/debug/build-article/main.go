package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/wbip/wbip/pkg/config"
	"github.com/wbip/wbip/pkg/enrich"
	"github.com/wbip/wbip/pkg/filegen"
	"github.com/wbip/wbip/pkg/htmlutil"
	"github.com/wbip/wbip/pkg/images"
	"github.com/wbip/wbip/pkg/models"
	"github.com/wbip/wbip/pkg/version"
)

func main() {
	log := logger.New()

	var opts struct {
		Output     string   `short:"o" long:"output" default:"article.epub" description:"Where to write the book"`
		Title      string   `long:"title" description:"Article title"`
		URL        string   `long:"url" default:"email" description:"Article URL; http(s) URLs are enriched"`
		Tags       []string `long:"tag" description:"Bookmark tag, repeatable (_noimg skips images)"`
		Language   string   `long:"language" default:"en" description:"Book language"`
		Enrichment string   `long:"enrichment" default:"none" choice:"none" choice:"postlight" choice:"mercury" description:"Enrichment provider"`
		EnrichURL  string   `long:"enrichment-url" default:"http://localhost:3000" description:"Enrichment service base URL"`
		MaxImages  int      `long:"max-images" default:"25" description:"Most images to embed"`
		Colour     bool     `long:"colour" description:"Keep image colour"`
		DomainMap  string   `long:"domain-map" description:"Domain display-name JSON file"`
		LeadImage  bool     `long:"lead-image" description:"Insert the enrichment lead image when the body has none"`
		DumpXHTML  bool     `long:"dump-xhtml" description:"Print the sanitized article body and exit"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/build-article [options] <path/to/article.html>")
		os.Exit(1)
	}

	body, err := os.ReadFile(args[0])
	if err != nil {
		log.Err(err).Fatal("read article error")
	}

	if opts.DumpXHTML {
		out, err := htmlutil.ToXHTML(string(body))
		if err != nil {
			log.Err(err).Fatal("sanitize error")
		}
		fmt.Println(out)
		return
	}

	cfg := config.NewForTest()
	cfg.BookLanguage = opts.Language
	cfg.IncludeLeadImage = opts.LeadImage
	cfg.ImageMaxCount = opts.MaxImages
	cfg.ImageGreyscale = !opts.Colour
	cfg.EnrichmentProvider = opts.Enrichment
	cfg.EnrichmentURL = opts.EnrichURL

	domains := config.DomainMap{}
	if opts.DomainMap != "" {
		domains, err = config.LoadDomainMap(opts.DomainMap)
		if err != nil {
			log.Err(err).Fatal("domain map error")
		}
	}

	fetcher := images.NewHTTPFetcher(&http.Client{}, cfg.ImageMaxBytes, "wbip/"+version.Version)
	pipeline := images.NewPipeline(fetcher, images.OptionsFromConfig(cfg))
	generator := filegen.NewArticleGenerator(cfg, nil, enrich.New(cfg), pipeline, domains)

	bookmark := &models.Bookmark{Title: opts.Title, URL: opts.URL}
	bookmark.SetTags(opts.Tags)

	f, err := os.Create(opts.Output)
	if err != nil {
		log.Err(err).Fatal("create output error")
	}
	defer f.Close()

	ctx := log.WithContext(context.Background())
	if err := generator.Render(ctx, f, bookmark, string(body)); err != nil {
		log.Err(err).Fatal("render error")
	}

	log.Info("book written", logger.Data{"path": opts.Output})
}

package server

import (
	"net/http"

	"github.com/wbip/wbip/pkg/config"
	"github.com/wbip/wbip/pkg/downloadcache"
	"github.com/wbip/wbip/pkg/enrich"
	"github.com/wbip/wbip/pkg/filegen"
	"github.com/wbip/wbip/pkg/images"
	"github.com/wbip/wbip/pkg/instapaper"
	"github.com/wbip/wbip/pkg/version"
)

// NewUpstreamClient returns the bookmarking service client described by cfg.
func NewUpstreamClient(cfg *config.Config) *instapaper.Client {
	return instapaper.NewClient(instapaper.Options{
		BaseURL:        cfg.UpstreamBaseURL,
		ConsumerKey:    cfg.UpstreamConsumerKey,
		ConsumerSecret: cfg.UpstreamConsumerSecret,
		RateLimit:      cfg.UpstreamRateLimit,
		RateBurst:      cfg.UpstreamRateBurst,
		Timeout:        cfg.UpstreamTimeout,
	})
}

// NewBookCache wires the article pipeline (text, enrichment, images, EPUB)
// behind the on-disk book cache.
func NewBookCache(cfg *config.Config, client *instapaper.Client, domains config.DomainMap) *downloadcache.Cache {
	fetcher := images.NewHTTPFetcher(&http.Client{}, cfg.ImageMaxBytes, "wbip/"+version.Version)
	pipeline := images.NewPipeline(fetcher, images.OptionsFromConfig(cfg))
	generator := filegen.NewArticleGenerator(cfg, client, enrich.New(cfg), pipeline, domains)
	return downloadcache.NewCache(cfg.CacheDir, cfg.CacheMaxSizeBytes, generator)
}

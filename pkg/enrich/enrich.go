// Package enrich fetches readability metadata (author, site, lead image) for
// article URLs from a Postlight/Mercury parser service.
package enrich

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/wbip/wbip/pkg/config"
)

const maxResponseSize = 16 << 20

// Metadata is everything enrichment contributes to a book. The parser's title,
// content and URL are never used.
type Metadata struct {
	Author        string
	Domain        string
	LeadImageURL  string
	Excerpt       string
	DatePublished string
	WordCount     int
}

// Enricher never fails: any problem yields an empty Metadata.
type Enricher interface {
	Enrich(ctx context.Context, articleURL string) *Metadata
}

type parserResponse struct {
	Author        *string `json:"author"`
	Domain        *string `json:"domain"`
	LeadImageURL  *string `json:"lead_image_url"`
	Excerpt       *string `json:"excerpt"`
	DatePublished *string `json:"date_published"`
	WordCount     *int    `json:"word_count"`
	Error         bool    `json:"error"`
	Message       string  `json:"message"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func (r *parserResponse) metadata() *Metadata {
	m := &Metadata{
		Author:        deref(r.Author),
		Domain:        deref(r.Domain),
		LeadImageURL:  deref(r.LeadImageURL),
		Excerpt:       deref(r.Excerpt),
		DatePublished: deref(r.DatePublished),
	}
	if r.WordCount != nil {
		m.WordCount = *r.WordCount
	}
	return m
}

// HTTPEnricher talks to a parser service. Postlight's service takes a JSON
// POST to /parse-html, Mercury's a GET to /parser?url=.
type HTTPEnricher struct {
	provider string
	baseURL  string
	client   *http.Client
}

// New returns the enricher for cfg.EnrichmentProvider.
func New(cfg *config.Config) Enricher {
	return NewWithClient(cfg.EnrichmentProvider, cfg.EnrichmentURL, &http.Client{Timeout: cfg.EnrichmentTimeout})
}

func NewWithClient(provider, baseURL string, client *http.Client) Enricher {
	if provider == config.EnrichmentNone || provider == "" {
		return Noop{}
	}
	return &HTTPEnricher{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
	}
}

func (e *HTTPEnricher) Enrich(ctx context.Context, articleURL string) *Metadata {
	log := logger.FromContext(ctx)
	start := time.Now()

	resp, err := e.fetch(ctx, articleURL)
	if err != nil {
		log.Err(err).Warn("enrichment failed", logger.Data{"url": articleURL, "provider": e.provider})
		return &Metadata{}
	}

	log.Debug("enriched article", logger.Data{
		"url":         articleURL,
		"provider":    e.provider,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return resp.metadata()
}

func (e *HTTPEnricher) fetch(ctx context.Context, articleURL string) (*parserResponse, error) {
	var req *http.Request
	var err error
	switch e.provider {
	case config.EnrichmentMercury:
		endpoint := e.baseURL + "/parser?" + url.Values{"url": {articleURL}}.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	default:
		body, merr := json.Marshal(map[string]string{"url": articleURL})
		if merr != nil {
			return nil, errors.WithStack(merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/parse-html", bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	res, err := e.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("parser returned status %d", res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	parsed := &parserResponse{}
	if err := json.Unmarshal(data, parsed); err != nil {
		return nil, errors.Wrap(err, "decoding parser response")
	}
	if parsed.Error {
		return nil, errors.Errorf("parser error: %s", parsed.Message)
	}
	return parsed, nil
}

// Noop is used when enrichment is disabled.
type Noop struct{}

func (Noop) Enrich(context.Context, string) *Metadata {
	return &Metadata{}
}

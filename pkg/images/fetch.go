package images

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Fetcher downloads the raw bytes of an image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

var ErrTooLarge = errors.New("image exceeds maximum download size")

// HTTPFetcher downloads over HTTP, refusing bodies larger than maxBytes.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func NewHTTPFetcher(client *http.Client, maxBytes int64, userAgent string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes, userAgent: userAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, errors.WithStack(ErrTooLarge)
	}

	r := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		r = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, errors.WithStack(ErrTooLarge)
	}
	return data, nil
}

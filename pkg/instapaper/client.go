package instapaper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/wbip/wbip/pkg/errcodes"
	"golang.org/x/time/rate"
)

const (
	apiPrefix       = "/api/1"
	maxResponseSize = 32 << 20
)

type Options struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	// RateLimit is the sustained number of upstream calls per second.
	RateLimit  float64
	RateBurst  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// APIError is returned for any non-200 upstream response.
type APIError struct {
	Path       string
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("instapaper %s: %d %s (code %d)", e.Path, e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("instapaper %s: status %d", e.Path, e.StatusCode)
}

// Client calls the Instapaper Full API on behalf of a user. All requests are
// OAuth 1.0a signed form POSTs and share one token bucket.
type Client struct {
	baseURL    string
	oauth      *oauth1.Config
	limiter    *rate.Limiter
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Limit(opts.RateLimit)
	if opts.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		oauth:      oauth1.NewConfig(opts.ConsumerKey, opts.ConsumerSecret),
		limiter:    rate.NewLimiter(limit, burst),
		httpClient: httpClient,
		now:        time.Now,
	}
}

// ListBookmarks returns the first page of unread bookmarks. Non-bookmark
// records in the response are skipped.
func (c *Client) ListBookmarks(ctx context.Context, creds Credentials, limit int) ([]*Bookmark, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.call(ctx, &creds, "/bookmarks/list", params)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, errors.Wrap(err, "decoding bookmark list")
	}

	bookmarks := make([]*Bookmark, 0, len(records))
	for i := range records {
		if records[i].Type != typeBookmark {
			continue
		}
		bookmarks = append(bookmarks, records[i].bookmark())
	}
	return bookmarks, nil
}

func (c *Client) AddBookmark(ctx context.Context, creds Credentials, rawURL string) (*Bookmark, error) {
	body, err := c.call(ctx, &creds, "/bookmarks/add", url.Values{"url": {rawURL}})
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, errors.Wrap(err, "decoding added bookmark")
	}
	for i := range records {
		if records[i].Type == typeBookmark {
			return records[i].bookmark(), nil
		}
	}
	return nil, errors.New("upstream returned no bookmark")
}

// ArchiveBookmark marks the bookmark fully read and then archives it.
func (c *Client) ArchiveBookmark(ctx context.Context, creds Credentials, id int64) error {
	bookmarkID := strconv.FormatInt(id, 10)
	_, err := c.call(ctx, &creds, "/bookmarks/update_read_progress", url.Values{
		"bookmark_id":        {bookmarkID},
		"progress":           {"1"},
		"progress_timestamp": {strconv.FormatInt(c.now().Unix(), 10)},
	})
	if err != nil {
		return err
	}

	_, err = c.call(ctx, &creds, "/bookmarks/archive", url.Values{"bookmark_id": {bookmarkID}})
	return err
}

// GetText returns the processed article HTML. A non-200 response is reported
// as empty content rather than an error.
func (c *Client) GetText(ctx context.Context, creds Credentials, id int64) (string, error) {
	body, err := c.call(ctx, &creds, "/bookmarks/get_text", url.Values{
		"bookmark_id": {strconv.FormatInt(id, 10)},
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			logger.FromContext(ctx).Err(err).Warn("no text for bookmark", logger.Data{"bookmark_id": id})
			return "", nil
		}
		return "", err
	}
	return string(body), nil
}

// AccessToken exchanges a username and password for user credentials using
// xAuth. The returned string is the form-encoded token pair.
func (c *Client) AccessToken(ctx context.Context, username, password string) (string, error) {
	body, err := c.call(ctx, nil, "/oauth/access_token", url.Values{
		"x_auth_mode":     {"client_auth"},
		"x_auth_username": {username},
		"x_auth_password": {password},
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "", errcodes.Unauthorized()
		}
		return "", err
	}

	token := strings.TrimSpace(string(body))
	if _, err := ParseCredentials(token); err != nil {
		return "", errors.Wrap(err, "upstream returned an unusable token")
	}
	return token, nil
}

func (c *Client) call(ctx context.Context, creds *Credentials, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	token := oauth1.NewToken("", "")
	if creds != nil {
		token = oauth1.NewToken(creds.Token, creds.Secret)
	}
	httpClient := c.oauth.Client(context.WithValue(ctx, oauth1.HTTPClient, c.httpClient), token)

	endpoint := c.baseURL + apiPrefix + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "calling %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	logger.FromContext(ctx).Debug("upstream call", logger.Data{
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Path: path, StatusCode: resp.StatusCode}
		if records, err := decodeRecords(body); err == nil && len(records) > 0 {
			apiErr.Code = records[0].ErrorCode
			apiErr.Message = records[0].Message
		}
		return nil, errors.WithStack(apiErr)
	}

	return body, nil
}

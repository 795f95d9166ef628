package bookmarks

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/wbip/wbip/internal/testgen"
	"github.com/wbip/wbip/pkg/config"
	"github.com/wbip/wbip/pkg/downloadcache"
	"github.com/wbip/wbip/pkg/enrich"
	"github.com/wbip/wbip/pkg/epub"
	"github.com/wbip/wbip/pkg/filegen"
	"github.com/wbip/wbip/pkg/images"
	"github.com/wbip/wbip/pkg/instapaper"
)

const bearer = "Bearer oauth_token=token-alice&oauth_token_secret=secret"

type testEnv struct {
	e        *echo.Echo
	db       *bun.DB
	upstream *testgen.Upstream
	cacheDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithCache(t, func(c *downloadcache.Cache) BookCache { return c })
}

func newTestEnvWithCache(t *testing.T, wrap func(*downloadcache.Cache) BookCache) *testEnv {
	t.Helper()

	cfg := config.NewForTest()
	cfg.CacheDir = t.TempDir()

	upstream := testgen.NewUpstream(t)
	client := instapaper.NewClient(instapaper.Options{
		BaseURL:        upstream.URL,
		ConsumerKey:    cfg.UpstreamConsumerKey,
		ConsumerSecret: cfg.UpstreamConsumerSecret,
	})
	pipeline := images.NewPipeline(images.NewHTTPFetcher(nil, cfg.ImageMaxBytes, "wbip-test"), images.OptionsFromConfig(cfg))
	generator := filegen.NewArticleGenerator(cfg, client, enrich.Noop{}, pipeline, nil)
	cache := downloadcache.NewCache(cfg.CacheDir, 0, generator)

	db := newTestDB(t)
	e := testgen.NewEcho(t)
	RegisterRoutes(e, cfg, db, client, wrap(cache))

	return &testEnv{e: e, db: db, upstream: upstream, cacheDir: cfg.CacheDir}
}

func (env *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	headers := map[string]string{echo.HeaderAuthorization: bearer}
	var reader io.Reader
	if body != "" {
		headers[echo.HeaderContentType] = echo.MIMEApplicationJSON
		reader = strings.NewReader(body)
	}
	return testgen.Do(env.e, method, target, reader, headers)
}

func decodeEntries(t *testing.T, body []byte) []*Entry {
	t.Helper()
	var resp EntriesResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Embedded.Items
}

func TestList(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.upstream.AddBookmark(testgen.UpstreamBookmark{ID: 1, Title: "First", URL: "https://example.com/1", Tags: []string{"tech"}, Time: 1700000000})
	env.upstream.AddBookmark(testgen.UpstreamBookmark{ID: 2, Title: "Second", URL: "https://example.com/2", Time: 1700000000})

	rec := env.do(http.MethodGet, "/api/entries.json?perPage=1&detail=metadata", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	items := decodeEntries(t, rec.Body.Bytes())
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, "First", items[0].Title)
	assert.Equal(t, "About First", items[0].Description)
	assert.Equal(t, []string{"tech"}, items[0].Tags)
	assert.Equal(t, "text/html", items[0].Mimetype)
	assert.Equal(t, "2023-11-14T22:13:20+0000", items[0].UpdatedAt)

	stored, err := NewService(env.db).Retrieve(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/1", stored.URL)
	assert.Equal(t, []string{"tech"}, stored.TagList())

	rec = env.do(http.MethodGet, "/bookmarks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeEntries(t, rec.Body.Bytes()), 2)
}

func TestList_LaterPagesNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/entries.json?page=2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, env.upstream.Calls("/bookmarks/list"))
}

func TestList_UpstreamFailureIsEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.upstream.AddBookmark(testgen.UpstreamBookmark{ID: 1, Title: "First", URL: "https://example.com/1"})
	env.upstream.FailList(true)

	rec := env.do(http.MethodGet, "/bookmarks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"_embedded":{"items":[]}}`, rec.Body.String())
}

func TestList_RequiresToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := testgen.Do(env.e, http.MethodGet, "/api/entries.json", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, env.upstream.TotalCalls())
}

func TestAdd(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/entries.json", `{"url":"https://example.com/new","tags":""}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var entry Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, int64(1001), entry.ID)
	assert.Equal(t, "https://example.com/new", entry.URL)

	stored, err := NewService(env.db).Retrieve(t.Context(), 1001)
	require.NoError(t, err)
	assert.Equal(t, "Added", stored.Title)

	rec = env.do(http.MethodPost, "/bookmarks", `{"url":"ftp://example.com/file"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArchive(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodPatch, "/api/entries/5.json", `{"archive":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":5,"archive":1}`, rec.Body.String())

	rec = env.do(http.MethodDelete, "/bookmarks/6", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":6,"archive":1}`, rec.Body.String())

	assert.Eventually(t, func() bool {
		archived := env.upstream.Archived()
		return slices.Contains(archived, 5) && slices.Contains(archived, 6)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, env.upstream.Calls("/bookmarks/update_read_progress"))
}

func TestArchive_PatchWithoutArchiveIsNoop(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodPatch, "/api/entries/5.json", `{"archive":0,"starred":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = env.do(http.MethodPatch, "/bookmarks/5", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{}`, rec.Body.String())

	assert.Zero(t, env.upstream.TotalCalls())
}

func TestTags(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/entries/5/tags.json", `{"tags":"a,b"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{}`, rec.Body.String())
	assert.Zero(t, env.upstream.TotalCalls())
}

func TestExport(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.upstream.AddBookmark(testgen.UpstreamBookmark{
		ID:    42,
		Title: "Hello World",
		URL:   "https://example.com/hello",
		Text:  "<p>Hello there.</p>",
		Time:  1700000000,
	})

	// Not stored yet, so the first export syncs the list to find it.
	rec := env.do(http.MethodGet, "/api/entries/42/export.epub", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, epub.MediaType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "Hello World")
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, 1, env.upstream.Calls("/bookmarks/list"))
	assert.Equal(t, 1, env.upstream.Calls("/bookmarks/get_text"))
	first := rec.Body.Bytes()
	require.NotEmpty(t, first)

	before := env.upstream.TotalCalls()
	rec = env.do(http.MethodGet, "/bookmarks/42/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, rec.Body.Bytes())
	assert.Equal(t, before, env.upstream.TotalCalls())
}

// missingCache reports the first misses opens as cache misses, as if cleanup
// had just removed the book.
type missingCache struct {
	*downloadcache.Cache
	misses int
}

func (c *missingCache) Open(id int64) (*os.File, bool) {
	if c.misses > 0 {
		c.misses--
		return nil, false
	}
	return c.Cache.Open(id)
}

func TestExport_BookRemovedAfterBuild(t *testing.T) {
	t.Parallel()
	env := newTestEnvWithCache(t, func(c *downloadcache.Cache) BookCache {
		return &missingCache{Cache: c, misses: 2}
	})
	env.upstream.AddBookmark(testgen.UpstreamBookmark{ID: 8, Title: "Pruned", URL: "https://example.com/pruned", Text: "<p>x</p>"})

	rec := env.do(http.MethodGet, "/bookmarks/8/export", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Body.Bytes())
	assert.Equal(t, 1, env.upstream.Calls("/bookmarks/get_text"))
}

func TestExport_BookKeepsDisappearing(t *testing.T) {
	t.Parallel()
	env := newTestEnvWithCache(t, func(c *downloadcache.Cache) BookCache {
		return &missingCache{Cache: c, misses: 3}
	})
	env.upstream.AddBookmark(testgen.UpstreamBookmark{ID: 8, Title: "Pruned", URL: "https://example.com/pruned", Text: "<p>x</p>"})

	rec := env.do(http.MethodGet, "/bookmarks/8/export", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExport_RebuildsDeletedBook(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.upstream.AddBookmark(testgen.UpstreamBookmark{ID: 12, Title: "Again", URL: "https://example.com/again", Text: "<p>x</p>"})

	rec := env.do(http.MethodGet, "/bookmarks/12/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, downloadcache.DeleteCachedFile(env.cacheDir, 12))

	rec = env.do(http.MethodGet, "/bookmarks/12/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())
	assert.Equal(t, 2, env.upstream.Calls("/bookmarks/get_text"))
}

func TestExport_Head(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.upstream.AddBookmark(testgen.UpstreamBookmark{ID: 7, Title: "Head", URL: "https://example.com/head", Text: "<p>x</p>"})

	rec := env.do(http.MethodHead, "/api/entries/7/export.epub", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, 1, env.upstream.Calls("/bookmarks/get_text"))

	rec = env.do(http.MethodGet, "/api/entries/7/export.epub", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())
	assert.Equal(t, 1, env.upstream.Calls("/bookmarks/get_text"))
}

func TestExport_UnknownBookmark(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/bookmarks/404/export", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, env.upstream.Calls("/bookmarks/get_text"))
}

func TestExport_NoContent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.upstream.AddBookmark(testgen.UpstreamBookmark{ID: 9, Title: "Empty", URL: "https://example.com/empty"})

	rec := env.do(http.MethodGet, "/bookmarks/9/export", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "build_failed")

	// Nothing was cached, so a retry asks upstream again.
	rec = env.do(http.MethodGet, "/bookmarks/9/export", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 2, env.upstream.Calls("/bookmarks/get_text"))
}

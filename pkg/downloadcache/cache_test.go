package downloadcache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbip/wbip/internal/testgen"
	"github.com/wbip/wbip/pkg/config"
	"github.com/wbip/wbip/pkg/enrich"
	"github.com/wbip/wbip/pkg/filegen"
	"github.com/wbip/wbip/pkg/images"
	"github.com/wbip/wbip/pkg/instapaper"
	"github.com/wbip/wbip/pkg/models"
)

type countingGenerator struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (g *countingGenerator) Generate(_ context.Context, destPath string, bookmark *models.Bookmark, _ instapaper.Credentials) error {
	g.calls.Add(1)
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return g.err
	}
	return os.WriteFile(destPath, []byte("book "+bookmark.Title), 0600)
}

func TestGetOrGenerate_CachesBook(t *testing.T) {
	t.Parallel()

	upstream := testgen.NewUpstream(t)
	upstream.AddBookmark(testgen.UpstreamBookmark{ID: 5, Title: "Cached", URL: "https://example.com/c", Text: "<p>Body</p>"})

	cfg := config.NewForTest()
	client := instapaper.NewClient(instapaper.Options{
		BaseURL:        upstream.URL,
		ConsumerKey:    cfg.UpstreamConsumerKey,
		ConsumerSecret: cfg.UpstreamConsumerSecret,
	})
	pipeline := images.NewPipeline(images.NewHTTPFetcher(nil, cfg.ImageMaxBytes, "test"), images.OptionsFromConfig(cfg))
	gen := filegen.NewArticleGenerator(cfg, client, enrich.Noop{}, pipeline, nil)

	dir := t.TempDir()
	cache := NewCache(dir, 0, gen)
	bookmark := &models.Bookmark{ID: 5, Title: "Cached", URL: "https://example.com/c"}
	creds := instapaper.Credentials{Token: "t", Secret: "s"}

	path, filename, err := cache.GetOrGenerate(context.Background(), bookmark, creds)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "5.epub"), path)
	assert.Equal(t, "Cached.epub", filename)
	assert.Equal(t, 1, upstream.Calls("/bookmarks/get_text"))
	first := testgen.ReadFile(t, path)

	callsBefore := upstream.TotalCalls()
	path2, _, err := cache.GetOrGenerate(context.Background(), bookmark, creds)
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	assert.Equal(t, callsBefore, upstream.TotalCalls())
	assert.Equal(t, first, testgen.ReadFile(t, path2))

	meta, err := ReadMetadata(dir, 5)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, int64(len(first)), meta.SizeBytes)
	assert.Equal(t, "Cached.epub", meta.DownloadFilename)
}

func TestGetOrGenerate_CollapsesConcurrentBuilds(t *testing.T) {
	t.Parallel()

	gen := &countingGenerator{release: make(chan struct{})}
	cache := NewCache(t.TempDir(), 0, gen)
	bookmark := &models.Bookmark{ID: 8, Title: "Busy"}

	const callers = 5
	var wg sync.WaitGroup
	paths := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], _, errs[i] = cache.GetOrGenerate(context.Background(), bookmark, instapaper.Credentials{})
		}(i)
	}

	// Give every caller time to join the in-flight build.
	time.Sleep(100 * time.Millisecond)
	close(gen.release)
	wg.Wait()

	assert.Equal(t, int32(1), gen.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
}

func TestGetOrGenerate_ContinuesAfterCallerCancels(t *testing.T) {
	t.Parallel()

	gen := &countingGenerator{release: make(chan struct{})}
	dir := t.TempDir()
	cache := NewCache(dir, 0, gen)
	bookmark := &models.Bookmark{ID: 9, Title: "Detached"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := cache.GetOrGenerate(ctx, bookmark, instapaper.Credentials{})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))

	close(gen.release)
	assert.Eventually(t, func() bool {
		_, ok := cache.Lookup(9)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetOrGenerate_FailureCachesNothing(t *testing.T) {
	t.Parallel()

	gen := &countingGenerator{err: filegen.NewGenerationError(filegen.FileTypeEPUB, filegen.ErrNoContent, "upstream returned no text")}
	dir := t.TempDir()
	cache := NewCache(dir, 0, gen)
	bookmark := &models.Bookmark{ID: 10}

	_, _, err := cache.GetOrGenerate(context.Background(), bookmark, instapaper.Credentials{})
	require.Error(t, err)
	var genErr *filegen.GenerationError
	assert.True(t, errors.As(err, &genErr))

	_, ok := cache.Lookup(10)
	assert.False(t, ok)

	// A later request tries again.
	_, _, err = cache.GetOrGenerate(context.Background(), bookmark, instapaper.Credentials{})
	require.Error(t, err)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestCache_DownloadFilenameFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cache := NewCache(dir, 0, &countingGenerator{})
	testgen.WriteFile(t, dir, "11.epub", []byte("book"))

	path, ok := cache.Lookup(11)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "11.epub"), path)
	assert.Equal(t, "Fresh Title.epub", cache.DownloadFilename(&models.Bookmark{ID: 11, Title: "Fresh Title"}))

	// Touch without metadata is harmless.
	cache.Touch(11)
}

func TestCache_OpenSurvivesCleanup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cache := NewCache(dir, 0, nil)

	_, ok := cache.Open(3)
	assert.False(t, ok)

	createCachedFile(t, dir, 3, 500, time.Now().Add(-time.Hour))
	f, ok := cache.Open(3)
	require.True(t, ok)
	defer f.Close()

	require.NoError(t, DeleteCachedFile(dir, 3))
	_, ok = cache.Lookup(3)
	assert.False(t, ok)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Len(t, data, 500)
}

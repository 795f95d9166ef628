// Package images embeds the pictures referenced by an article's HTML into its
// book: each distinct image is downloaded once, shrunk, converted and renamed,
// and every <img> is pointed at its local copy.
package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/wbip/wbip/pkg/config"
	"github.com/wbip/wbip/pkg/htmlutil"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// AssetDir is the directory, relative to the content document, that holds
// embedded images.
const AssetDir = "images"

const imageStyle = "max-width: 100%"

type Options struct {
	MaxCount    int
	MaxWidth    int
	MaxHeight   int
	Greyscale   bool
	JPEGQuality int
	Timeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxCount:    25,
		MaxWidth:    1000,
		MaxHeight:   1000,
		Greyscale:   true,
		JPEGQuality: 75,
		Timeout:     3050 * time.Millisecond,
	}
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxCount:    cfg.ImageMaxCount,
		MaxWidth:    cfg.ImageMaxWidth,
		MaxHeight:   cfg.ImageMaxHeight,
		Greyscale:   cfg.ImageGreyscale,
		JPEGQuality: cfg.ImageJPEGQuality,
		Timeout:     cfg.ImageTimeout,
	}
}

// Asset is one transcoded image ready to be stored in a book.
type Asset struct {
	Name      string
	MediaType string
	Data      []byte
	SourceURL string
}

// Href is the asset's path relative to the content document.
func (a *Asset) Href() string {
	return AssetDir + "/" + a.Name
}

type Result struct {
	// HTML is the rewritten, XHTML-safe body markup.
	HTML string
	// Assets holds one entry per distinct embedded image, in first-use order.
	Assets []*Asset
	// Skipped lists the images that failed and were removed.
	Skipped []*ImageError
}

type Pipeline struct {
	fetcher Fetcher
	opts    Options
}

func NewPipeline(fetcher Fetcher, opts Options) *Pipeline {
	return &Pipeline{fetcher: fetcher, opts: opts}
}

// keyFor returns the dedupe key for an image URL: the first 16 hex characters
// of its SHA-256 plus its lower-cased path extension.
func keyFor(src string) (hash, ext string) {
	sum := sha256.Sum256([]byte(src))
	hash = hex.EncodeToString(sum[:])[:16]
	if u, err := url.Parse(src); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	return hash, ext
}

// dropWithoutDownload reports whether an <img> is removed outright.
func dropWithoutDownload(src string, dropImages bool) bool {
	return src == "" || dropImages || strings.HasPrefix(src, "denied:") || strings.HasPrefix(src, "data:")
}

func normalizeSource(src string) string {
	src = strings.TrimSpace(src)
	src = strings.TrimSuffix(src, "%2C")
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	return src
}

// Process rewrites every <img> in htmlContent. Images are handled in document
// order: junk images are removed; once more than MaxCount images have been
// seen the remainder are left as they are; each distinct URL is downloaded at
// most once and failures remove their element. With dropImages set every
// <img> is removed and nothing is downloaded.
func (p *Pipeline) Process(ctx context.Context, htmlContent string, dropImages bool) (*Result, error) {
	log := logger.FromContext(ctx)

	body, err := htmlutil.ParseBody(htmlContent)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	htmlutil.Sanitize(body)

	res := &Result{Assets: []*Asset{}, Skipped: []*ImageError{}}
	byKey := map[string]*Asset{}
	failed := map[string]*ImageError{}
	count := 0

	for _, img := range htmlutil.FindAll(body, atom.Img) {
		src, _ := htmlutil.Attr(img, "src")
		if dropWithoutDownload(strings.TrimSpace(src), dropImages) {
			htmlutil.Remove(img)
			continue
		}

		count++
		if count > p.opts.MaxCount {
			break
		}

		src = normalizeSource(src)
		hash, ext := keyFor(src)
		key := hash + ext

		if _, ok := failed[key]; ok {
			htmlutil.Remove(img)
			continue
		}

		asset, ok := byKey[key]
		if !ok {
			asset, err = p.embed(ctx, src, hash, ext)
			if err != nil {
				imgErr := &ImageError{URL: src, Err: err}
				log.Err(err).Warn("skipping image", logger.Data{"url": src})
				failed[key] = imgErr
				res.Skipped = append(res.Skipped, imgErr)
				htmlutil.Remove(img)
				continue
			}
			byKey[key] = asset
			res.Assets = append(res.Assets, asset)
		}

		rewrite(img, asset)
	}

	res.HTML, err = htmlutil.RenderChildren(body)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) embed(ctx context.Context, src, hash, ext string) (*Asset, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	data, err := p.fetcher.Fetch(fetchCtx, src)
	if err != nil {
		return nil, err
	}

	sniffed, err := sniff(data)
	if err != nil {
		return nil, err
	}

	asPNG := ext == ".png" || sniffed == mediaTypePNG
	out, err := p.transcode(data, asPNG)
	if err != nil {
		return nil, err
	}

	asset := &Asset{Name: hash + ".jpg", MediaType: mediaTypeJPEG, Data: out, SourceURL: src}
	if asPNG {
		asset.Name = hash + ".png"
		asset.MediaType = mediaTypePNG
	}
	return asset, nil
}

func rewrite(img *html.Node, asset *Asset) {
	htmlutil.SetAttr(img, "src", asset.Href())
	htmlutil.RemoveAttr(img, "srcset")
	htmlutil.RemoveAttr(img, "sizes")
	htmlutil.SetAttr(img, "style", imageStyle)
	if _, ok := htmlutil.Attr(img, "alt"); !ok {
		htmlutil.SetAttr(img, "alt", "")
	}
}

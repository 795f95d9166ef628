package images

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp" // register decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

const (
	mediaTypeJPEG = "image/jpeg"
	mediaTypePNG  = "image/png"

	// maxSourcePixels bounds the decode buffer for a single image.
	maxSourcePixels = 64 << 20
)

// fitDimensions scales srcW x srcH down to fit within maxW x maxH, keeping the
// aspect ratio. Images that already fit are returned unchanged.
func fitDimensions(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= maxW && srcH <= maxH {
		return srcW, srcH
	}

	ratioW := float64(maxW) / float64(srcW)
	ratioH := float64(maxH) / float64(srcH)

	ratio := ratioW
	if ratioH < ratioW {
		ratio = ratioH
	}

	return max(1, int(float64(srcW)*ratio)), max(1, int(float64(srcH)*ratio))
}

// sniff returns the detected media type of data, or an error if it is not an
// image.
func sniff(data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", errors.Errorf("not an image (%s)", mtype.String())
	}
	return mtype.String(), nil
}

// transcode decodes data, shrinks it to fit the configured box, flattens any
// transparency onto white, optionally converts to greyscale, and re-encodes
// it as PNG or JPEG.
func (p *Pipeline) transcode(data []byte, asPNG bool) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "reading image header")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, errors.Errorf("unsupported image dimensions %dx%d", cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decoding image")
	}

	srcBounds := src.Bounds()
	w, h := fitDimensions(srcBounds.Dx(), srcBounds.Dy(), p.opts.MaxWidth, p.opts.MaxHeight)
	rect := image.Rect(0, 0, w, h)

	canvas := image.NewRGBA(rect)
	draw.Draw(canvas, rect, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.BiLinear.Scale(canvas, rect, src, srcBounds, draw.Over, nil)

	var out image.Image = canvas
	if p.opts.Greyscale {
		gray := image.NewGray(rect)
		draw.Draw(gray, rect, canvas, image.Point{}, draw.Src)
		out = gray
	}

	var buf bytes.Buffer
	if asPNG {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, out)
	} else {
		err = jpeg.Encode(&buf, out, &jpeg.Options{Quality: p.opts.JPEGQuality})
	}
	if err != nil {
		return nil, errors.Wrap(err, "encoding image")
	}
	return buf.Bytes(), nil
}

package testgen

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

// GenerateImage returns a width x height image encoded as mimeType
// ("image/png", "image/jpeg" or "image/gif"). The left half is opaque blue and
// the right half fully transparent where the format allows it.
func GenerateImage(t *testing.T, mimeType string, width, height int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	blue := color.NRGBA{0, 100, 200, 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width/2; x++ {
			img.Set(x, y, blue)
		}
	}

	var buf bytes.Buffer
	var err error
	switch mimeType {
	case "image/jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case "image/gif":
		err = gif.Encode(&buf, img, nil)
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		t.Fatalf("failed to encode %s: %v", mimeType, err)
	}
	return buf.Bytes()
}

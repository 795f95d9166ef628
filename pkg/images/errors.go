package images

import (
	"fmt"
)

// ImageError describes one image that could not be embedded. Its element is
// removed from the article and the build carries on.
type ImageError struct {
	URL string
	Err error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %s: %v", e.URL, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

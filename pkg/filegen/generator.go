// Package filegen assembles saved articles into EPUB books.
package filegen

import (
	"fmt"

	"github.com/pkg/errors"
)

// FileTypeEPUB is the only output format.
const FileTypeEPUB = "epub"

// GenerationError represents an error that occurred during file generation.
type GenerationError struct {
	FileType string
	Err      error
	Message  string
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to generate %s file: %s", e.FileType, e.Message)
	}
	return fmt.Sprintf("failed to generate %s file: %s: %v", e.FileType, e.Message, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError creates a new GenerationError.
func NewGenerationError(fileType string, err error, message string) *GenerationError {
	return &GenerationError{
		FileType: fileType,
		Err:      err,
		Message:  message,
	}
}

// ErrNoContent is returned when the upstream has no text for a bookmark.
var ErrNoContent = errors.New("no content")

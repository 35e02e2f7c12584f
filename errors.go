package blogcore

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested post, category or user does not exist.
var ErrNotFound = sql.ErrNoRows

// ErrUnsupportedFormat is returned when an uploaded image is in a format the
// pipeline refuses to process (HEIF/HEIC, or anything the decoder cannot
// identify). The user can recover by re-uploading as JPEG or PNG.
var ErrUnsupportedFormat = errors.New("unsupported image format, use JPEG or PNG")

// ErrValidation is returned when required fields are missing from an
// admin submission.
var ErrValidation = errors.New("missing required fields")

// DuplicateTitleError is returned when creating a post whose title exactly
// matches an existing post and overwrite was not requested. It carries the
// conflicting post so callers can offer the overwrite path.
type DuplicateTitleError struct {
	ID    int64
	Title string
}

func (e *DuplicateTitleError) Error() string {
	return fmt.Sprintf("a post titled %q already exists (id %d)", e.Title, e.ID)
}

// ImageProcessingError wraps a decode or I/O failure for a single uploaded
// file. The request fails, but earlier files in the same batch are kept.
type ImageProcessingError struct {
	Filename string
	Err      error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("processing image %q: %v", e.Filename, e.Err)
}

func (e *ImageProcessingError) Unwrap() error {
	return e.Err
}

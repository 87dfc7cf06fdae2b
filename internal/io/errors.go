package io

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is wrapped by DecodeError when no decoder accepts the data.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrTooLarge is wrapped when an image declares dimensions above MaxDimension.
	ErrTooLarge = errors.New("image too large")

	errIsDirectory = errors.New("path is a directory")
	errNilImage    = errors.New("no image to save")
)

// NotFoundError reports a path that does not exist or cannot be opened.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cannot open %s: %v", e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// DecodeError reports data that is corrupt, truncated or in an unsupported format.
type DecodeError struct {
	Path   string
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("cannot decode %s (%s): %v", e.Path, e.Format, e.Err)
	}
	return fmt.Sprintf("cannot decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteError reports a failure to create, encode or commit an output file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cannot write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

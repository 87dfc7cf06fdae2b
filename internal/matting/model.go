// Package matting wraps external background-removal models behind a single
// PNG-in, PNG-with-alpha-out boundary.
package matting

import (
	"context"
	"errors"
	"fmt"
)

// Model is the external matting boundary: it receives a PNG and returns a
// PNG whose alpha channel marks background pixels as transparent.
type Model interface {
	Name() string
	Remove(ctx context.Context, png []byte) ([]byte, error)
}

// InferenceError reports a failed model call or an unusable model reply.
type InferenceError struct {
	JobID string
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("background removal failed (%s): %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

var (
	errNoImage     = errors.New("no image to process")
	errEmptyOutput = errors.New("model returned no data")
)

type jobIDKey struct{}

// WithJobID attaches a job id to ctx so models can forward it.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobIDFromContext returns the job id set by WithJobID, if any.
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}

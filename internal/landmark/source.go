package landmark

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by Next once a source has been closed.
var ErrSourceClosed = errors.New("landmark source closed")

// Source defines the upstream component that delivers landmark frames.
type Source interface {
	// Next blocks until the next frame is available.
	// It returns io.EOF when the source is exhausted.
	Next(ctx context.Context) (Frame, error)

	// Close releases any resources held by the source.
	Close() error
}

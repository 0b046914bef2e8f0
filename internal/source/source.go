// Package source abstracts the video feed of a camera as a sequence of
// encoded frames. Opening a source claims the camera's decode
// connection; closing it releases that connection.
package source

import (
	"context"
	"errors"

	"github.com/crosslabs/camhub/internal/config"
)

// ErrSourceUnavailable is returned when a camera's feed cannot be opened
// or stops producing frames
var ErrSourceUnavailable = errors.New("video source unavailable")

// Source is one open video feed
type Source interface {
	// ReadFrame blocks until the next encoded frame is available.
	// Returns ErrSourceUnavailable (possibly wrapped) once the feed is
	// dead; no frames follow an error.
	ReadFrame() ([]byte, error)

	// Close releases the feed. Safe to call concurrently with ReadFrame
	// and more than once.
	Close() error
}

// Opener opens the video feed of a camera
type Opener interface {
	Open(ctx context.Context, cam config.Camera) (Source, error)
}

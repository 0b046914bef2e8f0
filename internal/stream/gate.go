// Package stream ties the admission table to the video sources: one open
// source per camera, fanned out to any number of viewers, with the
// distinct-camera cap enforced before the first frame is read.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/crosslabs/camhub/internal/broker"
	"github.com/crosslabs/camhub/internal/inventory"
	"github.com/crosslabs/camhub/internal/logger"
	"github.com/crosslabs/camhub/internal/source"
)

// ErrCapacityExceeded is returned when the distinct-camera stream cap is
// reached. An expected outcome, not a fault.
var ErrCapacityExceeded = errors.New("maximum concurrent streams reached")

// viewerBuffer is the per-viewer frame backlog; slow viewers drop frames
// rather than stalling the feed
const viewerBuffer = 2

// Gate admits viewers and multiplexes one open source per camera among
// them. The first viewer of a camera opens the source and starts the
// pump; the last viewer out releases it.
type Gate struct {
	admission *broker.AdmissionTable
	opener    source.Opener
	inv       inventory.Store

	mu    sync.Mutex
	feeds map[string]*feed
}

type feed struct {
	camID   string
	ready   chan struct{}            // closed once src or openErr is set
	src     source.Source            // guarded by Gate.mu until ready
	openErr error                    // guarded by Gate.mu until ready
	viewers map[chan []byte]struct{} // guarded by Gate.mu
	dead    bool                     // guarded by Gate.mu
}

// NewGate creates a streaming gate
func NewGate(admission *broker.AdmissionTable, opener source.Opener, inv inventory.Store) *Gate {
	return &Gate{
		admission: admission,
		opener:    opener,
		inv:       inv,
		feeds:     make(map[string]*feed),
	}
}

// Viewer is one admitted stream consumer. Close must be called exactly
// once when the consumer is done; it is idempotent.
type Viewer struct {
	camID  string
	frames chan []byte
	gate   *Gate
	feed   *feed
	once   sync.Once
}

// CameraID returns the camera this viewer is attached to
func (v *Viewer) CameraID() string {
	return v.camID
}

// Frames returns the viewer's frame channel. It is closed when the
// viewer is closed or the source dies.
func (v *Viewer) Frames() <-chan []byte {
	return v.frames
}

// Close detaches the viewer, decrementing its admission slot. The last
// viewer of a camera releases the underlying source.
func (v *Viewer) Close() {
	v.once.Do(func() {
		g, f := v.gate, v.feed

		var stop bool
		g.mu.Lock()
		if _, attached := f.viewers[v.frames]; attached {
			delete(f.viewers, v.frames)
			close(v.frames)
			if len(f.viewers) == 0 && !f.dead {
				f.dead = true
				delete(g.feeds, f.camID)
				stop = true
			}
		}
		g.mu.Unlock()

		if stop {
			f.src.Close()
			logger.WithComponent("stream").Info().
				Str("camera", f.camID).
				Msg("Last viewer detached, source released")
		}

		g.admission.Close(v.camID)
	})
}

// Attach admits a viewer for a camera, opening its source if this is the
// first viewer. Returns inventory.ErrUnknownCamera, ErrCapacityExceeded,
// or source.ErrSourceUnavailable (wrapped) on rejection.
func (g *Gate) Attach(ctx context.Context, camID string) (*Viewer, error) {
	cam, err := g.inv.Resolve(camID)
	if err != nil {
		return nil, err
	}

	if !g.admission.TryOpen(camID) {
		return nil, ErrCapacityExceeded
	}

	frames := make(chan []byte, viewerBuffer)

	g.mu.Lock()
	f := g.feeds[camID]
	opening := f == nil
	if opening {
		f = &feed{
			camID:   camID,
			ready:   make(chan struct{}),
			viewers: make(map[chan []byte]struct{}),
		}
		g.feeds[camID] = f
	}
	f.viewers[frames] = struct{}{}
	viewerCount := len(f.viewers)
	g.mu.Unlock()

	if opening {
		// The open is network I/O and must not run under g.mu; live
		// feeds keep broadcasting while this camera connects
		src, err := g.opener.Open(ctx, cam)
		g.mu.Lock()
		if err != nil {
			f.openErr = err
			f.dead = true
			delete(g.feeds, f.camID)
		} else {
			f.src = src
		}
		close(f.ready)
		g.mu.Unlock()
		if err == nil {
			go g.pump(f)
		}
	}

	<-f.ready

	g.mu.Lock()
	openErr := f.openErr
	if openErr != nil {
		if _, attached := f.viewers[frames]; attached {
			delete(f.viewers, frames)
			close(frames)
		}
	}
	g.mu.Unlock()
	if openErr != nil {
		// Failed open must not leave a stale admission grant
		g.admission.Close(camID)
		return nil, openErr
	}

	logger.WithComponent("stream").Info().
		Str("camera", camID).
		Int("viewers", viewerCount).
		Msg("Viewer attached")

	return &Viewer{camID: camID, frames: frames, gate: g, feed: f}, nil
}

// pump reads frames from the source and broadcasts them to viewers until
// the source dies or the last viewer detaches
func (g *Gate) pump(f *feed) {
	for {
		frame, err := f.src.ReadFrame()
		if err != nil {
			g.mu.Lock()
			deliberate := f.dead
			if !f.dead {
				f.dead = true
				delete(g.feeds, f.camID)
			}
			for ch := range f.viewers {
				delete(f.viewers, ch)
				close(ch)
			}
			g.mu.Unlock()

			f.src.Close()
			if !deliberate {
				logger.WithComponent("stream").Warn().
					Err(err).
					Str("camera", f.camID).
					Msg("Video source failed, viewers disconnected")
			}
			return
		}

		g.mu.Lock()
		for ch := range f.viewers {
			select {
			case ch <- frame:
			default:
				// Viewer is slow, skip this frame
			}
		}
		g.mu.Unlock()
	}
}

// Stop releases every open source. Viewers see their frame channels
// close; their own Close calls settle the admission counts.
func (g *Gate) Stop() {
	g.mu.Lock()
	feeds := make([]*feed, 0, len(g.feeds))
	for _, f := range g.feeds {
		if f.src != nil {
			feeds = append(feeds, f)
		}
	}
	g.mu.Unlock()

	for _, f := range feeds {
		f.src.Close()
	}
}

package broker

import (
	"sync"

	"github.com/crosslabs/camhub/internal/logger"
)

// AdmissionTable bounds the number of distinct cameras being streamed at
// once. The scarce resource is the decode/connection to the camera, not
// the viewers of a feed that is already open: the first viewer of a
// camera consumes one unit of cap capacity, additional viewers of the
// same camera are free.
type AdmissionTable struct {
	mu      sync.Mutex
	max     int
	viewers map[string]int // camera id -> viewer count, absent when zero
}

// NewAdmissionTable creates an admission table with the given cap on
// distinct concurrently-open cameras
func NewAdmissionTable(maxStreams int) *AdmissionTable {
	return &AdmissionTable{
		max:     maxStreams,
		viewers: make(map[string]int),
	}
}

// TryOpen admits one viewer for a camera. Cameras that already have a
// viewer are always admitted; opening a new camera is admitted only while
// the number of open cameras is below the cap.
func (t *AdmissionTable) TryOpen(camID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n, open := t.viewers[camID]; open {
		t.viewers[camID] = n + 1
		return true
	}

	if len(t.viewers) >= t.max {
		logger.WithComponent("admission").Debug().
			Str("camera", camID).
			Int("open", len(t.viewers)).
			Int("max", t.max).
			Msg("Stream rejected, cap reached")
		return false
	}

	t.viewers[camID] = 1
	return true
}

// Close withdraws one viewer admitted by a successful TryOpen. When the
// count reaches zero the camera no longer occupies cap capacity. Closing
// a camera with no viewers is a no-op.
func (t *AdmissionTable) Close(camID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, open := t.viewers[camID]
	if !open {
		logger.WithComponent("admission").Debug().
			Str("camera", camID).
			Msg("Close for camera with no viewers ignored")
		return
	}

	if n <= 1 {
		delete(t.viewers, camID)
		return
	}
	t.viewers[camID] = n - 1
}

// Viewers returns the current viewer count for a camera
func (t *AdmissionTable) Viewers(camID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewers[camID]
}

// OpenCameras returns the number of distinct cameras with viewers
func (t *AdmissionTable) OpenCameras() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.viewers)
}

// Max returns the configured cap
func (t *AdmissionTable) Max() int {
	return t.max
}

// Snapshot returns a copy of the camera -> viewer count mapping
func (t *AdmissionTable) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[string]int, len(t.viewers))
	for camID, n := range t.viewers {
		counts[camID] = n
	}
	return counts
}

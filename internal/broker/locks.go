// Package broker holds the shared control state of the camera hub: the
// lock table granting exclusive PTZ control, the admission table capping
// the number of concurrently decoded cameras, and the command relay that
// authorizes directives against the lock table.
//
// Both tables are safe for concurrent use by any number of connection
// goroutines; every public operation is atomic with respect to all others.
package broker

import (
	"sort"
	"sync"

	"github.com/crosslabs/camhub/internal/logger"
)

// LockTable is the single source of truth for exclusive camera control.
// Each camera has one slot: unlocked, or owned by exactly one session.
type LockTable struct {
	mu     sync.Mutex
	owners map[string]string              // camera id -> owning session id
	held   map[string]map[string]struct{} // session id -> held camera ids
}

// NewLockTable creates an empty lock table
func NewLockTable() *LockTable {
	return &LockTable{
		owners: make(map[string]string),
		held:   make(map[string]map[string]struct{}),
	}
}

// Acquire attempts to take exclusive control of a camera for a session.
// A camera already locked by anyone, including the requesting session,
// is denied: there are no re-entrant or upgrade semantics.
func (t *LockTable) Acquire(camID, sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, locked := t.owners[camID]; locked {
		return false
	}

	t.owners[camID] = sessionID
	if t.held[sessionID] == nil {
		t.held[sessionID] = make(map[string]struct{})
	}
	t.held[sessionID][camID] = struct{}{}

	logger.WithSession("locks", sessionID).Debug().
		Str("camera", camID).
		Msg("Lock acquired")
	return true
}

// Release gives up a single camera lock. It succeeds only if the session
// currently owns the lock.
func (t *LockTable) Release(camID, sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owners[camID] != sessionID {
		return false
	}

	delete(t.owners, camID)
	delete(t.held[sessionID], camID)
	if len(t.held[sessionID]) == 0 {
		delete(t.held, sessionID)
	}

	logger.WithSession("locks", sessionID).Debug().
		Str("camera", camID).
		Msg("Lock released")
	return true
}

// ReleaseAll frees every lock held by the session. Called at session
// teardown; idempotent and safe when the session holds nothing.
func (t *LockTable) ReleaseAll(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cams := t.held[sessionID]
	if len(cams) == 0 {
		delete(t.held, sessionID)
		return
	}

	for camID := range cams {
		delete(t.owners, camID)
	}
	delete(t.held, sessionID)

	logger.WithSession("locks", sessionID).Debug().
		Int("released", len(cams)).
		Msg("All locks released")
}

// IsOwner reports whether the session currently holds the camera's lock
func (t *LockTable) IsOwner(camID, sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owners[camID] == sessionID
}

// Owner returns the session currently holding the camera's lock, if any
func (t *LockTable) Owner(camID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	owner, ok := t.owners[camID]
	return owner, ok
}

// HeldBy returns the camera ids locked by the session, ordered by id
func (t *LockTable) HeldBy(sessionID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cams := make([]string, 0, len(t.held[sessionID]))
	for camID := range t.held[sessionID] {
		cams = append(cams, camID)
	}
	sort.Strings(cams)
	return cams
}

// Snapshot returns a copy of the camera -> owning session mapping
func (t *LockTable) Snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	owners := make(map[string]string, len(t.owners))
	for camID, sessionID := range t.owners {
		owners[camID] = sessionID
	}
	return owners
}

package broker

import "github.com/google/uuid"

// Session identifies one connected client for the lifetime of its
// connection. The ID is the canonical identity used for both lock
// ownership and cleanup lookup; the remote address is informational only.
type Session struct {
	ID     string `json:"id"`
	Remote string `json:"remote"`
}

// NewSession creates a session with a fresh stable identity
func NewSession(remote string) Session {
	return Session{
		ID:     uuid.NewString(),
		Remote: remote,
	}
}

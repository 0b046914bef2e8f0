package broker

import (
	"context"

	"github.com/crosslabs/camhub/internal/config"
	"github.com/crosslabs/camhub/internal/inventory"
	"github.com/crosslabs/camhub/internal/logger"
	"github.com/crosslabs/camhub/internal/ptz"
)

// RelayResult is the outcome of a relayed directive
type RelayResult int

const (
	RelayOK RelayResult = iota
	RelayUnknownCamera
	RelayUnauthorized
	RelayUpstreamFailure
)

func (r RelayResult) String() string {
	switch r {
	case RelayOK:
		return "ok"
	case RelayUnknownCamera:
		return "unknown_camera"
	case RelayUnauthorized:
		return "unauthorized"
	case RelayUpstreamFailure:
		return "upstream_failure"
	default:
		return "unknown"
	}
}

// Commander forwards a directive to a camera's command endpoint
type Commander interface {
	Do(ctx context.Context, cam config.Camera, cmd ptz.Command) error
}

// Relay authorizes PTZ directives against the lock table and forwards
// them to the camera command endpoint. It is stateless: the lock table
// and inventory hold all the state it consults.
type Relay struct {
	locks *LockTable
	inv   inventory.Store
	cams  Commander
}

// NewRelay creates a command relay
func NewRelay(locks *LockTable, inv inventory.Store, cams Commander) *Relay {
	return &Relay{locks: locks, inv: inv, cams: cams}
}

// Send authorizes and forwards one directive. Non-owning sessions are
// rejected without contacting the camera. No retries on upstream
// failure; the broker's bookkeeping is unaffected either way.
func (r *Relay) Send(ctx context.Context, camID, sessionID string, cmd ptz.Command) RelayResult {
	cam, err := r.inv.Resolve(camID)
	if err != nil {
		return RelayUnknownCamera
	}

	if !r.locks.IsOwner(camID, sessionID) {
		logger.WithSession("relay", sessionID).Debug().
			Str("camera", camID).
			Msg("Directive rejected, session does not hold lock")
		return RelayUnauthorized
	}

	if err := r.cams.Do(ctx, cam, cmd); err != nil {
		logger.WithSession("relay", sessionID).Warn().
			Err(err).
			Str("camera", camID).
			Str("code", string(cmd.Code)).
			Msg("Camera command endpoint failure")
		return RelayUpstreamFailure
	}

	logger.WithSession("relay", sessionID).Debug().
		Str("camera", camID).
		Str("code", string(cmd.Code)).
		Str("phase", string(cmd.Phase)).
		Msg("Directive relayed")
	return RelayOK
}

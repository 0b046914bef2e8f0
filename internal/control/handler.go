package control

import (
	"context"
	"strconv"
	"sync"

	"github.com/crosslabs/camhub/internal/broker"
	"github.com/crosslabs/camhub/internal/inventory"
	"github.com/crosslabs/camhub/internal/logger"
	"github.com/crosslabs/camhub/internal/ptz"
	"github.com/crosslabs/camhub/internal/snapshot"
)

// Handler runs the per-session control loop over any Transport
type Handler struct {
	Locks     *broker.LockTable
	Relay     *broker.Relay
	Inventory inventory.Store
	Snapshots *snapshot.Service
}

// HandleSession serves one client connection until it disconnects,
// errors, or sends a malformed frame. Session cleanup (releasing every
// held lock) is guaranteed to run exactly once on any exit path.
func (h *Handler) HandleSession(ctx context.Context, t Transport) {
	sess := broker.NewSession(t.RemoteAddr())
	log := logger.WithSession("control", sess.ID)

	log.Info().Str("remote", sess.Remote).Msg("Client connected")

	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			h.Locks.ReleaseAll(sess.ID)
			t.Close()
			log.Info().Str("remote", sess.Remote).Msg("Client disconnected")
		})
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := t.ReadFrame()
		if err != nil {
			return
		}

		frame, err := Parse(raw)
		if err != nil {
			// One malformed frame closes the session
			log.Warn().Str("raw", raw).Msg("Malformed frame, closing session")
			_ = t.WriteFrame(Format(RespErr, "", ReasonMalformed))
			return
		}

		resp, quit := h.dispatch(ctx, sess, frame)
		if resp != "" {
			if err := t.WriteFrame(resp); err != nil {
				return
			}
		}
		if quit {
			return
		}
	}
}

// dispatch executes one request and returns the response frame plus
// whether the session should end
func (h *Handler) dispatch(ctx context.Context, sess broker.Session, frame Frame) (string, bool) {
	switch frame.Name {
	case CmdRequestCam:
		if len(frame.Args) != 1 || frame.Args[0] == "" {
			return Format(RespErr, "", ReasonMalformed), true
		}
		camID := frame.Args[0]
		if !h.Inventory.Known(camID) {
			return Format(RespErr, camID, ReasonUnknownCamera), false
		}
		if h.Locks.Acquire(camID, sess.ID) {
			return Format(RespAckCam, camID), false
		}
		return Format(RespNackCam, camID), false

	case CmdReleaseCam:
		if len(frame.Args) != 1 || frame.Args[0] == "" {
			return Format(RespErr, "", ReasonMalformed), true
		}
		camID := frame.Args[0]
		if h.Locks.Release(camID, sess.ID) {
			return Format(RespAckRelease, camID), false
		}
		return Format(RespUnauthorized, camID), false

	case CmdPTZ:
		if len(frame.Args) < 2 || frame.Args[0] == "" {
			return Format(RespErr, "", ReasonMalformed), true
		}
		camID := frame.Args[0]
		cmd, ok := parseDirective(frame.Args[1:])
		if !ok {
			return Format(RespErr, camID, ReasonBadDirective), false
		}
		switch h.Relay.Send(ctx, camID, sess.ID, cmd) {
		case broker.RelayOK:
			return Format(RespAckPTZ, camID, string(cmd.Code)), false
		case broker.RelayUnauthorized:
			return Format(RespUnauthorized, camID), false
		case broker.RelayUnknownCamera:
			return Format(RespErr, camID, ReasonUnknownCamera), false
		default:
			return Format(RespErr, camID, ReasonUpstreamFailure), false
		}

	case CmdSnap:
		if len(frame.Args) != 1 || frame.Args[0] == "" {
			return Format(RespErr, "", ReasonMalformed), true
		}
		camID := frame.Args[0]
		if !h.Inventory.Known(camID) {
			return Format(RespErr, camID, ReasonUnknownCamera), false
		}
		if !h.Locks.IsOwner(camID, sess.ID) {
			return Format(RespUnauthorized, camID), false
		}
		if _, err := h.Snapshots.Capture(ctx, camID); err != nil {
			logger.WithSession("control", sess.ID).Warn().
				Err(err).
				Str("camera", camID).
				Msg("Snapshot capture failed")
			return Format(RespErr, camID, ReasonSnapshotFailed), false
		}
		return Format(RespAckSnap, camID), false

	case CmdQuit:
		return Format(RespBye), true

	default:
		// Unknown verbs count as malformed input
		return Format(RespErr, "", ReasonMalformed), true
	}
}

// parseDirective decodes PTZ args: code[,phase[,speed]]
func parseDirective(args []string) (ptz.Command, bool) {
	cmd := ptz.Command{Code: ptz.Code(args[0])}
	if len(args) > 1 && args[1] != "" {
		cmd.Phase = ptz.Phase(args[1])
	}
	if len(args) > 2 && args[2] != "" {
		speed, err := strconv.Atoi(args[2])
		if err != nil {
			return ptz.Command{}, false
		}
		cmd.Speed = speed
	}
	if len(args) > 3 {
		return ptz.Command{}, false
	}
	if err := cmd.Validate(); err != nil {
		return ptz.Command{}, false
	}
	return cmd, true
}

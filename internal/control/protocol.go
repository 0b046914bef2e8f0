// Package control implements the persistent control connection clients
// use to claim cameras and steer them: a TCP listener and a WebSocket
// transport speaking the same framed text protocol, one session per
// connection.
//
// Frames are `$`-prefixed, comma-separated, `#`-terminated records, one
// per line: `$REQUEST_CAM,cam1#`, `$PTZ,cam1,Left,start,5#`. Every
// request gets exactly one response frame, in order.
package control

import (
	"errors"
	"strings"
)

// Request verbs
const (
	CmdRequestCam = "REQUEST_CAM"
	CmdReleaseCam = "RELEASE_CAM"
	CmdPTZ        = "PTZ"
	CmdSnap       = "SNAP"
	CmdQuit       = "QUIT"
)

// Response verbs
const (
	RespAckCam       = "ACK_CAM"
	RespNackCam      = "NACK_CAM"
	RespAckRelease   = "ACK_REL"
	RespAckPTZ       = "ACK_PTZ"
	RespAckSnap      = "ACK_SNAP"
	RespUnauthorized = "UNAUTHORIZED"
	RespErr          = "ERR"
	RespBye          = "BYE"
)

// Error reasons carried in ERR frames
const (
	ReasonUnknownCamera   = "unknown_camera"
	ReasonBadDirective    = "bad_directive"
	ReasonUpstreamFailure = "upstream_failure"
	ReasonSnapshotFailed  = "snapshot_failed"
	ReasonMalformed       = "malformed"
)

// ErrMalformedFrame is returned for input that is not a valid frame
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one parsed protocol record
type Frame struct {
	Name string
	Args []string
}

// Parse decodes a raw line (without the line terminator) into a Frame
func Parse(raw string) (Frame, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 3 || raw[0] != '$' || raw[len(raw)-1] != '#' {
		return Frame{}, ErrMalformedFrame
	}

	fields := strings.Split(raw[1:len(raw)-1], ",")
	name := strings.TrimSpace(fields[0])
	if name == "" {
		return Frame{}, ErrMalformedFrame
	}

	args := make([]string, 0, len(fields)-1)
	for _, f := range fields[1:] {
		args = append(args, strings.TrimSpace(f))
	}
	return Frame{Name: name, Args: args}, nil
}

// Format encodes a response frame
func Format(name string, args ...string) string {
	var b strings.Builder
	b.WriteByte('$')
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(',')
		b.WriteString(a)
	}
	b.WriteByte('#')
	return b.String()
}

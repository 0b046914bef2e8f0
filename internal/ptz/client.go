// Package ptz sends pan/tilt/zoom/focus directives to a camera's HTTP
// command endpoint (the CGI interface exposed by CP Plus / Dahua style
// PTZ cameras, authenticated with HTTP digest auth).
package ptz

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/icholy/digest"

	"github.com/crosslabs/camhub/internal/config"
)

// Code names a camera motion or lens directive
type Code string

const (
	CodeLeft      Code = "Left"
	CodeRight     Code = "Right"
	CodeUp        Code = "Up"
	CodeDown      Code = "Down"
	CodeZoomTele  Code = "ZoomTele"
	CodeZoomWide  Code = "ZoomWide"
	CodeFocusNear Code = "FocusNear"
	CodeFocusFar  Code = "FocusFar"
)

// Phase is the start/stop half of a press-and-hold directive
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseStop  Phase = "stop"
)

// DefaultSpeed is the motion speed used when the caller gives none
const DefaultSpeed = 5

var validCodes = map[Code]struct{}{
	CodeLeft: {}, CodeRight: {}, CodeUp: {}, CodeDown: {},
	CodeZoomTele: {}, CodeZoomWide: {}, CodeFocusNear: {}, CodeFocusFar: {},
}

// Command is one PTZ directive
type Command struct {
	Code  Code
	Phase Phase
	Speed int
}

// Validate checks the directive fields and fills in defaults
func (c *Command) Validate() error {
	if _, ok := validCodes[c.Code]; !ok {
		return fmt.Errorf("unknown ptz code %q", c.Code)
	}
	switch c.Phase {
	case PhaseStart, PhaseStop:
	case "":
		c.Phase = PhaseStart
	default:
		return fmt.Errorf("unknown ptz phase %q", c.Phase)
	}
	if c.Speed == 0 {
		c.Speed = DefaultSpeed
	}
	if c.Speed < 1 || c.Speed > 8 {
		return fmt.Errorf("ptz speed %d out of range", c.Speed)
	}
	return nil
}

// Client issues directives to camera command endpoints. One client
// serves all cameras; digest-authenticated HTTP clients are cached per
// camera id.
type Client struct {
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewClient creates a PTZ client with the given per-request timeout
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		timeout: timeout,
		clients: make(map[string]*http.Client),
	}
}

func (c *Client) clientFor(cam config.Camera) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.clients[cam.ID]; ok {
		return hc
	}
	hc := &http.Client{
		Timeout: c.timeout,
		Transport: &digest.Transport{
			Username: cam.Username,
			Password: cam.Password,
		},
	}
	c.clients[cam.ID] = hc
	return hc
}

// Do forwards one directive to the camera. No retries: a transient
// failure surfaces immediately so the operator can resend.
func (c *Client) Do(ctx context.Context, cam config.Camera, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	host := cam.Host
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	url := fmt.Sprintf("%s/cgi-bin/ptz.cgi?action=%s&channel=1&code=%s&arg1=0&arg2=%d&arg3=0",
		host, cmd.Phase, cmd.Code, cmd.Speed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build ptz request: %w", err)
	}

	resp, err := c.clientFor(cam).Do(req)
	if err != nil {
		return fmt.Errorf("ptz request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("camera %s returned status %d", cam.ID, resp.StatusCode)
	}
	return nil
}

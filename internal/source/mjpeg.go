package source

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/icholy/digest"

	"github.com/crosslabs/camhub/internal/config"
	"github.com/crosslabs/camhub/internal/logger"
)

// maxFrameSize bounds a single JPEG part read from the camera
const maxFrameSize = 8 << 20

// MJPEGOpener opens the MJPEG sub-stream network cameras expose over
// HTTP (multipart/x-mixed-replace), authenticated with digest auth like
// the command endpoint.
type MJPEGOpener struct {
	Timeout time.Duration // connect timeout; zero means 5s
}

// Open connects to the camera's MJPEG stream URL. The caller's context
// bounds connecting only: the open stream outlives it and is released by
// Close, since a feed is shared beyond the viewer that opened it.
func (o *MJPEGOpener) Open(ctx context.Context, cam config.Camera) (Source, error) {
	if cam.StreamURL == "" {
		return nil, fmt.Errorf("camera %s has no stream url: %w", cam.ID, ErrSourceUnavailable)
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := &http.Client{
		Transport: &digest.Transport{
			Username: cam.Username,
			Password: cam.Password,
		},
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, cam.StreamURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}

	// The select below is the sole decision point for the connect: a
	// response that loses to the deadline is drained and closed, never
	// handed out half-cancelled
	type connectResult struct {
		resp *http.Response
		err  error
	}
	done := make(chan connectResult, 1)
	go func() {
		resp, err := client.Do(req)
		done <- connectResult{resp, err}
	}()

	var resp *http.Response
	select {
	case r := <-done:
		if r.err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, r.err)
		}
		resp = r.resp
	case <-ctx.Done():
		cancel()
		if r := <-done; r.resp != nil {
			r.resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, ctx.Err())
	case <-time.After(timeout):
		cancel()
		if r := <-done; r.resp != nil {
			r.resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: camera %s connect timed out after %s", ErrSourceUnavailable, cam.ID, timeout)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: camera %s returned status %d", ErrSourceUnavailable, cam.ID, resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: camera %s sent unexpected content type %q",
			ErrSourceUnavailable, cam.ID, resp.Header.Get("Content-Type"))
	}

	logger.WithComponent("source").Info().
		Str("camera", cam.ID).
		Msg("Video source opened")

	return &mjpegSource{
		camID:  cam.ID,
		cancel: cancel,
		body:   resp.Body,
		reader: multipart.NewReader(resp.Body, params["boundary"]),
	}, nil
}

type mjpegSource struct {
	camID  string
	cancel context.CancelFunc
	body   io.ReadCloser
	reader *multipart.Reader

	closeOnce sync.Once
}

func (s *mjpegSource) ReadFrame() ([]byte, error) {
	part, err := s.reader.NextPart()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer part.Close()

	frame, err := io.ReadAll(io.LimitReader(part, maxFrameSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return frame, nil
}

func (s *mjpegSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.body.Close()
		logger.WithComponent("source").Info().
			Str("camera", s.camID).
			Msg("Video source closed")
	})
	return nil
}

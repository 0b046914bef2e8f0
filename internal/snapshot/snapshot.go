// Package snapshot grabs single still frames from a camera feed and
// saves them to disk.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/crosslabs/camhub/internal/inventory"
	"github.com/crosslabs/camhub/internal/logger"
	"github.com/crosslabs/camhub/internal/source"
)

// Service captures snapshots. It opens the camera source directly for
// one frame; snapshots do not count against the streaming cap.
type Service struct {
	opener source.Opener
	inv    inventory.Store
	dir    string
}

// NewService creates a snapshot service writing JPEGs under dir
func NewService(opener source.Opener, inv inventory.Store, dir string) *Service {
	return &Service{opener: opener, inv: inv, dir: dir}
}

// Capture grabs one frame from the camera and writes it to disk,
// returning the saved file's path
func (s *Service) Capture(ctx context.Context, camID string) (string, error) {
	cam, err := s.inv.Resolve(camID)
	if err != nil {
		return "", err
	}

	src, err := s.opener.Open(ctx, cam)
	if err != nil {
		return "", err
	}
	defer src.Close()

	frame, err := src.ReadFrame()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.jpg", camID, time.Now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, frame, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	logger.WithComponent("snapshot").Info().
		Str("camera", camID).
		Str("path", path).
		Msg("Snapshot saved")

	return path, nil
}

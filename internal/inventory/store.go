// Package inventory resolves camera identifiers to connection parameters.
//
// Unknown identifiers are rejected here, before any lock or admission
// bookkeeping is touched.
package inventory

import (
	"errors"
	"sort"

	"github.com/crosslabs/camhub/internal/config"
)

// ErrUnknownCamera is returned when an identifier is not in the inventory
var ErrUnknownCamera = errors.New("unknown camera")

// Store resolves camera identifiers to their connection parameters
type Store interface {
	// Resolve returns the camera with the given id, or ErrUnknownCamera
	Resolve(id string) (config.Camera, error)

	// Known reports whether the id names a camera in the inventory
	Known(id string) bool

	// List returns all cameras, ordered by id
	List() []config.Camera
}

// configStore is a Store backed by the static camera list in the config file
type configStore struct {
	cameras map[string]config.Camera
}

// NewStore builds a Store from the configured camera list
func NewStore(cameras []config.Camera) Store {
	byID := make(map[string]config.Camera, len(cameras))
	for _, cam := range cameras {
		byID[cam.ID] = cam
	}
	return &configStore{cameras: byID}
}

func (s *configStore) Resolve(id string) (config.Camera, error) {
	cam, ok := s.cameras[id]
	if !ok {
		return config.Camera{}, ErrUnknownCamera
	}
	return cam, nil
}

func (s *configStore) Known(id string) bool {
	_, ok := s.cameras[id]
	return ok
}

func (s *configStore) List() []config.Camera {
	cameras := make([]config.Camera, 0, len(s.cameras))
	for _, cam := range s.cameras {
		cameras = append(cameras, cam)
	}
	sort.Slice(cameras, func(i, j int) bool { return cameras[i].ID < cameras[j].ID })
	return cameras
}

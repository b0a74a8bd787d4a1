package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// RegistryStub maps service ids to handles.
type RegistryStub struct {
	mu       sync.RWMutex
	services map[int32]remote.Handle
}

// NewRegistryStub creates an empty registry.
func NewRegistryStub() *RegistryStub {
	return &RegistryStub{services: make(map[int32]remote.Handle)}
}

// Add registers h under serviceID, replacing any previous handle.
func (s *RegistryStub) Add(serviceID int32, h remote.Handle) {
	s.mu.Lock()
	s.services[serviceID] = h
	s.mu.Unlock()
}

// Remove drops serviceID.
func (s *RegistryStub) Remove(serviceID int32) {
	s.mu.Lock()
	delete(s.services, serviceID)
	s.mu.Unlock()
}

// Get returns the handle registered under serviceID, or nil.
func (s *RegistryStub) Get(serviceID int32) remote.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services[serviceID]
}

// Descriptor implements remote.Stub.
func (s *RegistryStub) Descriptor() string { return remote.RegistryDescriptor }

// OnRemoteRequest implements remote.Stub.
func (s *RegistryStub) OnRemoteRequest(_ context.Context, code uint32, data *remote.Parcel) (*remote.Parcel, error) {
	switch code {
	case remote.CodeResolve:
		serviceID, err := data.ReadInt32(remote.KeyServiceID)
		if err != nil {
			return nil, err
		}
		return remote.NewParcel().WriteHandle(remote.KeyObject, s.Get(serviceID)), nil
	default:
		return nil, fmt.Errorf("%w: registry code %d", remote.ErrUnknownCode, code)
	}
}

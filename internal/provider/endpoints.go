package provider

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/stacklok/codegate/pkg/models"
)

// ErrEndpointNotFound is returned when a named/ided endpoint doesn't exist.
type ErrEndpointNotFound struct{ ID string }

func (e *ErrEndpointNotFound) Error() string { return fmt.Sprintf("provider endpoint %q not found", e.ID) }

// Endpoints is a thread-safe CRUD store for configured upstream
// provider endpoints. It implements mux.EndpointResolver so the
// muxing router can resolve a MuxRule's ProviderEndpointID without
// depending on this package's concrete type.
type Endpoints struct {
	mu  sync.RWMutex
	byID map[string]*models.ProviderEndpoint
}

// NewEndpoints builds an empty Endpoints registry.
func NewEndpoints() *Endpoints {
	return &Endpoints{byID: make(map[string]*models.ProviderEndpoint)}
}

// ProviderEndpoint implements mux.EndpointResolver.
func (e *Endpoints) ProviderEndpoint(id string) (*models.ProviderEndpoint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ep, ok := e.byID[id]
	if !ok {
		return nil, false
	}
	cp := *ep
	return &cp, true
}

// Create registers a new endpoint, assigning it an ID.
func (e *Endpoints) Create(ep models.ProviderEndpoint) (*models.ProviderEndpoint, error) {
	if !SupportsProvider(ep.Kind) {
		return nil, fmt.Errorf("provider: unsupported endpoint kind %q", ep.Kind)
	}
	ep.ID = uuid.NewString()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID[ep.ID] = &ep
	cp := ep
	return &cp, nil
}

// Update replaces an existing endpoint's fields, keeping its ID.
func (e *Endpoints) Update(id string, ep models.ProviderEndpoint) (*models.ProviderEndpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byID[id]; !ok {
		return nil, &ErrEndpointNotFound{ID: id}
	}
	ep.ID = id
	e.byID[id] = &ep
	cp := ep
	return &cp, nil
}

// Delete removes an endpoint by ID.
func (e *Endpoints) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byID[id]; !ok {
		return &ErrEndpointNotFound{ID: id}
	}
	delete(e.byID, id)
	return nil
}

// List returns every configured endpoint.
func (e *Endpoints) List() []models.ProviderEndpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.ProviderEndpoint, 0, len(e.byID))
	for _, ep := range e.byID {
		out = append(out, *ep)
	}
	return out
}

// HasHost reports whether host matches the base URL of any configured
// endpoint. The TLS interception proxy uses this to decide which SNI
// hosts are worth decrypting at all.
func (e *Endpoints) HasHost(host string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ep := range e.byID {
		u, err := url.Parse(ep.BaseURL)
		if err != nil {
			continue
		}
		if u.Hostname() == host {
			return true
		}
	}
	return false
}

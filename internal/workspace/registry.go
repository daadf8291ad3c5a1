// Package workspace tracks named workspaces (mux rules + custom
// instructions) and the single current session that drives routing and
// redaction scope for every in-flight request.
package workspace

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/codegate/pkg/models"
)

// ErrNotFound is returned when a named workspace does not exist.
type ErrNotFound struct{ Name string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("workspace %q not found", e.Name) }

// ErrDefaultImmutable is returned on any attempt to archive or delete
// the built-in default workspace.
var ErrDefaultImmutable = fmt.Errorf("the default workspace cannot be archived or deleted")

// Registry is a thread-safe CRUD store for workspaces plus the single
// current session. Workspace/session mutations are serialized by mu;
// reads take a snapshot so an in-flight request keeps running under
// the workspace captured at pipeline entry even if it's reassigned
// mid-flight.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[string]*models.Workspace // by name
	session    *models.Session
}

// NewRegistry builds a Registry seeded with the immutable default
// workspace and an initial current session pointed at it.
func NewRegistry() *Registry {
	now := time.Now().UTC()
	def := &models.Workspace{
		ID:        uuid.NewString(),
		Name:      models.DefaultWorkspaceName,
		State:     models.WorkspaceActive,
		CreatedAt: now,
	}
	r := &Registry{
		workspaces: map[string]*models.Workspace{def.Name: def},
	}
	r.session = &models.Session{
		ID:                uuid.NewString(),
		ActiveWorkspaceID: def.ID,
		UpdatedAt:         now,
	}
	return r
}

// Create adds a new active workspace. Returns an error if the name is
// already taken by a live (non-soft-deleted) workspace.
func (r *Registry) Create(name, customInstructions string) (*models.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.workspaces[name]; ok && !existing.SoftDeleted() {
		return nil, fmt.Errorf("workspace %q already exists", name)
	}
	ws := &models.Workspace{
		ID:                 uuid.NewString(),
		Name:               name,
		State:              models.WorkspaceActive,
		CustomInstructions: customInstructions,
		CreatedAt:          time.Now().UTC(),
	}
	r.workspaces[name] = ws
	return ws, nil
}

// Get returns the named workspace.
func (r *Registry) Get(name string) (*models.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return nil, &ErrNotFound{Name: name}
	}
	cp := *ws
	return &cp, nil
}

// List returns every non-hard-deleted workspace.
func (r *Registry) List() []models.Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		out = append(out, *ws)
	}
	return out
}

// UpdateMuxRules replaces a workspace's ordered rule list wholesale
// (the management API's PUT /workspaces/{name}/muxes semantics), using
// a copy-on-write swap so the router never holds a lock mid-evaluation.
func (r *Registry) UpdateMuxRules(name string, rules []models.MuxRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return &ErrNotFound{Name: name}
	}
	cp := make([]models.MuxRule, len(rules))
	copy(cp, rules)
	updated := *ws
	updated.MuxRules = cp
	r.workspaces[name] = &updated
	return nil
}

// Archive soft-archives a workspace. The default workspace can never
// be archived.
func (r *Registry) Archive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return &ErrNotFound{Name: name}
	}
	if ws.IsDefault() {
		return ErrDefaultImmutable
	}
	updated := *ws
	updated.State = models.WorkspaceArchived
	r.workspaces[name] = &updated
	return nil
}

// Recover un-archives (or un-soft-deletes) a workspace.
func (r *Registry) Recover(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return &ErrNotFound{Name: name}
	}
	updated := *ws
	updated.State = models.WorkspaceActive
	updated.DeletedAt = nil
	r.workspaces[name] = &updated
	return nil
}

// SoftDelete marks a workspace deleted but recoverable. The default
// workspace can never be deleted.
func (r *Registry) SoftDelete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return &ErrNotFound{Name: name}
	}
	if ws.IsDefault() {
		return ErrDefaultImmutable
	}
	now := time.Now().UTC()
	updated := *ws
	updated.DeletedAt = &now
	r.workspaces[name] = &updated
	return nil
}

// HardDelete permanently removes a soft-deleted workspace's record.
func (r *Registry) HardDelete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return &ErrNotFound{Name: name}
	}
	if ws.IsDefault() {
		return ErrDefaultImmutable
	}
	delete(r.workspaces, name)
	return nil
}

// Archived returns every archived (soft-deleted or Archived-state)
// workspace, for GET /workspaces/archive.
func (r *Registry) Archived() []models.Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Workspace
	for _, ws := range r.workspaces {
		if ws.State == models.WorkspaceArchived || ws.SoftDeleted() {
			out = append(out, *ws)
		}
	}
	return out
}

// Activate sets name as the current session's active workspace.
// Concurrent activations are serialized by mu; in-flight requests keep
// the workspace snapshot they captured at pipeline entry.
func (r *Registry) Activate(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return &ErrNotFound{Name: name}
	}
	r.session.ActiveWorkspaceID = ws.ID
	r.session.UpdatedAt = time.Now().UTC()
	return nil
}

// CurrentSession returns a snapshot of the single current session.
func (r *Registry) CurrentSession() models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.session
}

// ActiveWorkspace returns a snapshot of the workspace currently
// pointed to by the session, falling back to the default workspace if
// the session's pointer is somehow stale (invariant: default is always
// present and active if nothing else is activated).
func (r *Registry) ActiveWorkspace() *models.Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ws := range r.workspaces {
		if ws.ID == r.session.ActiveWorkspaceID {
			cp := *ws
			return &cp
		}
	}
	def := r.workspaces[models.DefaultWorkspaceName]
	cp := *def
	return &cp
}

// Package tenants is the cached tenant registry. Reads come from an
// immutable snapshot; writes are serialized and reload the snapshot.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/mailbox"
	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// ErrInvalidTenant is returned when a registration is missing or has bad fields.
var ErrInvalidTenant = errors.New("invalid tenant")

type snapshot struct {
	byID   map[string]*store.Tenant
	byDest map[string]*store.Tenant
	main   *store.Tenant
	list   []store.Tenant
}

// Registry resolves tenants by id and bound destination.
type Registry struct {
	store      store.TenantStore
	mailbox    *mailbox.DirStore
	tenantsDir string

	writeMu sync.Mutex
	snap    atomic.Pointer[snapshot]
}

// NewRegistry creates an empty registry; call Load before use.
func NewRegistry(st store.TenantStore, mbox *mailbox.DirStore, tenantsDir string) *Registry {
	r := &Registry{store: st, mailbox: mbox, tenantsDir: tenantsDir}
	r.snap.Store(&snapshot{byID: map[string]*store.Tenant{}, byDest: map[string]*store.Tenant{}})
	return r
}

// Load reads all tenants from the store into the cache.
func (r *Registry) Load(ctx context.Context) error {
	list, err := r.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("load tenants: %w", err)
	}
	s := &snapshot{
		byID:   make(map[string]*store.Tenant, len(list)),
		byDest: make(map[string]*store.Tenant, len(list)),
		list:   list,
	}
	for i := range list {
		t := &list[i]
		s.byID[t.ID] = t
		if t.Destination != "" {
			s.byDest[t.Destination] = t
		}
		if t.IsMain {
			if s.main != nil {
				slog.Warn("multiple main tenants in store, keeping first", "kept", s.main.ID, "ignored", t.ID)
				continue
			}
			s.main = t
		}
	}
	r.snap.Store(s)
	return nil
}

// Get returns a tenant by id.
func (r *Registry) Get(id string) (*store.Tenant, bool) {
	t, ok := r.snap.Load().byID[id]
	return t, ok
}

// ByDestination returns the tenant bound to a chat address.
func (r *Registry) ByDestination(dest string) (*store.Tenant, bool) {
	t, ok := r.snap.Load().byDest[dest]
	return t, ok
}

// Main returns the main tenant.
func (r *Registry) Main() (*store.Tenant, bool) {
	t := r.snap.Load().main
	return t, t != nil
}

// IsMain reports whether id is the main tenant. This is the only source of
// elevation.
func (r *Registry) IsMain(id string) bool {
	t := r.snap.Load().main
	return t != nil && t.ID == id
}

// List returns all tenants in creation order.
func (r *Registry) List() []store.Tenant {
	return append([]store.Tenant(nil), r.snap.Load().list...)
}

// Validate checks a tenant before registration.
func Validate(t *store.Tenant) error {
	switch {
	case !mailbox.ValidTenantID(t.ID):
		return fmt.Errorf("%w: folder name %q must be letters, digits, '-' or '_'", ErrInvalidTenant, t.ID)
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTenant)
	case strings.TrimSpace(t.Trigger) == "":
		return fmt.Errorf("%w: trigger is required", ErrInvalidTenant)
	}
	if t.Destination != "" {
		if _, err := bus.ParseAddress(t.Destination); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTenant, err)
		}
	}
	return nil
}

// Register validates t, creates its working folder and mailbox directories,
// persists it and reloads the cache. Only one main tenant may exist.
func (r *Registry) Register(ctx context.Context, t *store.Tenant) error {
	if err := Validate(t); err != nil {
		return err
	}
	if !t.IsMain && t.Destination == "" {
		return fmt.Errorf("%w: destination is required", ErrInvalidTenant)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if t.IsMain {
		if m, ok := r.Main(); ok {
			return fmt.Errorf("main tenant %s: %w", m.ID, store.ErrExists)
		}
	}
	if other, ok := r.ByDestination(t.Destination); ok && t.Destination != "" {
		return fmt.Errorf("destination %s bound to %s: %w", t.Destination, other.ID, store.ErrExists)
	}

	if err := r.ensureDirs(t.ID); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if err := r.store.CreateTenant(ctx, t); err != nil {
		return err
	}
	slog.Info("tenant registered", "tenant", t.ID, "destination", t.Destination, "main", t.IsMain)
	return r.Load(ctx)
}

// EnsureMain registers the main tenant if none exists. An existing main
// tenant is left as is.
func (r *Registry) EnsureMain(ctx context.Context, id, name, trigger, destination string) error {
	if m, ok := r.Main(); ok {
		if destination != "" && m.Destination != destination {
			slog.Warn("configured main destination differs from registered", "registered", m.Destination, "configured", destination)
		}
		return r.ensureDirs(m.ID)
	}
	err := r.Register(ctx, &store.Tenant{
		ID: id, Name: name, Trigger: trigger, Destination: destination, IsMain: true,
	})
	if errors.Is(err, store.ErrExists) {
		return r.Load(ctx)
	}
	return err
}

func (r *Registry) ensureDirs(id string) error {
	if err := os.MkdirAll(filepath.Join(r.tenantsDir, id), 0755); err != nil {
		return fmt.Errorf("create tenant folder: %w", err)
	}
	if r.mailbox != nil {
		if err := r.mailbox.EnsureTenant(id); err != nil {
			return fmt.Errorf("create tenant mailbox: %w", err)
		}
	}
	return nil
}

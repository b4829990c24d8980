package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Tenant is one isolated conversation context: a working folder, a bound chat
// address and a trigger phrase.
type Tenant struct {
	ID              string    `json:"id"` // folder name, immutable
	Name            string    `json:"name"`
	Trigger         string    `json:"trigger"`
	Destination     string    `json:"destination"` // bound chat address, e.g. "tg:42"
	IsMain          bool      `json:"isMain"`
	RequiresTrigger bool      `json:"requiresTrigger"`
	Mounts          []Mount   `json:"mounts,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Mount is an extra host directory exposed to a tenant's worker.
type Mount struct {
	HostPath      string `json:"hostPath"`
	ContainerPath string `json:"containerPath,omitempty"`
	ReadOnly      bool   `json:"readonly,omitempty"`
}

// TenantStore persists tenants. Tenants are never deleted.
type TenantStore interface {
	CreateTenant(ctx context.Context, t *Tenant) error // ErrExists on id or destination collision
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// MountSpec renders a mount as "host:container[:ro]".
func (m Mount) MountSpec() string {
	s := m.HostPath + ":" + m.ContainerPath
	if m.ReadOnly {
		s += ":ro"
	}
	return s
}

// ParseMountSpec is the inverse of Mount.MountSpec.
func ParseMountSpec(s string) (Mount, error) {
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 2:
		return Mount{HostPath: parts[0], ContainerPath: parts[1]}, nil
	case len(parts) == 3 && (parts[2] == "ro" || parts[2] == "rw"):
		return Mount{HostPath: parts[0], ContainerPath: parts[1], ReadOnly: parts[2] == "ro"}, nil
	}
	return Mount{}, fmt.Errorf("invalid mount spec %q", s)
}

package store

import (
	"errors"

	"github.com/google/uuid"
)

// Stores is the top-level container for all storage backends.
// Both the SQLite and the Postgres backend fill every field.
type Stores struct {
	Tenants  TenantStore
	Tasks    TaskStore
	Pairing  PairingStore
	Sessions SessionStore
	Close    func() error
}

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	SQLitePath  string // standalone mode
	PostgresDSN string // managed mode
}

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when a create collides with an existing row.
	ErrExists = errors.New("already exists")
)

// GenNewID returns a new random identifier for a row.
func GenNewID() string {
	return uuid.NewString()
}

// Package upgrade checks the applied database schema against the schema
// embedded in this binary.
package upgrade

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
)

// RequiredSchemaVersion is the highest migration embedded in this binary.
// Both backends carry the same numbered migrations.
const RequiredSchemaVersion uint = 1

// SchemaStatus represents the result of a schema compatibility check.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

var (
	ErrSchemaDirty = errors.New("database schema is dirty (failed migration)")
	ErrSchemaAhead = errors.New("database schema is newer than this binary")
)

// Check reads the applied version through m. A database without any applied
// migration needs migration.
func Check(m *migrate.Migrate) (*SchemaStatus, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Evaluate(0, false, RequiredSchemaVersion), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	return Evaluate(version, dirty, RequiredSchemaVersion), nil
}

// Evaluate classifies an applied version against required.
func Evaluate(version uint, dirty bool, required uint) *SchemaStatus {
	s := &SchemaStatus{CurrentVersion: version, RequiredVersion: required, Dirty: dirty}
	if dirty {
		return s
	}
	switch {
	case version == required:
		s.Compatible = true
	case version < required:
		s.NeedsMigration = true
	}
	return s
}

// Err reports whether the host must refuse to open the database. An outdated
// schema is not an error; it is migrated on open.
func (s *SchemaStatus) Err() error {
	switch {
	case s.Dirty:
		return ErrSchemaDirty
	case s.CurrentVersion > s.RequiredVersion:
		return ErrSchemaAhead
	}
	return nil
}

// FormatError returns a user-friendly explanation for the given status.
func FormatError(s *SchemaStatus) string {
	if s.Dirty {
		prev := 0
		if s.CurrentVersion > 0 {
			prev = int(s.CurrentVersion) - 1
		}
		return fmt.Sprintf(
			"Database schema is in a dirty state (version %d).\n"+
				"This usually means a migration failed partway.\n\n"+
				"  Fix:  groupclaw migrate force %d\n"+
				"  Then: groupclaw migrate up\n",
			s.CurrentVersion, prev,
		)
	}
	if s.CurrentVersion > s.RequiredVersion {
		return fmt.Sprintf(
			"Database schema (v%d) is newer than this binary (requires v%d).\n"+
				"  Fix: upgrade your groupclaw binary.\n",
			s.CurrentVersion, s.RequiredVersion,
		)
	}
	if s.NeedsMigration {
		return fmt.Sprintf("Database schema is outdated: current v%d, required v%d.\n  Run: groupclaw migrate up\n",
			s.CurrentVersion, s.RequiredVersion)
	}
	return fmt.Sprintf("Database schema v%d is up to date.\n", s.CurrentVersion)
}

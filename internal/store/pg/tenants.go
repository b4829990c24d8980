package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// PGTenantStore implements store.TenantStore backed by Postgres. Mounts are
// kept as a TEXT[] of "host:container[:ro]" specs.
type PGTenantStore struct {
	db *sql.DB
}

func NewPGTenantStore(db *sql.DB) *PGTenantStore {
	return &PGTenantStore{db: db}
}

const tenantColumns = `id, name, trigger_phrase, destination, is_main, requires_trigger, mounts, created_at`

func (s *PGTenantStore) CreateTenant(ctx context.Context, t *store.Tenant) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	specs := make([]string, 0, len(t.Mounts))
	for _, m := range t.Mounts {
		specs = append(specs, m.MountSpec())
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.Trigger, t.Destination, t.IsMain, t.RequiresTrigger, pq.Array(specs), t.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("tenant %s: %w", t.ID, store.ErrExists)
	}
	return err
}

func (s *PGTenantStore) GetTenant(ctx context.Context, id string) (*store.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanTenantRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return &out[0], nil
}

func (s *PGTenantStore) ListTenants(ctx context.Context) ([]store.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTenantRows(rows)
}

func scanTenantRows(rows *sql.Rows) ([]store.Tenant, error) {
	var out []store.Tenant
	for rows.Next() {
		var (
			t     store.Tenant
			specs []string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Trigger, &t.Destination, &t.IsMain, &t.RequiresTrigger,
			pq.Array(&specs), &t.CreatedAt); err != nil {
			return nil, err
		}
		for _, spec := range specs {
			m, err := store.ParseMountSpec(spec)
			if err != nil {
				return nil, fmt.Errorf("tenant %s: %w", t.ID, err)
			}
			t.Mounts = append(t.Mounts, m)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

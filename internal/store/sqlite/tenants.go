package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// TenantStore implements store.TenantStore on SQLite.
type TenantStore struct {
	db *sql.DB
}

func NewTenantStore(db *sql.DB) *TenantStore {
	return &TenantStore{db: db}
}

const tenantColumns = `id, name, trigger_phrase, destination, is_main, requires_trigger, mounts, created_at`

func (s *TenantStore) CreateTenant(ctx context.Context, t *store.Tenant) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	mounts, err := json.Marshal(t.Mounts)
	if err != nil {
		return fmt.Errorf("encode mounts: %w", err)
	}
	if t.Mounts == nil {
		mounts = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Trigger, t.Destination, boolInt(t.IsMain), boolInt(t.RequiresTrigger),
		string(mounts), toMillis(t.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("tenant %s: %w", t.ID, store.ErrExists)
	}
	return err
}

func (s *TenantStore) GetTenant(ctx context.Context, id string) (*store.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return t, err
}

func (s *TenantStore) ListTenants(ctx context.Context) ([]store.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(sc scanner) (*store.Tenant, error) {
	var (
		t                       store.Tenant
		isMain, requiresTrigger int
		mounts                  string
		created                 int64
	)
	if err := sc.Scan(&t.ID, &t.Name, &t.Trigger, &t.Destination, &isMain, &requiresTrigger, &mounts, &created); err != nil {
		return nil, err
	}
	t.IsMain = isMain != 0
	t.RequiresTrigger = requiresTrigger != 0
	t.CreatedAt = fromMillis(created)
	if mounts != "" {
		if err := json.Unmarshal([]byte(mounts), &t.Mounts); err != nil {
			return nil, fmt.Errorf("decode mounts for %s: %w", t.ID, err)
		}
	}
	if len(t.Mounts) == 0 {
		t.Mounts = nil
	}
	return &t, nil
}

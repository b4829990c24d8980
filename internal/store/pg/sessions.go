package pg

import (
	"context"
	"database/sql"
	"errors"
)

// PGSessionStore implements store.SessionStore backed by Postgres.
type PGSessionStore struct {
	db *sql.DB
}

func NewPGSessionStore(db *sql.DB) *PGSessionStore {
	return &PGSessionStore{db: db}
}

func (s *PGSessionStore) GetSession(ctx context.Context, tenantID string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM tenant_sessions WHERE tenant_id = $1`, tenantID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return token, err
}

func (s *PGSessionStore) SetSession(ctx context.Context, tenantID, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_sessions (tenant_id, token, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (tenant_id) DO UPDATE SET token = EXCLUDED.token, updated_at = NOW()`,
		tenantID, token)
	return err
}

func (s *PGSessionStore) DeleteSession(ctx context.Context, tenantID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tenant_sessions WHERE tenant_id = $1`, tenantID)
	return err
}

func (s *PGSessionStore) ListSessions(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant_id, token FROM tenant_sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, token string
		if err := rows.Scan(&id, &token); err != nil {
			return nil, err
		}
		out[id] = token
	}
	return out, rows.Err()
}

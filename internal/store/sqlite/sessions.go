package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SessionStore implements store.SessionStore on SQLite.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) GetSession(ctx context.Context, tenantID string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM tenant_sessions WHERE tenant_id = ?`, tenantID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return token, err
}

func (s *SessionStore) SetSession(ctx context.Context, tenantID, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_sessions (tenant_id, token, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		tenantID, token, toMillis(time.Now()))
	return err
}

func (s *SessionStore) DeleteSession(ctx context.Context, tenantID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tenant_sessions WHERE tenant_id = ?`, tenantID)
	return err
}

func (s *SessionStore) ListSessions(ctx context.Context) (map[string]string, error) {
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

package store

import "context"

// SessionStore persists per-tenant continuity tokens. A missing token means
// the next run starts a fresh conversation.
type SessionStore interface {
	GetSession(ctx context.Context, tenantID string) (string, error) // "" when absent
	SetSession(ctx context.Context, tenantID, token string) error
	DeleteSession(ctx context.Context, tenantID string) error
	ListSessions(ctx context.Context) (map[string]string, error)
}

// Package sessions keeps the per-tenant conversation continuity token. The
// token is opaque to the host: the worker returns it after a run and gets it
// back on the next run to resume the same conversation.
package sessions

import (
	"context"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// Manager is an in-memory map of tenant id to token mirrored to durable
// storage. Reads never touch the store.
type Manager struct {
	tokens map[string]string
	mu     sync.RWMutex
	store  store.SessionStore
}

func NewManager(st store.SessionStore) *Manager {
	return &Manager{
		tokens: make(map[string]string),
		store:  st,
	}
}

// Load replaces the in-memory map with the stored tokens.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	all, err := m.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	m.mu.Lock()
	m.tokens = all
	m.mu.Unlock()
	return nil
}

// Get returns the tenant's token, or "" to start fresh.
func (m *Manager) Get(tenantID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[tenantID]
}

// Set stores the token in memory and then durably. The in-memory value is
// updated even when the write fails so the running host keeps continuity.
func (m *Manager) Set(ctx context.Context, tenantID, token string) error {
	m.mu.Lock()
	m.tokens[tenantID] = token
	m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	return m.store.SetSession(ctx, tenantID, token)
}

// Reset forgets the tenant's token so the next run starts fresh.
func (m *Manager) Reset(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	delete(m.tokens, tenantID)
	m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	return m.store.DeleteSession(ctx, tenantID)
}

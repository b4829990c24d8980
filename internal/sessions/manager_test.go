package sessions

import (
	"context"
	"errors"
	"testing"
)

type memSessionStore struct {
	data    map[string]string
	failSet bool
}

func (m *memSessionStore) GetSession(_ context.Context, id string) (string, error) {
	return m.data[id], nil
}

func (m *memSessionStore) SetSession(_ context.Context, id, token string) error {
	if m.failSet {
		return errors.New("disk full")
	}
	m.data[id] = token
	return nil
}

func (m *memSessionStore) DeleteSession(_ context.Context, id string) error {
	delete(m.data, id)
	return nil
}

func (m *memSessionStore) ListSessions(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func TestManagerLoadSetReset(t *testing.T) {
	ctx := context.Background()
	st := &memSessionStore{data: map[string]string{"main": "s0"}}
	m := NewManager(st)
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := m.Get("main"); got != "s0" {
		t.Errorf("Get after Load = %q, want s0", got)
	}
	if got := m.Get("family"); got != "" {
		t.Errorf("Get unknown = %q, want empty", got)
	}

	if err := m.Set(ctx, "family", "s1"); err != nil {
		t.Fatal(err)
	}
	if st.data["family"] != "s1" {
		t.Error("Set not mirrored to store")
	}

	if err := m.Reset(ctx, "family"); err != nil {
		t.Fatal(err)
	}
	if m.Get("family") != "" || st.data["family"] != "" {
		t.Error("Reset left a token behind")
	}
}

func TestManagerSetKeepsMemoryOnStoreFailure(t *testing.T) {
	st := &memSessionStore{data: map[string]string{}, failSet: true}
	m := NewManager(st)
	if err := m.Set(context.Background(), "main", "s1"); err == nil {
		t.Fatal("expected store error")
	}
	if m.Get("main") != "s1" {
		t.Error("in-memory token lost on store failure")
	}
}

package pairing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

type memPairingStore struct {
	pending map[string]store.PendingUser
	paired  map[string]store.PairedUser
	listErr error
}

func newMem() *memPairingStore {
	return &memPairingStore{pending: map[string]store.PendingUser{}, paired: map[string]store.PairedUser{}}
}

func (m *memPairingStore) AddPending(_ context.Context, p store.PendingUser) (bool, error) {
	if _, ok := m.paired[p.UserID]; ok {
		return false, nil
	}
	if _, ok := m.pending[p.UserID]; ok {
		return false, nil
	}
	m.pending[p.UserID] = p
	return true, nil
}

func (m *memPairingStore) Approve(_ context.Context, userID, by string, at time.Time) (*store.PendingUser, error) {
	p, ok := m.pending[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(m.pending, userID)
	m.paired[userID] = store.PairedUser{UserID: userID, Channel: p.Channel, ApprovedBy: by, PairedAt: at}
	return &p, nil
}

func (m *memPairingStore) Deny(_ context.Context, userID string) (*store.PendingUser, error) {
	p, ok := m.pending[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(m.pending, userID)
	return &p, nil
}

func (m *memPairingStore) ListPending(context.Context) ([]store.PendingUser, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []store.PendingUser
	for _, p := range m.pending {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPairingStore) ListPaired(context.Context) ([]store.PairedUser, error) {
	var out []store.PairedUser
	for _, p := range m.paired {
		out = append(out, p)
	}
	return out, nil
}

func TestPairingFlow(t *testing.T) {
	ctx := context.Background()
	s := NewService(newMem())

	created, err := s.RequestPairing(ctx, "7", "telegram", "7", "hello   there")
	if err != nil || !created {
		t.Fatalf("RequestPairing = %v, %v", created, err)
	}
	if created, _ := s.RequestPairing(ctx, "7", "telegram", "7", "again"); created {
		t.Error("second request created a new record")
	}
	pending := s.Pending()
	if len(pending) != 1 || pending[0].Sample != "hello there" {
		t.Fatalf("Pending = %+v", pending)
	}

	if _, err := s.Approve(ctx, "7", "main"); err != nil {
		t.Fatal(err)
	}
	if !s.IsPaired("7", "telegram") {
		t.Error("user not paired after approve")
	}
	if s.IsPaired("7", "discord") {
		t.Error("pairing leaked across channels")
	}
	if s.IsPending("7") {
		t.Error("user still pending after approve")
	}

	if _, err := s.Deny(ctx, "7"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Deny of paired user err = %v", err)
	}
}

func TestDeny(t *testing.T) {
	ctx := context.Background()
	s := NewService(newMem())
	if _, err := s.RequestPairing(ctx, "9", "discord", "c1", "hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Deny(ctx, "9"); err != nil {
		t.Fatal(err)
	}
	if s.IsPending("9") || s.IsPaired("9", "discord") {
		t.Error("denied user still tracked")
	}
}

func TestCommittedWriteSurvivesReloadFailure(t *testing.T) {
	ctx := context.Background()
	mem := newMem()
	s := NewService(mem)
	if _, err := s.RequestPairing(ctx, "7", "telegram", "7", "hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RequestPairing(ctx, "8", "telegram", "8", "hi"); err != nil {
		t.Fatal(err)
	}
	mem.listErr = errors.New("db down")

	p, err := s.Approve(ctx, "7", "main")
	if err != nil {
		t.Fatalf("Approve err = %v, want nil after commit", err)
	}
	if p.Channel != "telegram" {
		t.Errorf("approved = %+v", p)
	}
	if !s.IsPaired("7", "telegram") || s.IsPending("7") {
		t.Error("cache not updated after approve")
	}

	if _, err := s.Deny(ctx, "8"); err != nil {
		t.Fatalf("Deny err = %v, want nil after commit", err)
	}
	if s.IsPending("8") {
		t.Error("cache not updated after deny")
	}

	created, err := s.RequestPairing(ctx, "9", "discord", "c9", "hello")
	if err != nil || !created {
		t.Fatalf("RequestPairing = %v, %v", created, err)
	}
	if !s.IsPending("9") {
		t.Error("cache not updated after request")
	}
}

func TestTruncateSample(t *testing.T) {
	long := strings.Repeat("字", 200)
	got := TruncateSample(long)
	if w := runewidth.StringWidth(got); w > sampleWidth {
		t.Errorf("width = %d, want <= %d", w, sampleWidth)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("missing ellipsis: %q", got)
	}
	if TruncateSample("short") != "short" {
		t.Error("short sample changed")
	}
}

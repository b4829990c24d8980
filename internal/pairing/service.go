// Package pairing is the access-control store for end users of the chat
// front-ends: who is waiting for approval and who has been approved.
package pairing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// sampleWidth bounds the first-message sample kept with a pending request.
const sampleWidth = 120

// Service caches pairing state in memory. Writes go to the store under a
// mutex and the cache is reloaded afterwards.
type Service struct {
	store store.PairingStore

	writeMu sync.Mutex
	mu      sync.RWMutex
	pending map[string]store.PendingUser
	paired  map[string]store.PairedUser
	now     func() time.Time
}

func NewService(st store.PairingStore) *Service {
	return &Service{
		store:   st,
		pending: map[string]store.PendingUser{},
		paired:  map[string]store.PairedUser{},
		now:     time.Now,
	}
}

// Load refreshes the cache from the store.
func (s *Service) Load(ctx context.Context) error {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("load pending users: %w", err)
	}
	paired, err := s.store.ListPaired(ctx)
	if err != nil {
		return fmt.Errorf("load paired users: %w", err)
	}
	pm := make(map[string]store.PendingUser, len(pending))
	for _, p := range pending {
		pm[p.UserID] = p
	}
	am := make(map[string]store.PairedUser, len(paired))
	for _, p := range paired {
		am[p.UserID] = p
	}
	s.mu.Lock()
	s.pending, s.paired = pm, am
	s.mu.Unlock()
	return nil
}

// IsPaired reports whether userID is approved on channel.
func (s *Service) IsPaired(userID, channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paired[userID]
	return ok && (p.Channel == channel || p.Channel == "")
}

// IsPending reports whether userID has an open request.
func (s *Service) IsPending(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[userID]
	return ok
}

// RequestPairing records a pending request on first contact. It returns true
// only when a new request was created, so callers reply once per user.
func (s *Service) RequestPairing(ctx context.Context, userID, channel, chatID, sample string) (bool, error) {
	if s.IsPaired(userID, channel) || s.IsPending(userID) {
		return false, nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec := store.PendingUser{
		UserID:      userID,
		Channel:     channel,
		ChatID:      chatID,
		RequestedAt: s.now().UTC(),
		Sample:      TruncateSample(sample),
	}
	created, err := s.store.AddPending(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("add pending: %w", err)
	}
	if created {
		slog.Info("pairing requested", "user", userID, "channel", channel)
		s.mu.Lock()
		s.pending[userID] = rec
		s.mu.Unlock()
	}
	s.reload(ctx)
	return created, nil
}

// Approve moves userID from pending to paired.
func (s *Service) Approve(ctx context.Context, userID, approvedBy string) (*store.PendingUser, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p, err := s.store.Approve(ctx, userID, approvedBy, s.now().UTC())
	if err != nil {
		return nil, err
	}
	slog.Info("user approved", "user", userID, "channel", p.Channel, "by", approvedBy)
	s.mu.Lock()
	delete(s.pending, userID)
	s.paired[userID] = store.PairedUser{UserID: userID, Channel: p.Channel, ApprovedBy: approvedBy, PairedAt: s.now().UTC()}
	s.mu.Unlock()
	s.reload(ctx)
	return p, nil
}

// Deny drops userID's pending request.
func (s *Service) Deny(ctx context.Context, userID string) (*store.PendingUser, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p, err := s.store.Deny(ctx, userID)
	if err != nil {
		return nil, err
	}
	slog.Info("user denied", "user", userID, "channel", p.Channel)
	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()
	s.reload(ctx)
	return p, nil
}

// reload refreshes the cache after a committed write. The write already
// happened, so a failure keeps the locally patched cache and is only logged.
func (s *Service) reload(ctx context.Context) {
	if err := s.Load(ctx); err != nil {
		slog.Warn("pairing cache reload failed", "error", err)
	}
}

// Pending returns open requests ordered by request time.
func (s *Service) Pending() []store.PendingUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.PendingUser, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	sortPending(out)
	return out
}

// Paired returns approved users.
func (s *Service) Paired() []store.PairedUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.PairedUser, 0, len(s.paired))
	for _, p := range s.paired {
		out = append(out, p)
	}
	return out
}

// TruncateSample collapses whitespace and cuts the sample to a fixed display
// width, counting wide runes as two columns.
func TruncateSample(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, sampleWidth, "…")
}

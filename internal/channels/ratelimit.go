package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked senders to prevent memory
	// exhaustion from rotating sender ids.
	maxTrackedKeys = 4096

	// Inbound budget per sender: 30 messages per minute, bursts of 10.
	senderRate  = rate.Limit(30.0 / 60.0)
	senderBurst = 10

	// Outbound default when a channel sets no rate: 20 messages per second.
	defaultOutboundRPS   = 20
	defaultOutboundBurst = 5
)

type senderEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SenderLimiter is a bounded set of per-sender token buckets.
// Safe for concurrent use.
type SenderLimiter struct {
	mu      sync.Mutex
	entries map[string]*senderEntry
	now     func() time.Time
}

func NewSenderLimiter() *SenderLimiter {
	return &SenderLimiter{entries: make(map[string]*senderEntry), now: time.Now}
}

// Allow reports whether key may send one more message now.
func (l *SenderLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.entries) >= maxTrackedKeys {
		l.prune(now)
	}

	e, ok := l.entries[key]
	if !ok {
		e = &senderEntry{limiter: rate.NewLimiter(senderRate, senderBurst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// prune drops idle senders (whose buckets have refilled), then evicts
// arbitrary entries if still at the cap.
func (l *SenderLimiter) prune(now time.Time) {
	refill := time.Duration(float64(senderBurst)/float64(senderRate)) * time.Second
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) >= refill {
			delete(l.entries, k)
		}
	}
	for len(l.entries) >= maxTrackedKeys {
		for k := range l.entries {
			delete(l.entries, k)
			break
		}
	}
}

// newOutboundLimiter returns the send limiter for one channel. rps <= 0 uses
// the default.
func newOutboundLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(defaultOutboundRPS, defaultOutboundBurst)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

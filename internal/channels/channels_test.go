package channels

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/bus"
)

type fakePairing struct {
	paired  map[string]bool
	pending map[string]string
}

func (f *fakePairing) IsPaired(userID, _ string) bool { return f.paired[userID] }

func (f *fakePairing) RequestPairing(_ context.Context, userID, _, _, sample string) (bool, error) {
	if _, ok := f.pending[userID]; ok {
		return false, nil
	}
	f.pending[userID] = sample
	return true, nil
}

func TestIsAllowed(t *testing.T) {
	c := NewBaseChannel("telegram", bus.New(), []string{"123", "@alice", "999|bob"}, nil)
	tests := []struct {
		sender string
		want   bool
	}{
		{"123", true},
		{"123|someone", true},
		{"555|alice", true},
		{"999", true},
		{"bob", true},
		{"777|mallory", false},
		{"1234", false},
	}
	for _, tt := range tests {
		t.Run(tt.sender, func(t *testing.T) {
			if got := c.IsAllowed(tt.sender); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.sender, got, tt.want)
			}
		})
	}
}

func TestAdmit(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		allow    []string
		peer     string
		dm       string
		group    string
		sender   string
		want     Decision
		wantPend bool
	}{
		{"open dm", nil, PeerDirect, "open", "", "1", Accept, false},
		{"disabled dm", nil, PeerDirect, "disabled", "", "1", Reject, false},
		{"allowlist dm hit", []string{"1"}, PeerDirect, "allowlist", "", "1", Accept, false},
		{"allowlist dm miss", []string{"1"}, PeerDirect, "allowlist", "", "2", Reject, false},
		{"pairing paired", nil, PeerDirect, "pairing", "", "7|seven", Accept, false},
		{"pairing first contact", nil, PeerDirect, "", "", "8", PairingRequested, true},
		{"pairing allowlisted", []string{"9"}, PeerDirect, "pairing", "", "9", Accept, false},
		{"group default open", nil, PeerGroup, "", "", "8", Accept, false},
		{"group disabled", nil, PeerGroup, "", "disabled", "8", Reject, false},
		{"group allowlist miss", []string{"1"}, PeerGroup, "", "allowlist", "8", Reject, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakePairing{paired: map[string]bool{"7": true}, pending: map[string]string{}}
			c := NewBaseChannel("telegram", bus.New(), tt.allow, fp)
			if got := c.Admit(ctx, tt.peer, tt.dm, tt.group, tt.sender, "chat", "hello"); got != tt.want {
				t.Errorf("Admit = %v, want %v", got, tt.want)
			}
			if _, ok := fp.pending[UserID(tt.sender)]; ok != tt.wantPend {
				t.Errorf("pending recorded = %v, want %v", ok, tt.wantPend)
			}
		})
	}
}

func TestAdmitRepliesOncePerUser(t *testing.T) {
	fp := &fakePairing{paired: map[string]bool{}, pending: map[string]string{}}
	c := NewBaseChannel("discord", bus.New(), nil, fp)
	ctx := context.Background()
	if got := c.Admit(ctx, PeerDirect, "pairing", "", "5", "c", "hi"); got != PairingRequested {
		t.Fatalf("first = %v", got)
	}
	if got := c.Admit(ctx, PeerDirect, "pairing", "", "5", "c", "hi again"); got != Reject {
		t.Errorf("second = %v, want Reject", got)
	}
}

func TestSenderLimiter(t *testing.T) {
	l := NewSenderLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < senderBurst; i++ {
		if !l.Allow("a") {
			t.Fatalf("message %d rejected within burst", i)
		}
	}
	if l.Allow("a") {
		t.Error("burst exceeded but allowed")
	}
	if !l.Allow("b") {
		t.Error("other sender throttled")
	}
	now = now.Add(2 * time.Second)
	if !l.Allow("a") {
		t.Error("bucket did not refill")
	}
}

func TestSplitMessage(t *testing.T) {
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := SplitMessage(text, 8)
	if len(got) != 2 || got[0] != strings.Repeat("a", 6)+"\n" || got[1] != strings.Repeat("b", 6) {
		t.Errorf("SplitMessage = %q", got)
	}
	if got := SplitMessage("short", 10); len(got) != 1 {
		t.Errorf("short = %q", got)
	}
	if got := SplitMessage(strings.Repeat("x", 25), 10); len(got) != 3 {
		t.Errorf("hard split = %q", got)
	}
}

type fakeChannel struct {
	*BaseChannel
	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func (f *fakeChannel) Start(context.Context) error { f.SetRunning(true); return nil }
func (f *fakeChannel) Stop(context.Context) error  { f.SetRunning(false); return nil }

func (f *fakeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) messages() []bus.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bus.OutboundMessage(nil), f.sent...)
}

func TestManagerDispatchAndNotify(t *testing.T) {
	mb := bus.New()
	m := NewManager(mb)
	ch := &fakeChannel{BaseChannel: NewBaseChannel(bus.ChannelTelegram, mb, nil, nil)}
	m.RegisterChannel(bus.ChannelTelegram, ch, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartAll(ctx)
	if !ch.IsRunning() {
		t.Fatal("channel not started")
	}

	done := make(chan struct{})
	go func() {
		m.DispatchOutbound(ctx)
		close(done)
	}()
	if err := mb.Send(ctx, "tg:42", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := mb.Send(ctx, "dc:1", "nobody listens"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(ch.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := ch.messages(); len(got) != 1 || got[0].ChatID != "42" || got[0].Content != "hello" {
		t.Fatalf("sent = %+v", got)
	}

	if err := m.NotifyApproved(ctx, bus.ChannelTelegram, "42"); err != nil {
		t.Fatal(err)
	}
	if got := ch.messages(); len(got) != 2 || got[1].Content != ApprovedMessage {
		t.Errorf("after notify = %+v", got)
	}
	if err := m.NotifyApproved(ctx, "irc", "1"); err == nil {
		t.Error("notify on unknown channel succeeded")
	}

	cancel()
	<-done
	m.StopAll(context.Background())
}

package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/agent"
	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/mailbox"
	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

type fakeTenants struct {
	mu     sync.Mutex
	byDest map[string]*store.Tenant
}

func (f *fakeTenants) ByDestination(dest string) (*store.Tenant, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byDest[dest]
	return t, ok
}

func (f *fakeTenants) Register(_ context.Context, t *store.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byDest[t.Destination] = t
	return nil
}

type fakeInvoker struct {
	reqs []agent.Request
	err  error
}

func (f *fakeInvoker) Invoke(_ context.Context, req agent.Request) (*agent.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Result{Text: "reply to " + req.Prompt}, nil
}

func newTestRouter(autoRegister bool, inv *fakeInvoker) (*Router, *bus.MessageBus, *fakeTenants) {
	ft := &fakeTenants{byDest: map[string]*store.Tenant{
		"tg:1":    {ID: "main", Trigger: "@Andy", Destination: "tg:1", IsMain: true, RequiresTrigger: true},
		"tg:-100": {ID: "family", Trigger: "@Andy", Destination: "tg:-100", RequiresTrigger: true},
		"dc:9":    {ID: "solo", Trigger: "@Andy", Destination: "dc:9"},
	}}
	mb := bus.New()
	r := NewRouter(Config{Bus: mb, Tenants: ft, Invoker: inv, AssistantName: "Andy", AutoRegister: autoRegister})
	return r, mb, ft
}

func drainOutbound(mb *bus.MessageBus) []bus.OutboundMessage {
	var out []bus.OutboundMessage
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		m, ok := mb.SubscribeOutbound(ctx)
		cancel()
		if !ok {
			return out
		}
		out = append(out, m)
	}
}

func TestRouterTriggerGating(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		chat    string
		content string
		invoked bool
	}{
		{"main without trigger", bus.ChannelTelegram, "1", "hello", true},
		{"group with trigger", bus.ChannelTelegram, "-100", "@andy what's up", true},
		{"group without trigger", bus.ChannelTelegram, "-100", "what's up", false},
		{"group trigger prefix of word", bus.ChannelTelegram, "-100", "@Andyman hi", false},
		{"tenant without trigger requirement", bus.ChannelDiscord, "9", "hi", true},
		{"unregistered chat", bus.ChannelTelegram, "555", "@Andy hi", false},
		{"empty content", bus.ChannelTelegram, "1", "  ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{}
			r, mb, _ := newTestRouter(false, inv)
			r.Handle(context.Background(), bus.InboundMessage{Channel: tt.channel, ChatID: tt.chat, SenderID: "u", Content: tt.content})

			if got := len(inv.reqs) == 1; got != tt.invoked {
				t.Fatalf("invoked = %v, want %v", got, tt.invoked)
			}
			out := drainOutbound(mb)
			if tt.invoked {
				if len(out) != 1 || out[0].Channel != tt.channel || out[0].ChatID != tt.chat {
					t.Errorf("outbound = %+v", out)
				}
				if inv.reqs[0].ContextMode != store.ContextGroup || inv.reqs[0].Scheduled {
					t.Errorf("request = %+v", inv.reqs[0])
				}
			} else if len(out) != 0 {
				t.Errorf("outbound = %+v", out)
			}
		})
	}
}

func TestRouterAutoRegister(t *testing.T) {
	inv := &fakeInvoker{}
	r, mb, ft := newTestRouter(true, inv)
	r.Handle(context.Background(), bus.InboundMessage{
		Channel: bus.ChannelWhatsApp, ChatID: "123@g.us", Content: "@Andy hi", PeerKind: "group",
		Metadata: map[string]string{"chat_title": "Book club"},
	})

	tn, ok := ft.ByDestination("wa:123@g.us")
	if !ok {
		t.Fatal("tenant not auto-registered")
	}
	if tn.Name != "Book club" || !tn.RequiresTrigger || tn.Trigger != "@Andy" || !mailbox.ValidTenantID(tn.ID) {
		t.Errorf("tenant = %+v", tn)
	}
	if len(inv.reqs) != 1 || inv.reqs[0].TenantID != tn.ID {
		t.Errorf("requests = %+v", inv.reqs)
	}
	if out := drainOutbound(mb); len(out) != 1 {
		t.Errorf("outbound = %+v", out)
	}
}

func TestRouterErrorReply(t *testing.T) {
	inv := &fakeInvoker{err: agent.ErrTimeout}
	r, mb, _ := newTestRouter(false, inv)
	r.Handle(context.Background(), bus.InboundMessage{Channel: bus.ChannelTelegram, ChatID: "1", Content: "hi"})

	out := drainOutbound(mb)
	if len(out) != 1 || out[0].Content != errorReply(agent.ErrTimeout) {
		t.Errorf("outbound = %+v", out)
	}
	if errorReply(errors.New("x")) == errorReply(agent.ErrTimeout) {
		t.Error("timeout reply not distinguished")
	}
}

func TestRouterTruncatesLongMessages(t *testing.T) {
	inv := &fakeInvoker{}
	r, _, _ := newTestRouter(false, inv)
	r.maxChars = 5
	r.Handle(context.Background(), bus.InboundMessage{Channel: bus.ChannelTelegram, ChatID: "1", Content: "héllo world"})

	if len(inv.reqs) != 1 {
		t.Fatalf("invocations = %d", len(inv.reqs))
	}
	if got := inv.reqs[0].Prompt; got != "héllo\n[message truncated]" {
		t.Errorf("prompt = %q", got)
	}
}

func TestFolderFor(t *testing.T) {
	tests := []struct{ addr, want string }{
		{"tg:-100123", "tg--100123"},
		{"wa:123@g.us", "wa-123_g_us"},
		{"dc:42", "dc-42"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := FolderFor(tt.addr); got != tt.want {
				t.Errorf("FolderFor(%q) = %q, want %q", tt.addr, got, tt.want)
			}
		})
	}
}

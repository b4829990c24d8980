// Package gateway routes live chat traffic: an inbound message is matched to
// the tenant bound to its chat, run through that tenant's worker and the
// reply is published back to the same chat.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/groupclaw/internal/agent"
	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/mailbox"
	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// Tenants is the part of the tenant registry the router needs.
type Tenants interface {
	ByDestination(dest string) (*store.Tenant, bool)
	Register(ctx context.Context, t *store.Tenant) error
}

// Invoker runs a tenant's worker.
type Invoker interface {
	Invoke(ctx context.Context, req agent.Request) (*agent.Result, error)
}

// TaskSnapshotter refreshes a tenant's task list before its worker runs.
type TaskSnapshotter interface {
	WriteTasks(ctx context.Context, tenant string) error
}

// Config wires a Router.
type Config struct {
	Bus             bus.MessageRouter
	Tenants         Tenants
	Invoker         Invoker
	Snapshots       TaskSnapshotter // optional
	AssistantName   string
	AutoRegister    bool
	// MaxMessageChars truncates longer inbound messages (runes). 0 = no limit.
	MaxMessageChars int
}

// Router consumes inbound messages from the bus.
type Router struct {
	bus          bus.MessageRouter
	tenants      Tenants
	invoker      Invoker
	snapshots    TaskSnapshotter
	trigger      string
	autoRegister bool
	maxChars     int

	regMu sync.Mutex
	wg    sync.WaitGroup
}

func NewRouter(cfg Config) *Router {
	name := strings.TrimSpace(cfg.AssistantName)
	if name == "" {
		name = "Andy"
	}
	return &Router{
		bus:          cfg.Bus,
		tenants:      cfg.Tenants,
		invoker:      cfg.Invoker,
		snapshots:    cfg.Snapshots,
		trigger:      "@" + name,
		autoRegister: cfg.AutoRegister,
		maxChars:     cfg.MaxMessageChars,
	}
}

// Run consumes until ctx is done. Each message is handled on its own
// goroutine; the invoker serializes runs of the same tenant.
func (r *Router) Run(ctx context.Context) {
	slog.Info("inbound message router started")
	for {
		msg, ok := r.bus.ConsumeInbound(ctx)
		if !ok {
			r.wg.Wait()
			slog.Info("inbound message router stopped")
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.Handle(ctx, msg)
		}()
	}
}

// Handle processes one inbound message.
func (r *Router) Handle(ctx context.Context, msg bus.InboundMessage) {
	if strings.TrimSpace(msg.Content) == "" {
		return
	}
	addr := msg.Address()
	tenant, ok := r.resolve(ctx, msg, addr)
	if !ok {
		return
	}
	if !tenant.IsMain && tenant.RequiresTrigger && !HasTrigger(msg.Content, tenant.Trigger) {
		slog.Debug("message without trigger ignored", "tenant", tenant.ID, "sender", msg.SenderID)
		return
	}

	if r.snapshots != nil {
		if err := r.snapshots.WriteTasks(ctx, tenant.ID); err != nil {
			slog.Warn("write task snapshot", "tenant", tenant.ID, "error", err)
		}
	}

	prompt := msg.Content
	if r.maxChars > 0 {
		if rs := []rune(prompt); len(rs) > r.maxChars {
			slog.Warn("inbound message truncated", "tenant", tenant.ID, "chars", len(rs), "max", r.maxChars)
			prompt = string(rs[:r.maxChars]) + "\n[message truncated]"
		}
	}

	res, err := r.invoker.Invoke(ctx, agent.Request{
		TenantID:    tenant.ID,
		Prompt:      prompt,
		ContextMode: store.ContextGroup,
		Destination: addr,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("conversation run failed", "tenant", tenant.ID, "channel", msg.Channel, "chat", msg.ChatID, "error", err)
		r.reply(msg, errorReply(err))
		return
	}
	if strings.TrimSpace(res.Text) == "" {
		return
	}
	r.reply(msg, res.Text)
}

func (r *Router) reply(msg bus.InboundMessage, text string) {
	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: text,
	})
}

// resolve finds the tenant bound to addr, registering one on first contact
// when auto registration is on.
func (r *Router) resolve(ctx context.Context, msg bus.InboundMessage, addr string) (*store.Tenant, bool) {
	if t, ok := r.tenants.ByDestination(addr); ok {
		return t, true
	}
	if !r.autoRegister {
		slog.Debug("message from unregistered chat ignored", "address", addr)
		return nil, false
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()
	if t, ok := r.tenants.ByDestination(addr); ok {
		return t, true
	}

	name := msg.Metadata["chat_title"]
	if name == "" {
		name = addr
	}
	t := &store.Tenant{
		ID:              FolderFor(addr),
		Name:            name,
		Trigger:         r.trigger,
		Destination:     addr,
		RequiresTrigger: msg.PeerKind == "group",
	}
	if err := r.tenants.Register(ctx, t); err != nil {
		slog.Error("auto-register tenant", "address", addr, "error", err)
		return nil, false
	}
	return t, true
}

var unsafeFolderRunes = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FolderFor derives a tenant folder name from a chat address, e.g.
// "tg:-100123" becomes "tg--100123".
func FolderFor(addr string) string {
	f := unsafeFolderRunes.ReplaceAllString(strings.Replace(addr, ":", "-", 1), "_")
	f = strings.TrimLeft(f, "_-")
	if len(f) > 64 {
		f = f[:64]
	}
	if !mailbox.ValidTenantID(f) {
		f = "chat-" + store.GenNewID()[:8]
	}
	return f
}

// HasTrigger reports whether content starts with trigger, ignoring case and
// leading whitespace. The trigger must end at a word boundary.
func HasTrigger(content, trigger string) bool {
	content = strings.TrimSpace(content)
	if trigger == "" || len(content) < len(trigger) {
		return false
	}
	if !strings.EqualFold(content[:len(trigger)], trigger) {
		return false
	}
	if len(content) == len(trigger) {
		return true
	}
	c := content[len(trigger)]
	return !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z')
}

func errorReply(err error) string {
	switch {
	case errors.Is(err, agent.ErrTimeout):
		return "Sorry, that took too long and was stopped. Please try again."
	case errors.Is(err, agent.ErrUnknownTenant):
		return "This chat is not set up yet."
	default:
		return "Sorry, something went wrong while processing your message."
	}
}

// Package ipc drains tenant mailboxes and applies the requests found there.
//
// Identity is the directory an entry was found in; nothing inside the file
// can claim another tenant or elevation.
package ipc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/cron"
	"github.com/nextlevelbuilder/groupclaw/internal/mailbox"
	"github.com/nextlevelbuilder/groupclaw/internal/permissions"
	"github.com/nextlevelbuilder/groupclaw/internal/store"
	"github.com/nextlevelbuilder/groupclaw/internal/tracing"
	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

const defaultPollInterval = time.Second

// Tenants is the part of the tenant registry the drainer needs.
type Tenants interface {
	Get(id string) (*store.Tenant, bool)
	ByDestination(dest string) (*store.Tenant, bool)
	IsMain(id string) bool
	Register(ctx context.Context, t *store.Tenant) error
}

// Pairing is the part of the access-control store the drainer needs.
type Pairing interface {
	Approve(ctx context.Context, userID, approvedBy string) (*store.PendingUser, error)
	Deny(ctx context.Context, userID string) (*store.PendingUser, error)
	Pending() []store.PendingUser
}

// ApprovalNotifier tells an approved user they may now talk to the bot.
type ApprovalNotifier interface {
	NotifyApproved(ctx context.Context, channel, chatID string) error
}

// Config wires a Drainer.
type Config struct {
	Mailbox      mailbox.Store
	Snapshots    *Snapshots
	Tenants      Tenants
	Tasks        store.TaskStore
	Pairing      Pairing
	Sender       bus.Sender
	Notifier     ApprovalNotifier // optional
	Location     *time.Location
	PollInterval time.Duration
}

// Drainer consumes mailbox entries. One Drainer per host.
type Drainer struct {
	mbox      mailbox.Store
	snapshots *Snapshots
	tenants   Tenants
	tasks     store.TaskStore
	pairing   Pairing
	sender    bus.Sender
	notifier  ApprovalNotifier
	loc       *time.Location
	interval  time.Duration
	now       func() time.Time
}

func NewDrainer(cfg Config) *Drainer {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Drainer{
		mbox:      cfg.Mailbox,
		snapshots: cfg.Snapshots,
		tenants:   cfg.Tenants,
		tasks:     cfg.Tasks,
		pairing:   cfg.Pairing,
		sender:    cfg.Sender,
		notifier:  cfg.Notifier,
		loc:       loc,
		interval:  interval,
		now:       time.Now,
	}
}

// Run drains on every tick and whenever nudge fires, until ctx is done.
// nudge may be nil.
func (d *Drainer) Run(ctx context.Context, nudge <-chan struct{}) {
	slog.Info("mailbox drainer started", "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("mailbox drainer stopped")
			return
		case <-ticker.C:
		case <-nudge:
		}
		d.Drain(ctx)
	}
}

// Drain makes one pass over every tenant mailbox: messages first, then
// tasks, each in listing order.
func (d *Drainer) Drain(ctx context.Context) {
	tenants, err := d.mbox.Tenants()
	if err != nil {
		slog.Error("list mailbox tenants", "error", err)
		return
	}
	for _, tenant := range tenants {
		for _, kind := range []string{protocol.DirMessages, protocol.DirTasks} {
			if ctx.Err() != nil {
				return
			}
			refs, err := d.mbox.List(tenant, kind)
			if err != nil {
				slog.Error("list mailbox", "tenant", tenant, "kind", kind, "error", err)
				continue
			}
			for _, ref := range refs {
				d.process(ctx, ref)
			}
		}
	}
}

func (d *Drainer) process(ctx context.Context, ref mailbox.Ref) {
	data, err := d.mbox.Read(ref)
	if errors.Is(err, mailbox.ErrGone) {
		return
	}
	if err != nil {
		slog.Error("read mailbox entry", "entry", ref.String(), "error", err)
		return
	}

	req, err := parseEntry(ref.Kind, data)
	if err != nil {
		slog.Warn("quarantining mailbox entry", "entry", ref.String(), "error", err)
		d.quarantine(ref)
		return
	}

	source := ref.Tenant
	op := req.op()
	ctx, span := tracing.Start(ctx, "ipc.apply",
		attribute.String("tenant", source),
		attribute.String("op", string(op)),
	)
	err = d.apply(ctx, source, d.tenants.IsMain(source), req)
	tracing.End(span, err)

	switch {
	case err == nil:
		slog.Info("mailbox entry applied", "tenant", source, "type", op, "entry", ref.Name)
		d.remove(ref)
	case discardable(err):
		slog.Warn("mailbox entry rejected", "tenant", source, "type", op, "entry", ref.Name, "error", err)
		d.remove(ref)
	default:
		slog.Error("mailbox entry failed", "tenant", source, "type", op, "entry", ref.Name, "error", err)
		d.quarantine(ref)
	}
}

// discardable errors are final: retrying the same entry cannot succeed.
func discardable(err error) bool {
	return errors.Is(err, permissions.ErrUnauthorized) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, cron.ErrInvalidSchedule)
}

func (d *Drainer) remove(ref mailbox.Ref) {
	if err := d.mbox.Remove(ref); err != nil {
		slog.Error("remove mailbox entry", "entry", ref.String(), "error", err)
	}
}

func (d *Drainer) quarantine(ref mailbox.Ref) {
	if err := d.mbox.Quarantine(ref); err != nil {
		slog.Error("quarantine mailbox entry", "entry", ref.String(), "error", err)
	}
}

// apply dispatches one request. Each handler validates its own fields and
// consults the authorization gate before touching state.
func (d *Drainer) apply(ctx context.Context, source string, elevated bool, req request) error {
	switch r := req.(type) {
	case sendMessage:
		return d.sendMessage(ctx, source, elevated, r)
	case scheduleTask:
		return d.scheduleTask(ctx, source, elevated, r)
	case pauseTask:
		return d.setTaskStatus(ctx, source, elevated, r.op(), r.TaskID, store.TaskPaused)
	case resumeTask:
		return d.setTaskStatus(ctx, source, elevated, r.op(), r.TaskID, store.TaskActive)
	case cancelTask:
		return d.cancelTask(ctx, source, elevated, r)
	case registerTenant:
		return d.registerTenant(ctx, source, elevated, r)
	case approveUser:
		return d.approveUser(ctx, source, elevated, r)
	case denyUser:
		return d.denyUser(ctx, source, elevated, r)
	case listPending:
		return d.listPending(ctx, source, elevated)
	default:
		return ErrParse
	}
}

package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/cron"
	"github.com/nextlevelbuilder/groupclaw/internal/permissions"
	"github.com/nextlevelbuilder/groupclaw/internal/store"
	"github.com/nextlevelbuilder/groupclaw/internal/tenants"
)

func (d *Drainer) authorize(source string, elevated bool, op permissions.Operation, target string) error {
	return permissions.Authorize(permissions.Request{Source: source, Elevated: elevated, Op: op, Target: target})
}

// boundTenant returns the id of the tenant bound to dest, or "".
func (d *Drainer) boundTenant(dest string) string {
	if t, ok := d.tenants.ByDestination(dest); ok {
		return t.ID
	}
	return ""
}

func (d *Drainer) sendMessage(ctx context.Context, source string, elevated bool, r sendMessage) error {
	if _, err := bus.ParseAddress(r.Destination); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrValidation)
	}
	if err := d.authorize(source, elevated, permissions.OpSendMessage, d.boundTenant(r.Destination)); err != nil {
		return err
	}
	return d.sender.Send(ctx, r.Destination, r.Text)
}

func (d *Drainer) scheduleTask(ctx context.Context, source string, elevated bool, r scheduleTask) error {
	target := r.TargetTenant
	if target == "" {
		target = source
	}
	if err := d.authorize(source, elevated, permissions.OpScheduleTask, target); err != nil {
		return err
	}

	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	switch r.ContextMode {
	case store.ContextGroup, store.ContextIsolated:
	default:
		return fmt.Errorf("%w: context_mode %q", ErrValidation, r.ContextMode)
	}
	tenant, ok := d.tenants.Get(target)
	if !ok {
		return fmt.Errorf("%w: unknown tenant %q", ErrValidation, target)
	}
	dest := r.Destination
	if dest == "" {
		dest = tenant.Destination
	}
	if dest == "" {
		return fmt.Errorf("%w: no destination for tenant %s", ErrValidation, target)
	}
	if _, err := bus.ParseAddress(dest); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	// Task output is a message to dest, so the same rule applies.
	if err := d.authorize(source, elevated, permissions.OpSendMessage, d.boundTenant(dest)); err != nil {
		return err
	}

	sched, err := cron.Parse(r.ScheduleKind, r.ScheduleValue, d.loc)
	if err != nil {
		return err
	}
	now := d.now().UTC()
	next, err := sched.Initial(now, now)
	if err != nil {
		return err
	}
	task := &store.Task{
		ID:            store.GenNewID(),
		TenantID:      target,
		Destination:   dest,
		Prompt:        r.Prompt,
		ScheduleKind:  r.ScheduleKind,
		ScheduleValue: r.ScheduleValue,
		ContextMode:   r.ContextMode,
		NextFire:      &next,
		Status:        store.TaskActive,
		CreatedAt:     now,
	}
	if err := d.tasks.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	slog.Info("task scheduled", "task", task.ID, "tenant", target, "kind", task.ScheduleKind, "next_fire", next)
	d.refreshTasks(ctx, target)
	return nil
}

// ownedTask loads taskID and checks source may act on it.
func (d *Drainer) ownedTask(ctx context.Context, source string, elevated bool, op permissions.Operation, taskID string) (*store.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: taskId is required", ErrValidation)
	}
	task, err := d.tasks.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		// Report as unauthorized for non-elevated sources so task ids of
		// other tenants cannot be probed.
		if !elevated {
			return nil, fmt.Errorf("%w: task %s", permissions.ErrUnauthorized, taskID)
		}
		return nil, fmt.Errorf("%w: task %s not found", ErrValidation, taskID)
	}
	if err != nil {
		return nil, err
	}
	if err := d.authorize(source, elevated, op, task.TenantID); err != nil {
		return nil, err
	}
	return task, nil
}

func (d *Drainer) setTaskStatus(ctx context.Context, source string, elevated bool, op permissions.Operation, taskID string, status store.TaskStatus) error {
	task, err := d.ownedTask(ctx, source, elevated, op, taskID)
	if err != nil {
		return err
	}
	if err := d.tasks.SetTaskStatus(ctx, task.ID, status); err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if status == store.TaskActive && task.NextFire == nil {
		if err := d.recomputeNextFire(ctx, task); err != nil {
			return err
		}
	}
	slog.Info("task status changed", "task", task.ID, "tenant", task.TenantID, "status", status)
	d.refreshTasks(ctx, task.TenantID)
	return nil
}

func (d *Drainer) recomputeNextFire(ctx context.Context, task *store.Task) error {
	sched, err := cron.Parse(task.ScheduleKind, task.ScheduleValue, d.loc)
	if err != nil {
		return err
	}
	next, err := sched.Initial(d.now().UTC(), task.CreatedAt)
	if err != nil {
		return err
	}
	if err := d.tasks.SetNextFire(ctx, task.ID, &next); err != nil {
		return fmt.Errorf("set next fire: %w", err)
	}
	return nil
}

func (d *Drainer) cancelTask(ctx context.Context, source string, elevated bool, r cancelTask) error {
	task, err := d.ownedTask(ctx, source, elevated, r.op(), r.TaskID)
	if err != nil {
		return err
	}
	if err := d.tasks.DeleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	slog.Info("task cancelled", "task", task.ID, "tenant", task.TenantID)
	d.refreshTasks(ctx, task.TenantID)
	return nil
}

func (d *Drainer) registerTenant(ctx context.Context, source string, elevated bool, r registerTenant) error {
	if err := d.authorize(source, elevated, r.op(), ""); err != nil {
		return err
	}
	if r.Destination == "" {
		return fmt.Errorf("%w: tenantId is required", ErrValidation)
	}
	t := &store.Tenant{
		ID:              r.Folder,
		Name:            r.Name,
		Trigger:         r.Trigger,
		Destination:     r.Destination,
		RequiresTrigger: r.RequiresTrigger,
		Mounts:          r.Mounts,
		CreatedAt:       d.now().UTC(),
	}
	err := d.tenants.Register(ctx, t)
	if errors.Is(err, tenants.ErrInvalidTenant) || errors.Is(err, store.ErrExists) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}

func (d *Drainer) approveUser(ctx context.Context, source string, elevated bool, r approveUser) error {
	if err := d.authorize(source, elevated, r.op(), ""); err != nil {
		return err
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	p, err := d.pairing.Approve(ctx, r.UserID, source)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: no pending request for user %s", ErrValidation, r.UserID)
	}
	if err != nil {
		return err
	}
	if d.notifier != nil && p.ChatID != "" {
		if err := d.notifier.NotifyApproved(ctx, p.Channel, p.ChatID); err != nil {
			slog.Warn("approval notification failed", "user", p.UserID, "channel", p.Channel, "error", err)
		}
	}
	return nil
}

func (d *Drainer) denyUser(ctx context.Context, source string, elevated bool, r denyUser) error {
	if err := d.authorize(source, elevated, r.op(), ""); err != nil {
		return err
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	_, err := d.pairing.Deny(ctx, r.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: no pending request for user %s", ErrValidation, r.UserID)
	}
	return err
}

func (d *Drainer) listPending(ctx context.Context, source string, elevated bool) error {
	if err := d.authorize(source, elevated, permissions.OpListPending, ""); err != nil {
		return err
	}
	pending := d.pairing.Pending()
	if d.snapshots != nil {
		if err := d.snapshots.WritePending(source, pending); err != nil {
			return fmt.Errorf("write pending snapshot: %w", err)
		}
	}
	t, ok := d.tenants.Get(source)
	if !ok || t.Destination == "" {
		return nil
	}
	return d.sender.Send(ctx, t.Destination, FormatPending(pending))
}

// refreshTasks rewrites tenant's task snapshot. Failures are logged only.
func (d *Drainer) refreshTasks(ctx context.Context, tenant string) {
	if d.snapshots == nil {
		return
	}
	if err := d.snapshots.WriteTasks(ctx, tenant); err != nil {
		slog.Warn("write task snapshot", "tenant", tenant, "error", err)
	}
}

// FormatPending renders pending approvals as a chat message.
func FormatPending(pending []store.PendingUser) string {
	if len(pending) == 0 {
		return "No pending approval requests."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Pending approval requests (%d):\n", len(pending))
	for _, p := range pending {
		fmt.Fprintf(&sb, "- %s via %s since %s", p.UserID, p.Channel, p.RequestedAt.UTC().Format("2006-01-02 15:04"))
		if p.Sample != "" {
			fmt.Fprintf(&sb, ": %q", p.Sample)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

package ipc

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

// SnapshotWriter persists a JSON document into a tenant's mailbox directory.
type SnapshotWriter interface {
	WriteSnapshot(tenant, name string, v any) error
}

// Snapshots writes the read-only views worker tools consult: the tenant's
// task list and, for the main tenant, pending approvals.
type Snapshots struct {
	out    SnapshotWriter
	tasks  store.TaskStore
	isMain func(string) bool
}

func NewSnapshots(out SnapshotWriter, tasks store.TaskStore, isMain func(string) bool) *Snapshots {
	return &Snapshots{out: out, tasks: tasks, isMain: isMain}
}

// WriteTasks refreshes current_tasks.json for tenant. The main tenant sees
// every tenant's tasks.
func (s *Snapshots) WriteTasks(ctx context.Context, tenant string) error {
	scope := tenant
	if s.isMain(tenant) {
		scope = ""
	}
	tasks, err := s.tasks.ListTasks(ctx, scope)
	if err != nil {
		return fmt.Errorf("list tasks for snapshot: %w", err)
	}
	rows := make([]protocol.TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		row := protocol.TaskSnapshot{
			ID:            t.ID,
			TenantID:      t.TenantID,
			Prompt:        t.Prompt,
			ScheduleType:  string(t.ScheduleKind),
			ScheduleValue: t.ScheduleValue,
			Status:        string(t.Status),
		}
		if t.NextFire != nil {
			row.NextRun = t.NextFire.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return s.out.WriteSnapshot(tenant, protocol.SnapshotTasks, rows)
}

// WritePending writes pending_users.json for tenant.
func (s *Snapshots) WritePending(tenant string, pending []store.PendingUser) error {
	rows := make([]protocol.PendingSnapshot, 0, len(pending))
	for _, p := range pending {
		rows = append(rows, protocol.PendingSnapshot{
			UserID:      p.UserID,
			Channel:     p.Channel,
			RequestedAt: p.RequestedAt.UTC().Format(time.RFC3339),
			Sample:      p.Sample,
		})
	}
	return s.out.WriteSnapshot(tenant, protocol.SnapshotPending, rows)
}

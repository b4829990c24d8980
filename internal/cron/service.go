package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/groupclaw/internal/agent"
	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/store"
	"github.com/nextlevelbuilder/groupclaw/internal/tracing"
)

const (
	defaultPollInterval = 60 * time.Second
	maxResultLen        = 2000
)

// Invoker runs a worker for one prompt.
type Invoker interface {
	Invoke(ctx context.Context, req agent.Request) (*agent.Result, error)
}

// TaskSnapshotter refreshes the task list a tenant's worker can read.
type TaskSnapshotter interface {
	WriteTasks(ctx context.Context, tenant string) error
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Tasks        store.TaskStore
	Invoker      Invoker
	Sender       bus.Sender
	Snapshots    TaskSnapshotter // optional
	Location     *time.Location
	PollInterval time.Duration
}

// Service fires due tasks. The task store is the source of truth; the
// service only remembers which tasks are running in this process.
type Service struct {
	tasks     store.TaskStore
	invoker   Invoker
	sender    bus.Sender
	snapshots TaskSnapshotter
	loc       *time.Location
	interval  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

func NewService(cfg ServiceConfig) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Service{
		tasks:     cfg.Tasks,
		invoker:   cfg.Invoker,
		sender:    cfg.Sender,
		snapshots: cfg.Snapshots,
		loc:       loc,
		interval:  interval,
		now:       time.Now,
		inFlight:  make(map[string]bool),
	}
}

// Run ticks until ctx is done, then waits for running tasks to return.
func (s *Service) Run(ctx context.Context) {
	slog.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Wait()
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches every due task that is not already running and returns
// how many were dispatched.
func (s *Service) Tick(ctx context.Context) int {
	now := s.now().UTC()
	due, err := s.tasks.DueTasks(ctx, now)
	if err != nil {
		slog.Error("scheduler: load due tasks", "error", err)
		return 0
	}

	n := 0
	for _, task := range due {
		if !s.claim(task.ID) {
			slog.Debug("scheduler: task still running", "task", task.ID)
			continue
		}
		if err := s.advance(ctx, &task, now); err != nil {
			slog.Error("scheduler: advance task", "task", task.ID, "error", err)
			s.release(task.ID)
			continue
		}
		s.wg.Add(1)
		go func(task store.Task) {
			defer s.wg.Done()
			defer s.release(task.ID)
			s.fire(ctx, task, now)
		}(task)
		n++
	}
	return n
}

// Wait blocks until every dispatched run has finished.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// advance persists the next fire time before the run starts, so a crash
// mid-run does not fire a repeating task twice. Once tasks keep their row
// until the run ends.
func (s *Service) advance(ctx context.Context, task *store.Task, now time.Time) error {
	if task.ScheduleKind == store.ScheduleOnce {
		return nil
	}
	sched, err := Parse(task.ScheduleKind, task.ScheduleValue, s.loc)
	if err == nil {
		var next time.Time
		if next, err = sched.Next(now); err == nil {
			return s.tasks.SetNextFire(ctx, task.ID, &next)
		}
	}
	// A stored schedule that no longer parses would fire on every tick.
	slog.Warn("scheduler: pausing task with unusable schedule", "task", task.ID, "schedule", task.ScheduleValue, "error", err)
	if perr := s.tasks.SetTaskStatus(ctx, task.ID, store.TaskPaused); perr != nil {
		return perr
	}
	return err
}

func (s *Service) fire(ctx context.Context, task store.Task, firedAt time.Time) {
	ctx, span := tracing.Start(ctx, "cron.fire",
		attribute.String("task", task.ID),
		attribute.String("tenant", task.TenantID),
		attribute.String("kind", string(task.ScheduleKind)),
	)

	if s.snapshots != nil {
		if err := s.snapshots.WriteTasks(ctx, task.TenantID); err != nil {
			slog.Warn("scheduler: write task snapshot", "tenant", task.TenantID, "error", err)
		}
	}

	slog.Info("scheduler: firing task", "task", task.ID, "tenant", task.TenantID, "kind", task.ScheduleKind)
	res, err := s.invoker.Invoke(ctx, agent.Request{
		TenantID:    task.TenantID,
		Prompt:      task.Prompt,
		ContextMode: task.ContextMode,
		Scheduled:   true,
		Destination: task.Destination,
	})
	tracing.End(span, err)

	var result string
	if err != nil {
		slog.Error("scheduler: task run failed", "task", task.ID, "tenant", task.TenantID, "error", err)
		result = "error: " + err.Error()
	} else {
		result = res.Text
		if res.Text != "" {
			if serr := s.sender.Send(ctx, task.Destination, res.Text); serr != nil {
				slog.Error("scheduler: deliver result", "task", task.ID, "destination", task.Destination, "error", serr)
			}
		}
	}

	if task.ScheduleKind == store.ScheduleOnce {
		if derr := s.tasks.DeleteTask(ctx, task.ID); derr != nil {
			slog.Error("scheduler: delete once task", "task", task.ID, "error", derr)
		}
		return
	}
	// The task may have been cancelled while it ran.
	if rerr := s.tasks.RecordRun(ctx, task.ID, firedAt, truncate(result, maxResultLen)); rerr != nil && !errors.Is(rerr, store.ErrNotFound) {
		slog.Error("scheduler: record run", "task", task.ID, "error", rerr)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

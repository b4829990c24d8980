// Package agent runs one tenant's worker for one prompt: it resolves mounts,
// attaches the conversation continuity token, serializes invocations per
// tenant and enforces the timeout.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
	"github.com/nextlevelbuilder/groupclaw/internal/tracing"
)

// Request is one invocation.
type Request struct {
	TenantID    string
	Prompt      string
	ContextMode store.ContextMode // isolated = start fresh and do not keep the new token
	Scheduled   bool              // fired by the scheduler rather than a live message
	Destination string            // chat the result will be delivered to
}

// Result is a successful invocation's output.
type Result struct {
	Text      string // cleaned for delivery; "" when the worker chose not to reply
	SessionID string
	Duration  time.Duration
}

// TenantResolver looks up registered tenants.
type TenantResolver interface {
	Get(id string) (*store.Tenant, bool)
}

// SessionTokens holds per-tenant continuity tokens.
type SessionTokens interface {
	Get(tenantID string) string
	Set(ctx context.Context, tenantID, token string) error
}

// Config holds invoker settings.
type Config struct {
	AssistantName string
	Timeout       time.Duration
	Mounts        MountPolicy
}

// Invoker is the host's single entry point for running a worker.
type Invoker struct {
	runner   Runner
	tenants  TenantResolver
	sessions SessionTokens
	cfg      Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewInvoker creates an invoker over runner.
func NewInvoker(runner Runner, tenants TenantResolver, sessions SessionTokens, cfg Config) *Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Invoker{
		runner:   runner,
		tenants:  tenants,
		sessions: sessions,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (inv *Invoker) tenantLock(id string) *sync.Mutex {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	l, ok := inv.locks[id]
	if !ok {
		l = &sync.Mutex{}
		inv.locks[id] = l
	}
	return l
}

// Invoke runs the worker for req. Invocations for the same tenant run one at
// a time; different tenants run concurrently.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (res *Result, err error) {
	tenant, ok := inv.tenants.Get(req.TenantID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, req.TenantID)
	}

	lock := inv.tenantLock(tenant.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := tracing.Start(ctx, "agent.invoke",
		attribute.String("tenant", tenant.ID),
		attribute.String("context_mode", string(req.ContextMode)),
		attribute.Bool("scheduled", req.Scheduled),
	)
	defer func() { tracing.End(span, err) }()

	in := Input{
		Prompt:        req.Prompt,
		TenantID:      tenant.ID,
		IsMain:        tenant.IsMain,
		IsScheduled:   req.Scheduled,
		AssistantName: inv.cfg.AssistantName,
		Destination:   req.Destination,
		Mounts:        inv.cfg.Mounts.Resolve(tenant),
	}
	isolated := req.ContextMode == store.ContextIsolated
	if !isolated && inv.sessions != nil {
		in.SessionID = inv.sessions.Get(tenant.ID)
	}

	runCtx, cancel := context.WithTimeout(ctx, inv.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, runErr := inv.runner.Run(runCtx, in)
	elapsed := time.Since(start)
	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(runErr, ErrTimeout) {
			runErr = fmt.Errorf("%w after %s: %v", ErrTimeout, inv.cfg.Timeout, runErr)
		}
		slog.Warn("agent invocation failed", "tenant", tenant.ID, "duration", elapsed, "error", runErr)
		return nil, runErr
	}

	if out.Status == StatusError {
		slog.Warn("agent reported error", "tenant", tenant.ID, "error", out.Error)
		return nil, &RunnerError{Message: out.Error}
	}

	if !isolated && inv.sessions != nil && out.NewSessionID != "" && out.NewSessionID != in.SessionID {
		if err := inv.sessions.Set(ctx, tenant.ID, out.NewSessionID); err != nil {
			slog.Warn("failed to persist session token", "tenant", tenant.ID, "error", err)
		}
	}

	slog.Info("agent invocation complete", "tenant", tenant.ID, "duration", elapsed, "chars", len(out.Result))
	return &Result{Text: CleanReply(out.Result), SessionID: out.NewSessionID, Duration: elapsed}, nil
}

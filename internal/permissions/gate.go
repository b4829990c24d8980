// Package permissions decides whether a tenant may perform a control
// operation. It holds no state; identity comes from the caller, which derives
// it from the mailbox directory an entry was found in.
package permissions

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned for every denied request.
var ErrUnauthorized = errors.New("unauthorized")

// Operation names a mailbox operation.
type Operation string

const (
	OpSendMessage    Operation = "message"
	OpScheduleTask   Operation = "schedule_task"
	OpPauseTask      Operation = "pause_task"
	OpResumeTask     Operation = "resume_task"
	OpCancelTask     Operation = "cancel_task"
	OpRegisterTenant Operation = "register_tenant"
	OpApproveUser    Operation = "approve_user"
	OpDenyUser       Operation = "deny_user"
	OpListPending    Operation = "list_pending"
)

// elevatedOnly operations are reserved for the main tenant.
var elevatedOnly = map[Operation]bool{
	OpRegisterTenant: true,
	OpApproveUser:    true,
	OpDenyUser:       true,
	OpListPending:    true,
}

// scoped operations act on a target tenant: the destination's bound tenant
// for messages, the task owner for task control, the scheduled-for tenant for
// schedule_task. Ordinary tenants may only target themselves.
var scoped = map[Operation]bool{
	OpSendMessage:  true,
	OpScheduleTask: true,
	OpPauseTask:    true,
	OpResumeTask:   true,
	OpCancelTask:   true,
}

// Request is one authorization question.
type Request struct {
	Source   string // tenant whose mailbox the entry came from
	Elevated bool   // Source is the main tenant
	Op       Operation
	Target   string // tenant acted upon; "" when none is bound
}

// Authorize returns nil when the request is allowed and an error wrapping
// ErrUnauthorized otherwise. Unknown operations are denied.
func Authorize(r Request) error {
	if r.Source == "" {
		return fmt.Errorf("%w: no source tenant", ErrUnauthorized)
	}
	if elevatedOnly[r.Op] {
		if r.Elevated {
			return nil
		}
		return fmt.Errorf("%w: %s requires the main tenant (source %s)", ErrUnauthorized, r.Op, r.Source)
	}
	if scoped[r.Op] {
		if r.Elevated || (r.Target != "" && r.Target == r.Source) {
			return nil
		}
		target := r.Target
		if target == "" {
			target = "<unbound>"
		}
		return fmt.Errorf("%w: %s from %s to %s", ErrUnauthorized, r.Op, r.Source, target)
	}
	return fmt.Errorf("%w: unknown operation %q", ErrUnauthorized, r.Op)
}

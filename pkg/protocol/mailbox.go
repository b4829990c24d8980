// Package protocol defines the mailbox wire format shared by the host and the
// worker-side tools running inside an agent container.
//
// A worker emits one JSON object per file:
//
//	<ipc>/<tenant>/messages/<name>.json   outbound chat messages
//	<ipc>/<tenant>/tasks/<name>.json      control requests
//
// The host never trusts identity claims inside the file; the tenant is the
// directory the file was found in.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ProtocolVersion is bumped on incompatible changes to the entry format.
const ProtocolVersion = 1

// Mailbox subdirectories and snapshot files inside one tenant's mailbox.
const (
	DirMessages = "messages"
	DirTasks    = "tasks"

	SnapshotTasks   = "current_tasks.json"
	SnapshotPending = "pending_users.json"
)

// Entry types.
const (
	TypeMessage        = "message"
	TypeScheduleTask   = "schedule_task"
	TypePauseTask      = "pause_task"
	TypeResumeTask     = "resume_task"
	TypeCancelTask     = "cancel_task"
	TypeRegisterTenant = "register_tenant"
	TypeApproveUser    = "approve_user"
	TypeDenyUser       = "deny_user"
	TypeListPending    = "list_pending"
)

// Schedule kinds and context modes as they appear on the wire.
const (
	ScheduleCron     = "cron"
	ScheduleInterval = "interval"
	ScheduleOnce     = "once"

	ContextGroup    = "group"
	ContextIsolated = "isolated"
)

// Entry is the union of all fields any entry type may carry. The host decodes
// it once and converts it into a typed request; unused fields are ignored.
type Entry struct {
	Type string `json:"type"`

	// message
	Destination string `json:"destination,omitempty"`
	Text        string `json:"text,omitempty"`

	// schedule_task
	Prompt        string         `json:"prompt,omitempty"`
	ScheduleType  string         `json:"schedule_type,omitempty"`
	ScheduleValue FlexibleString `json:"schedule_value,omitempty"`
	ContextMode   string         `json:"context_mode,omitempty"`
	TargetTenant  string         `json:"targetTenant,omitempty"`

	// pause_task, resume_task, cancel_task
	TaskID string `json:"taskId,omitempty"`

	// register_tenant
	TenantID        string  `json:"tenantId,omitempty"`
	Name            string  `json:"name,omitempty"`
	FolderName      string  `json:"folderName,omitempty"`
	Trigger         string  `json:"trigger,omitempty"`
	RequiresTrigger *bool   `json:"requiresTrigger,omitempty"`
	Mounts          []Mount `json:"mounts,omitempty"`

	// approve_user, deny_user
	UserID FlexibleString `json:"userId,omitempty"`

	Timestamp string `json:"timestamp,omitempty"`
}

// Mount is an extra host directory exposed to a tenant's worker.
type Mount struct {
	HostPath      string `json:"hostPath"`
	ContainerPath string `json:"containerPath,omitempty"`
	ReadOnly      bool   `json:"readonly,omitempty"`
}

// FlexibleString accepts both "str" and 123 in JSON. User ids and interval
// periods are commonly written as bare numbers by worker tools.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexibleString(n.String())
	return nil
}

// String returns the trimmed value.
func (f FlexibleString) String() string { return strings.TrimSpace(string(f)) }

// DecodeEntry parses one mailbox file. Unknown fields are tolerated; a missing
// or unknown type is an error.
func DecodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !KnownType(e.Type) {
		if e.Type == "" {
			return nil, fmt.Errorf("missing type")
		}
		return nil, fmt.Errorf("unknown type %q", e.Type)
	}
	return &e, nil
}

// KnownType reports whether t is one of the entry types above.
func KnownType(t string) bool {
	switch t {
	case TypeMessage, TypeScheduleTask, TypePauseTask, TypeResumeTask, TypeCancelTask,
		TypeRegisterTenant, TypeApproveUser, TypeDenyUser, TypeListPending:
		return true
	}
	return false
}

// TaskSnapshot is one row of current_tasks.json.
type TaskSnapshot struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenantId"`
	Prompt        string `json:"prompt"`
	ScheduleType  string `json:"schedule_type"`
	ScheduleValue string `json:"schedule_value"`
	Status        string `json:"status"`
	NextRun       string `json:"next_run,omitempty"`
}

// PendingSnapshot is one row of pending_users.json.
type PendingSnapshot struct {
	UserID      string `json:"userId"`
	Channel     string `json:"channel"`
	RequestedAt string `json:"requestedAt"`
	Sample      string `json:"sample,omitempty"`
}

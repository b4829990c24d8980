package ipc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/groupclaw/internal/permissions"
	"github.com/nextlevelbuilder/groupclaw/internal/store"
	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

var (
	// ErrParse marks an entry that could not be decoded. Such entries are
	// quarantined.
	ErrParse = errors.New("unparseable mailbox entry")

	// ErrValidation marks a decoded entry whose fields are unusable. Such
	// entries are logged and discarded.
	ErrValidation = errors.New("invalid mailbox request")
)

// request is the closed set of operations a mailbox entry can carry.
type request interface {
	op() permissions.Operation
}

type sendMessage struct {
	Destination string
	Text        string
}

type scheduleTask struct {
	Prompt        string
	ScheduleKind  store.ScheduleKind
	ScheduleValue string
	ContextMode   store.ContextMode
	TargetTenant  string
	Destination   string
}

type pauseTask struct{ TaskID string }
type resumeTask struct{ TaskID string }
type cancelTask struct{ TaskID string }

type registerTenant struct {
	Destination     string
	Name            string
	Folder          string
	Trigger         string
	RequiresTrigger bool
	Mounts          []store.Mount
}

type approveUser struct{ UserID string }
type denyUser struct{ UserID string }
type listPending struct{}

func (sendMessage) op() permissions.Operation    { return permissions.OpSendMessage }
func (scheduleTask) op() permissions.Operation   { return permissions.OpScheduleTask }
func (pauseTask) op() permissions.Operation      { return permissions.OpPauseTask }
func (resumeTask) op() permissions.Operation     { return permissions.OpResumeTask }
func (cancelTask) op() permissions.Operation     { return permissions.OpCancelTask }
func (registerTenant) op() permissions.Operation { return permissions.OpRegisterTenant }
func (approveUser) op() permissions.Operation    { return permissions.OpApproveUser }
func (denyUser) op() permissions.Operation       { return permissions.OpDenyUser }
func (listPending) op() permissions.Operation    { return permissions.OpListPending }

// parseEntry decodes one file found under kind (messages or tasks). Files in
// messages/ must be plain messages.
func parseEntry(kind string, data []byte) (request, error) {
	e, err := protocol.DecodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if kind == protocol.DirMessages && e.Type != protocol.TypeMessage {
		return nil, fmt.Errorf("%w: %s entry in %s/", ErrParse, e.Type, kind)
	}
	return toRequest(e), nil
}

func toRequest(e *protocol.Entry) request {
	switch e.Type {
	case protocol.TypeMessage:
		return sendMessage{Destination: strings.TrimSpace(e.Destination), Text: e.Text}
	case protocol.TypeScheduleTask:
		mode := store.ContextMode(strings.TrimSpace(e.ContextMode))
		if mode == "" {
			mode = store.ContextIsolated
		}
		return scheduleTask{
			Prompt:        e.Prompt,
			ScheduleKind:  store.ScheduleKind(strings.TrimSpace(e.ScheduleType)),
			ScheduleValue: e.ScheduleValue.String(),
			ContextMode:   mode,
			TargetTenant:  strings.TrimSpace(e.TargetTenant),
			Destination:   strings.TrimSpace(e.Destination),
		}
	case protocol.TypePauseTask:
		return pauseTask{TaskID: strings.TrimSpace(e.TaskID)}
	case protocol.TypeResumeTask:
		return resumeTask{TaskID: strings.TrimSpace(e.TaskID)}
	case protocol.TypeCancelTask:
		return cancelTask{TaskID: strings.TrimSpace(e.TaskID)}
	case protocol.TypeRegisterTenant:
		r := registerTenant{
			Destination:     strings.TrimSpace(e.TenantID),
			Name:            strings.TrimSpace(e.Name),
			Folder:          strings.TrimSpace(e.FolderName),
			Trigger:         strings.TrimSpace(e.Trigger),
			RequiresTrigger: true,
		}
		if e.RequiresTrigger != nil {
			r.RequiresTrigger = *e.RequiresTrigger
		}
		for _, m := range e.Mounts {
			r.Mounts = append(r.Mounts, store.Mount{HostPath: m.HostPath, ContainerPath: m.ContainerPath, ReadOnly: m.ReadOnly})
		}
		return r
	case protocol.TypeApproveUser:
		return approveUser{UserID: e.UserID.String()}
	case protocol.TypeDenyUser:
		return denyUser{UserID: e.UserID.String()}
	default: // protocol.TypeListPending; DecodeEntry rejects anything else
		return listPending{}
	}
}

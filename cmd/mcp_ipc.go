package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/groupclaw/internal/agent"
	"github.com/nextlevelbuilder/groupclaw/internal/mailbox"
	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

func mcpIPCCmd() *cobra.Command {
	var dir, destination string
	cmd := &cobra.Command{
		Use:   "mcp-ipc",
		Short: "Serve worker-side mailbox tools over MCP stdio",
		Long: "Runs inside an agent worker. Each tool call is written as one entry " +
			"into the tenant's mailbox, which the host drains and authorizes.",
		// stdout carries the MCP protocol.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(os.Stderr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = envOr(agent.EnvIPCDir, agent.ContainerIPCDir)
			}
			if destination == "" {
				destination = os.Getenv(agent.EnvChat)
			}
			t := &ipcTools{dir: dir, destination: destination}
			return server.ServeStdio(t.server())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "tenant mailbox directory (default $"+agent.EnvIPCDir+" or "+agent.ContainerIPCDir+")")
	cmd.Flags().StringVar(&destination, "destination", "", "chat address of this tenant (default $"+agent.EnvChat+")")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ipcTools writes tool calls into one tenant's mailbox.
type ipcTools struct {
	dir         string
	destination string
}

func (t *ipcTools) server() *server.MCPServer {
	s := server.NewMCPServer("groupclaw-ipc", Version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a chat message. Defaults to the current chat."),
		mcp.WithString("text", mcp.Required(), mcp.Description("message text")),
		mcp.WithString("destination", mcp.Description("chat address such as tg:42; main tenant only for other chats")),
	), t.sendMessage)

	s.AddTool(mcp.NewTool("schedule_task",
		mcp.WithDescription("Schedule a prompt to run later. Results are sent to the destination chat."),
		mcp.WithString("prompt", mcp.Required()),
		mcp.WithString("schedule_type", mcp.Required(), mcp.Enum(protocol.ScheduleCron, protocol.ScheduleInterval, protocol.ScheduleOnce)),
		mcp.WithString("schedule_value", mcp.Required(),
			mcp.Description("cron expression, interval in milliseconds, or local timestamp like 2026-01-15T09:00:00")),
		mcp.WithString("context_mode", mcp.Enum(protocol.ContextGroup, protocol.ContextIsolated),
			mcp.Description("group continues the chat session; isolated (default) starts fresh")),
		mcp.WithString("target_tenant", mcp.Description("tenant folder to schedule for; main tenant only")),
		mcp.WithString("destination", mcp.Description("chat address for the results")),
	), t.scheduleTask)

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List scheduled tasks visible to this chat."),
	), t.listTasks)

	for _, op := range []struct{ name, typ, desc string }{
		{"pause_task", protocol.TypePauseTask, "Pause a scheduled task."},
		{"resume_task", protocol.TypeResumeTask, "Resume a paused task."},
		{"cancel_task", protocol.TypeCancelTask, "Cancel and delete a task."},
	} {
		s.AddTool(mcp.NewTool(op.name,
			mcp.WithDescription(op.desc),
			mcp.WithString("task_id", mcp.Required()),
		), t.taskControl(op.typ))
	}

	s.AddTool(mcp.NewTool("register_tenant",
		mcp.WithDescription("Register a group chat as a tenant. Main tenant only."),
		mcp.WithString("chat_address", mcp.Required(), mcp.Description("e.g. tg:-100123")),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("folder", mcp.Required(), mcp.Description("folder name, lowercase letters, digits, - and _")),
		mcp.WithString("trigger", mcp.Required(), mcp.Description("e.g. @Andy")),
		mcp.WithBoolean("requires_trigger", mcp.Description("only respond to triggered messages (default true)")),
	), t.registerTenant)

	for _, op := range []struct{ name, typ, desc string }{
		{"approve_user", protocol.TypeApproveUser, "Approve a pending user. Main tenant only."},
		{"deny_user", protocol.TypeDenyUser, "Deny a pending user. Main tenant only."},
	} {
		s.AddTool(mcp.NewTool(op.name,
			mcp.WithDescription(op.desc),
			mcp.WithString("user_id", mcp.Required()),
		), t.userDecision(op.typ))
	}

	s.AddTool(mcp.NewTool("list_pending",
		mcp.WithDescription("Ask the host to send the list of users waiting for approval. Main tenant only."),
	), t.listPending)

	return s
}

func (t *ipcTools) write(kind string, e *protocol.Entry) (*mcp.CallToolResult, error) {
	name, err := mailbox.Write(filepath.Join(t.dir, kind), e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("write mailbox entry: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s queued (%s).", e.Type, name)), nil
}

func (t *ipcTools) sendMessage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil || strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	dest := req.GetString("destination", t.destination)
	if dest == "" {
		return mcp.NewToolResultError("destination is required: no current chat known"), nil
	}
	return t.write(protocol.DirMessages, &protocol.Entry{Type: protocol.TypeMessage, Destination: dest, Text: text})
}

func (t *ipcTools) scheduleTask(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := req.RequireString("schedule_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireString("schedule_value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e := &protocol.Entry{
		Type:          protocol.TypeScheduleTask,
		Prompt:        prompt,
		ScheduleType:  kind,
		ScheduleValue: protocol.FlexibleString(value),
		ContextMode:   req.GetString("context_mode", ""),
		TargetTenant:  req.GetString("target_tenant", ""),
		Destination:   req.GetString("destination", ""),
	}
	if e.Destination == "" && e.TargetTenant == "" {
		e.Destination = t.destination
	}
	return t.write(protocol.DirTasks, e)
}

func (t *ipcTools) listTasks(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := os.ReadFile(filepath.Join(t.dir, protocol.SnapshotTasks))
	if errors.Is(err, os.ErrNotExist) {
		return mcp.NewToolResultText("No scheduled tasks."), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read task snapshot: %v", err)), nil
	}
	var tasks []protocol.TaskSnapshot
	if err := json.Unmarshal(data, &tasks); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("parse task snapshot: %v", err)), nil
	}
	return mcp.NewToolResultText(formatTaskSnapshot(tasks)), nil
}

func formatTaskSnapshot(tasks []protocol.TaskSnapshot) string {
	if len(tasks) == 0 {
		return "No scheduled tasks."
	}
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "- [%s] %s (%s: %s, %s)", t.ID, clip(t.Prompt, 60), t.ScheduleType, t.ScheduleValue, t.Status)
		if t.NextRun != "" {
			fmt.Fprintf(&b, " next %s", t.NextRun)
		}
		if t.TenantID != "" {
			fmt.Fprintf(&b, " tenant %s", t.TenantID)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (t *ipcTools) taskControl(typ string) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return t.write(protocol.DirTasks, &protocol.Entry{Type: typ, TaskID: id})
	}
}

func (t *ipcTools) registerTenant(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var fields [4]string
	for i, key := range []string{"chat_address", "name", "folder", "trigger"} {
		v, err := req.RequireString(key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fields[i] = v
	}
	requires := req.GetBool("requires_trigger", true)
	return t.write(protocol.DirTasks, &protocol.Entry{
		Type:            protocol.TypeRegisterTenant,
		TenantID:        fields[0],
		Name:            fields[1],
		FolderName:      fields[2],
		Trigger:         fields[3],
		RequiresTrigger: &requires,
	})
}

func (t *ipcTools) userDecision(typ string) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return t.write(protocol.DirTasks, &protocol.Entry{Type: typ, UserID: protocol.FlexibleString(id)})
	}
}

func (t *ipcTools) listPending(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.write(protocol.DirTasks, &protocol.Entry{Type: protocol.TypeListPending})
}

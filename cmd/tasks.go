package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and control scheduled tasks",
	}
	cmd.AddCommand(tasksListCmd())
	cmd.AddCommand(taskControlCmd("pause", protocol.TypePauseTask, "Pause a task"))
	cmd.AddCommand(taskControlCmd("resume", protocol.TypeResumeTask, "Resume a paused task"))
	cmd.AddCommand(taskControlCmd("cancel", protocol.TypeCancelTask, "Cancel (delete) a task"))
	return cmd
}

func tasksListCmd() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			tasks, err := a.stores.Tasks.ListTasks(cmd.Context(), tenant)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			if len(tasks) == 0 {
				fmt.Println("No scheduled tasks.")
				return nil
			}
			fmt.Printf("%-36s  %-16s  %-8s  %-9s  %-18s  %-16s  %s\n",
				"ID", "TENANT", "STATUS", "KIND", "SCHEDULE", "NEXT", "PROMPT")
			for _, t := range tasks {
				fmt.Printf("%-36s  %-16s  %-8s  %-9s  %-18s  %-16s  %s\n",
					t.ID, t.TenantID, t.Status, t.ScheduleKind,
					clip(t.ScheduleValue, 18),
					formatTime(t.NextFire, a.loc),
					clip(t.Prompt, 40))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "only list tasks of this tenant")
	return cmd
}

func taskControlCmd(use, entryType, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.submit(&protocol.Entry{Type: entryType, TaskID: args[0]})
		},
	}
}

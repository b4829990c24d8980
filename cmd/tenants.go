package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

func tenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage registered group conversations",
	}
	cmd.AddCommand(tenantsListCmd())
	cmd.AddCommand(tenantsRegisterCmd())
	return cmd
}

func tenantsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			list := a.registry.List()
			if len(list) == 0 {
				fmt.Println("No tenants registered.")
				return nil
			}
			fmt.Printf("%-20s  %-24s  %-28s  %-12s  %s\n", "ID", "NAME", "DESTINATION", "TRIGGER", "FLAGS")
			for _, t := range list {
				flags := ""
				if t.IsMain {
					flags = "main"
				} else if !t.RequiresTrigger {
					flags = "no-trigger"
				}
				fmt.Printf("%-20s  %-24s  %-28s  %-12s  %s\n",
					t.ID, clip(t.Name, 24), t.Destination, t.Trigger, flags)
			}
			return nil
		},
	}
}

func tenantsRegisterCmd() *cobra.Command {
	var (
		name      string
		folder    string
		trigger   string
		noTrigger bool
	)
	cmd := &cobra.Command{
		Use:   "register <destination>",
		Short: "Register a chat (e.g. tg:-100123) as a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if trigger == "" {
				trigger = "@" + a.cfg.AssistantName
			}
			requires := !noTrigger
			return a.submit(&protocol.Entry{
				Type:            protocol.TypeRegisterTenant,
				TenantID:        args[0],
				Name:            name,
				FolderName:      folder,
				Trigger:         trigger,
				RequiresTrigger: &requires,
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&folder, "folder", "", "folder name, used as tenant id (required)")
	cmd.Flags().StringVar(&trigger, "trigger", "", "trigger phrase (default @<assistant_name>)")
	cmd.Flags().BoolVar(&noTrigger, "no-trigger", false, "respond to every message, not only triggered ones")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("folder")
	return cmd
}

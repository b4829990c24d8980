package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Approve or deny chat users waiting for access",
	}
	cmd.AddCommand(pairingListCmd())
	cmd.AddCommand(pairingDecideCmd("approve", protocol.TypeApproveUser, "Approve a pending user"))
	cmd.AddCommand(pairingDecideCmd("deny", protocol.TypeDenyUser, "Deny a pending user"))
	return cmd
}

func pairingListCmd() *cobra.Command {
	var showPaired bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending (or paired) users",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if showPaired {
				paired, err := a.stores.Pairing.ListPaired(cmd.Context())
				if err != nil {
					return fmt.Errorf("list paired users: %w", err)
				}
				if len(paired) == 0 {
					fmt.Println("No paired users.")
					return nil
				}
				fmt.Printf("%-24s  %-10s  %-16s  %s\n", "USER", "CHANNEL", "PAIRED", "APPROVED BY")
				for _, p := range paired {
					fmt.Printf("%-24s  %-10s  %-16s  %s\n",
						p.UserID, p.Channel, formatTime(&p.PairedAt, a.loc), p.ApprovedBy)
				}
				return nil
			}

			pending, err := a.stores.Pairing.ListPending(cmd.Context())
			if err != nil {
				return fmt.Errorf("list pending users: %w", err)
			}
			if len(pending) == 0 {
				fmt.Println("No pending users.")
				return nil
			}
			fmt.Printf("%-24s  %-10s  %-16s  %s\n", "USER", "CHANNEL", "REQUESTED", "FIRST MESSAGE")
			for _, p := range pending {
				fmt.Printf("%-24s  %-10s  %-16s  %s\n",
					p.UserID, p.Channel, formatTime(&p.RequestedAt, a.loc), clip(p.Sample, 48))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPaired, "paired", false, "list approved users instead")
	return cmd
}

func pairingDecideCmd(use, entryType, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.submit(&protocol.Entry{Type: entryType, UserID: protocol.FlexibleString(args[0])})
		},
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sddkit/specsync/internal/ui"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write workspace-local configuration",
		Long: `Get, set, and unset key/value pairs stored in the workspace database.
These override values from .specsync/config.yaml for this workspace only.`,
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd(), newConfigUnsetCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			value, err := a.store.GetConfig(context.Background(), args[0])
			if err != nil {
				return err
			}
			if value == "" {
				fmt.Println(ui.RenderMuted("(not set)"))
				return nil
			}
			fmt.Println(value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.SetConfig(context.Background(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("%s %s = %s\n", ui.RenderPass(ui.IconPass), args[0], args[1])
			return nil
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a stored config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.DeleteConfig(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s unset %s\n", ui.RenderPass(ui.IconPass), args[0])
			return nil
		},
	}
}

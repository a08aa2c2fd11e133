package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sddkit/specsync/internal/config"
	"github.com/sddkit/specsync/internal/ui"
	"github.com/sddkit/specsync/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the specs directory and sync documents as they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := watcher.New(a.store, a.bus, a.specsDir, config.GetDuration(config.KeyWatchDebounce))
			fmt.Printf("%s watching %s (Ctrl-C to stop)\n", ui.RenderHeader("specsync"), a.specsDir)

			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Println(ui.RenderMuted("stopped"))
			return nil
		},
	}
}

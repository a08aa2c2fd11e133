package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sddkit/specsync/internal/storage"
	"github.com/sddkit/specsync/internal/types"
	"github.com/sddkit/specsync/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show all specs with their phase, branch, and issue link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := context.Background()

			specs, err := a.store.ListSpecs(ctx)
			if err != nil {
				return err
			}
			if len(specs) == 0 {
				fmt.Println(ui.RenderMuted("no specs yet; run `specsync create <name>`"))
				return nil
			}

			if branch, err := a.repo.CurrentBranch(ctx); err == nil {
				fmt.Printf("%s  current branch: %s\n\n", ui.RenderHeader("workspace"), ui.RenderBranch(branch))
			}

			for _, spec := range specs {
				issue := ui.RenderMuted("not linked")
				rec, err := a.store.GetSyncRecord(ctx, types.EntitySpec, spec.ID)
				switch {
				case err == nil:
					issue = fmt.Sprintf("#%d", rec.IssueNumber)
					if rec.PRURL != "" {
						issue += ui.RenderMuted(" PR " + rec.PRURL)
					}
				case !errors.Is(err, storage.ErrNotFound):
					return err
				}

				fmt.Printf("%s  %-14s  %-28s  %s\n",
					spec.ID, ui.RenderPhase(spec.Phase), ui.RenderBranch(spec.BranchName), issue)
				fmt.Println(ui.RenderMuted("    " + spec.Name))
			}
			return nil
		},
	}
}

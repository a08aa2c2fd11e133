package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sddkit/specsync/internal/ui"
)

func newSyncCmd() *cobra.Command {
	var (
		create    bool
		pull      bool
		subIssues bool
		project   bool
	)

	cmd := &cobra.Command{
		Use:   "sync <spec-id>",
		Short: "Synchronize a spec with its tracker issue",
		Long: `Push the spec document to its linked issue (the local document is the
source of truth), or with --pull apply the narrow remote changes — name,
close state, checkbox states — onto the local spec.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := context.Background()

			spec, err := resolveSpec(ctx, a.store, args[0])
			if err != nil {
				return err
			}

			switch {
			case pull:
				result, err := a.svc.SyncIssueToSpec(ctx, spec.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%s issue #%d → spec %s (%s)\n", ui.RenderPass(ui.IconPass),
					result.IssueNumber, spec.ID, result.Action)
			case subIssues:
				result, err := a.svc.CreateSubIssuesFromTaskList(ctx, spec.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%s created %d sub-issues for %s\n", ui.RenderPass(ui.IconPass),
					len(result.Created), spec.ID)
				if out := ui.RenderWarnings(result.Warnings); out != "" {
					fmt.Print(out)
				}
			case project:
				itemID, err := a.svc.AddToProject(ctx, spec.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%s added %s to project board (item %s)\n", ui.RenderPass(ui.IconPass),
					spec.ID, itemID)
			default:
				result, err := a.svc.SyncSpecToIssue(ctx, spec.ID, create)
				if err != nil {
					return err
				}
				fmt.Printf("%s spec %s → issue #%d (%s)\n", ui.RenderPass(ui.IconPass),
					spec.ID, result.IssueNumber, result.Action)
				if result.IssueURL != "" {
					fmt.Println(ui.RenderMuted("  " + result.IssueURL))
				}
				if out := ui.RenderWarnings(result.Warnings); out != "" {
					fmt.Print(out)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&create, "create", false, "Create the issue if the spec is not linked yet")
	cmd.Flags().BoolVar(&pull, "pull", false, "Pull remote changes onto the local spec instead of pushing")
	cmd.Flags().BoolVar(&subIssues, "sub-issues", false, "Create sub-issues from the spec's task list")
	cmd.Flags().BoolVar(&project, "project", false, "Add the linked issue to the configured project board")
	cmd.MarkFlagsMutuallyExclusive("pull", "sub-issues", "project", "create")
	return cmd
}

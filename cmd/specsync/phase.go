package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sddkit/specsync/internal/storage"
	"github.com/sddkit/specsync/internal/types"
	"github.com/sddkit/specsync/internal/ui"
)

func newPhaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phase <spec-id> <phase>",
		Short: "Advance a spec to a new lifecycle phase",
		Long: `Advance a spec to one of: requirements, design, tasks, implementation,
completed. Moving to implementation creates the work branch; moving to
completed commits the tree and opens a pull request.`,
		Args: cobra.ExactArgs(2),
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
			phase := types.Phase(strings.ToLower(args[1]))

			result, err := a.orch.Advance(ctx, spec.ID, phase)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s: %s → %s\n", ui.RenderPass(ui.IconPass), spec.ID,
				ui.RenderPhase(result.OldPhase), ui.RenderPhase(result.NewPhase))
			if result.Branch != "" {
				fmt.Printf("  branch: %s\n", ui.RenderBranch(result.Branch))
			}
			if result.PRURL != "" {
				fmt.Printf("  pull request: %s\n", result.PRURL)
			}
			if out := ui.RenderWarnings(result.Warnings); out != "" {
				fmt.Print(out)
			}
			return nil
		},
	}
}

// resolveSpec finds a spec by full ID or unique prefix.
func resolveSpec(ctx context.Context, store storage.Store, idOrPrefix string) (*types.Spec, error) {
	if spec, err := store.GetSpec(ctx, idOrPrefix); err == nil {
		return spec, nil
	}

	specs, err := store.ListSpecs(ctx)
	if err != nil {
		return nil, err
	}
	var matches []*types.Spec
	for _, s := range specs {
		if strings.HasPrefix(s.ID, idOrPrefix) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, fmt.Errorf("no spec matches %q", idOrPrefix)
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return nil, fmt.Errorf("ambiguous spec id %q matches: %s", idOrPrefix, strings.Join(ids, ", "))
	}
}

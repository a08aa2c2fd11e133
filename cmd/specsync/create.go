package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sddkit/specsync/internal/eventbus"
	"github.com/sddkit/specsync/internal/idgen"
	"github.com/sddkit/specsync/internal/specdoc"
	"github.com/sddkit/specsync/internal/storage"
	"github.com/sddkit/specsync/internal/types"
	"github.com/sddkit/specsync/internal/ui"
)

func newCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new spec in the requirements phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := context.Background()

			spec, err := createSpec(ctx, a.store, name, description)
			if err != nil {
				return err
			}

			content := specdoc.New(name, description)
			if _, err := specdoc.Save(a.specsDir, spec.ID, content); err != nil {
				return err
			}
			if err := a.store.UpdateSpecContentHash(ctx, spec.ID, specdoc.Hash(content)); err != nil {
				return err
			}

			if _, err := a.bus.Publish(ctx, eventbus.NewSpecCreated(spec.ID)); err != nil {
				return err
			}

			fmt.Printf("%s created spec %s (%s)\n", ui.RenderPass(ui.IconPass), spec.ID, name)
			fmt.Println(ui.RenderMuted("Document: " + specdoc.Path(a.specsDir, spec.ID)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Spec description")
	return cmd
}

// createSpec inserts a new spec, retrying with a bumped nonce if the
// hash-derived ID collides with an existing spec.
func createSpec(ctx context.Context, store storage.Store, name, description string) (*types.Spec, error) {
	createdAt := time.Now()
	for nonce := 0; nonce < 10; nonce++ {
		id := idgen.SpecID(name, createdAt, nonce)
		if _, err := store.GetSpec(ctx, id); err == nil {
			continue // collision; retry with the next nonce
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		spec := &types.Spec{
			ID:          id,
			Name:        name,
			Description: description,
			Phase:       types.PhaseRequirements,
			CreatedAt:   createdAt,
		}
		if err := store.CreateSpec(ctx, spec); err != nil {
			return nil, err
		}
		return spec, nil
	}
	return nil, fmt.Errorf("could not find a free spec id for %q", name)
}

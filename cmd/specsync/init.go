package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sddkit/specsync/internal/config"
	"github.com/sddkit/specsync/internal/storage"
	"github.com/sddkit/specsync/internal/ui"
)

// defaultConfigYAML is written on init so every knob is discoverable.
const defaultConfigYAML = `# specsync configuration. Values can be overridden with SPECSYNC_* env vars.
github:
  # token: ghp_...
  # owner: your-org
  # repo: your-repo
  # base-branch: main
  # release-branch: release
  # project-id: PVT_...
git:
  protected-branches: [main, master]
specs-dir: specs
db: specsync.db
watch:
  debounce: 2s
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a specsync workspace in the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := workspaceRoot()
			if err != nil {
				return err
			}

			cfgDir := filepath.Join(root, config.DirName)
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", cfgDir, err)
			}

			cfgPath := filepath.Join(cfgDir, config.ConfigFileName)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(defaultConfigYAML), 0o644); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
			}

			if err := config.Initialize(cfgDir); err != nil {
				return err
			}
			specsDirName, dbName := config.WorkspaceLayout(cfgDir)
			if err := os.MkdirAll(filepath.Join(root, specsDirName), 0o755); err != nil {
				return err
			}

			// Opening the store creates the database and runs migrations.
			store, err := storage.New(filepath.Join(cfgDir, dbName))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fmt.Printf("%s initialized workspace at %s\n", ui.RenderPass(ui.IconPass), root)
			fmt.Println(ui.RenderMuted("Edit " + cfgPath + " to configure tracker access."))
			return nil
		},
	}
}

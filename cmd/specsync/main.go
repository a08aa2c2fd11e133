// Command specsync drives the spec-driven development workflow: specs move
// through lifecycle phases while specsync keeps the git repository and the
// remote issue tracker in step.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sddkit/specsync/internal/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	dirFlag     string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "specsync",
	Short: "Synchronize spec documents with git branches and tracker issues",
	Long: `specsync automates a spec-driven workflow: each spec document moves
through requirements, design, tasks, implementation, and completed phases,
triggering branch creation, document commits, and issue synchronization.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Internal packages log diagnostics via the stdlib logger; keep
		// them quiet unless asked. User-facing warnings travel on Results.
		if !verboseFlag {
			log.SetOutput(io.Discard)
		}
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		return config.Initialize(filepath.Join(root, config.DirName))
	},
}

// workspaceRoot resolves the project root: the explicit --dir flag, or the
// nearest ancestor holding a .specsync directory, or the current directory.
func workspaceRoot() (string, error) {
	if dirFlag != "" {
		return filepath.Abs(dirFlag)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if found := config.FindDir(cwd); found != "" {
		return filepath.Dir(found), nil
	}
	return cwd, nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "Project root (default: auto-discover .specsync)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(
		newInitCmd(),
		newCreateCmd(),
		newPhaseCmd(),
		newSyncCmd(),
		newTasksCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

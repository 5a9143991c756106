package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
)

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the orchestrator in the current directory",
		Long: `Initialize the task orchestrator in the current directory.

Writes a starter workflow config to .taskorchestrator/config.yaml and
creates the task database. The starter config matches the built-in
defaults, so editing it is optional.

Examples:
  taskorc init            # Write config and create the database
  taskorc init --force    # Overwrite an existing config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			wd, err := resolveWorkDir()
			if err != nil {
				return err
			}

			dir := filepath.Join(wd, config.ConfigDir)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}

			cfgPath := filepath.Join(dir, config.ConfigFileName)
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists. Use --force to overwrite", cfgPath)
			}
			if err := os.WriteFile(cfgPath, []byte(config.StarterYAML), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("Wrote workflow config to %s\n", cfgPath)

			store, err := openStore(wd)
			if err != nil {
				return fmt.Errorf("create database: %w", err)
			}
			defer store.Close()
			fmt.Printf("Database ready at %s\n", store.Path())

			fmt.Println("\nNext: taskorc serve")
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "overwrite an existing config file")

	return cmd
}

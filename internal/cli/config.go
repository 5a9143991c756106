package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
)

// newConfigCmd creates the config command with subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the workflow configuration",
		Long: `Inspect the workflow configuration.

The effective config is the file at .taskorchestrator/config.yaml
merged over the built-in defaults. A missing or broken file falls back
to the defaults, so 'config show' always prints a complete config.

Subcommands:
  show   Print the effective config as YAML
  path   Print the config file location

Examples:
  taskorc config show
  taskorc config path`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

// newConfigShowCmd creates the 'config show' subcommand.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective workflow config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := resolveWorkDir()
			if err != nil {
				return err
			}

			loader := config.NewLoader(newLogger(nil))
			loader.SetWorkDir(wd)

			out, err := yaml.Marshal(loader.Load())
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' subcommand.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := resolveWorkDir()
			if err != nil {
				return err
			}

			loader := config.NewLoader(newLogger(nil))
			loader.SetWorkDir(wd)

			path, err := loader.ConfigPath()
			if err != nil {
				return err
			}
			if _, statErr := os.Stat(path); statErr != nil {
				fmt.Printf("%s (not created yet; run 'taskorc init')\n", path)
				return nil
			}
			fmt.Println(path)
			return nil
		},
	}
}

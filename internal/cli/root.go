// Package cli implements the taskorc command-line interface.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
)

var (
	cfgFile   string
	workDir   string
	dbPath    string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskorc",
	Short: "Task orchestration MCP server",
	Long: `taskorc manages a project / feature / task hierarchy behind an MCP
server, driving every status change through a configurable workflow.

Features:
  • Projects, features, and tasks with sections and templates
  • Config-driven status flows selected by entity tags
  • Blocking dependencies with automatic unblock detection
  • Cascading transitions between hierarchy levels
  • MCP tools over stdio or streamable HTTP

Quick start:
  taskorc init           Write a starter workflow config
  taskorc serve          Serve MCP over stdio
  taskorc serve --http :8765
  taskorc config show    Print the effective workflow config`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .taskorchestrator/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workDir, "workdir", "", "working directory holding .taskorchestrator/ (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path or postgres:// DSN (default is .taskorchestrator/tasks.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or text (default json)")

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(config.ConfigDir)
		viper.AddConfigPath("$HOME/" + config.ConfigDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TASKORC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Only flag defaults come from the file; unset flags fall back to
	// database.path / log.level / log.format keys.
	_ = viper.ReadInConfig()
}

// resolveWorkDir returns the directory holding .taskorchestrator/.
func resolveWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

// newLogger builds the process logger. Logs always go to stderr: in
// stdio mode stdout carries the MCP protocol.
func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level := logLevel
	if level == "" {
		level = viper.GetString("log.level")
	}
	format := logFormat
	if format == "" {
		format = viper.GetString("log.format")
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

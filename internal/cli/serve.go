package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
	"github.com/taskorchestrator/taskorchestrator/internal/db"
	"github.com/taskorchestrator/taskorchestrator/internal/db/driver"
	"github.com/taskorchestrator/taskorchestrator/internal/lock"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/blocked"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/containers"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/nextstatus"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/nexttask"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/queries"
	"github.com/taskorchestrator/taskorchestrator/internal/tools/transitions"
	"github.com/taskorchestrator/taskorchestrator/internal/workflow"
)

// newServeCmd creates the serve command for the MCP server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the task orchestration MCP server.

By default the server speaks MCP over stdio, which is how MCP clients
launch it. With --http it instead serves the streamable HTTP transport
on the given address, with sessions tracked via the Mcp-Session-Id
header and a /health endpoint for probes.

Logs always go to stderr; stdout is reserved for the protocol.

Example:
  taskorc serve                          # stdio transport
  taskorc serve --http :8765             # streamable HTTP on port 8765
  taskorc serve --http :8765 --cors "*"  # allow browser clients`,
		RunE: func(cmd *cobra.Command, args []string) error {
			httpAddr, _ := cmd.Flags().GetString("http")
			cors, _ := cmd.Flags().GetString("cors")
			return runServe(httpAddr, cors)
		},
	}

	cmd.Flags().String("http", "", "serve the streamable HTTP transport on this address instead of stdio")
	cmd.Flags().String("cors", "", `CORS origin allowlist for HTTP mode: "*" or comma-separated origins`)

	return cmd
}

func runServe(httpAddr, cors string) error {
	logger := newLogger(nil)

	wd, err := resolveWorkDir()
	if err != nil {
		return err
	}

	store, err := openStore(wd)
	if err != nil {
		return err
	}
	defer store.Close()

	loader := config.NewLoader(logger)
	loader.SetWorkDir(wd)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Reload the workflow config when it changes on disk. Best-effort:
	// the loader's TTL covers environments where watching fails.
	watcher := config.NewWatcher(loader, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}

	engine := workflow.New(store, loader, lock.New(), logger)

	registry := mcp.NewRegistry()
	registry.Register(containers.NewManage(engine, logger))
	registry.Register(queries.NewQuery(engine, logger))
	registry.Register(transitions.NewRequest(engine, logger))
	registry.Register(nextstatus.NewNext(engine, logger))
	registry.Register(nexttask.NewPick(engine, logger))
	registry.Register(blocked.NewList(engine, logger))

	server := mcp.NewServer(registry, mcp.ServerInfo{
		Name:    "taskorchestrator",
		Version: version,
	}, logger)

	if httpAddr == "" {
		logger.Info("serving MCP over stdio", "version", version, "workdir", wd)
		return server.Run(ctx)
	}
	return serveHTTP(ctx, server, httpAddr, cors, logger)
}

// openStore opens the task database: the --db flag, then the
// database.path config key, then .taskorchestrator/tasks.db. A
// postgres:// DSN selects the Postgres driver.
func openStore(wd string) (*db.DB, error) {
	dsn := dbPath
	if dsn == "" {
		dsn = viper.GetString("database.path")
	}
	if dsn == "" {
		dsn = filepath.Join(wd, config.ConfigDir, "tasks.db")
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return db.OpenWithDialect(dsn, driver.DialectPostgres)
	}
	return db.Open(dsn)
}

func serveHTTP(ctx context.Context, server *mcp.Server, addr, cors string, logger *slog.Logger) error {
	transport := mcp.NewHTTPServer(server, cors, logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           transport.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("http server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

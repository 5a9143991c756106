package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
)

// useWorkDir points the CLI at a temp directory for one test.
func useWorkDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	workDir = dir
	t.Cleanup(func() { workDir = "" })
	return dir
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	require.NoError(t, w.Close())
	os.Stdout = old
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestInitCreatesConfigAndDatabase(t *testing.T) {
	dir := useWorkDir(t)

	cmd := newInitCmd()
	cmd.SetArgs([]string{})
	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})

	cfgPath := filepath.Join(dir, config.ConfigDir, config.ConfigFileName)
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, config.StarterYAML, string(data))

	dbFile := filepath.Join(dir, config.ConfigDir, "tasks.db")
	_, err = os.Stat(dbFile)
	assert.NoError(t, err)

	assert.Contains(t, out, "Wrote workflow config")
	assert.Contains(t, out, "taskorc serve")
}

func TestInitRefusesToOverwrite(t *testing.T) {
	useWorkDir(t)

	first := newInitCmd()
	first.SetArgs([]string{})
	captureStdout(t, func() {
		require.NoError(t, first.Execute())
	})

	second := newInitCmd()
	second.SetArgs([]string{})
	second.SilenceErrors = true
	second.SilenceUsage = true
	err := second.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	forced := newInitCmd()
	forced.SetArgs([]string{"--force"})
	captureStdout(t, func() {
		assert.NoError(t, forced.Execute())
	})
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	useWorkDir(t)

	cmd := newConfigShowCmd()
	cmd.SetArgs([]string{})
	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})

	// Defaults apply even before init has written a file, and the
	// output uses the config file's own syntax.
	assert.Contains(t, out, "status_progression:")
	assert.Contains(t, out, "default_flow:")
	assert.Contains(t, out, "in-progress")
	assert.Contains(t, out, "status_validation:")
}

func TestConfigPathReportsMissingFile(t *testing.T) {
	dir := useWorkDir(t)

	cmd := newConfigPathCmd()
	cmd.SetArgs([]string{})
	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})

	assert.Contains(t, out, filepath.Join(dir, config.ConfigDir, config.ConfigFileName))
	assert.Contains(t, out, "not created yet")
}

func TestVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	out := captureStdout(t, func() {
		cmd.Run(cmd, nil)
	})

	assert.Contains(t, out, "taskorc version")
}

func TestRootRegistersCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "init", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

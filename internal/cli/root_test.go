package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "ingest", "crawl-feed", "replay", "status", "prune"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("worker-id"))
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`database:
  driver: sqlite
  path: %s
  log_level: silent
search:
  driver: memory
log:
  level: error
`, filepath.Join(dir, "crawlsync.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := run(t, "-c", cfgPath, "status", "--failed")
	require.NoError(t, err)

	var got struct {
		Counts map[string]int64 `json:"counts"`
		Failed []interface{}    `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.Counts, 4)
	assert.Empty(t, got.Failed)
}

func TestPruneCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := run(t, "-c", cfgPath, "prune", "--retention", "1h")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pruned": 0}`, out)
}

func TestReplayCommand_RequiresExactlyOneTarget(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := run(t, "-c", cfgPath, "replay")
	assert.Error(t, err)

	_, err = run(t, "-c", cfgPath, "replay", "--seq", "1", "--all")
	assert.Error(t, err)

	out, err := run(t, "-c", cfgPath, "replay", "--all")
	require.NoError(t, err)
	assert.JSONEq(t, `{"replayed": 0}`, out)
}

func TestRootCommand_BadConfig(t *testing.T) {
	_, err := run(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "status")
	assert.Error(t, err)
}

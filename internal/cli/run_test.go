package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: passing
steps:
  - tick: "(S1 ^a 1)"
    expect: { episode: 1 }
  - command: retrieve
    episode: 1
    expect:
      status: success
      wm: ["(R1 ^a 1)"]
`

const failingScenario = `name: failing
steps:
  - tick: "(S1 ^a 1)"
  - command: retrieve
    episode: 9
    expect: { status: success }
`

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunMissingArgs(t *testing.T) {
	_, err := executeRoot(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRunMissingFile(t *testing.T) {
	_, err := executeRoot(t, "run", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load scenario")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunInvalidScenario(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "bad", "name: bad\nsteps:\n  - command: dance\n")

	_, err := executeRoot(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunPassingScenario(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "passing", passingScenario)

	out, err := executeRoot(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "# passing")
	assert.Contains(t, out, "[2] retrieve")
	assert.Contains(t, out, "    (R1 ^a 1)")
}

func TestRunFailingScenario(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "failing", failingScenario)

	out, err := executeRoot(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "NO_MEMORY")
}

func TestRunJSON(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "passing", passingScenario)

	out, err := executeRoot(t, "run", path, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Pass bool `json:"pass"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
}

func TestRunRecordsIntoDatabase(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "passing", passingScenario)
	db := filepath.Join(dir, "episodes.db")

	_, err := executeRoot(t, "run", "--db", db, path)
	require.NoError(t, err)

	out, err := executeRoot(t, "stats", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "episodes: 1")
}

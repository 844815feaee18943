package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `name: %s
description: "minimal"
steps:
  - tick: "(S1 ^a 1)"
`

func writeScenario(t *testing.T, dir, file, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := []byte(fmt.Sprintf(minimalScenario, name))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), content, 0o644))
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.yaml", "b")
	writeScenario(t, dir, "a.yml", "a")
	writeScenario(t, filepath.Join(dir, "nested"), "cart-1.yaml", "cart")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	files, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "cart-1.yaml"),
	}, files)

	files, err = FindScenarios(dir, "cart-*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "nested", "cart-1.yaml")}, files)

	_, err = FindScenarios(dir, "[")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "one.yaml", "one")
	writeScenario(t, dir, "two.yaml", "two")

	scenarios, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "one", scenarios[0].Name)

	writeScenario(t, dir, "three.yaml", "one")
	_, err = LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario name "one" already used`)
}

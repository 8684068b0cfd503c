package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (cfgPath, dir string) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("REQUIRE_BACKEND_SECRET", "false")

	dir = t.TempDir()
	cfg := `
storage:
  backend: sqlite
  sqlite_path: ` + filepath.Join(dir, "tv.db") + `
auth:
  require_secret: false
  tokens:
    tok-cli:
      user_id: u-cli
      email: cli@example.com
logging:
  level: warn
  format: text
`
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMigrateImportVerify(t *testing.T) {
	cfgPath, dir := writeConfig(t)

	out, err := run(t, "migrate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready (sqlite)")

	csvPath := filepath.Join(dir, "tasks.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("prompt,solution\nfirst,a\nsecond,b\n"), 0o644))
	out, err = run(t, "import", csvPath, "--config", cfgPath, "--as", "u-cli")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 tasks")

	out, err = run(t, "verify", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "journal ok")
}

func TestImportRejectsUnknownFormat(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	p := filepath.Join(dir, "tasks.xml")
	require.NoError(t, os.WriteFile(p, []byte("<x/>"), 0o644))

	_, err := run(t, "import", p, "--config", cfgPath)
	assert.ErrorContains(t, err, "unknown import format")
}

func TestBadConfig(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("storage:\n  backend: mongo\n"), 0o644))

	_, err := run(t, "migrate", "--config", p)
	assert.Error(t, err)
}

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// testEnv is an isolated settings file with its own storage directories.
type testEnv struct {
	dir        string
	configPath string
}

// newTestEnv writes a settings file pointing every directory into a temp dir.
// extra is appended to the YAML as-is.
func newTestEnv(t *testing.T, extra string) testEnv {
	t.Helper()

	dir := t.TempDir()
	content := fmt.Sprintf(`storage:
  dataDir: %s
  stateDir: %s
  runtimeDir: %s
%s`,
		filepath.Join(dir, "data"),
		filepath.Join(dir, "state"),
		filepath.Join(dir, "run"),
		extra,
	)
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return testEnv{dir: dir, configPath: path}
}

// run executes the root command with the env's settings file.
func (e testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// dataDir is where the env's database lives.
func (e testEnv) dataDir() string {
	return filepath.Join(e.dir, "data")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoader_Layering(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	work := filepath.Join(project, "sub", "dir")
	require.NoError(t, os.MkdirAll(work, 0755))

	writeFile(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
storage:
  driver: memory
pipeline:
  stage_timeout: 30s
`)
	writeFile(t, filepath.Join(project, ProjectConfigFile), `
pipeline:
  failure_policy: fail_fast
`)

	l := NewLoader(nil,
		WithDirs(home, work),
		WithEnv(envMap(map[string]string{
			"SEMPLAN_STAGE_TIMEOUT": "5s",
			"SEMPLAN_CORS_ORIGINS":  "http://a.example, http://b.example",
		})))

	cfg, err := l.Load()
	require.NoError(t, err)

	// user layer survives a project file that does not mention storage
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	// project file found by walking up
	assert.Equal(t, FailFast, cfg.Pipeline.FailurePolicy)
	// env wins over user config
	assert.Equal(t, 5*time.Second, cfg.Pipeline.StageTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoader_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, "pipeline:\n  extraction: naive\n")

	cfg, err := NewLoader(nil, WithDirs(dir, dir), WithEnv(envMap(nil)), WithConfigFile(path)).Load()
	require.NoError(t, err)
	assert.Equal(t, "naive", cfg.Pipeline.Extraction)

	_, err = NewLoader(nil, WithDirs(dir, dir), WithEnv(envMap(nil)), WithConfigFile(filepath.Join(dir, "missing.yaml"))).Load()
	require.Error(t, err)
}

func TestLoader_InvalidEnv(t *testing.T) {
	dir := t.TempDir()

	_, err := NewLoader(nil,
		WithDirs(dir, dir),
		WithEnv(envMap(map[string]string{
			"SEMPLAN_STAGE_TIMEOUT":        "soon",
			"SEMPLAN_MAX_CONCURRENT_CALLS": "many",
		}))).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEMPLAN_STAGE_TIMEOUT")
	assert.Contains(t, err.Error(), "SEMPLAN_MAX_CONCURRENT_CALLS")
}

func TestLoader_ValidatesResult(t *testing.T) {
	dir := t.TempDir()

	_, err := NewLoader(nil,
		WithDirs(dir, dir),
		WithEnv(envMap(map[string]string{"SEMPLAN_FAILURE_POLICY": "sometimes"}))).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_policy")
}

func TestLoader_EnsureUserConfig(t *testing.T) {
	home := t.TempDir()
	l := NewLoader(nil, WithDirs(home, home))

	require.NoError(t, l.EnsureUserConfig())
	path := filepath.Join(home, UserConfigDir, UserConfigFile)
	_, err := os.Stat(path)
	require.NoError(t, err)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	// second call leaves the file alone
	require.NoError(t, l.EnsureUserConfig())
}

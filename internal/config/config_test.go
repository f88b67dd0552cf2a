package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data/uploads", cfg.UploadDir)
	assert.Equal(t, int64(50), cfg.MaxFileSizeMB)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, 8080, cfg.APIServerPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("MAX_CONCURRENT", "16")
	t.Setenv("LLM_API_URL", "http://llm.internal/v1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.MaxConcurrent)
	assert.Equal(t, "http://llm.internal/v1", cfg.LLM.APIURL)
}

func TestLoadYamlOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrent: 8\nupload_dir: /tmp/up\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.Equal(t, "/tmp/up", cfg.UploadDir)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("MAX_CONCURRENT", "0")

	_, err := Load("")
	assert.Error(t, err)
}

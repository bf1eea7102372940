package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, "minio", cfg.Blob.Backend)
	assert.Equal(t, "blob", cfg.Catalog.Source)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.DocumentsEnabled)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "memory")
	t.Setenv("CATALOG_SOURCE", "file")
	t.Setenv("CATALOG_FILE", "/etc/casebook/labels.yaml")
	t.Setenv("CASEBOOK_CACHE_TTL", "30s")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("CASEBOOK_DOCUMENTS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Blob.Backend)
	assert.Equal(t, "/etc/casebook/labels.yaml", cfg.Catalog.File)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.False(t, cfg.DocumentsEnabled)
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_ADDR=:9999\n"), 0o600))
	t.Setenv("API_ADDR", "")
	require.NoError(t, os.Unsetenv("API_ADDR"))

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"BLOB_BACKEND", "s3"},
		{"CATALOG_SOURCE", "ldap"},
		{"CASEBOOK_CACHE_TTL", "0s"},
		{"CASEBOOK_CACHE_TTL", "soon"},
		{"LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

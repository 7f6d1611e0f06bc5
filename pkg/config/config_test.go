package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(2*1024*1024), cfg.Upload.ChunkSize)
	assert.Equal(t, int64(10*1024*1024*1024), cfg.Upload.MaxFileSize)
	assert.Equal(t, 24*time.Hour, cfg.Upload.SessionTTL)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Contains(t, cfg.Upload.DeniedExtensions, ".exe")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("UPLOAD_CHUNK_SIZE", "8388608")
	t.Setenv("UPLOAD_SESSION_TTL", "2h")
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("SECURITY_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, int64(8*1024*1024), cfg.Upload.ChunkSize)
	assert.Equal(t, 2*time.Hour, cfg.Upload.SessionTTL)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORSOrigins)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "storage:\n  backend: s3\n  bucket_name: uploads\nupload:\n  max_file_size: 1048576\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "uploads", cfg.Storage.BucketName)
	assert.Equal(t, int64(1048576), cfg.Upload.MaxFileSize)
}

func TestLoad_UnknownBackend_ReturnsError(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "ftp")

	_, err := Load()

	assert.Error(t, err)
}

func TestLoad_ShortJWTSecret_ReturnsError(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "short")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt")
}

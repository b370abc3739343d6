package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("NEWSROOM_API_KEY", " secret ")
	t.Setenv("NEWSROOM_API_PAGE_SIZE", "25")
	t.Setenv("NEWSROOM_STORAGE_BACKEND", "BOLT")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.API.Key)
	assert.Equal(t, 25, cfg.API.PageSize)
	assert.Equal(t, defaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, StorageBolt, cfg.Storage.Backend)
	assert.Equal(t, AssetsFS, cfg.Assets.Backend)
	assert.Equal(t, "replace", cfg.Assets.Collision)
	assert.Equal(t, defaultCron, cfg.Sync.Cron)
	assert.Equal(t, 3, cfg.Sync.MaxItemFailures)
}

func TestLoadConfigFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("NEWSROOM_API_KEY", "")
	require.NoError(t, os.Unsetenv("NEWSROOM_API_KEY"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NEWSROOM_API_KEY=from-dotenv\n"), 0o600))

	file := filepath.Join(dir, "bridge.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
api:
  timeout: 5s
  use_feed: true
assets:
  backend: s3
  s3:
    bucket: media
sync:
  kind: article
`), 0o600))

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.API.Key)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.API.UseFeed)
	assert.Equal(t, "media", cfg.Assets.S3.Bucket)
	assert.Equal(t, "article", cfg.Sync.Kind)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("NEWSROOM_API_KEY", "")
	_, err := Load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.key")
}

func TestValidateBackends(t *testing.T) {
	base := Config{
		API:     APIConfig{Key: "k", Timeout: time.Second},
		Mapping: MappingConfig{File: "m.yaml"},
		Assets:  AssetsConfig{Backend: AssetsFS, Dir: "public"},
		Storage: StorageConfig{Backend: StorageBolt, BoltPath: "x.db"},
	}
	require.NoError(t, base.Validate())

	c := base
	c.Storage = StorageConfig{Backend: StoragePostgres}
	assert.Error(t, c.Validate())

	c = base
	c.Assets = AssetsConfig{Backend: "ftp"}
	assert.Error(t, c.Validate())

	c = base
	c.Assets = AssetsConfig{Backend: AssetsS3}
	assert.Error(t, c.Validate())

	c = base
	c.Assets.Collision = "rename"
	assert.NoError(t, c.Validate())

	c = base
	c.Assets.Collision = "skip"
	assert.Error(t, c.Validate())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}

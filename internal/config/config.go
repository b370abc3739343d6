// Package config loads runtime settings from flags, environment, .env and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/assets"
)

// EnvPrefix is prepended to every environment variable, e.g. NEWSROOM_API_KEY.
const EnvPrefix = "NEWSROOM"

type Config struct {
	Log        LogConfig
	API        APIConfig
	Mapping    MappingConfig
	Assets     AssetsConfig
	Storage    StorageConfig
	Cache      CacheConfig
	Sync       SyncConfig
	Publishers PublishersConfig
	HTTP       HTTPConfig
}

type LogConfig struct {
	Level string
	JSON  bool
}

type APIConfig struct {
	BaseURL  string
	Version  string
	Key      string
	Timeout  time.Duration
	Retries  int
	PageSize int
	UseFeed  bool
}

type MappingConfig struct {
	File string
}

// AssetsConfig selects where pictures go. Collision is replace, rename or error.
type AssetsConfig struct {
	Backend   string
	Dir       string
	Collision string
	S3        S3Config
}

type S3Config struct {
	Bucket string
	Region string
	Prefix string
}

type StorageConfig struct {
	Backend     string
	BoltPath    string
	PostgresDSN string
}

// CacheConfig enables the redis document cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr string
	TTL       time.Duration
}

type SyncConfig struct {
	Cron            string
	Kind            string
	MaxItemFailures int
}

type PublishersConfig struct {
	File string
}

type HTTPConfig struct {
	Addr string
}

const (
	AssetsFS         = "fs"
	AssetsS3         = "s3"
	StorageBolt      = "bolt"
	StoragePostgres  = "postgres"
	defaultBaseURL   = "https://api.ap.org/media/"
	defaultVersion   = "v"
	defaultCron      = "*/15 * * * *"
	defaultHTTPAddr  = ":8080"
	defaultBoltPath  = "data/newsroom-bridge.db"
	defaultAssetsDir = "public"
)

// SetDefaults registers a default for every key so env vars can override them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("api.base_url", defaultBaseURL)
	v.SetDefault("api.version", defaultVersion)
	v.SetDefault("api.key", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.retries", 2)
	v.SetDefault("api.page_size", 10)
	v.SetDefault("api.use_feed", false)
	v.SetDefault("mapping.file", "mapping.yaml")
	v.SetDefault("assets.backend", AssetsFS)
	v.SetDefault("assets.dir", defaultAssetsDir)
	v.SetDefault("assets.collision", "replace")
	v.SetDefault("assets.s3.bucket", "")
	v.SetDefault("assets.s3.region", "")
	v.SetDefault("assets.s3.prefix", "")
	v.SetDefault("storage.backend", StorageBolt)
	v.SetDefault("storage.bolt_path", defaultBoltPath)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("sync.cron", defaultCron)
	v.SetDefault("sync.kind", "")
	v.SetDefault("sync.max_item_failures", 3)
	v.SetDefault("publishers.file", "")
	v.SetDefault("http.addr", defaultHTTPAddr)
}

// Load reads .env (if present), then configFile (if set), then the environment, into a Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile = strings.TrimSpace(configFile); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := Config{
		Log: LogConfig{
			Level: v.GetString("log.level"),
			JSON:  v.GetBool("log.json"),
		},
		API: APIConfig{
			BaseURL:  v.GetString("api.base_url"),
			Version:  v.GetString("api.version"),
			Key:      v.GetString("api.key"),
			Timeout:  v.GetDuration("api.timeout"),
			Retries:  v.GetInt("api.retries"),
			PageSize: v.GetInt("api.page_size"),
			UseFeed:  v.GetBool("api.use_feed"),
		},
		Mapping: MappingConfig{File: v.GetString("mapping.file")},
		Assets: AssetsConfig{
			Backend:   v.GetString("assets.backend"),
			Dir:       v.GetString("assets.dir"),
			Collision: v.GetString("assets.collision"),
			S3: S3Config{
				Bucket: v.GetString("assets.s3.bucket"),
				Region: v.GetString("assets.s3.region"),
				Prefix: v.GetString("assets.s3.prefix"),
			},
		},
		Storage: StorageConfig{
			Backend:     v.GetString("storage.backend"),
			BoltPath:    v.GetString("storage.bolt_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Cache: CacheConfig{
			RedisAddr: v.GetString("cache.redis_addr"),
			TTL:       v.GetDuration("cache.ttl"),
		},
		Sync: SyncConfig{
			Cron:            v.GetString("sync.cron"),
			Kind:            v.GetString("sync.kind"),
			MaxItemFailures: v.GetInt("sync.max_item_failures"),
		},
		Publishers: PublishersConfig{File: v.GetString("publishers.file")},
		HTTP:       HTTPConfig{Addr: v.GetString("http.addr")},
	}

	cfg.sanitize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) sanitize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	c.API.Version = strings.TrimSpace(c.API.Version)
	c.API.Key = strings.TrimSpace(c.API.Key)
	c.Mapping.File = strings.TrimSpace(c.Mapping.File)
	c.Assets.Backend = strings.ToLower(strings.TrimSpace(c.Assets.Backend))
	c.Assets.Collision = strings.ToLower(strings.TrimSpace(c.Assets.Collision))
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Sync.Kind = strings.TrimSpace(c.Sync.Kind)
	c.Publishers.File = strings.TrimSpace(c.Publishers.File)
	if c.API.Retries < 0 {
		c.API.Retries = 0
	}
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	if c.API.Key == "" {
		return errors.New("api.key is required (set NEWSROOM_API_KEY)")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Mapping.File == "" {
		return errors.New("mapping.file is required")
	}

	switch c.Assets.Backend {
	case AssetsFS:
		if strings.TrimSpace(c.Assets.Dir) == "" {
			return errors.New("assets.dir is required for the fs backend")
		}
	case AssetsS3:
		if c.Assets.S3.Bucket == "" {
			return errors.New("assets.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("assets.backend %q not supported (fs, s3)", c.Assets.Backend)
	}
	if _, err := assets.ParseCollisionPolicy(c.Assets.Collision); err != nil {
		return fmt.Errorf("assets.collision: %w", err)
	}

	switch c.Storage.Backend {
	case StorageBolt:
		if strings.TrimSpace(c.Storage.BoltPath) == "" {
			return errors.New("storage.bolt_path is required for the bolt backend")
		}
	case StoragePostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return errors.New("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q not supported (bolt, postgres)", c.Storage.Backend)
	}
	return nil
}

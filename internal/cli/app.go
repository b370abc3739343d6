package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/Adda-Baaj/newsroom-bridge/internal/config"
	"github.com/Adda-Baaj/newsroom-bridge/internal/importer"
	"github.com/Adda-Baaj/newsroom-bridge/internal/logger"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/apnews"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/assets"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/httpclient"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/mapping"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/publishers"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/storage"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg     config.Config
	log     logger.Logger
	svc     *importer.Service
	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	mappings, err := mapping.Load(cfg.Mapping.File)
	if err != nil {
		return err
	}

	transport := httpclient.NewRestyClient(cfg.API.Timeout, httpclient.WithRetries(cfg.API.Retries, 500*time.Millisecond))
	var opts []apnews.Option
	if cfg.Cache.RedisAddr != "" {
		cache, err := apnews.NewRedisCache(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, cache.Close)
		opts = append(opts, apnews.WithCache(cache, cfg.Cache.TTL))
	}
	remote, err := apnews.New(apnews.Config{
		BaseURL: cfg.API.BaseURL,
		Version: cfg.API.Version,
		APIKey:  cfg.API.Key,
	}, transport, a.log, opts...)
	if err != nil {
		return err
	}

	assetStore, err := openAssets(ctx, cfg.Assets)
	if err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store.Close)

	fanout, err := publishers.FromFile(ctx, cfg.Publishers.File, a.log)
	if err != nil {
		return err
	}

	policy, err := assets.ParseCollisionPolicy(cfg.Assets.Collision)
	if err != nil {
		return err
	}
	mapper := mapping.NewMapper(remote, assetStore, a.log, mapping.WithCollisionPolicy(policy))
	a.svc = importer.New(remote, mapper, mappings, store, fanout, a.log, importer.Options{
		PageSize:        cfg.API.PageSize,
		UseFeed:         cfg.API.UseFeed,
		MaxItemFailures: cfg.Sync.MaxItemFailures,
	})

	a.log.DebugObj("components wired", "startup", map[string]any{
		"kinds":      mappings.Kinds(),
		"assets":     cfg.Assets.Backend,
		"collision":  policy.String(),
		"storage":    cfg.Storage.Backend,
		"publishers": fanout.Len(),
		"cache":      cfg.Cache.RedisAddr != "",
	})
	return nil
}

func openAssets(ctx context.Context, cfg config.AssetsConfig) (assets.Store, error) {
	switch cfg.Backend {
	case config.AssetsS3:
		return assets.NewS3Store(ctx, assets.S3Config{
			Bucket: cfg.S3.Bucket,
			Region: cfg.S3.Region,
			Prefix: cfg.S3.Prefix,
		})
	case config.AssetsFS:
		return assets.NewFSStore(afero.NewOsFs(), cfg.Dir)
	}
	return nil, fmt.Errorf("unknown assets backend %q", cfg.Backend)
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.StoragePostgres:
		return storage.OpenPostgres(cfg.PostgresDSN)
	case config.StorageBolt:
		return storage.OpenBolt(cfg.BoltPath)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// Close releases stores and caches in reverse order and flushes the logger.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}

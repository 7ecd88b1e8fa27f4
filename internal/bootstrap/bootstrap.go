// Package bootstrap connects the backends shared by the server and the
// worker binaries according to the loaded configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/config"
	"github.com/sanderdlm/betascrubber/internal/pipeline"
	"github.com/sanderdlm/betascrubber/internal/repository"
	"github.com/sanderdlm/betascrubber/internal/repository/file"
	"github.com/sanderdlm/betascrubber/internal/repository/memory"
	"github.com/sanderdlm/betascrubber/internal/repository/postgres"
	redisrepo "github.com/sanderdlm/betascrubber/internal/repository/redis"
	"github.com/sanderdlm/betascrubber/internal/storage"
	"github.com/sanderdlm/betascrubber/internal/storage/local"
	"github.com/sanderdlm/betascrubber/internal/storage/s3"
	"github.com/sanderdlm/betascrubber/internal/tracker"
)

// Backends holds everything a process needs to submit or run jobs.
type Backends struct {
	Store    storage.Store
	Statuses repository.StatusStore
	Locks    repository.LockStore
	Index    repository.JobIndex
	Tracker  *tracker.Tracker
	Pipeline *pipeline.Pipeline

	// MediaRoot is the local store root, empty for object storage.
	MediaRoot string

	// Redis and DB are nil unless configured.
	Redis *goredis.Client
	DB    *pgxpool.Pool
}

// Open connects every configured backend. Missing optional services fall
// back to in-process implementations.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backends, error) {
	b := &Backends{}
	if err := b.openStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	if cfg.Redis.URL != "" {
		redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		b.Redis = goredis.NewClient(redisOpts)
		if err := b.Redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("Connected to Redis")
	}

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.DB = pool
		if err := pool.Ping(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			b.Close()
			return nil, err
		}
		logger.Info("Connected to PostgreSQL")
	}

	switch cfg.Status.Backend {
	case "redis":
		b.Statuses = redisrepo.NewRedisStatusStore(b.Redis)
	case "memory":
		b.Statuses = memory.NewStatusStore()
	default:
		statuses, err := file.NewStatusStore(cfg.Storage.TmpDir)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Statuses = statuses
	}

	if b.Redis != nil {
		b.Locks = redisrepo.NewRedisLockStore(b.Redis, cfg.Status.LockTTL)
	} else {
		b.Locks = memory.NewLockStore(cfg.Status.LockTTL)
	}

	if b.DB != nil {
		b.Index = postgres.NewPostgresJobIndex(b.DB)
	} else {
		b.Index = memory.NewJobIndex()
	}

	b.Tracker = tracker.New(b.Statuses, b.Store, logger)
	b.Pipeline = pipeline.New(pipeline.Options{
		YtDlpPath:   cfg.Pipeline.YtDlpPath,
		FfmpegPath:  cfg.Pipeline.FfmpegPath,
		Timeout:     cfg.Pipeline.Timeout,
		MaxDuration: cfg.Pipeline.MaxDuration,
		FPS:         cfg.Pipeline.FPS,
	}, logger)

	logger.Info("Backends ready",
		zap.String("storage", b.Store.Name()),
		zap.String("status", cfg.Status.Backend),
		zap.Bool("redis", b.Redis != nil),
		zap.Bool("postgres", b.DB != nil),
	)
	return b, nil
}

func (b *Backends) openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Storage.Backend != "s3" {
		store, err := local.NewStore(cfg.Storage.TmpDir, cfg.Storage.PublicMediaPath, logger)
		if err != nil {
			return err
		}
		b.Store = store
		b.MediaRoot = store.Root()
		return nil
	}

	opts := s3.Options{
		Bucket:    cfg.Storage.Bucket,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		PublicURL: cfg.Storage.PublicURL,
		WorkDir:   cfg.Storage.TmpDir,
	}
	client, err := s3.NewClient(ctx, opts)
	if err != nil {
		return err
	}
	store, err := s3.NewStore(client, opts, logger)
	if err != nil {
		return err
	}
	b.Store = store
	return nil
}

// Close releases the connections opened by Open.
func (b *Backends) Close() {
	if b.Redis != nil {
		b.Redis.Close()
	}
	if b.DB != nil {
		b.DB.Close()
	}
}

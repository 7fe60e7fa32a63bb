package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drilldocs/drilldocs/internal/config"
	"github.com/drilldocs/drilldocs/internal/database"
	"github.com/drilldocs/drilldocs/pkg/logger"
)

const (
	connectAttempts = 5
	watchDebounce   = 100 * time.Millisecond
)

// Backend is an opened KV plus the clients behind it.
type Backend struct {
	KV   KV
	Name string
	// File is set for the file backend.
	File *File
	// Redis is set for the redis backend so other components can share it.
	Redis   *redis.Client
	closers []func()
}

// Close releases the backend's connections in reverse order.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Watch reports external edits of a file backend. Other backends have no
// change feed and return a nil watcher.
func (b *Backend) Watch(onChange func(key string)) (*Watcher, error) {
	if b.File == nil {
		return nil, nil
	}
	return Watch(b.File, watchDebounce, onChange)
}

// Open connects the backend named by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	b := &Backend{Name: cfg.Storage.Backend}
	switch cfg.Storage.Backend {
	case config.BackendMemory, "":
		b.Name = config.BackendMemory
		b.KV = NewMemory()

	case config.BackendFile:
		f, err := NewFile(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		b.KV, b.File = f, f

	case config.BackendRedis:
		if cfg.Redis.Addr() == "" {
			return nil, fmt.Errorf("redis backend needs REDIS_HOST")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.KV, b.Redis = NewRedis(client, cfg.Storage.KeyPrefix), client

	case config.BackendMongo:
		if cfg.MongoDB.URI == "" {
			return nil, fmt.Errorf("mongo backend needs MONGODB_URI")
		}
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, connectAttempts, func(attempt int, err error) {
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, connectAttempts, err)
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
		b.KV = NewMongo(client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection))

	case config.BackendPostgres:
		if cfg.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres backend needs DATABASE_URL")
		}
		pool, err := database.ConnectPostgres(ctx, cfg.Postgres.URL, 10*time.Second)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		kv, err := NewPostgres(ctx, pool, cfg.Postgres.Table)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.KV = kv

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	logger.Infof("storage backend: %s", b.Name)
	return b, nil
}

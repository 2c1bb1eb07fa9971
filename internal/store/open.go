package store

import (
	"context"
	"fmt"
	"log"

	"studentportal/internal/config"
	"studentportal/internal/record"
)

// Backend is the record store selected by config plus the optional Redis connection.
type Backend struct {
	Records record.Store
	Redis   *Redis
	// Cache is set when Records is wrapped by the Redis listing cache.
	Cache   *record.Cached
	closers []func() error
}

// Open builds the record store named by cfg.StoreBackend and, when REDIS_ADDR is set,
// puts the Redis listing cache in front of it.
func Open(ctx context.Context, cfg config.App) (*Backend, error) {
	b := &Backend{}

	switch cfg.StoreBackend {
	case "mongo":
		m, err := NewMongo(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, m.Close)
		b.Records = record.NewMongo(m.Database)
	case "postgres":
		db, err := NewDB(cfg.DatabaseURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		repo := record.NewPostgres(db.Client)
		if err := repo.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Records = repo
	case "sqlite":
		db, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		repo := record.NewSQLite(db.Client)
		if err := repo.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Records = repo
	case "memory":
		b.Records = record.NewMemory()
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.RedisAddr != "" {
		b.Redis = NewRedis(cfg.RedisAddr)
		b.closers = append(b.closers, b.Redis.Close)
		if b.Redis.Healthy(ctx) {
			b.Cache = record.NewCached(b.Records, b.Redis.Client, cfg.CacheTTL)
			b.Records = b.Cache
		} else {
			log.Printf("warning: redis at %s not reachable, listing cache disabled", cfg.RedisAddr)
		}
	}

	log.Printf("record store: %s (cache=%v)", cfg.StoreBackend, b.Cache != nil)
	return b, nil
}

// Close releases every connection in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

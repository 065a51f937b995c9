package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"shopifybridge/pkg/config"
	"shopifybridge/pkg/db"
)

const defaultMongoDB = "shopifybridge"

// Open connects the backend named by cfg.Store.Backend. The returned func releases it.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (Backend, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreMemory, "":
		log.Warn("using in-memory store; nonces and tokens are lost on restart")
		m := NewMemory()
		return m, func() { _ = m.Close() }, nil

	case config.StorePostgres:
		pool, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.MigrationsPath != "" {
			if err := db.Migrate(cfg.MigrationsPath, cfg); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		log.Info("store backend ready", zap.String("backend", "postgres"))
		return NewPostgres(pool), pool.Close, nil

	case config.StoreMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.DatabaseURL))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		if err := client.Ping(ctx, nil); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}
		name := strings.TrimSpace(cfg.Store.MongoDB)
		if name == "" {
			name = defaultMongoDB
		}
		m, err := NewMongo(ctx, client.Database(name), cfg.Store.StateTTL)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		log.Info("store backend ready", zap.String("backend", "mongo"), zap.String("db", name))
		return m, closeFn, nil

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Info("store backend ready", zap.String("backend", "redis"), zap.String("addr", cfg.Store.RedisAddr))
		return NewRedis(rdb, ""), func() { _ = rdb.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

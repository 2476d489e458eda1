package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice"
	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice/clientstore"
)

// openDurableStore connects the configured backend. The returned release
// func closes the store and the connection behind it.
func openDurableStore(ctx context.Context, cfg cnwdevice.StorageConfig) (clientstore.Store, func(), error) {
	switch cfg.Backend {
	case cnwdevice.StorageMemory:
		s := clientstore.NewMemoryStore()
		return s, func() { _ = s.Close(ctx) }, nil

	case cnwdevice.StorageFile:
		s, err := clientstore.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close(ctx) }, nil

	case cnwdevice.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		s, err := clientstore.NewPostgresStore(ctx, pool, clientstore.WithPostgresNamespace(cfg.Namespace))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, func() {
			_ = s.Close(ctx)
			pool.Close()
		}, nil

	case cnwdevice.StorageMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() {
			if err := client.Disconnect(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to disconnect mongo", "error", err)
			}
		}
		s, err := clientstore.NewMongoStore(ctx, client.Database(cfg.MongoDatabase), clientstore.WithMongoNamespace(cfg.Namespace))
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		return s, func() {
			_ = s.Close(ctx)
			disconnect()
		}, nil

	case cnwdevice.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		s, err := clientstore.NewRedisStore(client,
			clientstore.WithRedisNamespace(cfg.Namespace),
			clientstore.WithTTL(cfg.RedisTTL))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, func() {
			_ = s.Close(ctx)
			_ = client.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"kynara/internal/config"
	"kynara/internal/security/secretbox"
	"kynara/internal/store"
	"kynara/internal/store/memory"
	"kynara/internal/store/mysql"
	"kynara/internal/store/postgres"
	redisstore "kynara/internal/store/redis"
	"kynara/internal/store/sealed"
	"kynara/internal/store/sqlite"
)

// openStore builds the backend named by STORE_MODE. An unreachable backend
// falls back to memory; a bad encryption key does not.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, error) {
	st, err := openBackend(ctx, cfg)
	if err != nil {
		log.Warn("store unavailable, falling back to memory store",
			slog.String("store_mode", cfg.StoreMode),
			slog.String("error", err.Error()),
		)
		st = memory.NewStore()
	}
	if cfg.StoreEncryptionKey == "" {
		return st, nil
	}
	box, err := secretbox.New(cfg.StoreEncryptionKey)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return sealed.Wrap(st, box), nil
}

func openBackend(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreMode {
	case "memory":
		return memory.NewStore(), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for postgres")
		}
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		return postgres.NewStore(cfg.DatabaseURL)
	case "mysql":
		if cfg.MySQLDSN == "" {
			return nil, errors.New("MYSQL_DSN is required for mysql")
		}
		return mysql.NewStore(cfg.MySQLDSN)
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return redisstore.NewStore(client, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown STORE_MODE %q", cfg.StoreMode)
	}
}

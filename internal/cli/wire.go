package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/storage"
)

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := newRedisClient(cfg)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

func openDatabase(cfg config.DatabaseConfig, logger zerolog.Logger) (*gorm.DB, error) {
	db, err := storage.Open(cfg.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("database %s: %w", cfg.DSN, err)
	}
	return db, nil
}

func newTokenValidator(cfg config.AuthConfig, revoked auth.RevocationList, logger zerolog.Logger) (*auth.TokenValidator, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is not configured")
	}
	return auth.NewTokenValidator(auth.TokenConfig{
		SecretKey: cfg.JWTSecret,
		Issuer:    cfg.Issuer,
		TTL:       cfg.TokenTTL,
	}, revoked, logger), nil
}

// Package factory builds the configured state.Store backend.
package factory

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnkitD0811/cloud-security-scanner/state"
	"github.com/AnkitD0811/cloud-security-scanner/state/hybrid"
	"github.com/AnkitD0811/cloud-security-scanner/state/memory"
	redisstore "github.com/AnkitD0811/cloud-security-scanner/state/redis"
	sqlitestore "github.com/AnkitD0811/cloud-security-scanner/state/sqlite"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendHybrid = "hybrid"
	BackendMemory = "memory"
	BackendNone   = "none"
)

type Config struct {
	Backend       string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// New returns nil and no error for the "none" backend. A hybrid backend whose
// cache is unreachable degrades to the durable store alone.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (state.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch backend := strings.ToLower(strings.TrimSpace(cfg.Backend)); backend {
	case "", BackendSQLite:
		return sqlitestore.New(sqlitePath(cfg))

	case BackendRedis:
		return newRedis(ctx, cfg)

	case BackendHybrid:
		durable, err := sqlitestore.New(sqlitePath(cfg))
		if err != nil {
			return nil, err
		}
		cache, err := newRedis(ctx, cfg)
		if err != nil {
			logger.Warn("redis cache unavailable, using sqlite only", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			return hybrid.New(durable, nil, hybrid.WithLogger(logger))
		}
		return hybrid.New(durable, cache, hybrid.WithLogger(logger))

	case BackendMemory:
		return memory.New(), nil

	case BackendNone:
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported state backend %q (use sqlite, redis, hybrid, memory, or none)", backend)
	}
}

func sqlitePath(cfg Config) string {
	if strings.TrimSpace(cfg.SQLitePath) == "" {
		return "./.iacscan/state.db"
	}
	return cfg.SQLitePath
}

func newRedis(ctx context.Context, cfg Config) (state.Store, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return redisstore.New(pingCtx, &goredis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, redisstore.WithTTL(cfg.RedisTTL))
}

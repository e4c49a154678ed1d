package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"advisor-match-engine/internal/admin"
	"advisor-match-engine/internal/common/camunda"
	"advisor-match-engine/internal/common/config"
	"advisor-match-engine/internal/common/database"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/matching/persistence"
	"advisor-match-engine/internal/profiles"
)

// dependencies holds the external clients the configuration asks for.
// Unused backends stay nil.
type dependencies struct {
	pg    *database.PostgresClient
	es    *database.ElasticsearchClient
	redis *database.RedisClient
	zeebe *camunda.Client
}

func connectDependencies(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.UsesPostgres() {
		err := retryWithBackoff(func() error {
			var err error
			deps.pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return deps.pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			deps.Close()
			return nil, err
		}
		zapLog.Info("PostgreSQL connected successfully")
	}

	if cfg.UsesElasticsearch() {
		err := retryWithBackoff(func() error {
			var err error
			deps.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return deps.es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			deps.Close()
			return nil, err
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	if cfg.UsesRedis() {
		err := retryWithBackoff(func() error {
			var err error
			deps.redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return deps.redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			deps.Close()
			return nil, err
		}
		zapLog.Info("Redis connected successfully")
	}

	if cfg.AnyWorkerEnabled() {
		err := retryWithBackoff(func() error {
			var err error
			deps.zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      10 * time.Second,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			deps.Close()
			return nil, err
		}
		zapLog.Info("Zeebe client connected successfully")
	}

	return deps, nil
}

// Check pings every connected backend and returns the names of those failing.
func (d *dependencies) Check(ctx context.Context) []string {
	var failed []string
	if d.pg != nil && d.pg.Ping(ctx) != nil {
		failed = append(failed, "postgres")
	}
	if d.es != nil && d.es.Ping(ctx) != nil {
		failed = append(failed, "elasticsearch")
	}
	if d.redis != nil && d.redis.Ping(ctx) != nil {
		failed = append(failed, "redis")
	}
	if d.zeebe != nil && d.zeebe.HealthCheck(ctx) != nil {
		failed = append(failed, "zeebe")
	}
	return failed
}

func (d *dependencies) Close() {
	if d.zeebe != nil {
		_ = d.zeebe.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pg != nil {
		_ = d.pg.Close()
	}
}

func (d *dependencies) redisClient() *redis.Client {
	if d.redis == nil {
		return nil
	}
	return d.redis.Client
}

// buildProfileStore returns the configured profile source and, when it keeps
// a cache, the handle used to evict profiles on invalidation.
func buildProfileStore(cfg *config.Config, deps *dependencies, log logger.Logger) (profiles.Store, admin.ProfileCache, error) {
	switch cfg.Matching.Profiles.Source {
	case config.SourcePostgres:
		store := profiles.NewPostgresStore(deps.pg.DB, deps.redisClient(), config.GetDuration(cfg.Matching.Profiles.CacheTTL), log)
		return store, store, nil
	case config.SourceElasticsearch:
		return profiles.NewElasticsearchStore(deps.es.Client, cfg.Matching.Profiles.ProviderIndex, cfg.Matching.Profiles.SeekerIndex, log), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported profile source %q", cfg.Matching.Profiles.Source)
	}
}

// buildScoreStore returns the durable score store, or nil when persistence is off.
func buildScoreStore(ctx context.Context, cfg *config.Config, deps *dependencies, log logger.Logger) (persistence.Store, error) {
	pc := cfg.Matching.Persistence

	newPostgres := func() (*persistence.PostgresStore, error) {
		store := persistence.NewPostgresStore(deps.pg.DB, log)
		if pc.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure score schema: %w", err)
			}
		}
		return store, nil
	}
	newRedis := func() *persistence.RedisStore {
		return persistence.NewRedisStore(deps.redis.Client, config.GetDuration(pc.RedisTTL), log)
	}

	switch pc.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendPostgres:
		store, err := newPostgres()
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		return newRedis(), nil
	case config.BackendTiered:
		durable, err := newPostgres()
		if err != nil {
			return nil, err
		}
		return persistence.NewTieredStore(newRedis(), durable, log), nil
	default:
		return nil, fmt.Errorf("unsupported persistence backend %q", pc.Backend)
	}
}

package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/data"
	"github.com/private-judge/judge-api/internal/data/memstore"
)

// Store bundles the repositories backing the service ports together with the
// connections they were opened on.
type Store struct {
	Jobs     core.JobRepository
	Rooms    core.RoomRepository
	Motions  core.MotionRepository
	Debates  core.DebateRepository
	Verdicts core.VerdictRepository
	// Cache is nil when no cache is configured.
	Cache core.CacheRepository

	DB    *sql.DB
	Redis *redis.Client

	driver config.StoreDriver
}

// StoreOptions configures OpenStore.
type StoreOptions struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// OpenStore connects the repositories selected by STORE_DRIVER. Postgres migrations run
// on open when DB_RUN_MIGRATIONS_ON_START is set.
func OpenStore(ctx context.Context, opts StoreOptions) (*Store, error) {
	if opts.Config == nil {
		return nil, errors.New("store config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config

	var (
		st  *Store
		err error
	)
	switch cfg.Store {
	case config.StoreDriverMemory:
		logger.WarnContext(ctx, "using in-memory store; state is lost on restart")
		st = openMemoryStore()
	default:
		st, err = openPostgresStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Redis.Enabled {
		client, err := ConnectRedis(ctx, DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), st.Close())
		}
		st.Redis = client
		st.Cache = data.NewRedisCacheRepo(client, cfg.Cache.KeyPrefix)
	}
	return st, nil
}

func openMemoryStore() *Store {
	ms := memstore.New(memstore.Options{})
	return &Store{
		Jobs:     ms.Jobs(),
		Rooms:    ms.Rooms(),
		Motions:  ms.Motions(),
		Debates:  ms.Debates(),
		Verdicts: ms.Verdicts(),
		Cache:    ms.Cache(),
		driver:   config.StoreDriverMemory,
	}
}

func openPostgresStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Store, error) {
	db, err := ConnectDB(ctx, DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if cfg.Postgres.RunMigrationsOnStart {
		if err := RunMigrations(ctx, db, logger); err != nil {
			return nil, errors.Join(err, db.Close())
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	repoCfg := data.RepoConfig{Logger: logger}
	return &Store{
		Jobs:     data.NewJobRepo(db, repoCfg),
		Rooms:    data.NewRoomRepo(db, repoCfg),
		Motions:  data.NewMotionRepo(db, repoCfg),
		Debates:  data.NewDebateRepo(db, repoCfg),
		Verdicts: data.NewVerdictRepo(db, repoCfg),
		DB:       db,
		driver:   config.StoreDriverPostgres,
	}, nil
}

// Driver reports which repository implementation is in use.
func (s *Store) Driver() config.StoreDriver { return s.driver }

// Health pings every connection the store holds.
func (s *Store) Health(ctx context.Context) error {
	if s.DB != nil {
		if err := s.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if s.Cache != nil {
		if err := s.Cache.Health(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

// Close releases the store connections.
func (s *Store) Close() error {
	var errs []error
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

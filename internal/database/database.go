package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/fx"

	"github.com/Healer-AI/p8fs-sub000/internal/config"
	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
	"github.com/Healer-AI/p8fs-sub000/pkg/retry"
)

var Module = fx.Module("database",
	fx.Provide(
		NewRetryPolicy,
		NewBunDB,
		NewPool,
	),
)

// NewRetryPolicy builds the connection retry policy from config.
func NewRetryPolicy(cfg *config.Config, log *slog.Logger) retry.Policy {
	log = log.With(logger.Scope("database.retry"))
	p := retry.Fixed(cfg.Retry.MaxAttempts, cfg.Retry.Delay)
	p.OnRetry = func(attempt int, err error) {
		log.Warn("connection attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", cfg.Retry.Delay),
			logger.Error(err),
		)
	}
	return p
}

// NewBunDB opens the database selected by REM_BACKEND and wraps it in Bun.
func NewBunDB(lc fx.Lifecycle, cfg *config.Config, policy retry.Policy, log *slog.Logger) (*bun.DB, error) {
	log = log.With(logger.Scope("database"))

	var (
		db  *bun.DB
		err error
	)
	if cfg.REM.UseTiDB() {
		db, err = openTiDB(cfg, policy, log)
	} else {
		db, err = openPostgres(cfg, policy, log)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Database.QueryDebug {
		db.AddQueryHook(&queryLoggingHook{log: log.With(logger.Scope("bun"))})
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing database", slog.String("backend", cfg.REM.Backend))
			return db.Close()
		},
	})

	return db, nil
}

func openPostgres(cfg *config.Config, policy retry.Policy, log *slog.Logger) (*bun.DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := retry.DoWithResult(ctx, policy, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("database pool created",
		slog.String("backend", config.BackendPostgres),
		slog.String("host", cfg.Database.Host),
		slog.Int("port", cfg.Database.Port),
		slog.String("database", cfg.Database.Database),
		slog.Int("max_conns", cfg.Database.MaxOpenConns),
	)

	// Convert pgx pool to database/sql compatible connection
	sqldb := stdlib.OpenDBFromPool(pool)
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func openTiDB(cfg *config.Config, policy retry.Policy, log *slog.Logger) (*bun.DB, error) {
	mc, err := mysql.ParseDSN(cfg.TiDB.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse tidb dsn: %w", err)
	}

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("create tidb connector: %w", err)
	}
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.TiDB.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.TiDB.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := policy.Do(ctx, sqldb.PingContext); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping tidb: %w", err)
	}

	log.Info("database pool created",
		slog.String("backend", config.BackendTiDB),
		slog.String("host", cfg.TiDB.Host),
		slog.Int("port", cfg.TiDB.Port),
		slog.String("database", cfg.TiDB.Database),
		slog.Int("max_conns", cfg.TiDB.MaxOpenConns),
	)

	return bun.NewDB(sqldb, mysqldialect.New()), nil
}

// queryLoggingHook implements bun.QueryHook for query logging
type queryLoggingHook struct {
	log *slog.Logger
}

func (h *queryLoggingHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLoggingHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)

	if event.Err != nil && event.Err != sql.ErrNoRows {
		h.log.Error("query error",
			slog.String("query", event.Query),
			slog.Duration("duration", duration),
			logger.Error(event.Err),
		)
		return
	}

	if duration > 3*time.Second {
		h.log.Warn("slow query",
			slog.String("query", event.Query),
			slog.Duration("duration", duration),
		)
		return
	}

	h.log.Debug("query",
		slog.String("query", event.Query),
		slog.Duration("duration", duration),
	)
}

package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
	"github.com/Healer-AI/p8fs-sub000/pkg/retry"
)

// Row is one result row keyed by column name.
type Row = map[string]any

// Pool hands out one connection per query execution. Acquiring the
// connection goes through the retry policy; the query itself does not.
type Pool struct {
	db     *bun.DB
	policy retry.Policy
	log    *slog.Logger
}

// NewPool wraps db with the connection retry policy.
func NewPool(db *bun.DB, policy retry.Policy, log *slog.Logger) *Pool {
	return &Pool{
		db:     db,
		policy: policy,
		log:    log.With(logger.Scope("database.pool")),
	}
}

// Dialect returns the bun dialect name ("pg" or "mysql").
func (p *Pool) Dialect() string {
	return p.db.Dialect().Name().String()
}

// Ping checks the database is reachable.
func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// WithConn runs fn on a dedicated connection.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, conn bun.IDB) error) error {
	conn, err := retry.DoWithResult(ctx, p.policy, func(ctx context.Context) (bun.Conn, error) {
		return p.db.Conn(ctx)
	})
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			p.log.Warn("release connection", logger.Error(err))
		}
	}()
	return fn(ctx, conn)
}

// Query runs a raw parameterized statement and returns every row as a map.
// Placeholders use bun's "?" syntax for both dialects.
func (p *Pool) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	var rows []Row
	err := p.WithConn(ctx, func(ctx context.Context, conn bun.IDB) error {
		return conn.NewRaw(query, args...).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

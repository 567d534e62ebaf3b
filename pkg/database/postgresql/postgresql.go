package postgresql

import (
	"context"
	"fmt"

	"github.com/S1riyS/hfs/internal/config"
	"github.com/S1riyS/hfs/pkg/logging"
	"github.com/S1riyS/hfs/pkg/logging/slogext"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Client interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewClient opens a connection pool and checks that the server answers.
func NewClient(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	const op = "postgresql.NewClient"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		logger.Error("Failed to create connection pool", slogext.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("Failed to connect to database", slogext.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("Connected to database")
	return pool, nil
}

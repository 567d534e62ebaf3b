package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/hfs/pkg/logging"
	"github.com/S1riyS/hfs/pkg/logging/slogext"
	"github.com/jackc/pgx/v5"
)

type txKey struct{}

// WithTransaction runs fn with a transaction stored in its context. Statements
// issued through GetDBClient inside fn join that transaction. A call made while
// a transaction is already open reuses it, so only the outermost call commits.
func WithTransaction(ctx context.Context, db Client, fn func(context.Context) error) (err error) {
	const op = "postgresql.WithTransaction"

	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}

	defer func() {
		p := recover()
		if p == nil && err == nil {
			if err = tx.Commit(ctx); err != nil {
				err = fmt.Errorf("%s: commit: %w", op, err)
			}
			return
		}

		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logging.GetLoggerFromContextWithOp(ctx, op).Error("Rollback failed", slogext.Err(rbErr))
		}
		if p != nil {
			panic(p)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

// GetDBClient returns the transaction carried by ctx, or defaultClient.
func GetDBClient(ctx context.Context, defaultClient Client) Client {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return defaultClient
}

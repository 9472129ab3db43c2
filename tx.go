package epgsql

import (
	"context"
	"fmt"
	"log/slog"
)

// RollbackError is returned by WithTransaction when the transaction body
// failed and the transaction was rolled back. The original failure is
// available through Unwrap.
type RollbackError struct {
	Reason error
}

func (err *RollbackError) Error() string {
	return fmt.Sprintf("transaction rolled back: %s", err.Reason)
}

func (err *RollbackError) Unwrap() error {
	return err.Reason
}

// WithTransaction runs the given body inside a transaction. The transaction
// is committed when the body returns nil and rolled back otherwise, in which
// case the body failure is returned wrapped inside a [RollbackError].
func (conn *Conn) WithTransaction(ctx context.Context, body func(ctx context.Context) error) error {
	err := conn.simpleExec(ctx, "BEGIN")
	if err != nil {
		return err
	}

	err = body(ctx)
	if err != nil {
		if rerr := conn.simpleExec(ctx, "ROLLBACK"); rerr != nil {
			conn.logger.Error("failed to roll back transaction", slog.Any("err", rerr))
		}

		return &RollbackError{Reason: err}
	}

	return conn.simpleExec(ctx, "COMMIT")
}

// simpleExec runs a single statement through the simple query protocol and
// collapses its outcome into an error.
func (conn *Conn) simpleExec(ctx context.Context, sql string) error {
	results, err := conn.SimpleQuery(ctx, sql)
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Err != nil {
			return result.Err
		}
	}

	return nil
}

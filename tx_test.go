package epgsql

import (
	"context"
	"testing"

	"github.com/Online-GS/epgsql/pkg/mock"
	pgproto "github.com/jackc/pgproto3/v2"
	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queries filters the simple query statements out of the recorded frontend
// messages.
func queries(log []pgproto.FrontendMessage) []string {
	var result []string
	for _, msg := range log {
		if query, ok := msg.(*pgproto.Query); ok {
			result = append(result, query.String)
		}
	}

	return result
}

func TestWithTransaction(t *testing.T) {
	t.Parallel()

	backends := make(chan *mock.Backend, 1)
	conn := TConnect(t, func(t *testing.T, be *mock.Backend) {
		backends <- be

		be.Receive() // BEGIN
		be.Complete("BEGIN")
		be.Ready('T')

		be.Receive() // SELECT
		be.RowDescription(mock.Column("?column?", uint32(oid.T_int4)))
		be.DataRow("1")
		be.Complete("SELECT 1")
		be.Ready('T')

		be.Receive() // COMMIT
		be.Complete("COMMIT")
		be.Ready('I')
	})

	ctx := TContext(t)

	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := conn.SimpleQuery(ctx, "SELECT 1")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"BEGIN", "SELECT 1", "COMMIT"}, queries((<-backends).Log()))
}

func TestWithTransactionRollback(t *testing.T) {
	t.Parallel()

	backends := make(chan *mock.Backend, 1)
	conn := TConnect(t, func(t *testing.T, be *mock.Backend) {
		backends <- be

		be.Receive() // BEGIN
		be.Complete("BEGIN")
		be.Ready('T')

		be.Receive() // SELECT 1/0
		be.Error("22012", "division by zero")
		be.Ready('E')

		be.Receive() // ROLLBACK
		be.Complete("ROLLBACK")
		be.Ready('I')
	})

	ctx := TContext(t)

	err := conn.WithTransaction(ctx, func(ctx context.Context) error {
		return conn.simpleExec(ctx, "SELECT 1/0")
	})
	require.Error(t, err)

	var rollback *RollbackError
	require.ErrorAs(t, err, &rollback)
	assert.Contains(t, rollback.Reason.Error(), "division by zero")

	assert.Equal(t, []string{"BEGIN", "SELECT 1/0", "ROLLBACK"}, queries((<-backends).Log()))
}

package epgsql

import (
	"testing"

	"github.com/Online-GS/epgsql/codes"
	psqlerr "github.com/Online-GS/epgsql/errors"
	"github.com/Online-GS/epgsql/pkg/mock"
	pgproto "github.com/jackc/pgproto3/v2"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancel(t *testing.T) {
	t.Parallel()

	cancels := make(chan *pgproto.CancelRequest, 1)

	server := mock.NewServer(t, func(t *testing.T, backend *mock.Backend) {
		switch msg := backend.ReceiveStartup().(type) {
		case *pgproto.CancelRequest:
			cancels <- msg
			backend.Close()
		case *pgproto.StartupMessage:
			backend.AuthOK()
			backend.KeyData(tBackendPID, tBackendSecret)
			backend.Ready('I')

			// the cancelled query observes a backend error on the main
			// connection and the connection stays usable after sync
			backend.Receive() // parse
			backend.Receive() // describe
			backend.Receive() // flush
			backend.Error("57014", "canceling statement due to user request")

			for {
				if _, ok := backend.Receive().(*pgproto.Sync); ok {
					break
				}
			}
			backend.Ready('I')

			backend.Receive() // query
			backend.Complete("SELECT 0")
			backend.Ready('I')
		}
	})

	conn, err := Connect(TContext(t), server.Host(), "postgres", "password",
		Logger(slogt.New(t)), Port(server.Port()))
	require.NoError(t, err)
	defer conn.Close(TContext(t))

	ctx := TContext(t)

	require.NoError(t, conn.Cancel(ctx))

	request := <-cancels
	assert.Equal(t, uint32(tBackendPID), request.ProcessID)
	assert.Equal(t, uint32(tBackendSecret), request.SecretKey)

	_, err = conn.Parse(ctx, "", "SELECT pg_sleep(3600)")
	require.Error(t, err)
	assert.Equal(t, codes.QueryCanceled, psqlerr.GetCode(err))

	require.NoError(t, conn.Sync(ctx))

	_, err = conn.SimpleQuery(ctx, "SELECT 1 WHERE false")
	require.NoError(t, err)
}

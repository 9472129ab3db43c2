package epgsql

import (
	"context"
	"testing"
	"time"

	"github.com/Online-GS/epgsql/pkg/mock"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

const (
	tBackendPID    = 42
	tBackendSecret = 54321
)

// TContext returns a context bounding a single test scenario.
func TContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TConnect establishes a connection against a scripted backend. The given
// handler drives the server side of the scenario after the default startup
// has been played.
func TConnect(t *testing.T, handler mock.Handler, options ...OptionFn) *Conn {
	server := mock.NewServer(t, func(t *testing.T, backend *mock.Backend) {
		backend.Accept(tBackendPID, tBackendSecret)
		handler(t, backend)
	})

	options = append([]OptionFn{Logger(slogt.New(t)), Port(server.Port())}, options...)

	conn, err := Connect(TContext(t), server.Host(), "postgres", "password", options...)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close(context.Background())
	})

	return conn
}

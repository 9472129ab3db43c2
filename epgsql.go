// Package epgsql implements a PostgreSQL frontend speaking protocol version
// 3 over a single TCP connection with an optional opportunistic TLS upgrade.
// User commands are serialized by a connection actor which pipelines them
// over the socket in FIFO order and correlates every backend reply with the
// request at the head of the in-flight queue.
package epgsql

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Online-GS/epgsql/pkg/buffer"
	"github.com/Online-GS/epgsql/pkg/types"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq/oid"
)

// DefaultPort is the port used whenever no port option is given.
const DefaultPort = 5432

// DefaultConnectTimeout is the dial timeout used whenever no timeout option
// is given.
const DefaultConnectTimeout = 5 * time.Second

// Connect establishes a new connection to the given host, performing the SSL
// negotiation, authentication and initialization phases of the handshake
// before returning. The returned connection is ready to accept commands.
func Connect(ctx context.Context, host, username, password string, options ...OptionFn) (*Conn, error) {
	conn := &Conn{
		logger:         slog.Default(),
		host:           host,
		port:           DefaultPort,
		username:       username,
		password:       password,
		connectTimeout: DefaultConnectTimeout,
		typeMap:        pgtype.NewMap(),
		commands:       make(chan *command, 64),
		inbound:        make(chan inbound, 64),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		phase:          phaseAuth,
		statements:     newStatementCache(),
		parameters:     Parameters{},
	}

	for _, option := range options {
		option(conn)
	}

	socket, err := conn.handshake(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to establish a connection with %s: %w", host, err)
	}

	conn.socket = socket
	conn.reader = buffer.NewReader(conn.logger, socket, conn.bufferSize)
	conn.writer = buffer.NewWriter(conn.logger, socket)

	connected := newOneshot()
	conn.queue.push(&request{kind: reqConnect, sink: connected})

	err = conn.writeStartup(conn.username, conn.database)
	if err != nil {
		socket.Close()
		return nil, err
	}

	go conn.run()
	go conn.readLoop()

	result := conn.await(ctx, connected)
	if result.err != nil {
		conn.shutdown()
		return nil, result.err
	}

	return conn, nil
}

// Close gracefully terminates the connection. Requests still in flight are
// failed, a Terminate message is announced to the backend and the socket is
// released. Close is idempotent.
func (conn *Conn) Close(ctx context.Context) error {
	conn.shutdown()

	select {
	case <-conn.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown requests the actor to terminate without awaiting it.
func (conn *Conn) shutdown() {
	if conn.closing.CompareAndSwap(false, true) {
		close(conn.quit)
	}
}

// Parameter returns the current value of the given run-time parameter as
// reported by the backend, without a round trip. The boolean indicates
// whether the backend has reported the parameter at all.
func (conn *Conn) Parameter(name string) (string, bool) {
	conn.mu.RLock()
	defer conn.mu.RUnlock()

	value, has := conn.parameters[name]
	return value, has
}

// TxStatus returns the transaction status byte carried by the most recent
// ReadyForQuery message.
func (conn *Conn) TxStatus() types.ServerStatus {
	conn.mu.RLock()
	defer conn.mu.RUnlock()

	return conn.txStatus
}

// SimpleQuery executes the given SQL using the simple query protocol. The
// query may batch multiple statements separated by semicolons; one result is
// returned per executed statement in execution order. A statement failing
// inside the batch attaches its error to the corresponding result without
// failing the call.
func (conn *Conn) SimpleQuery(ctx context.Context, sql string) ([]Result, error) {
	sink := newOneshot()
	err := conn.send(ctx, &command{kind: reqSimpleQuery, sql: sql, sink: sink})
	if err != nil {
		return nil, err
	}

	result := conn.await(ctx, sink)
	return result.results, result.err
}

// Query executes the given SQL using the extended query protocol: the query
// is parsed as the anonymous statement and bound, executed, closed and
// synced in a single round trip. Parameter values are encoded using the
// parameter types reported by the backend.
func (conn *Conn) Query(ctx context.Context, sql string, params ...any) (Result, error) {
	stmt, err := conn.Parse(ctx, "", sql)
	if err != nil {
		// resynchronize the extended query state before surfacing the error
		if serr := conn.Sync(ctx); serr != nil {
			conn.logger.Debug("failed to resynchronize after parse error", slog.Any("err", serr))
		}

		return Result{}, err
	}

	sink := newOneshot()
	err = conn.send(ctx, &command{kind: reqQuery, name: stmt.Name, stmt: stmt, params: params, sink: sink})
	if err != nil {
		return Result{}, err
	}

	result := conn.await(ctx, sink)
	return result.result, result.err
}

// Parse prepares the given SQL under the given statement name, returning the
// statement descriptor reported by the backend. Parameter types may be
// prespecified; omitted types are inferred by the backend.
func (conn *Conn) Parse(ctx context.Context, name, sql string, parameterTypes ...oid.Oid) (*Statement, error) {
	sink := newOneshot()
	err := conn.send(ctx, &command{kind: reqParse, name: name, sql: sql, types: parameterTypes, sink: sink})
	if err != nil {
		return nil, err
	}

	result := conn.await(ctx, sink)
	return result.stmt, result.err
}

// Bind binds the given parameters to a new portal over the prepared
// statement.
func (conn *Conn) Bind(ctx context.Context, portal string, stmt *Statement, params ...any) error {
	sink := newOneshot()
	err := conn.send(ctx, &command{kind: reqBind, name: stmt.Name, portal: portal, stmt: stmt, params: params, sink: sink})
	if err != nil {
		return err
	}

	return conn.await(ctx, sink).err
}

// Execute runs the given portal up to maxRows rows. Zero denotes no limit.
// When the portal holds more rows than the limit the returned result is
// marked suspended and a subsequent Execute continues the portal.
func (conn *Conn) Execute(ctx context.Context, stmt *Statement, portal string, maxRows int32) (Result, error) {
	sink := newOneshot()
	err := conn.send(ctx, &command{kind: reqExecute, name: stmt.Name, portal: portal, stmt: stmt, maxRows: maxRows, sink: sink})
	if err != nil {
		return Result{}, err
	}

	result := conn.await(ctx, sink)
	return result.result, result.err
}

// ExecuteStream runs the given portal delivering rows incrementally to the
// given stream function instead of accumulating them. The stream is
// terminated by a done or partial event, or by an error event when the
// request fails.
func (conn *Conn) ExecuteStream(ctx context.Context, stmt *Statement, portal string, maxRows int32, fn StreamFunc) error {
	sink := newStream(fn)
	err := conn.send(ctx, &command{kind: reqExecute, name: stmt.Name, portal: portal, stmt: stmt, maxRows: maxRows, sink: sink})
	if err != nil {
		return err
	}

	return conn.await(ctx, sink.oneshot).err
}

// DescribeStatement returns the descriptor of the prepared statement with
// the given name.
func (conn *Conn) DescribeStatement(ctx context.Context, name string) (*Statement, error) {
	sink := newOneshot()
	err := conn.send(ctx, &command{kind: reqDescribeStatement, name: name, target: types.DescribeStatement, sink: sink})
	if err != nil {
		return nil, err
	}

	result := conn.await(ctx, sink)
	return result.stmt, result.err
}

// DescribePortal returns the result columns produced by executing the portal
// with the given name. A portal producing no rows yields an empty column
// set.
func (conn *Conn) DescribePortal(ctx context.Context, name string) (Columns, error) {
	sink := newOneshot()
	err := conn.send(ctx, &command{kind: reqDescribePortal, name: name, target: types.DescribePortal, sink: sink})
	if err != nil {
		return nil, err
	}

	result := conn.await(ctx, sink)
	return result.columns, result.err
}

// CloseStatement releases the prepared statement with the given name.
func (conn *Conn) CloseStatement(ctx context.Context, name string) error {
	sink := newOneshot()
	err := conn.send(ctx, &command{kind: reqClose, name: name, target: types.DescribeStatement, sink: sink})
	if err != nil {
		return err
	}

	return conn.await(ctx, sink).err
}

// ClosePortal releases the portal with the given name.
func (conn *Conn) ClosePortal(ctx context.Context, name string) error {
	sink := newOneshot()
	err := conn.send(ctx, &command{kind: reqClose, name: name, target: types.DescribePortal, sink: sink})
	if err != nil {
		return err
	}

	return conn.await(ctx, sink).err
}

// Sync closes the current extended query group and resynchronizes the
// connection after an extended query error.
func (conn *Conn) Sync(ctx context.Context) error {
	sink := newOneshot()
	err := conn.send(ctx, &command{kind: reqSync, sink: sink})
	if err != nil {
		return err
	}

	return conn.await(ctx, sink).err
}

// send hands the given command to the connection actor.
func (conn *Conn) send(ctx context.Context, cmd *command) error {
	select {
	case conn.commands <- cmd:
		return nil
	case <-conn.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await blocks until the request resolves, the context expires or the
// connection terminates. An expired context abandons the wait; the request
// itself remains in flight on the backend.
func (conn *Conn) await(ctx context.Context, sink *oneshot) reply {
	select {
	case result := <-sink.ch:
		return result
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	case <-conn.done:
		// prefer a resolution which raced the termination
		select {
		case result := <-sink.ch:
			return result
		default:
			return reply{err: ErrConnClosed}
		}
	}
}

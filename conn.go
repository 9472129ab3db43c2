package epgsql

import (
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Online-GS/epgsql/pkg/buffer"
	"github.com/Online-GS/epgsql/pkg/pgtime"
	"github.com/Online-GS/epgsql/pkg/types"
	"github.com/jackc/pgx/v5/pgtype"
)

// phase selects the per-message dispatcher driving the connection through
// its handshake into steady state.
type phase uint8

const (
	phaseAuth phase = iota + 1
	phaseInit
	phaseReady
)

// inbound carries a decoded backend message, or the transport failure which
// ended the read loop, into the connection actor.
type inbound struct {
	typ types.ServerMessage
	msg *buffer.Message
	err error
}

// Conn represents a single PostgreSQL client connection. The connection is a
// single-threaded actor: one goroutine owns the socket writer, the request
// queue and the protocol state, consuming user commands and decoded backend
// messages from its two channels. Callers communicate exclusively through
// command sinks.
type Conn struct {
	logger   *slog.Logger
	host     string
	port     int
	username string
	password string
	database string

	sslMode        SSLMode
	tlsConfig      *tls.Config
	connectTimeout time.Duration

	socket  net.Conn
	reader  *buffer.Reader
	writer  *buffer.Writer
	typeMap *pgtype.Map

	bufferSize int

	commands chan *command
	inbound  chan inbound
	quit     chan struct{}
	done     chan struct{}
	closing  atomic.Bool

	// actor-owned state, never touched outside the run loop
	phase        phase
	queue        requestQueue
	statements   *statementCache
	syncRequired bool
	discardReady int
	datetimeMode pgtime.Mode

	backendPID    int32
	backendSecret int32

	// snapshot state readable by callers
	mu         sync.RWMutex
	parameters Parameters
	txStatus   types.ServerStatus

	onNotification NotificationFunc
	onNotice       NoticeFunc
}

// run is the connection actor. It serializes user commands onto the wire and
// correlates every inbound backend message with the request at the head of
// the queue until the connection is closed or the transport fails.
func (conn *Conn) run() {
	conn.terminate(conn.loop())
}

func (conn *Conn) loop() error {
	for {
		select {
		case <-conn.quit:
			return nil
		case cmd := <-conn.commands:
			if err := conn.dispatch(cmd); err != nil {
				return err
			}
		case in := <-conn.inbound:
			if in.err != nil {
				return newErrSockClosed(in.err)
			}

			if err := conn.handleMessage(in.typ, in.msg); err != nil {
				return err
			}
		}
	}
}

// readLoop owns the buffered reader. Decoded messages are handed to the
// actor; the loop ends on the first transport failure or once the actor
// terminates.
func (conn *Conn) readLoop() {
	for {
		typed, msg, err := conn.reader.ReadTypedMsg()
		if err != nil {
			select {
			case conn.inbound <- inbound{err: err}:
			case <-conn.done:
			}
			return
		}

		select {
		case conn.inbound <- inbound{typ: typed, msg: msg}:
		case <-conn.done:
			return
		}
	}
}

// terminate flushes every in-flight and pending request in submission order
// and releases the socket. A nil error marks a graceful close, announced to
// the backend through a Terminate message.
func (conn *Conn) terminate(err error) {
	conn.closing.Store(true)

	if err == nil {
		err = ErrConnClosed
		if werr := conn.writeTerminate(); werr != nil {
			conn.logger.Debug("failed to announce termination", slog.Any("err", werr))
		}
	} else {
		conn.logger.Debug("connection terminating", slog.Any("err", err))
	}

	for _, req := range conn.queue.drain() {
		conn.fail(req, err)
	}

	// commands accepted but not yet dispatched are failed in order as well
	for {
		select {
		case cmd := <-conn.commands:
			cmd.sink.resolve(reply{err: err})
		default:
			if cerr := conn.socket.Close(); cerr != nil {
				conn.logger.Debug("failed to close socket", slog.Any("err", cerr))
			}

			close(conn.done)
			return
		}
	}
}

// fail delivers the given error as the terminal outcome of the request.
func (conn *Conn) fail(req *request, err error) {
	req.sink.resolve(reply{err: err})
}

// complete resolves the head request with the given reply and pops it off
// the queue.
func (conn *Conn) complete(r reply) {
	head := conn.queue.pop()
	if head == nil {
		return
	}

	head.sink.resolve(r)
}

// handleMessage routes the given backend message to the dispatcher of the
// active connection phase.
func (conn *Conn) handleMessage(typed types.ServerMessage, msg *buffer.Message) error {
	switch conn.phase {
	case phaseAuth:
		return conn.handleAuthMessage(typed, msg)
	case phaseInit:
		return conn.handleInitMessage(typed, msg)
	default:
		return conn.handleReadyMessage(typed, msg)
	}
}

// handleReadyMessage consumes a backend message in steady state. The request
// at the head of the queue decides how each message contributes to a reply.
func (conn *Conn) handleReadyMessage(typed types.ServerMessage, msg *buffer.Message) error {
	switch typed {
	case types.ServerParseComplete:
		// the parse reply is driven by the subsequent ParameterDescription
		// and RowDescription messages
		return nil
	case types.ServerParameterDescription:
		return conn.handleParameterDescription(msg)
	case types.ServerRowDescription:
		return conn.handleRowDescription(msg)
	case types.ServerNoData:
		return conn.handleNoData()
	case types.ServerBindComplete:
		if head := conn.queue.head(); head != nil && head.kind == reqBind {
			conn.complete(reply{})
		}
		return nil
	case types.ServerCloseComplete:
		return conn.handleCloseComplete()
	case types.ServerDataRow:
		return conn.handleDataRow(msg)
	case types.ServerPortalSuspended:
		return conn.handlePortalSuspended()
	case types.ServerCommandComplete:
		return conn.handleCommandComplete(msg)
	case types.ServerEmptyQuery:
		return conn.handleEmptyQuery()
	case types.ServerReady:
		return conn.handleReadyForQuery(msg)
	case types.ServerErrorResponse:
		return conn.handleErrorResponse(msg)
	case types.ServerNoticeResponse:
		return conn.handleNotice(msg)
	case types.ServerParameterStatus:
		return conn.handleParameterStatus(msg)
	case types.ServerNotification:
		return conn.handleNotification(msg)
	default:
		conn.logger.Warn("ignoring unexpected backend message", slog.String("type", typed.String()))
		return nil
	}
}

func (conn *Conn) handleParameterDescription(msg *buffer.Message) error {
	head := conn.queue.head()
	if head == nil {
		return nil
	}

	parameterTypes, err := readParameterTypes(msg)
	if err != nil {
		return err
	}

	head.types = parameterTypes
	head.sink.event(ResultEvent{Kind: EventTypes, Types: parameterTypes})
	return nil
}

func (conn *Conn) handleRowDescription(msg *buffer.Message) error {
	head := conn.queue.head()
	if head == nil {
		return nil
	}

	columns, err := readColumns(msg)
	if err != nil {
		return err
	}

	switch head.kind {
	case reqParse, reqDescribeStatement:
		// no Bind has been issued at this point so the backend reports
		// zeroed format codes; annotate the formats the driver will request
		columns = columns.preferFormats()
		stmt := &Statement{Name: head.name, Types: head.types, Columns: columns}
		conn.statements.Set(stmt)
		conn.complete(reply{stmt: stmt})
	case reqDescribePortal:
		conn.complete(reply{columns: columns})
	default:
		head.columns = columns
		head.sink.event(ResultEvent{Kind: EventColumns, Columns: columns})
	}

	return nil
}

func (conn *Conn) handleNoData() error {
	head := conn.queue.head()
	if head == nil {
		return nil
	}

	switch head.kind {
	case reqParse, reqDescribeStatement:
		stmt := &Statement{Name: head.name, Types: head.types}
		conn.statements.Set(stmt)
		conn.complete(reply{stmt: stmt})
	case reqDescribePortal:
		conn.complete(reply{columns: Columns{}})
	}

	return nil
}

func (conn *Conn) handleCloseComplete() error {
	head := conn.queue.head()
	if head == nil || head.kind != reqClose {
		return nil
	}

	if head.target == types.DescribeStatement {
		conn.statements.Evict(head.name)
	}

	conn.complete(reply{})
	return nil
}

// rowContext resolves the authoritative column definitions used to decode
// rows for the head request. Extended query requests decode against their
// statement descriptor; simple queries decode against the most recently
// received RowDescription.
func (conn *Conn) rowContext(head *request) Columns {
	switch head.kind {
	case reqQuery, reqExecute:
		if head.stmt != nil && len(head.stmt.Columns) != 0 {
			return head.stmt.Columns
		}
	}

	return head.columns
}

func (conn *Conn) handleDataRow(msg *buffer.Message) error {
	head := conn.queue.head()
	if head == nil {
		return nil
	}

	row, err := conn.decodeRow(conn.rowContext(head), msg)
	if err != nil {
		return err
	}

	if head.sink.streaming() {
		head.sink.event(ResultEvent{Kind: EventRow, Row: row})
		return nil
	}

	head.rows = append(head.rows, row)
	return nil
}

func (conn *Conn) handlePortalSuspended() error {
	head := conn.queue.head()
	if head == nil {
		return nil
	}

	if head.sink.streaming() {
		// rows were streamed individually, the partial carries none
		head.sink.event(ResultEvent{Kind: EventPartial})
	}

	result := Result{Columns: conn.rowContext(head), Rows: head.rows, Suspended: true}
	conn.complete(reply{result: result})
	return nil
}

func (conn *Conn) handleCommandComplete(msg *buffer.Message) error {
	tag, err := msg.GetString()
	if err != nil {
		return err
	}

	head := conn.queue.head()
	if head == nil {
		return nil
	}

	verb, count, hasCount := parseCommandTag(tag)
	head.sink.event(ResultEvent{Kind: EventComplete, Tag: tag, Count: count, HasCount: hasCount})

	switch head.kind {
	case reqExecute:
		if head.sink.streaming() {
			head.sink.event(ResultEvent{Kind: EventDone})
		}

		result := Result{Tag: verb, Count: count, HasCount: hasCount, Rows: head.rows}
		if len(result.Rows) != 0 {
			result.Columns = conn.rowContext(head)
		}

		conn.complete(reply{result: result})
	case reqSimpleQuery, reqQuery:
		result := Result{Tag: verb, Count: count, HasCount: hasCount, Rows: head.rows}
		if columns := conn.rowContext(head); len(columns) != 0 {
			result.Columns = columns
		}

		head.results = append(head.results, result)
		head.rows = nil
		head.columns = nil
	}

	return nil
}

func (conn *Conn) handleEmptyQuery() error {
	head := conn.queue.head()
	if head == nil {
		return nil
	}

	switch head.kind {
	case reqExecute:
		if head.sink.streaming() {
			head.sink.event(ResultEvent{Kind: EventDone})
		}

		conn.complete(reply{result: Result{}})
	case reqSimpleQuery, reqQuery:
		head.results = append(head.results, Result{})
	}

	return nil
}

func (conn *Conn) handleReadyForQuery(msg *buffer.Message) error {
	status, err := msg.GetByte()
	if err != nil {
		return err
	}

	conn.mu.Lock()
	conn.txStatus = types.ServerStatus(status)
	conn.mu.Unlock()

	// swallow the ready marker of a sync which was already failed during a
	// sync-required cascade; the head request's replies follow it
	if conn.discardReady > 0 {
		conn.discardReady--
		return nil
	}

	head := conn.queue.head()
	if head == nil {
		return nil
	}

	if head.sink.streaming() {
		head.sink.event(ResultEvent{Kind: EventDone})
	}

	switch head.kind {
	case reqSimpleQuery:
		conn.complete(reply{results: head.results})
	case reqQuery:
		var result Result
		if len(head.results) != 0 {
			result = head.results[0]
		}

		if result.Err != nil {
			conn.complete(reply{err: result.Err})
			return nil
		}

		conn.complete(reply{result: result})
	case reqSync:
		conn.syncRequired = false
		conn.complete(reply{})
	default:
		conn.complete(reply{})
	}

	return nil
}

func (conn *Conn) handleErrorResponse(msg *buffer.Message) error {
	wired, err := readWireError(msg)
	if err != nil {
		return err
	}

	head := conn.queue.head()
	if head == nil {
		// an asynchronous error without an owning request, e.g. an admin
		// shutdown, is fatal to the connection
		return wired
	}

	switch head.kind {
	case reqSimpleQuery, reqQuery:
		// the error terminates the current statement, not the batch; the
		// closing ReadyForQuery delivers the accumulated results
		head.sink.event(ResultEvent{Kind: EventError, Err: wired})
		head.results = append(head.results, Result{Err: wired})
		head.rows = nil
		head.columns = nil
		return nil
	default:
		conn.fail(head, wired)
		conn.queue.pop()

		if head.kind == reqSync {
			// no skipping occurs for an error during Sync, its ready
			// marker still follows
			conn.discardReady++
			return nil
		}

		conn.cascadeSyncRequired()
		return nil
	}
}

// cascadeSyncRequired fails every remaining request up to and including the
// first sync in the queue. The backend discards pipelined extended-query
// commands after an error until the frontend issues Sync; commands past that
// point were never executed. Without a queued sync the connection refuses
// further non-sync commands until one is issued.
func (conn *Conn) cascadeSyncRequired() {
	for conn.queue.len() != 0 {
		req := conn.queue.pop()
		conn.fail(req, ErrSyncRequired)

		if req.kind == reqSync {
			conn.discardReady++
			return
		}
	}

	conn.syncRequired = true
}

func (conn *Conn) handleNotice(msg *buffer.Message) error {
	wired, err := readWireError(msg)
	if err != nil {
		return err
	}

	conn.logger.Debug("backend notice", slog.String("severity", string(wired.Severity)), slog.String("message", wired.Message))

	if conn.onNotice != nil {
		conn.onNotice(wired)
	}

	return nil
}

func (conn *Conn) handleParameterStatus(msg *buffer.Message) error {
	name, err := msg.GetString()
	if err != nil {
		return err
	}

	value, err := msg.GetString()
	if err != nil {
		return err
	}

	conn.logger.Debug("parameter status", slog.String("name", name), slog.String("value", value))

	conn.mu.Lock()
	conn.parameters[name] = value
	conn.mu.Unlock()

	if name == ParamIntegerDatetimes {
		conn.datetimeMode = pgtime.ModeFromParameter(value)
	}

	return nil
}

func (conn *Conn) handleNotification(msg *buffer.Message) error {
	notification, err := readNotification(msg)
	if err != nil {
		return err
	}

	conn.logger.Debug("notification", slog.String("channel", notification.Channel), slog.Int("pid", int(notification.PID)))

	if conn.onNotification != nil {
		conn.onNotification(notification)
	}

	return nil
}

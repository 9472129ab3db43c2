// Package mock implements a scripted PostgreSQL backend used to test the
// client against controlled protocol scenarios. Each accepted connection is
// handed to a test-provided script which plays the server side of the wire
// protocol.
package mock

import (
	"errors"
	"io"
	"net"
	"reflect"
	"sync"
	"testing"

	pgproto "github.com/jackc/pgproto3/v2"
)

// Handler scripts the backend side of a single accepted connection.
type Handler func(t *testing.T, backend *Backend)

// Server represents a scripted PostgreSQL backend listening on an ephemeral
// local port.
type Server struct {
	listener net.Listener
}

// NewServer opens a new scripted backend on an unallocated port inside the
// local network. Every accepted connection is served by the given handler
// inside its own goroutine. The listener is closed once the test finishes.
func NewServer(t *testing.T, handler Handler) *Server {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		listener.Close()
	})

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			go handler(t, NewBackend(t, conn))
		}
	}()

	return &Server{listener: listener}
}

// Host returns the host the scripted backend is listening on.
func (srv *Server) Host() string {
	return srv.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the port the scripted backend is listening on.
func (srv *Server) Port() int {
	return srv.listener.Addr().(*net.TCPAddr).Port
}

// NewBackend wraps the given client connection inside a scripted backend.
func NewBackend(t *testing.T, conn net.Conn) *Backend {
	return &Backend{
		t:       t,
		conn:    conn,
		backend: pgproto.NewBackend(pgproto.NewChunkReader(conn), conn),
	}
}

// Backend plays the server side of the wire protocol over a single client
// connection. Received frontend messages are recorded and could be inspected
// by the test once the scenario completes.
type Backend struct {
	t       *testing.T
	conn    net.Conn
	backend *pgproto.Backend

	mu  sync.Mutex
	log []pgproto.FrontendMessage
}

// Close closes the underlying client connection.
func (be *Backend) Close() {
	be.conn.Close()
}

// ReceiveStartup reads a single startup-phase message: a StartupMessage, a
// SSLRequest or a CancelRequest.
func (be *Backend) ReceiveStartup() pgproto.FrontendMessage {
	msg, err := be.backend.ReceiveStartupMessage()
	if err != nil {
		be.t.Errorf("mock backend failed to receive a startup message: %s", err)
		return nil
	}

	return msg
}

// Startup consumes the connection startup, declining any SSL request, and
// returns the parameters presented inside the startup packet.
func (be *Backend) Startup() map[string]string {
	for {
		switch msg := be.ReceiveStartup().(type) {
		case *pgproto.SSLRequest:
			be.DeclineSSL()
		case *pgproto.StartupMessage:
			return msg.Parameters
		default:
			be.t.Errorf("mock backend received an unexpected startup message: %T", msg)
			return nil
		}
	}
}

// DeclineSSL answers a SSL request announcing that the backend does not
// support TLS sessions.
func (be *Backend) DeclineSSL() {
	_, err := be.conn.Write([]byte{'N'})
	if err != nil {
		be.t.Errorf("mock backend failed to decline ssl: %s", err)
	}
}

// Receive reads the next frontend message sent by the client. Nil is
// returned once the client closes the connection.
func (be *Backend) Receive() pgproto.FrontendMessage {
	msg, err := be.backend.Receive()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}

	if err != nil {
		var operr *net.OpError
		if errors.As(err, &operr) {
			return nil
		}

		be.t.Errorf("mock backend failed to receive a message: %s", err)
		return nil
	}

	// pgproto3 reuses the returned message value on every call; the log
	// records a decoded copy so earlier entries keep their contents
	recorded := reflect.New(reflect.TypeOf(msg).Elem()).Interface().(pgproto.FrontendMessage)
	if err := recorded.Decode(msg.Encode(nil)[5:]); err != nil {
		be.t.Errorf("mock backend failed to record %T: %s", msg, err)
		return msg
	}

	be.mu.Lock()
	be.log = append(be.log, recorded)
	be.mu.Unlock()

	return msg
}

// Log returns a snapshot of every frontend message received so far.
func (be *Backend) Log() []pgproto.FrontendMessage {
	be.mu.Lock()
	defer be.mu.Unlock()

	return append([]pgproto.FrontendMessage(nil), be.log...)
}

// Send writes the given backend message to the client.
func (be *Backend) Send(msg pgproto.BackendMessage) {
	err := be.backend.Send(msg)
	if err != nil {
		be.t.Errorf("mock backend failed to send %T: %s", msg, err)
	}
}

// AuthOK announces a successfully authenticated connection.
func (be *Backend) AuthOK() {
	be.Send(&pgproto.AuthenticationOk{})
}

// AuthCleartext challenges the client for a cleartext password and returns
// the received response.
func (be *Backend) AuthCleartext() string {
	be.Send(&pgproto.AuthenticationCleartextPassword{})
	be.backend.SetAuthType(pgproto.AuthTypeCleartextPassword) //nolint:errcheck

	msg, ok := be.Receive().(*pgproto.PasswordMessage)
	if !ok {
		be.t.Error("mock backend expected a password message")
		return ""
	}

	return msg.Password
}

// AuthMD5 challenges the client for a MD5 digest using the given salt and
// returns the received response.
func (be *Backend) AuthMD5(salt [4]byte) string {
	be.Send(&pgproto.AuthenticationMD5Password{Salt: salt})
	be.backend.SetAuthType(pgproto.AuthTypeMD5Password) //nolint:errcheck

	msg, ok := be.Receive().(*pgproto.PasswordMessage)
	if !ok {
		be.t.Error("mock backend expected a password message")
		return ""
	}

	return msg.Password
}

// AuthSASL challenges the client with a SASL exchange, which the client does
// not implement.
func (be *Backend) AuthSASL() {
	be.Send(&pgproto.AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-256"}})
}

// KeyData announces the cancellation key of the connection.
func (be *Backend) KeyData(pid, secret uint32) {
	be.Send(&pgproto.BackendKeyData{ProcessID: pid, SecretKey: secret})
}

// Parameter reports a run-time parameter value.
func (be *Backend) Parameter(name, value string) {
	be.Send(&pgproto.ParameterStatus{Name: name, Value: value})
}

// Ready reports the end of a command cycle carrying the given transaction
// status.
func (be *Backend) Ready(status byte) {
	be.Send(&pgproto.ReadyForQuery{TxStatus: status})
}

// Accept performs a default connection startup: no SSL, trust
// authentication, a standard parameter set, the given cancellation key and
// an idle ready marker.
func (be *Backend) Accept(pid, secret uint32) map[string]string {
	params := be.Startup()
	be.AuthOK()
	be.Parameter("server_version", "15.4")
	be.Parameter("server_encoding", "UTF8")
	be.Parameter("client_encoding", "UTF8")
	be.Parameter("integer_datetimes", "on")
	be.KeyData(pid, secret)
	be.Ready('I')
	return params
}

// RowDescription describes the upcoming result rows.
func (be *Backend) RowDescription(fields ...pgproto.FieldDescription) {
	be.Send(&pgproto.RowDescription{Fields: fields})
}

// Column constructs a text format column definition for the given type oid.
func Column(name string, id uint32) pgproto.FieldDescription {
	return pgproto.FieldDescription{
		Name:         []byte(name),
		DataTypeOID:  id,
		TypeModifier: -1,
	}
}

// DataRow sends a single row carrying the given text values.
func (be *Backend) DataRow(values ...string) {
	row := make([][]byte, len(values))
	for index, value := range values {
		row[index] = []byte(value)
	}

	be.Send(&pgproto.DataRow{Values: row})
}

// Complete reports the completion of a single statement.
func (be *Backend) Complete(tag string) {
	be.Send(&pgproto.CommandComplete{CommandTag: []byte(tag)})
}

// Error reports a backend error carrying the given SQLSTATE code.
func (be *Backend) Error(code, message string) {
	be.Send(&pgproto.ErrorResponse{Severity: "ERROR", Code: code, Message: message})
}

// Notice reports a backend notice.
func (be *Backend) Notice(message string) {
	be.Send(&pgproto.NoticeResponse{Severity: "NOTICE", Code: "00000", Message: message})
}

// Notify delivers an asynchronous notification for the given channel.
func (be *Backend) Notify(pid uint32, channel, payload string) {
	be.Send(&pgproto.NotificationResponse{PID: pid, Channel: channel, Payload: payload})
}

package epgsql

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"

	"github.com/Online-GS/epgsql/pkg/buffer"
	"github.com/Online-GS/epgsql/pkg/types"
)

// SSLMode represents the TLS requirement of a connection.
type SSLMode uint8

const (
	// SSLDisabled skips the SSL request and connects over plain TCP.
	SSLDisabled SSLMode = iota
	// SSLPreferred requests a TLS session and falls back to plain TCP when
	// the server declines.
	SSLPreferred
	// SSLRequired requests a TLS session and fails the connection when the
	// server declines.
	SSLRequired
)

// handshake dials the backend and performs the opportunistic TLS upgrade,
// returning the negotiated transport. Every subsequent send uses the
// returned connection.
func (conn *Conn) handshake(ctx context.Context) (net.Conn, error) {
	address := net.JoinHostPort(conn.host, strconv.Itoa(conn.port))
	conn.logger.Debug("dialing backend", slog.String("address", address))

	dialer := net.Dialer{Timeout: conn.connectTimeout}
	socket, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	socket, err = conn.negotiateSSL(ctx, socket)
	if err != nil {
		socket.Close()
		return nil, err
	}

	return socket, nil
}

// negotiateSSL performs the SSL request preceding the startup packet. The
// server answers the request with a single byte: 'S' accepts the upgrade and
// a TLS handshake follows, 'N' declines it and the startup continues on the
// plain socket unless the connection requires TLS.
func (conn *Conn) negotiateSSL(ctx context.Context, socket net.Conn) (net.Conn, error) {
	if conn.sslMode == SSLDisabled {
		return socket, nil
	}

	request := make([]byte, 8)
	binary.BigEndian.PutUint32(request[0:4], 8)
	binary.BigEndian.PutUint32(request[4:8], uint32(types.VersionSSLRequest))

	_, err := socket.Write(request)
	if err != nil {
		return socket, err
	}

	response := make([]byte, 1)
	_, err = io.ReadFull(socket, response)
	if err != nil {
		return socket, err
	}

	switch response[0] {
	case 'S':
		conn.logger.Debug("upgrading connection to TLS")

		config := conn.tlsConfig
		if config == nil {
			config = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		} else {
			config = config.Clone()
		}

		if config.ServerName == "" && !config.InsecureSkipVerify {
			config.ServerName = conn.host
		}

		upgraded := tls.Client(socket, config)
		err = upgraded.HandshakeContext(ctx)
		if err != nil {
			return socket, NewErrSSLNegotiationFailed(err)
		}

		return upgraded, nil
	case 'N':
		if conn.sslMode == SSLRequired {
			return socket, ErrSSLNotAvailable
		}

		conn.logger.Debug("server declined TLS, continuing on the plain socket")
		return socket, nil
	default:
		return socket, fmt.Errorf("unexpected ssl negotiation response: %q", response[0])
	}
}

// handleAuthMessage consumes backend messages during the authentication
// phase of the handshake. The backend challenges the client with an
// authentication request until it either accepts the connection or rejects
// the presented credentials.
func (conn *Conn) handleAuthMessage(typed types.ServerMessage, msg *buffer.Message) error {
	switch typed {
	case types.ServerAuth:
		code, err := msg.GetInt32()
		if err != nil {
			return err
		}

		return conn.handleAuthRequest(types.AuthCode(code), msg)
	case types.ServerErrorResponse:
		wired, err := readWireError(msg)
		if err != nil {
			return err
		}

		conn.complete(reply{err: wired})
		return wired
	default:
		// ParameterStatus and NoticeResponse may legally arrive during the
		// authentication phase
		return conn.handleReadyMessage(typed, msg)
	}
}

func (conn *Conn) handleAuthRequest(code types.AuthCode, msg *buffer.Message) error {
	conn.logger.Debug("authentication request", slog.String("method", code.String()))

	switch code {
	case types.AuthOK:
		conn.phase = phaseInit
		return nil
	case types.AuthCleartextPassword:
		return conn.writePassword(conn.password)
	case types.AuthMD5Password:
		salt, err := msg.GetBytes(4)
		if err != nil {
			return err
		}

		return conn.writePassword(md5Digest(conn.username, conn.password, salt))
	default:
		err := NewErrUnsupportedAuthMethod(code)
		conn.complete(reply{err: err})
		return err
	}
}

// handleInitMessage consumes backend messages during the initialization
// phase following a successful authentication. The backend announces its
// run-time parameters and the cancellation key before reporting readiness.
func (conn *Conn) handleInitMessage(typed types.ServerMessage, msg *buffer.Message) error {
	switch typed {
	case types.ServerBackendKeyData:
		return conn.handleBackendKeyData(msg)
	case types.ServerReady:
		status, err := msg.GetByte()
		if err != nil {
			return err
		}

		conn.mu.Lock()
		conn.txStatus = types.ServerStatus(status)
		conn.mu.Unlock()

		conn.logger.Debug("connection ready", slog.String("datetime_mode", conn.datetimeMode.String()))

		conn.phase = phaseReady
		conn.complete(reply{})
		return nil
	case types.ServerErrorResponse:
		wired, err := readWireError(msg)
		if err != nil {
			return err
		}

		conn.complete(reply{err: wired})
		return wired
	default:
		return conn.handleReadyMessage(typed, msg)
	}
}

func (conn *Conn) handleBackendKeyData(msg *buffer.Message) error {
	pid, err := msg.GetInt32()
	if err != nil {
		return err
	}

	secret, err := msg.GetInt32()
	if err != nil {
		return err
	}

	conn.backendPID = pid
	conn.backendSecret = secret
	return nil
}

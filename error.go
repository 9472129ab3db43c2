package epgsql

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Online-GS/epgsql/codes"
	psqlerr "github.com/Online-GS/epgsql/errors"
	"github.com/Online-GS/epgsql/pkg/buffer"
	"github.com/Online-GS/epgsql/pkg/types"
)

// errFieldType represents the error and notice response fields.
type errFieldType byte

// http://www.postgresql.org/docs/current/static/protocol-error-fields.html
const (
	errFieldSeverity       errFieldType = 'S'
	errFieldMsgPrimary     errFieldType = 'M'
	errFieldSQLState       errFieldType = 'C'
	errFieldDetail         errFieldType = 'D'
	errFieldHint           errFieldType = 'H'
	errFieldPosition       errFieldType = 'P'
	errFieldSrcFile        errFieldType = 'F'
	errFieldSrcLine        errFieldType = 'L'
	errFieldSrcFunction    errFieldType = 'R'
	errFieldConstraintName errFieldType = 'n'
)

// readWireError decodes the field stream of a backend ErrorResponse or
// NoticeResponse message. Unrecognized fields are skipped; the field list is
// terminated by a zero byte.
// https://www.postgresql.org/docs/current/static/protocol-error-fields.html
func readWireError(msg *buffer.Message) (*psqlerr.Error, error) {
	result := &psqlerr.Error{}
	source := psqlerr.Source{}

	for {
		field, err := msg.GetByte()
		if err != nil {
			return nil, err
		}

		if field == 0 {
			break
		}

		value, err := msg.GetString()
		if err != nil {
			return nil, err
		}

		switch errFieldType(field) {
		case errFieldSeverity:
			result.Severity = psqlerr.Severity(value)
		case errFieldSQLState:
			result.Code = codes.Code(value)
		case errFieldMsgPrimary:
			result.Message = value
		case errFieldDetail:
			result.Detail = value
		case errFieldHint:
			result.Hint = value
		case errFieldPosition:
			position, err := strconv.ParseInt(value, 10, 32)
			if err == nil {
				result.Position = int32(position)
			}
		case errFieldConstraintName:
			result.ConstraintName = value
		case errFieldSrcFile:
			source.File = value
		case errFieldSrcLine:
			line, err := strconv.ParseInt(value, 10, 32)
			if err == nil {
				source.Line = int32(line)
			}
		case errFieldSrcFunction:
			source.Function = value
		}
	}

	if source != (psqlerr.Source{}) {
		result.Source = &source
	}

	return result, nil
}

// ErrSyncRequired is returned for every command issued after an extended
// query error until the connection is resynchronized. The backend discards
// pipelined commands following an error until the frontend issues Sync.
var ErrSyncRequired = psqlerr.WithCode(errors.New("sync required after an extended query error"), codes.InvalidTransactionState)

// ErrConnClosed is returned for commands issued against a closed connection
// and delivered to every request still in flight when the connection
// terminates.
var ErrConnClosed = psqlerr.WithCode(errors.New("connection closed"), codes.ConnectionDoesNotExist)

// ErrSSLNotAvailable is returned when the connect options require a TLS
// session but the server declined the SSL request.
var ErrSSLNotAvailable = psqlerr.WithCode(errors.New("ssl not available on this server"), codes.SQLclientUnableToEstablishSQLconnection)

// NewErrSSLNegotiationFailed wraps a TLS handshake failure during the
// opportunistic connection upgrade.
func NewErrSSLNegotiationFailed(cause error) error {
	err := fmt.Errorf("ssl negotiation failed: %w", cause)
	return psqlerr.WithCode(err, codes.SQLclientUnableToEstablishSQLconnection)
}

// NewErrUnsupportedAuthMethod is returned when the backend requests an
// authentication method the driver does not implement.
func NewErrUnsupportedAuthMethod(code types.AuthCode) error {
	err := fmt.Errorf("unsupported authentication method: %s", code)
	return psqlerr.WithSeverity(psqlerr.WithCode(err, codes.FeatureNotSupported), psqlerr.LevelFatal)
}

// NewErrUnexpectedMessage is returned when the backend sends a message type
// the active connection phase cannot consume.
func NewErrUnexpectedMessage(t types.ServerMessage) error {
	err := fmt.Errorf("unexpected backend message type: %s", t)
	return psqlerr.WithSeverity(psqlerr.WithCode(err, codes.ProtocolViolation), psqlerr.LevelFatal)
}

// newErrSockClosed translates a transport failure into the error delivered to
// every in-flight request.
func newErrSockClosed(cause error) error {
	if cause == nil {
		return ErrConnClosed
	}

	err := fmt.Errorf("socket error: %w", cause)
	return psqlerr.WithCode(err, codes.ConnectionFailure)
}

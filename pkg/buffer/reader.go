package buffer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"

	"github.com/Online-GS/epgsql/pkg/types"
)

// DefaultBufferSize represents the default buffer size whenever the buffer size
// is not set or a negative value is presented.
const DefaultBufferSize = 1 << 24 // 16777216 bytes

// BufferedReader extended io.Reader with some convenience methods.
type BufferedReader interface {
	io.Reader
	ReadByte() (byte, error)
}

// Reader provides a convenient way to read pgwire protocol messages sent by a
// PostgreSQL backend. Each decoded message is returned as a detached [Message]
// owning its payload, allowing the payload to be parsed after subsequent
// reads have been issued.
type Reader struct {
	logger         *slog.Logger
	Buffer         BufferedReader
	MaxMessageSize int
	header         [4]byte
}

// NewReader constructs a new Postgres wire buffer for the given io.Reader
func NewReader(logger *slog.Logger, reader io.Reader, bufferSize int) *Reader {
	if reader == nil {
		return nil
	}

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Reader{
		logger:         logger,
		Buffer:         bufio.NewReaderSize(reader, bufferSize),
		MaxMessageSize: bufferSize,
	}
}

// ReadType reads the backend message type from the underlying reader.
func (reader *Reader) ReadType() (types.ServerMessage, error) {
	b, err := reader.Buffer.ReadByte()
	if err != nil {
		return 0, err
	}

	return types.ServerMessage(b), nil
}

// ReadTypedMsg reads a typed message from the underlying reader, returning its
// type code and payload. The returned message owns its payload bytes.
func (reader *Reader) ReadTypedMsg() (types.ServerMessage, *Message, error) {
	typed, err := reader.ReadType()
	if err != nil {
		return typed, nil, err
	}

	msg, err := reader.ReadUntypedMsg()
	if err != nil {
		return typed, nil, err
	}

	reader.logger.Debug("<- incoming message", slog.String("type", typed.String()), slog.Int("length", msg.Len()))
	return typed, msg, nil
}

// ReadMsgSize reads the length of the next message from the underlying reader.
func (reader *Reader) ReadMsgSize() (int, error) {
	_, err := io.ReadFull(reader.Buffer, reader.header[:])
	if err != nil {
		return 0, err
	}

	size := int(binary.BigEndian.Uint32(reader.header[:]))
	// size includes itself.
	size -= 4

	return size, nil
}

// ReadUntypedMsg reads a length-prefixed message. [Reader.ReadTypedMsg] calls
// it for the payload following the type byte of every backend message.
func (reader *Reader) ReadUntypedMsg() (*Message, error) {
	size, err := reader.ReadMsgSize()
	if err != nil {
		return nil, err
	}

	if size > reader.MaxMessageSize || size < 0 {
		return nil, NewMessageSizeExceeded(reader.MaxMessageSize, size)
	}

	payload := make([]byte, size)
	_, err = io.ReadFull(reader.Buffer, payload)
	if err != nil {
		return nil, err
	}

	return &Message{payload: payload}, nil
}

// Message represents a single decoded wire message payload. The contained
// getters consume the payload from front to back, mirroring the field order
// defined by the protocol.
type Message struct {
	payload []byte
}

// NewMessage constructs a message over the given payload. The message takes
// ownership of the slice.
func NewMessage(payload []byte) *Message {
	return &Message{payload: payload}
}

// Len returns the number of unconsumed payload bytes.
func (msg *Message) Len() int {
	return len(msg.payload)
}

// GetString reads a null-terminated string.
func (msg *Message) GetString() (string, error) {
	pos := bytes.IndexByte(msg.payload, 0)
	if pos == -1 {
		return "", NewMissingNulTerminator()
	}

	s := string(msg.payload[:pos])
	msg.payload = msg.payload[pos+1:]
	return s, nil
}

// GetByte returns the next payload byte.
func (msg *Message) GetByte() (byte, error) {
	if len(msg.payload) < 1 {
		return 0, NewInsufficientData(len(msg.payload))
	}

	v := msg.payload[0]
	msg.payload = msg.payload[1:]
	return v, nil
}

// GetBytes returns the next n payload bytes. A length of -1 indicates a NULL
// value and returns a nil slice.
func (msg *Message) GetBytes(n int) ([]byte, error) {
	if n == -1 {
		return nil, nil
	}
	if n < 0 || len(msg.payload) < n {
		return nil, NewInsufficientData(len(msg.payload))
	}

	v := msg.payload[:n]
	msg.payload = msg.payload[n:]
	return v, nil
}

// GetUint16 returns the next payload bytes as a uint16.
func (msg *Message) GetUint16() (uint16, error) {
	if len(msg.payload) < 2 {
		return 0, NewInsufficientData(len(msg.payload))
	}

	v := binary.BigEndian.Uint16(msg.payload[:2])
	msg.payload = msg.payload[2:]
	return v, nil
}

// GetUint32 returns the next payload bytes as a uint32.
func (msg *Message) GetUint32() (uint32, error) {
	if len(msg.payload) < 4 {
		return 0, NewInsufficientData(len(msg.payload))
	}

	v := binary.BigEndian.Uint32(msg.payload[:4])
	msg.payload = msg.payload[4:]
	return v, nil
}

// GetInt16 returns the next payload bytes as an int16.
func (msg *Message) GetInt16() (int16, error) {
	v, err := msg.GetUint16()
	return int16(v), err
}

// GetInt32 returns the next payload bytes as an int32.
func (msg *Message) GetInt32() (int32, error) {
	v, err := msg.GetUint32()
	return int32(v), err
}

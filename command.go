package epgsql

import (
	"fmt"
	"log/slog"

	"github.com/Online-GS/epgsql/pkg/types"
	"github.com/lib/pq/oid"
)

// command represents a user command crossing the actor boundary. The
// dispatcher serializes commands onto the wire in arrival order and appends a
// matching request to the in-flight queue.
type command struct {
	kind    requestKind
	sql     string
	name    string // statement or portal name the command addresses
	portal  string
	stmt    *Statement
	params  []any
	types   []oid.Oid
	maxRows int32
	target  types.DescribeMessage // statement or portal, for describe and close
	sink    sink
}

// dispatch performs the serialized outbound path of a single user command:
// the sync-required gate, the wire encoding, the socket write, and the queue
// append. A command failing the gate never reaches the socket or the queue.
func (conn *Conn) dispatch(cmd *command) error {
	if conn.syncRequired && cmd.kind != reqSync {
		cmd.sink.resolve(reply{err: ErrSyncRequired})
		return nil
	}

	conn.logger.Debug("dispatching command", slog.String("kind", cmd.kind.String()))

	err := conn.writeCommand(cmd)
	if err != nil {
		return err
	}

	if cmd.kind == reqSync {
		conn.syncRequired = false
	}

	conn.queue.push(&request{
		kind:   cmd.kind,
		name:   cmd.name,
		target: cmd.target,
		stmt:   conn.resolveContext(cmd),
		sink:   cmd.sink,
	})

	return nil
}

// resolveContext returns the statement descriptor used to decode the rows the
// given command produces. Commands addressing a statement by name without a
// descriptor resolve against the connection statement cache.
func (conn *Conn) resolveContext(cmd *command) *Statement {
	if cmd.stmt != nil && len(cmd.stmt.Columns) != 0 {
		return cmd.stmt
	}

	if cached := conn.statements.Get(cmd.name); cached != nil {
		return cached
	}

	return cmd.stmt
}

// writeCommand translates the given command into its wire messages. The
// message tag letters match the PostgreSQL frontend protocol.
func (conn *Conn) writeCommand(cmd *command) error {
	switch cmd.kind {
	case reqSimpleQuery:
		return conn.writeSimpleQuery(cmd.sql)
	case reqParse:
		return conn.writeParse(cmd.name, cmd.sql, cmd.types)
	case reqBind:
		return conn.writeBind(cmd.portal, cmd.stmt, cmd.params, true)
	case reqExecute:
		return conn.writeExecute(cmd.portal, cmd.maxRows, true)
	case reqQuery:
		return conn.writeEquery(cmd.stmt, cmd.params)
	case reqDescribeStatement, reqDescribePortal:
		return conn.writeDescribe(cmd.target, cmd.name)
	case reqClose:
		err := conn.writeClose(cmd.target, cmd.name)
		if err != nil {
			return err
		}
		return conn.writeFlush()
	case reqSync:
		return conn.writeSync()
	default:
		return fmt.Errorf("unknown command kind: %s", cmd.kind)
	}
}

// writeStartup writes the startup packet presenting the protocol version and
// the connection parameters.
func (conn *Conn) writeStartup(username, database string) error {
	conn.writer.StartUntyped()
	conn.writer.AddUint32(uint32(types.Version30))
	conn.writer.AddString("user")
	conn.writer.AddNullTerminate()
	conn.writer.AddString(username)
	conn.writer.AddNullTerminate()

	if database != "" {
		conn.writer.AddString("database")
		conn.writer.AddNullTerminate()
		conn.writer.AddString(database)
		conn.writer.AddNullTerminate()
	}

	conn.writer.AddNullTerminate()
	return conn.writer.End()
}

// writePassword writes a password message carrying the given response, which
// is either the cleartext password or a computed digest.
func (conn *Conn) writePassword(response string) error {
	conn.writer.Start(types.ClientPassword)
	conn.writer.AddString(response)
	conn.writer.AddNullTerminate()
	return conn.writer.End()
}

func (conn *Conn) writeSimpleQuery(sql string) error {
	conn.writer.Start(types.ClientSimpleQuery)
	conn.writer.AddString(sql)
	conn.writer.AddNullTerminate()
	return conn.writer.End()
}

// writeParse writes a Parse message followed by a statement Describe and a
// Flush, forcing the backend to report the statement descriptor immediately.
func (conn *Conn) writeParse(name, sql string, parameterTypes []oid.Oid) error {
	conn.writer.Start(types.ClientParse)
	conn.writer.AddString(name)
	conn.writer.AddNullTerminate()
	conn.writer.AddString(sql)
	conn.writer.AddNullTerminate()
	conn.writer.AddInt16(int16(len(parameterTypes)))
	for _, id := range parameterTypes {
		conn.writer.AddInt32(int32(id))
	}

	err := conn.writer.End()
	if err != nil {
		return err
	}

	conn.writer.Start(types.ClientDescribe)
	conn.writer.AddByte(byte(types.DescribeStatement))
	conn.writer.AddString(name)
	conn.writer.AddNullTerminate()
	err = conn.writer.End()
	if err != nil {
		return err
	}

	return conn.writeFlush()
}

// writeBind writes a Bind message binding the given parameters to a new
// portal over the statement. Parameter values are encoded using the
// statement's reported parameter types; result columns request the formats
// annotated on the statement descriptor.
func (conn *Conn) writeBind(portal string, stmt *Statement, params []any, flush bool) error {
	conn.writer.Start(types.ClientBind)
	conn.writer.AddString(portal)
	conn.writer.AddNullTerminate()
	conn.writer.AddString(stmt.Name)
	conn.writer.AddNullTerminate()

	formats := make([]FormatCode, len(params))
	values := make([][]byte, len(params))
	for index, param := range params {
		var id oid.Oid
		if index < len(stmt.Types) {
			id = stmt.Types[index]
		}

		format, value, err := conn.encodeParameter(id, param)
		if err != nil {
			return err
		}

		formats[index] = format
		values[index] = value
	}

	conn.writer.AddInt16(int16(len(formats)))
	for _, format := range formats {
		conn.writer.AddInt16(int16(format))
	}

	conn.writer.AddInt16(int16(len(values)))
	for index, value := range values {
		if value == nil && params[index] == nil {
			conn.writer.AddInt32(-1)
			continue
		}

		conn.writer.AddInt32(int32(len(value)))
		conn.writer.AddBytes(value)
	}

	conn.writer.AddInt16(int16(len(stmt.Columns)))
	for _, format := range stmt.Columns.formats() {
		conn.writer.AddInt16(int16(format))
	}

	err := conn.writer.End()
	if err != nil {
		return err
	}

	if !flush {
		return nil
	}

	return conn.writeFlush()
}

// writeExecute writes an Execute message running the given portal up to the
// given row limit. Zero denotes no limit.
func (conn *Conn) writeExecute(portal string, maxRows int32, flush bool) error {
	conn.writer.Start(types.ClientExecute)
	conn.writer.AddString(portal)
	conn.writer.AddNullTerminate()
	conn.writer.AddInt32(maxRows)
	err := conn.writer.End()
	if err != nil {
		return err
	}

	if !flush {
		return nil
	}

	return conn.writeFlush()
}

// writeEquery writes the combined extended query group binding the unnamed
// portal over the given statement, executing it without a row limit, closing
// the statement and issuing Sync in a single flush.
func (conn *Conn) writeEquery(stmt *Statement, params []any) error {
	err := conn.writeBind("", stmt, params, false)
	if err != nil {
		return err
	}

	err = conn.writeExecute("", 0, false)
	if err != nil {
		return err
	}

	err = conn.writeClose(types.DescribeStatement, stmt.Name)
	if err != nil {
		return err
	}

	return conn.writeSync()
}

func (conn *Conn) writeDescribe(target types.DescribeMessage, name string) error {
	conn.writer.Start(types.ClientDescribe)
	conn.writer.AddByte(byte(target))
	conn.writer.AddString(name)
	conn.writer.AddNullTerminate()
	err := conn.writer.End()
	if err != nil {
		return err
	}

	return conn.writeFlush()
}

func (conn *Conn) writeClose(target types.DescribeMessage, name string) error {
	conn.writer.Start(types.ClientClose)
	conn.writer.AddByte(byte(target))
	conn.writer.AddString(name)
	conn.writer.AddNullTerminate()
	return conn.writer.End()
}

func (conn *Conn) writeFlush() error {
	conn.writer.Start(types.ClientFlush)
	return conn.writer.End()
}

func (conn *Conn) writeSync() error {
	conn.writer.Start(types.ClientSync)
	return conn.writer.End()
}

func (conn *Conn) writeTerminate() error {
	conn.writer.Start(types.ClientTerminate)
	return conn.writer.End()
}

package epgsql

import (
	"github.com/Online-GS/epgsql/pkg/buffer"
	"github.com/lib/pq/oid"
)

// Statement represents a server-side prepared statement. The parameter types
// and result columns are filled from the backend's ParameterDescription and
// RowDescription replies to a Parse or Describe request.
type Statement struct {
	Name    string
	Types   []oid.Oid
	Columns Columns
}

// Columns represent an ordered collection of result columns
type Columns []Column

// Column represents a single result column as described by the backend inside
// a RowDescription message.
// https://www.postgresql.org/docs/current/protocol-message-formats.html
type Column struct {
	Name         string
	Table        int32 // originating table id, zero when not a table column
	AttrNo       int16 // originating column attribute no, zero when not a table column
	Oid          oid.Oid
	Width        int16
	TypeModifier int32
	Format       FormatCode
}

// Names returns the column names in definition order.
func (columns Columns) Names() []string {
	names := make([]string, len(columns))
	for index, column := range columns {
		names[index] = column.Name
	}

	return names
}

// formats returns the wire format of every column in definition order.
func (columns Columns) formats() []FormatCode {
	formats := make([]FormatCode, len(columns))
	for index, column := range columns {
		formats[index] = column.Format
	}

	return formats
}

// preferFormats overrides each column wire format with the preferred format
// of its type. The backend reports zeroed format codes on a statement
// describe since no Bind has been issued at that point; the driver picks the
// formats it will request during Bind instead.
func (columns Columns) preferFormats() Columns {
	for index := range columns {
		columns[index].Format = PreferredFormat(columns[index].Oid)
	}

	return columns
}

// readColumns decodes the column definitions contained inside a backend
// RowDescription message.
func readColumns(msg *buffer.Message) (Columns, error) {
	length, err := msg.GetUint16()
	if err != nil {
		return nil, err
	}

	columns := make(Columns, length)
	for index := range columns {
		column := Column{}

		column.Name, err = msg.GetString()
		if err != nil {
			return nil, err
		}

		column.Table, err = msg.GetInt32()
		if err != nil {
			return nil, err
		}

		column.AttrNo, err = msg.GetInt16()
		if err != nil {
			return nil, err
		}

		id, err := msg.GetInt32()
		if err != nil {
			return nil, err
		}
		column.Oid = oid.Oid(id)

		column.Width, err = msg.GetInt16()
		if err != nil {
			return nil, err
		}

		column.TypeModifier, err = msg.GetInt32()
		if err != nil {
			return nil, err
		}

		format, err := msg.GetInt16()
		if err != nil {
			return nil, err
		}
		column.Format = FormatCode(format)

		columns[index] = column
	}

	return columns, nil
}

// readParameterTypes decodes the type oids contained inside a backend
// ParameterDescription message.
func readParameterTypes(msg *buffer.Message) ([]oid.Oid, error) {
	length, err := msg.GetUint16()
	if err != nil {
		return nil, err
	}

	types := make([]oid.Oid, length)
	for index := range types {
		id, err := msg.GetInt32()
		if err != nil {
			return nil, err
		}

		types[index] = oid.Oid(id)
	}

	return types, nil
}

// statementCache holds the statement descriptors the backend has confirmed
// for this connection. The cache is owned by the connection actor and used to
// resolve the column context required to decode rows produced by Bind and
// Execute requests.
type statementCache struct {
	statements map[string]*Statement
}

func newStatementCache() *statementCache {
	return &statementCache{
		statements: map[string]*Statement{},
	}
}

// Set stores the given statement descriptor under its name, replacing any
// previously prepared statement carrying the same name.
func (cache *statementCache) Set(statement *Statement) {
	cache.statements[statement.Name] = statement
}

// Get returns the statement descriptor prepared under the given name.
func (cache *statementCache) Get(name string) *Statement {
	return cache.statements[name]
}

// Evict removes the statement descriptor prepared under the given name.
func (cache *statementCache) Evict(name string) {
	delete(cache.statements, name)
}

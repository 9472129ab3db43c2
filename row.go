package epgsql

import (
	"fmt"
	"time"

	"github.com/Online-GS/epgsql/pkg/buffer"
	"github.com/Online-GS/epgsql/pkg/pgtime"
	"github.com/lib/pq/oid"
)

// decodeRow decodes the values contained inside a backend DataRow message
// using the given column definitions. Columns the backend did not describe
// beforehand are decoded as text.
func (conn *Conn) decodeRow(columns Columns, msg *buffer.Message) ([]any, error) {
	count, err := msg.GetUint16()
	if err != nil {
		return nil, err
	}

	row := make([]any, count)
	for index := 0; index < int(count); index++ {
		length, err := msg.GetInt32()
		if err != nil {
			return nil, err
		}

		src, err := msg.GetBytes(int(length))
		if err != nil {
			return nil, err
		}

		if src == nil {
			continue
		}

		column := Column{Oid: oid.T_text, Format: TextFormat}
		if index < len(columns) {
			column = columns[index]
		}

		row[index], err = conn.decodeValue(column, src)
		if err != nil {
			return nil, fmt.Errorf("failed to decode column %q: %w", column.Name, err)
		}
	}

	return row, nil
}

// decodeValue decodes a single column value. Binary datetime values are
// mode-dependent and handled by the datetime subcodecs; every other type is
// resolved through the connection type map, falling back to the raw
// representation for oids the map does not know.
func (conn *Conn) decodeValue(column Column, src []byte) (any, error) {
	if column.Format == BinaryFormat {
		switch column.Oid {
		case oid.T_timestamp, oid.T_timestamptz:
			return pgtime.DecodeTimestamp(conn.datetimeMode, src)
		case oid.T_date:
			return pgtime.DecodeDate(src)
		case oid.T_time:
			return pgtime.DecodeTime(conn.datetimeMode, src)
		}
	}

	// numeric values keep their textual representation, preserving arbitrary
	// precision for the caller to interpret
	if column.Oid == oid.T_numeric && column.Format == TextFormat {
		return string(src), nil
	}

	if typed, has := conn.typeMap.TypeForOID(uint32(column.Oid)); has {
		return typed.Codec.DecodeValue(conn.typeMap, uint32(column.Oid), int16(column.Format), src)
	}

	if column.Format == TextFormat {
		return string(src), nil
	}

	return append([]byte(nil), src...), nil
}

// encodeParameter encodes a single bind parameter for the given type oid,
// returning the chosen wire format and the encoded value. A nil value is
// transferred as NULL.
func (conn *Conn) encodeParameter(id oid.Oid, value any) (FormatCode, []byte, error) {
	if value == nil {
		return TextFormat, nil, nil
	}

	// The backend infers untyped parameters itself; their values travel in
	// text form.
	if id == 0 {
		return TextFormat, []byte(fmt.Sprint(value)), nil
	}

	format := PreferredFormat(id)
	if format == BinaryFormat {
		switch id {
		case oid.T_timestamp, oid.T_timestamptz:
			if t, ok := value.(time.Time); ok {
				return BinaryFormat, pgtime.EncodeTimestamp(conn.datetimeMode, t), nil
			}
		case oid.T_date:
			if t, ok := value.(time.Time); ok {
				return BinaryFormat, pgtime.EncodeDate(t), nil
			}
		}
	}

	encoded, err := conn.typeMap.Encode(uint32(id), int16(format), value, nil)
	if err == nil {
		return format, encoded, nil
	}

	encoded, terr := conn.typeMap.Encode(uint32(id), int16(TextFormat), value, nil)
	if terr != nil {
		return TextFormat, nil, fmt.Errorf("failed to encode parameter of type %d: %w", id, err)
	}

	return TextFormat, encoded, nil
}

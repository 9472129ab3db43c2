package epgsql

import "github.com/lib/pq/oid"

// FormatCode represents the encoding format of a given column or parameter
type FormatCode int16

const (
	// TextFormat is the default, text format.
	TextFormat FormatCode = 0
	// BinaryFormat is an alternative, binary, encoding.
	BinaryFormat FormatCode = 1
)

// binaryOids holds the type oids transferred in binary format whenever the
// driver gets to pick the wire format. Types outside this set fall back to
// their text representation.
var binaryOids = map[oid.Oid]struct{}{
	oid.T_bool:        {},
	oid.T_bytea:       {},
	oid.T_int2:        {},
	oid.T_int4:        {},
	oid.T_int8:        {},
	oid.T_float4:      {},
	oid.T_float8:      {},
	oid.T_oid:         {},
	oid.T_uuid:        {},
	oid.T_date:        {},
	oid.T_time:        {},
	oid.T_timestamp:   {},
	oid.T_timestamptz: {},
}

// PreferredFormat returns the wire format used to transfer values of the
// given type oid.
func PreferredFormat(id oid.Oid) FormatCode {
	if _, has := binaryOids[id]; has {
		return BinaryFormat
	}

	return TextFormat
}

// Package pgtime implements the binary wire representations of the Postgres
// datetime types in both server timestamp modes. Servers built with integer
// datetimes transfer timestamps as microseconds, servers built with float
// datetimes transfer them as seconds; the active mode is announced through
// the integer_datetimes run-time parameter during connection startup.
package pgtime

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Mode represents the server timestamp representation.
type Mode uint8

const (
	// IntegerDatetimes transfers timestamps as int64 microseconds relative
	// to the Postgres epoch. Every modern server build uses this mode.
	IntegerDatetimes Mode = iota
	// FloatDatetimes transfers timestamps as float64 seconds relative to
	// the Postgres epoch.
	FloatDatetimes
)

// ModeFromParameter selects the timestamp mode from the value of the
// integer_datetimes run-time parameter.
func ModeFromParameter(value string) Mode {
	if value == "on" {
		return IntegerDatetimes
	}

	return FloatDatetimes
}

func (mode Mode) String() string {
	if mode == IntegerDatetimes {
		return "integer"
	}

	return "float"
}

// The Postgres epoch (2000-01-01 00:00:00 UTC) expressed in Unix seconds.
const epochUnixSeconds int64 = 946684800

const (
	microsPerSecond = 1_000_000
	secondsPerDay   = 86400
)

var (
	// Infinity is the value returned for timestamps the backend reports as
	// infinity.
	Infinity = time.Date(9999, time.December, 31, 23, 59, 59, 999999000, time.UTC)
	// NegativeInfinity is the value returned for timestamps the backend
	// reports as -infinity.
	NegativeInfinity = time.Date(-4713, time.November, 24, 0, 0, 0, 0, time.UTC)
)

// DecodeTimestamp decodes an 8-byte binary timestamp or timestamptz value
// into UTC time.
func DecodeTimestamp(mode Mode, src []byte) (time.Time, error) {
	if len(src) != 8 {
		return time.Time{}, fmt.Errorf("unexpected binary timestamp length: %d", len(src))
	}

	bits := binary.BigEndian.Uint64(src)

	if mode == FloatDatetimes {
		seconds := math.Float64frombits(bits)
		switch {
		case math.IsInf(seconds, 1):
			return Infinity, nil
		case math.IsInf(seconds, -1):
			return NegativeInfinity, nil
		}

		whole, frac := math.Modf(seconds)
		return time.Unix(epochUnixSeconds+int64(whole), int64(frac*1e9)).UTC(), nil
	}

	micros := int64(bits)
	switch micros {
	case math.MaxInt64:
		return Infinity, nil
	case math.MinInt64:
		return NegativeInfinity, nil
	}

	return time.Unix(epochUnixSeconds+micros/microsPerSecond, (micros%microsPerSecond)*1000).UTC(), nil
}

// EncodeTimestamp encodes the given time as an 8-byte binary timestamp
// value.
func EncodeTimestamp(mode Mode, value time.Time) []byte {
	dst := make([]byte, 8)

	if mode == FloatDatetimes {
		var seconds float64
		switch {
		case value.Equal(Infinity):
			seconds = math.Inf(1)
		case value.Equal(NegativeInfinity):
			seconds = math.Inf(-1)
		default:
			seconds = float64(value.Unix()-epochUnixSeconds) + float64(value.Nanosecond())/1e9
		}

		binary.BigEndian.PutUint64(dst, math.Float64bits(seconds))
		return dst
	}

	var micros int64
	switch {
	case value.Equal(Infinity):
		micros = math.MaxInt64
	case value.Equal(NegativeInfinity):
		micros = math.MinInt64
	default:
		micros = (value.Unix()-epochUnixSeconds)*microsPerSecond + int64(value.Nanosecond())/1000
	}

	binary.BigEndian.PutUint64(dst, uint64(micros))
	return dst
}

// DecodeDate decodes a 4-byte binary date value. Dates are transferred as
// days relative to the Postgres epoch regardless of the timestamp mode.
func DecodeDate(src []byte) (time.Time, error) {
	if len(src) != 4 {
		return time.Time{}, fmt.Errorf("unexpected binary date length: %d", len(src))
	}

	days := int32(binary.BigEndian.Uint32(src))
	switch days {
	case math.MaxInt32:
		return Infinity, nil
	case math.MinInt32:
		return NegativeInfinity, nil
	}

	return time.Unix(epochUnixSeconds+int64(days)*secondsPerDay, 0).UTC(), nil
}

// EncodeDate encodes the given time as a 4-byte binary date value.
func EncodeDate(value time.Time) []byte {
	dst := make([]byte, 4)

	var days int32
	switch {
	case value.Equal(Infinity):
		days = math.MaxInt32
	case value.Equal(NegativeInfinity):
		days = math.MinInt32
	default:
		year, month, day := value.UTC().Date()
		midnight := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		days = int32((midnight.Unix() - epochUnixSeconds) / secondsPerDay)
	}

	binary.BigEndian.PutUint32(dst, uint32(days))
	return dst
}

// DecodeTime decodes an 8-byte binary time-of-day value into the elapsed
// duration since midnight.
func DecodeTime(mode Mode, src []byte) (time.Duration, error) {
	if len(src) != 8 {
		return 0, fmt.Errorf("unexpected binary time length: %d", len(src))
	}

	bits := binary.BigEndian.Uint64(src)

	if mode == FloatDatetimes {
		seconds := math.Float64frombits(bits)
		return time.Duration(seconds * float64(time.Second)), nil
	}

	return time.Duration(int64(bits)) * time.Microsecond, nil
}

// EncodeTime encodes the elapsed duration since midnight as an 8-byte binary
// time-of-day value.
func EncodeTime(mode Mode, value time.Duration) []byte {
	dst := make([]byte, 8)

	if mode == FloatDatetimes {
		binary.BigEndian.PutUint64(dst, math.Float64bits(value.Seconds()))
		return dst
	}

	binary.BigEndian.PutUint64(dst, uint64(value.Microseconds()))
	return dst
}

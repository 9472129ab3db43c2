package epgsql

// Parameters represents a collection of run-time parameter status keys and
// their values as reported by the backend. The backend announces an initial
// set during connection startup and reports every subsequent change through
// asynchronous ParameterStatus messages. Duplicate reports are
// last-write-wins.
type Parameters map[string]string

// At present there is a hard-wired set of parameters for which ParameterStatus
// will be generated.
// https://www.postgresql.org/docs/current/protocol-flow.html#PROTOCOL-ASYNC
const (
	ParamServerVersion    = "server_version"
	ParamServerEncoding   = "server_encoding"
	ParamClientEncoding   = "client_encoding"
	ParamApplicationName  = "application_name"
	ParamIsSuperuser      = "is_superuser"
	ParamSessionAuth      = "session_authorization"
	ParamDateStyle        = "DateStyle"
	ParamIntervalStyle    = "IntervalStyle"
	ParamTimeZone         = "TimeZone"
	ParamIntegerDatetimes = "integer_datetimes"
	ParamStandardStrings  = "standard_conforming_strings"
)

package errors

import (
	"fmt"

	"github.com/Online-GS/epgsql/codes"
)

// Error contains all Postgres wire protocol error fields.
// See https://www.postgresql.org/docs/current/static/protocol-error-fields.html
// for a list of all Postgres error fields, most of which are optional and can
// be used to provide auxiliary error information.
//
// Backend ErrorResponse and NoticeResponse messages are decoded into this
// type. A NoticeResponse shares the exact field layout and only differs in
// severity.
type Error struct {
	Severity       Severity
	Code           codes.Code
	Message        string
	Detail         string
	Hint           string
	Position       int32
	ConstraintName string
	Source         *Source
}

// Source represents whenever possible the source of a given error.
type Source struct {
	File     string
	Line     int32
	Function string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Severity, e.Message, e.Code)
}

// Flatten returns a flattened error which could be used to inspect the
// Postgres error fields of any error value. Errors decoded from the wire are
// returned as-is; decorated driver errors are collapsed into their field
// representation.
func Flatten(err error) Error {
	if err == nil {
		return Error{
			Code:     codes.Internal,
			Message:  "unknown error, an internal process attempted to throw an error",
			Severity: LevelFatal,
		}
	}

	var wired *Error
	if As(err, &wired) {
		return *wired
	}

	return Error{
		Code:           GetCode(err),
		Message:        err.Error(),
		Severity:       DefaultSeverity(GetSeverity(err)),
		Detail:         GetDetail(err),
		Hint:           GetHint(err),
		ConstraintName: GetConstraintName(err),
	}
}

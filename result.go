package epgsql

import (
	"strconv"
	"strings"

	"github.com/lib/pq/oid"
)

// Result represents the outcome of a single executed statement. Row returning
// statements carry the produced rows together with their column definitions;
// other statements carry the affected row count parsed from the backend
// completion tag when the tag includes one.
type Result struct {
	Tag       string  // backend completion tag verb, e.g. "SELECT" or "INSERT"
	Count     int64   // affected or returned row count
	HasCount  bool    // whether the completion tag carried a count
	Columns   Columns // result column definitions, nil for non-row statements
	Rows      [][]any // decoded rows in server order
	Suspended bool    // execute stopped at its row limit, the portal holds more rows
	Err       error   // backend error attached to this statement within a batch
}

// parseCommandTag splits a backend CommandComplete tag into its verb and
// optional row count. Tags are formed as "SELECT 5", "INSERT 0 5",
// "UPDATE 3" or a bare verb such as "BEGIN" or "CREATE TABLE".
func parseCommandTag(tag string) (verb string, count int64, hasCount bool) {
	verb = tag
	pos := strings.LastIndexByte(tag, ' ')
	if pos == -1 {
		return verb, 0, false
	}

	count, err := strconv.ParseInt(tag[pos+1:], 10, 64)
	if err != nil {
		return verb, 0, false
	}

	verb = tag[:pos]
	// INSERT tags carry a legacy table oid between the verb and the count.
	if strings.HasPrefix(verb, "INSERT ") {
		verb = "INSERT"
	}

	return verb, count, true
}

// ResultEventKind represents the kind of an incremental result event
// delivered to a streaming sink.
type ResultEventKind uint8

const (
	// EventTypes carries the parameter type oids of the described statement.
	EventTypes ResultEventKind = iota + 1
	// EventColumns carries the column definitions of the produced result set.
	EventColumns
	// EventRow carries a single decoded row. Streamed rows are not retained
	// by the connection.
	EventRow
	// EventComplete carries the backend completion tag of a single statement.
	EventComplete
	// EventError carries a backend error attached to the current statement.
	EventError
	// EventPartial terminates a streamed execute which stopped at its row
	// limit. The rows were delivered individually beforehand.
	EventPartial
	// EventDone terminates a streamed request.
	EventDone
)

// ResultEvent represents a single incremental event delivered to a streaming
// sink. The populated fields depend on the event kind.
type ResultEvent struct {
	Kind     ResultEventKind
	Types    []oid.Oid
	Columns  Columns
	Row      []any
	Tag      string
	Count    int64
	HasCount bool
	Err      error
}

// StreamFunc consumes incremental result events. The function is invoked from
// the connection actor and must return promptly; long-running consumers
// should hand events off to their own queue.
type StreamFunc func(ResultEvent)

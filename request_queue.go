package epgsql

import (
	"github.com/Online-GS/epgsql/pkg/types"
	"github.com/lib/pq/oid"
)

// requestKind represents the user command a queued request originates from.
// The kind of the head request decides how inbound backend messages are
// consumed.
type requestKind uint8

const (
	reqConnect requestKind = iota + 1
	reqSimpleQuery
	reqQuery
	reqParse
	reqBind
	reqExecute
	reqDescribeStatement
	reqDescribePortal
	reqClose
	reqSync
)

func (kind requestKind) String() string {
	switch kind {
	case reqConnect:
		return "connect"
	case reqSimpleQuery:
		return "simple_query"
	case reqQuery:
		return "query"
	case reqParse:
		return "parse"
	case reqBind:
		return "bind"
	case reqExecute:
		return "execute"
	case reqDescribeStatement:
		return "describe_statement"
	case reqDescribePortal:
		return "describe_portal"
	case reqClose:
		return "close"
	case reqSync:
		return "sync"
	default:
		return "unknown"
	}
}

// reply represents the terminal outcome of a request. The populated fields
// depend on the request kind: parse and statement describes resolve a
// statement descriptor, portal describes resolve column definitions, execute
// and query requests resolve results.
type reply struct {
	stmt    *Statement
	columns Columns
	result  Result
	results []Result
	err     error
}

// sink carries request outcomes back to the caller awaiting them. Delivery
// happens on the connection actor and must never block it.
type sink interface {
	// resolve delivers the terminal outcome, completing the request.
	resolve(reply)
	// event delivers an incremental result event. One-shot sinks discard
	// incremental events as their callers only observe the terminal reply.
	event(ResultEvent)
	// streaming reports whether incremental events reach the caller, in
	// which case streamed rows are not accumulated by the connection.
	streaming() bool
}

// oneshot resolves a single terminal reply over a buffered channel.
type oneshot struct {
	ch chan reply
}

func newOneshot() *oneshot {
	return &oneshot{ch: make(chan reply, 1)}
}

func (sink *oneshot) resolve(r reply) {
	select {
	case sink.ch <- r:
	default:
	}
}

func (sink *oneshot) event(ResultEvent) {}
func (sink *oneshot) streaming() bool   { return false }

// stream forwards incremental events to a caller-provided function and
// resolves the terminal reply over an embedded one-shot channel.
type stream struct {
	*oneshot
	fn StreamFunc
}

func newStream(fn StreamFunc) *stream {
	return &stream{oneshot: newOneshot(), fn: fn}
}

func (sink *stream) event(event ResultEvent) {
	sink.fn(event)
}

// resolve forwards a failing terminal outcome as an error event before
// completing the request, keeping the stream terminated on every failure
// path.
func (sink *stream) resolve(r reply) {
	if r.err != nil {
		sink.fn(ResultEvent{Kind: EventError, Err: r.err})
	}

	sink.oneshot.resolve(r)
}

func (sink *stream) streaming() bool { return true }

// request represents a single in-flight user command awaiting its backend
// replies. The request carries both the command kind and the caller sink,
// together with the scratch state accumulated while the request is at the
// head of the queue. Scratch state is empty at request boundaries by
// construction since it lives on the queue entry itself.
type request struct {
	kind   requestKind
	name   string                // statement or portal name the command addresses
	target types.DescribeMessage // statement or portal, for describe and close
	stmt   *Statement            // column context used to decode produced rows
	sink   sink

	// accumulated scratch state, only mutated while the request is the head
	types   []oid.Oid
	columns Columns
	rows    [][]any
	results []Result
}

// requestQueue holds the in-flight requests in FIFO submission order. The
// backend serves requests strictly in order which makes the head of the
// queue the unambiguous owner of every inbound reply message.
type requestQueue struct {
	items []*request
}

// push appends the given request to the tail of the queue.
func (queue *requestQueue) push(req *request) {
	queue.items = append(queue.items, req)
}

// head returns the request currently owning inbound reply messages.
func (queue *requestQueue) head() *request {
	if len(queue.items) == 0 {
		return nil
	}

	return queue.items[0]
}

// pop removes and returns the head request.
func (queue *requestQueue) pop() *request {
	if len(queue.items) == 0 {
		return nil
	}

	head := queue.items[0]
	queue.items[0] = nil
	queue.items = queue.items[1:]
	return head
}

// len returns the number of in-flight requests.
func (queue *requestQueue) len() int {
	return len(queue.items)
}

// drain removes and returns every queued request in submission order.
func (queue *requestQueue) drain() []*request {
	items := queue.items
	queue.items = nil
	return items
}

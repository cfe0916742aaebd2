// Package message provides the process-stable identity every declared
// message type (sync query, async query, event, or interface) carries
// through the broker, resolvers, and dispatchers.
package message

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// ID is a process-stable identity for a message type, usable as a map key.
// Two distinct message declarations never collide; the value is stable for
// the lifetime of the process but carries no meaning across processes or
// restarts.
type ID uint64

var nextID atomic.Uint64

// Info pairs a message's identity with its diagnostic name. The name is
// never used for routing -- it exists so listeners can render
// human-readable traces.
type Info struct {
	ID   ID
	Name string
}

// NewInfo mints a fresh Info. Call it once per message declaration,
// typically to initialize a package-level var:
//
//	var Sum = message.NewInfo("Sum")
//
// Calling NewInfo twice for what is conceptually "the same" message
// produces two distinct, non-interchangeable identities -- this mirrors
// the one-static-per-macro-invocation behavior of the original
// DECLARE_QUERY macro it replaces.
func NewInfo(name string) Info {
	return Info{ID: ID(nextID.Add(1)), Name: name}
}

func (i Info) String() string {
	return i.Name
}

// TraceID is an opaque, time-sortable correlation id attached to a
// dispatch for external log correlation. It has no meaning to the
// routing logic in broker, resolver, query, or event -- it exists purely
// so a Listener can correlate a request's enqueue with its response
// across executors.
type TraceID string

// NewTraceID mints a fresh TraceID.
func NewTraceID() TraceID {
	return TraceID(uuid.Must(uuid.NewV7()).String())
}

type traceKey struct{}

// WithTraceID returns a context carrying a TraceID: if ctx already
// carries one (because this dispatch is nested inside another, e.g. an
// interface proxy calling through a further query), that id is reused so
// the whole call chain correlates under one trace; otherwise a fresh one
// is minted. Every dispatch entry point (SyncQuery.Call, AsyncQuery's
// Invocation.Dispatch, Event.Emit) calls this before invoking a Listener.
func WithTraceID(ctx context.Context) (context.Context, TraceID) {
	if t, ok := ctx.Value(traceKey{}).(TraceID); ok {
		return ctx, t
	}
	t := NewTraceID()
	return context.WithValue(ctx, traceKey{}, t), t
}

// Package query implements the sync and async request/response dispatch
// contract: a sender's typed call through a cached resolver.Mono to
// whichever single component currently publishes the matching handler.
package query

import (
	"context"
	"errors"
	"sync"

	"github.com/backman-dev/minicomps/broker"
	"github.com/backman-dev/minicomps/component"
	"github.com/backman-dev/minicomps/future"
	"github.com/backman-dev/minicomps/lifetime"
	"github.com/backman-dev/minicomps/listener"
	"github.com/backman-dev/minicomps/message"
	"github.com/backman-dev/minicomps/resolver"
)

// ErrNoHandler is returned when a query has no current receiver, or has
// more than one, which is treated identically to having none.
var ErrNoHandler = errors.New("query: no handler published for this message")

// SyncHandler is the function signature a component registers to answer
// a SyncQuery[Req, Resp] for a given message id.
type SyncHandler[Req, Resp any] func(ctx context.Context, req Req) Resp

// SyncQuery is a cached reference to a single synchronous handler. Call
// is safe to use from any goroutine; if the resolved handler lives on a
// different Executor than the caller declares, Call blocks on the
// receiver's component.Lock rather than hopping through a queue, because
// a sync call has no later point at which to deliver a result.
type SyncQuery[Req, Resp any] struct {
	sender component.Component
	ref    *resolver.Mono
	mu     sync.Mutex
	fallback SyncHandler[Req, Resp]
}

// NewSyncQuery builds a SyncQuery bound to sender, resolving info through
// br.
func NewSyncQuery[Req, Resp any](br *broker.Broker, sender component.Component, info message.Info) *SyncQuery[Req, Resp] {
	return &SyncQuery[Req, Resp]{sender: sender, ref: resolver.NewSyncMono(br, sender, info)}
}

// SetFallbackHandler installs a handler invoked in place of ErrNoHandler
// when no component currently publishes this query.
func (q *SyncQuery[Req, Resp]) SetFallbackHandler(h SyncHandler[Req, Resp]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fallback = h
}

// Reachable reports whether Call currently has a handler to invoke,
// without invoking it.
func (q *SyncQuery[Req, Resp]) Reachable() bool {
	_, _, _, _, ok := q.ref.Lookup()
	return ok
}

// Call resolves the current handler and invokes it, blocking until the
// handler returns. If the handler lives on a different executor than
// this call declares (same), the receiving component's Lock is acquired
// first so that two sync calls converging on the same component from
// different executors serialize instead of racing inside the handler.
func (q *SyncQuery[Req, Resp]) Call(ctx context.Context, req Req) (resp Resp, err error) {
	raw, receiver, _, sameExecutor, ok := q.ref.Lookup()
	if !ok {
		q.mu.Lock()
		fallback := q.fallback
		q.mu.Unlock()
		if fallback != nil {
			return fallback(ctx, req), nil
		}
		var zero Resp
		return zero, ErrNoHandler
	}

	handler, ok := raw.(SyncHandler[Req, Resp])
	if !ok {
		var zero Resp
		return zero, ErrNoHandler
	}

	ctx, trace := message.WithTraceID(ctx)
	l := receiver.Listener()

	if sameExecutor {
		if l != nil {
			l.OnInvoke(q.sender, receiver, q.infoOf(), listener.Request, trace)
		}
		return handler(ctx, req), nil
	}

	if !q.sender.AllowLockingCallsSync() {
		var zero Resp
		return zero, ErrNoHandler
	}

	ctx, token := component.WithToken(ctx)
	lock := receiver.Lock()

	if l != nil {
		l.OnInvoke(q.sender, receiver, q.infoOf(), listener.LockedRequest, trace)
	}
	lock.Acquire(token)
	defer func() {
		lock.Release(token)
		if l != nil {
			l.OnInvoke(q.sender, receiver, q.infoOf(), listener.LockedResponse, trace)
		}
	}()

	return handler(ctx, req), nil
}

// Reset clears the cached resolution, forcing the next Call to rebuild
// it from the broker.
func (q *SyncQuery[Req, Resp]) Reset() { q.ref.Reset() }

// ForceResolve triggers a rebuild purely for dependency-report purposes;
// satisfies resolver.Resolver so a SyncQuery can be passed to Base.Track.
func (q *SyncQuery[Req, Resp]) ForceResolve() { q.ref.ForceResolve() }

// DescribeDependency reports what this SyncQuery currently resolves to;
// satisfies resolver.Resolver so a SyncQuery can be passed to Base.Track.
func (q *SyncQuery[Req, Resp]) DescribeDependency() resolver.DependencyInfo {
	return q.ref.DescribeDependency()
}

func (q *SyncQuery[Req, Resp]) infoOf() message.Info {
	return q.ref.DescribeDependency().Info
}

// Result carries either a value or an error out of an asynchronous
// handler, mirroring the two-outcome shape every CallbackResult resolves
// to.
type Result[T any] struct {
	Value T
	Err   error
}

// AsyncHandler is the function signature a component registers to
// answer an AsyncQuery[Req, Resp]. The handler owns the CallbackResult
// and must eventually call Resolve on it exactly once, possibly long
// after the handler itself returns.
type AsyncHandler[Req, Resp any] func(ctx context.Context, req Req, cb *CallbackResult[Resp])

// CallbackResult is the one-shot response channel an async handler
// resolves into. Resolve delivers the result back to the caller's
// executor (enqueuing it there if the caller declared a different
// executor than the handler's), and is a no-op on every call after the
// first.
type CallbackResult[Resp any] struct {
	mu       sync.Mutex
	done     bool
	callback func(Result[Resp])
	lt       lifetime.Weak
	hasLt    bool
	dispatch func(func())
	listener listener.Listener
	sender   listener.Named
	receiver listener.Named
	info     message.Info
	trace    message.TraceID
}

// NewCallbackResult builds a CallbackResult that runs callback directly,
// with no lifetime check and no executor hop, when resolved. Intended
// for base.AsyncFilter implementations that need to fan a single
// underlying call out to several waiting CallbackResults (request
// coalescing, for instance) -- ordinary handlers receive their
// CallbackResult from the dispatcher instead of constructing one.
func NewCallbackResult[Resp any](callback func(Result[Resp])) *CallbackResult[Resp] {
	return &CallbackResult[Resp]{callback: callback}
}

// Resolve delivers result to the caller. If the caller attached a
// lifetime via WithLifetime and that lifetime has since expired, the
// callback is dropped silently instead of being delivered.
func (cb *CallbackResult[Resp]) Resolve(result Result[Resp]) {
	cb.mu.Lock()
	if cb.done {
		cb.mu.Unlock()
		return
	}
	cb.done = true
	callback := cb.callback
	dispatch := cb.dispatch
	hasLt := cb.hasLt
	lt := cb.lt
	l := cb.listener
	sender, receiver, info, trace := cb.sender, cb.receiver, cb.info, cb.trace
	cb.mu.Unlock()

	if callback == nil {
		return
	}

	deliver := func() {
		if hasLt && lt.Expired() {
			return
		}
		if l != nil {
			l.OnInvoke(sender, receiver, info, listener.Response, trace)
		}
		callback(result)
	}

	if dispatch != nil {
		dispatch(deliver)
		return
	}
	deliver()
}

// AsyncQuery is a cached reference to a single asynchronous handler.
type AsyncQuery[Req, Resp any] struct {
	sender component.Component
	ref    *resolver.Mono
}

// NewAsyncQuery builds an AsyncQuery bound to sender, resolving info
// through br.
func NewAsyncQuery[Req, Resp any](br *broker.Broker, sender component.Component, info message.Info) *AsyncQuery[Req, Resp] {
	return &AsyncQuery[Req, Resp]{sender: sender, ref: resolver.NewAsyncMono(br, sender, info)}
}

// Reachable reports whether Call currently has a handler to invoke.
func (q *AsyncQuery[Req, Resp]) Reachable() bool {
	_, _, _, _, ok := q.ref.Lookup()
	return ok
}

// Reset clears the cached resolution.
func (q *AsyncQuery[Req, Resp]) Reset() { q.ref.Reset() }

// ForceResolve triggers a rebuild purely for dependency-report purposes;
// satisfies resolver.Resolver so an AsyncQuery can be passed to Base.Track.
func (q *AsyncQuery[Req, Resp]) ForceResolve() { q.ref.ForceResolve() }

// DescribeDependency reports what this AsyncQuery currently resolves to;
// satisfies resolver.Resolver so an AsyncQuery can be passed to Base.Track.
func (q *AsyncQuery[Req, Resp]) DescribeDependency() resolver.DependencyInfo {
	return q.ref.DescribeDependency()
}

// Future dispatches req the same way Call(...).Dispatch() does, but
// returns a future.Future the caller can Wait on or chain with Then
// instead of registering a callback: the driver body is exactly
// Call(...).WithCallback(promise_resolver).Dispatch(). No lifetime is
// attached, so the callback is never dropped. future.Future carries no
// error channel, so a failed dispatch (ErrNoHandler) resolves the Future
// to Resp's zero value rather than leaving it unresolved; callers that need to
// distinguish failure from a genuine zero-value response should use
// Call(...).WithCallback directly instead.
func (q *AsyncQuery[Req, Resp]) Future(ctx context.Context, req Req) *future.Future[Resp] {
	f := future.New[Resp]()
	promiseResolver := func(r Result[Resp]) { f.EvaluateInto(r.Value) }
	q.Call(ctx, req).WithCallback(promiseResolver).Dispatch()
	return f
}

// Invocation is the builder returned by Call: configure it with
// WithLifetime/WithCallback/WithSuccessfulCallback, then Dispatch it.
// Built up rather than taking every option as a Call argument because
// most calls need only a subset, and because the zero-ness of an unset
// callback is itself meaningful (no interest in the result at all).
type Invocation[Req, Resp any] struct {
	q        *AsyncQuery[Req, Resp]
	ctx      context.Context
	req      Req
	lt       lifetime.Weak
	hasLt    bool
	callback func(Result[Resp])
}

// Call begins building an async dispatch of req. Nothing happens until
// Dispatch is called.
func (q *AsyncQuery[Req, Resp]) Call(ctx context.Context, req Req) *Invocation[Req, Resp] {
	return &Invocation[Req, Resp]{q: q, ctx: ctx, req: req}
}

// WithLifetime ties delivery of the result to lt: if lt has expired by
// the time the handler resolves its CallbackResult, the callback is
// dropped instead of delivered. Typical use is the caller's own
// DefaultLifetime, so a component that has been unpublished before a
// slow response arrives does not get called back into.
func (inv *Invocation[Req, Resp]) WithLifetime(lt lifetime.Weak) *Invocation[Req, Resp] {
	inv.lt = lt
	inv.hasLt = true
	return inv
}

// WithCallback registers cb to run, on the caller's own executor,
// whichever way the handler resolves.
func (inv *Invocation[Req, Resp]) WithCallback(cb func(Result[Resp])) *Invocation[Req, Resp] {
	inv.callback = cb
	return inv
}

// WithSuccessfulCallback registers cb to run only when the handler
// resolves without an error; failures are silently dropped. A thin
// combinator over WithCallback for the common case of a caller that has
// nothing useful to do with an error besides ignore it.
func (inv *Invocation[Req, Resp]) WithSuccessfulCallback(cb func(Resp)) *Invocation[Req, Resp] {
	inv.callback = func(r Result[Resp]) {
		if r.Err == nil {
			cb(r.Value)
		}
	}
	return inv
}

// Dispatch resolves the current handler and invokes it. If no handler is
// published, ErrNoHandler is delivered synchronously to the callback (if
// any) and returned; the handler itself decides, via CallbackResult.
// Resolve, when and on which executor the real result is delivered.
func (inv *Invocation[Req, Resp]) Dispatch() error {
	q := inv.q
	raw, receiver, receiverExec, sameExecutor, ok := q.ref.Lookup()
	if !ok {
		if inv.callback != nil {
			inv.callback(Result[Resp]{Err: ErrNoHandler})
		}
		return ErrNoHandler
	}

	handler, ok := raw.(AsyncHandler[Req, Resp])
	if !ok {
		if inv.callback != nil {
			inv.callback(Result[Resp]{Err: ErrNoHandler})
		}
		return ErrNoHandler
	}

	ctx, trace := message.WithTraceID(inv.ctx)
	inv.ctx = ctx

	cb := &CallbackResult[Resp]{
		callback: inv.callback,
		lt:       inv.lt,
		hasLt:    inv.hasLt,
		listener: receiver.Listener(),
		sender:   q.sender,
		receiver: receiver,
		info:     q.ref.DescribeDependency().Info,
		trace:    trace,
	}
	if !sameExecutor {
		cb.dispatch = q.sender.DefaultExecutor().Enqueue
	}

	run := func() { handler(inv.ctx, inv.req, cb) }

	if sameExecutor && q.sender.AllowDirectCallAsync() {
		if l := receiver.Listener(); l != nil {
			l.OnInvoke(q.sender, receiver, cb.info, listener.Request, trace)
		}
		run()
		return nil
	}

	if l := receiver.Listener(); l != nil {
		l.OnEnqueue(q.sender, receiver, cb.info, listener.Request, trace)
	}
	receiverExec.Enqueue(run)
	return nil
}


// Package base provides the common component scaffolding: handler
// tables, broker registration, and the component.Component contract
// every publisher/consumer of the messaging fabric must satisfy. Most
// components embed *Base and add typed query.SyncQuery, query.AsyncQuery,
// event.Event, and iface.Ref fields built against the same *broker.Broker.
package base

import (
	"errors"
	"sync"

	"github.com/backman-dev/minicomps/broker"
	"github.com/backman-dev/minicomps/component"
	"github.com/backman-dev/minicomps/event"
	"github.com/backman-dev/minicomps/executor"
	"github.com/backman-dev/minicomps/iface"
	"github.com/backman-dev/minicomps/lifetime"
	"github.com/backman-dev/minicomps/listener"
	"github.com/backman-dev/minicomps/message"
	"github.com/backman-dev/minicomps/query"
	"github.com/backman-dev/minicomps/resolver"
)

// ErrNotPublished is returned by PrependAsyncFilter when there is no
// existing handler under the given id to wrap.
var ErrNotPublished = errors.New("base: no handler published under this message id")

// ErrHandlerShapeMismatch is returned when a typed operation is applied
// to a message id whose stored handler has a different Req/Resp shape
// than the caller expects.
var ErrHandlerShapeMismatch = errors.New("base: stored handler does not match the requested type")

// Base is the concrete component.Component most components embed.
type Base struct {
	name string
	br   *broker.Broker

	exec *executor.Executor
	lt   *lifetime.Lifetime
	lst  listener.Listener

	allowDirectCallAsync  bool
	allowLockingCallsSync bool

	lock *component.Lock

	// self anchors every weak.Pointer the broker holds for this
	// component's published ids: it is a Component-typed slot owned by
	// Base itself, set to b in New, and never reassigned.
	self component.Component

	mu                sync.Mutex
	syncHandlers      map[message.ID]any
	asyncHandlers     map[message.ID]any
	eventHandlers     map[message.ID]any
	interfaceHandlers map[message.ID]any
	executorOverrides map[message.ID]*executor.Executor
	published         map[message.ID]struct{}
	tracked           []resolver.Resolver
}

// Option configures a Base at construction time.
type Option func(*Base)

// WithExecutor pins the component to e instead of a freshly created
// Executor.
func WithExecutor(e *executor.Executor) Option {
	return func(b *Base) { b.exec = e }
}

// WithLifetime gives the component lt as its default lifetime instead of
// a freshly created one.
func WithLifetime(lt *lifetime.Lifetime) Option {
	return func(b *Base) { b.lt = lt }
}

// WithListener attaches l to observe every dispatch that crosses this
// component's boundary.
func WithListener(l listener.Listener) Option {
	return func(b *Base) { b.lst = l }
}

// WithExecutorOverride pins id's handler invocations (as a receiver) to
// e instead of the component's DefaultExecutor.
func WithExecutorOverride(id message.ID, e *executor.Executor) Option {
	return func(b *Base) { b.executorOverrides[id] = e }
}

// WithDirectCallAsync controls whether an AsyncQuery dispatched from
// this component to a same-executor receiver runs inline (true, the
// default) or is always queued through the receiver's Executor (false).
func WithDirectCallAsync(allow bool) Option {
	return func(b *Base) { b.allowDirectCallAsync = allow }
}

// WithLockingCallsSync controls whether a SyncQuery dispatched from this
// component is allowed to take a cross-executor receiver's Lock (true,
// the default) or must fail closed with ErrNoHandler instead (false).
func WithLockingCallsSync(allow bool) Option {
	return func(b *Base) { b.allowLockingCallsSync = allow }
}

// New creates a Base named name, registering against br. The returned
// component has no published handlers and no broker associations until
// PublishSyncQuery, PublishAsyncQuery, SubscribeEvent, or
// PublishInterface is called on it.
func New(name string, br *broker.Broker, opts ...Option) *Base {
	b := &Base{
		name:                  name,
		br:                    br,
		exec:                  executor.New(),
		lt:                    lifetime.New(),
		allowDirectCallAsync:  true,
		allowLockingCallsSync: true,
		lock:                  component.NewLock(),
		syncHandlers:          make(map[message.ID]any),
		asyncHandlers:         make(map[message.ID]any),
		eventHandlers:         make(map[message.ID]any),
		interfaceHandlers:     make(map[message.ID]any),
		executorOverrides:     make(map[message.ID]*executor.Executor),
		published:             make(map[message.ID]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.self = b
	return b
}

// -- component.Component --

func (b *Base) Broker() *broker.Broker             { return b.br }
func (b *Base) ComponentName() string              { return b.name }
func (b *Base) DefaultExecutor() *executor.Executor { return b.exec }
func (b *Base) DefaultLifetime() *lifetime.Lifetime { return b.lt }
func (b *Base) Listener() listener.Listener         { return b.lst }
func (b *Base) AllowDirectCallAsync() bool          { return b.allowDirectCallAsync }
func (b *Base) AllowLockingCallsSync() bool         { return b.allowLockingCallsSync }
func (b *Base) Lock() *component.Lock               { return b.lock }

func (b *Base) LookupSyncHandler(id message.ID) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncHandlers[id]
}

func (b *Base) LookupAsyncHandler(id message.ID) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.asyncHandlers[id]
}

func (b *Base) LookupEventHandler(id message.ID) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eventHandlers[id]
}

func (b *Base) LookupInterfaceHandler(id message.ID) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interfaceHandlers[id]
}

func (b *Base) LookupExecutorOverride(id message.ID) *executor.Executor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executorOverrides[id]
}

// -- publish/subscribe lifecycle --

// Track registers r so Verify/Graph (package registry) can walk it
// alongside every other dependency this component declared. Components
// typically call Track once per query.SyncQuery/AsyncQuery/event.Event/
// iface.Ref field they hold, right after constructing it.
func (b *Base) Track(r resolver.Resolver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracked = append(b.tracked, r)
}

// Tracked returns every Resolver registered via Track.
func (b *Base) Tracked() []resolver.Resolver {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]resolver.Resolver, len(b.tracked))
	copy(out, b.tracked)
	return out
}

// Unpublish removes this component as a receiver of id without clearing
// its stored handler -- a later re-publish of the same id does not need
// to re-register the handler, only to re-associate with the broker.
func (b *Base) Unpublish(id message.ID) {
	b.br.Disassociate(id, &b.self)
	b.mu.Lock()
	delete(b.published, id)
	b.mu.Unlock()
}

// UnpublishAll disassociates this component from every message id it is
// currently a receiver of, without clearing any handler table. Intended
// as the destructor-equivalent cleanup step before a component is
// dropped.
func (b *Base) UnpublishAll() {
	b.br.DisassociateEverything(&b.self)
	b.mu.Lock()
	b.published = make(map[message.ID]struct{})
	b.mu.Unlock()
}

func (b *Base) associate(id message.ID) {
	b.mu.Lock()
	b.published[id] = struct{}{}
	b.mu.Unlock()
	b.br.Associate(id, &b.self)
}

// PublishSyncQuery registers h as the handler for info and associates
// this component as its sole receiver. PublishSyncQuery is a
// package-level function, not a method, because Go methods cannot carry
// their own type parameters.
func PublishSyncQuery[Req, Resp any](b *Base, info message.Info, h query.SyncHandler[Req, Resp]) {
	b.mu.Lock()
	b.syncHandlers[info.ID] = h
	b.mu.Unlock()
	b.associate(info.ID)
}

// PublishAsyncQuery registers h as the handler for info and associates
// this component as its sole receiver.
func PublishAsyncQuery[Req, Resp any](b *Base, info message.Info, h query.AsyncHandler[Req, Resp]) {
	b.mu.Lock()
	b.asyncHandlers[info.ID] = h
	b.mu.Unlock()
	b.associate(info.ID)
}

// SubscribeEvent registers h to receive every Event[T] emitted under
// info, alongside any other component already subscribed -- events are
// many-receiver by design, so other components' subscriptions stay in
// place. A Base holds one event handler per id: calling SubscribeEvent
// again for the same id on the same Base replaces its stored handler.
func SubscribeEvent[T any](b *Base, info message.Info, h event.Handler[T]) {
	b.mu.Lock()
	b.eventHandlers[info.ID] = h
	b.mu.Unlock()
	b.associate(info.ID)
}

// PublishInterface registers g as the interface group handler for info
// and associates this component as its sole receiver.
func PublishInterface[G iface.Group](b *Base, info message.Info, g G) {
	b.mu.Lock()
	b.interfaceHandlers[info.ID] = g
	b.mu.Unlock()
	b.associate(info.ID)
}

// AsyncFilter wraps an existing async handler with additional behavior
// -- logging, validation, request coalescing -- while preserving its
// Req/Resp shape. See PrependAsyncFilter.
type AsyncFilter[Req, Resp any] func(next query.AsyncHandler[Req, Resp]) query.AsyncHandler[Req, Resp]

// PrependAsyncFilter wraps the handler currently published under info
// with filter, replacing it in place. The broker publishes a fresh,
// content-equal Snapshot for info afterward (via Invalidate) purely so
// that any resolver.Mono caching the old handler pointer observes the
// change on its next Lookup, even though the receiver set itself did not
// change.
func PrependAsyncFilter[Req, Resp any](b *Base, info message.Info, filter AsyncFilter[Req, Resp]) error {
	b.mu.Lock()
	raw, ok := b.asyncHandlers[info.ID]
	if !ok {
		b.mu.Unlock()
		return ErrNotPublished
	}
	current, ok := raw.(query.AsyncHandler[Req, Resp])
	if !ok {
		b.mu.Unlock()
		return ErrHandlerShapeMismatch
	}
	b.asyncHandlers[info.ID] = filter(current)
	b.mu.Unlock()

	b.br.Invalidate(info.ID)
	return nil
}

// Package event implements fan-out notification dispatch: a single
// Emit reaches every component currently subscribed, each independently
// and on its own executor, and one subscriber's handler panicking never
// prevents the others from being reached.
package event

import (
	"context"

	"github.com/backman-dev/minicomps/broker"
	"github.com/backman-dev/minicomps/component"
	"github.com/backman-dev/minicomps/listener"
	"github.com/backman-dev/minicomps/message"
	"github.com/backman-dev/minicomps/resolver"
)

// Handler is the function signature a component registers via
// base.SubscribeEvent to receive an Event[T].
type Handler[T any] func(ctx context.Context, payload T)

// Event is a cached reference to the current set of subscribers for one
// message id.
type Event[T any] struct {
	sender component.Component
	ref    *resolver.Poly
}

// New builds an Event bound to sender, resolving info's subscriber set
// through br.
func New[T any](br *broker.Broker, sender component.Component, info message.Info) *Event[T] {
	return &Event[T]{sender: sender, ref: resolver.NewPoly(br, sender, info)}
}

// Reset clears the cached subscriber list.
func (e *Event[T]) Reset() { e.ref.Reset() }

// ForceResolve triggers a rebuild purely for dependency-report purposes;
// satisfies resolver.Resolver so an Event can be passed to Base.Track.
func (e *Event[T]) ForceResolve() { e.ref.ForceResolve() }

// DescribeDependency reports every subscriber this Event currently
// resolves to; satisfies resolver.Resolver so an Event can be passed to
// Base.Track.
func (e *Event[T]) DescribeDependency() resolver.DependencyInfo {
	return e.ref.DescribeDependency()
}

// Subscribers reports the number of components currently subscribed,
// without invoking anything.
func (e *Event[T]) Subscribers() int { return len(e.ref.Lookup()) }

// Emit delivers payload to every current subscriber. Subscribers on the
// sender's own executor are invoked inline, in resolution order;
// subscribers elsewhere are enqueued onto their own executor, so Emit
// never blocks waiting for a cross-executor subscriber and never
// observes its return value. A handler panic is recovered per-subscriber
// and does not propagate to Emit's caller or to any other subscriber.
func (e *Event[T]) Emit(ctx context.Context, payload T) {
	entries := e.ref.Lookup()
	info := e.ref.DescribeDependency().Info
	ctx, trace := message.WithTraceID(ctx)

	for _, entry := range entries {
		handler, ok := entry.Handler.(Handler[T])
		if !ok {
			continue
		}

		run := func() {
			defer recoverInto(entry.Receiver.Listener(), e.sender, entry.Receiver, info, trace)
			if l := entry.Receiver.Listener(); l != nil {
				l.OnInvoke(e.sender, entry.Receiver, info, listener.Event, trace)
			}
			handler(ctx, payload)
		}

		if entry.SameExecutor {
			run()
			continue
		}

		if l := entry.Receiver.Listener(); l != nil {
			l.OnEnqueue(e.sender, entry.Receiver, info, listener.Event, trace)
		}
		entry.ReceiverExec.Enqueue(run)
	}
}

func recoverInto(l listener.Listener, sender, receiver listener.Named, info message.Info, trace message.TraceID) {
	if r := recover(); r != nil && l != nil {
		l.OnInvoke(sender, receiver, info, listener.EventFailure, trace)
	}
}

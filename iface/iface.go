// Package iface implements interface-shaped dependencies: a component
// publishes a named group of related queries as a single unit, and a
// consumer resolves the whole group at once rather than wiring each
// query in it separately.
package iface

import (
	"context"

	"github.com/backman-dev/minicomps/broker"
	"github.com/backman-dev/minicomps/component"
	"github.com/backman-dev/minicomps/message"
	"github.com/backman-dev/minicomps/resolver"
)

// Group is implemented by the interface struct a component publishes.
// Bind is called once per resolving sender to produce a sender-scoped
// copy: a typical Group has query.SyncQuery/query.AsyncQuery fields, and
// Bind rebuilds each of them bound to the new sender so calls through
// the returned copy are attributed to whoever resolved it rather than to
// the component that originally published it.
type Group interface {
	Bind(ctx context.Context, sender component.Component) Group
}

// Ref is a cached reference to the single component currently publishing
// interface group G under some message id.
type Ref[G Group] struct {
	sender component.Component
	ref    *resolver.Mono
}

// New builds a Ref bound to sender, resolving info through br.
func New[G Group](br *broker.Broker, sender component.Component, info message.Info) *Ref[G] {
	return &Ref[G]{sender: sender, ref: resolver.NewInterfaceMono(br, sender, info)}
}

// Reset clears the cached resolution.
func (r *Ref[G]) Reset() { r.ref.Reset() }

// ForceResolve triggers a rebuild purely for dependency-report purposes;
// satisfies resolver.Resolver so a Ref can be passed to Base.Track.
func (r *Ref[G]) ForceResolve() { r.ref.ForceResolve() }

// DescribeDependency reports what this Ref currently resolves to;
// satisfies resolver.Resolver so a Ref can be passed to Base.Track.
func (r *Ref[G]) DescribeDependency() resolver.DependencyInfo {
	return r.ref.DescribeDependency()
}

// Reachable reports whether Lookup currently has a group to bind.
func (r *Ref[G]) Reachable() bool {
	_, _, _, _, ok := r.ref.Lookup()
	return ok
}

// Lookup resolves the publishing component's group and returns a copy
// bound to this Ref's sender. ok is false if no component currently
// publishes this interface.
func (r *Ref[G]) Lookup(ctx context.Context) (g G, ok bool) {
	raw, _, _, _, found := r.ref.Lookup()
	if !found {
		return g, false
	}

	published, typeOk := raw.(G)
	if !typeOk {
		return g, false
	}

	bound, bindOk := published.Bind(ctx, r.sender).(G)
	if !bindOk {
		return g, false
	}
	return bound, true
}

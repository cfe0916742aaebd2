// Package resolver implements the cached, invalidation-aware indirection
// from a sender's view of a message to a receiver's boxed handler. It
// knows nothing about the concrete handler function signatures -- those
// live in query, event, and iface, which type-assert the `any` this
// package hands back. That mirrors the original design's void* handler
// pointers: the resolver's job is purely "which receiver, which executor,
// same executor or not", not "what does the handler look like".
package resolver

import (
	"sync"

	"github.com/backman-dev/minicomps/broker"
	"github.com/backman-dev/minicomps/component"
	"github.com/backman-dev/minicomps/executor"
	"github.com/backman-dev/minicomps/message"
)

// Resolver is implemented by Mono, Poly, and iface.Ref so a component can
// walk every dependency it declared for Verify/Graph purposes.
type Resolver interface {
	Reset()
	ForceResolve()
	DescribeDependency() DependencyInfo
}

// lookupFunc extracts the boxed handler for id from receiver -- sync,
// async, or interface table, depending on which one the owning Mono/Poly
// was built for.
type lookupFunc func(receiver component.Component, id message.ID) any

// Mono caches the resolution of a message expected to have exactly one
// receiver (a sync or async query, or an interface group). Its rebuild
// algorithm (rebuildIfStale) is a direct translation of
// mono_ref_base::lookup.
type Mono struct {
	br     *broker.Broker
	sender component.Component
	info   message.Info
	lookup lookupFunc
	shape  Shape

	mu           sync.Mutex
	snapshot     *broker.Snapshot
	handler      any
	receiver     component.Component
	receiverExec *executor.Executor
	sameExecutor bool
}

// NewSyncMono builds a Mono that resolves id via LookupSyncHandler.
func NewSyncMono(br *broker.Broker, sender component.Component, info message.Info) *Mono {
	return &Mono{br: br, sender: sender, info: info, shape: SyncMonoShape,
		lookup: func(c component.Component, id message.ID) any { return c.LookupSyncHandler(id) }}
}

// NewAsyncMono builds a Mono that resolves id via LookupAsyncHandler.
func NewAsyncMono(br *broker.Broker, sender component.Component, info message.Info) *Mono {
	return &Mono{br: br, sender: sender, info: info, shape: AsyncMonoShape,
		lookup: func(c component.Component, id message.ID) any { return c.LookupAsyncHandler(id) }}
}

// NewInterfaceMono is used by package iface: same single-receiver rebuild
// algorithm, resolved via LookupInterfaceHandler instead.
func NewInterfaceMono(br *broker.Broker, sender component.Component, info message.Info) *Mono {
	return &Mono{br: br, sender: sender, info: info, shape: InterfaceShape,
		lookup: func(c component.Component, id message.ID) any { return c.LookupInterfaceHandler(id) }}
}

// Lookup returns the cached resolution, rebuilding first if the broker
// has published a new Snapshot for this message id since the last
// rebuild. ok is false if there is no handler (zero or more than one
// receiver, a stale weak reference, or a receiver whose handler table no
// longer has this id -- all treated identically, as NoHandler).
func (m *Mono) Lookup() (handler any, receiver component.Component, receiverExec *executor.Executor, sameExecutor bool, ok bool) {
	m.rebuildIfStale()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler == nil {
		return nil, nil, nil, false, false
	}
	return m.handler, m.receiver, m.receiverExec, m.sameExecutor, true
}

func (m *Mono) rebuildIfStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.br.Current(m.info.ID)
	if m.handler != nil && current == m.snapshot {
		return
	}

	m.snapshot = current
	m.handler = nil
	m.receiver = nil
	m.receiverExec = nil
	m.sameExecutor = false

	if current == nil || len(current.Receivers) != 1 {
		return
	}

	ptr := current.Receivers[0].Value()
	if ptr == nil {
		return
	}
	receiver := *ptr

	h := m.lookup(receiver, m.info.ID)
	if h == nil {
		return
	}

	exec := receiver.LookupExecutorOverride(m.info.ID)
	if exec == nil {
		exec = receiver.DefaultExecutor()
	}

	m.handler = h
	m.receiver = receiver
	m.receiverExec = exec
	m.sameExecutor = m.sender.DefaultExecutor() == exec
}

// Reset clears the cache unconditionally; the next Lookup rebuilds from
// the broker regardless of whether the current Snapshot is still valid.
func (m *Mono) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	m.handler = nil
	m.receiver = nil
	m.receiverExec = nil
	m.sameExecutor = false
}

// ForceResolve triggers a rebuild purely for dependency-report purposes.
func (m *Mono) ForceResolve() { m.rebuildIfStale() }

// DescribeDependency reports what this Mono currently resolves to.
func (m *Mono) DescribeDependency() DependencyInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := DependencyInfo{Direction: Import, Shape: m.shape, Info: m.info}
	if m.receiver != nil {
		info.Targets = []string{m.receiver.ComponentName()}
	}
	return info
}

// PolyEntry is one resolved receiver of a Poly message (an event).
type PolyEntry struct {
	Receiver     component.Component
	ReceiverExec *executor.Executor
	Handler      any
	SameExecutor bool
}

// Poly caches the resolution of a message that may have any number of
// receivers (an event). Unlike Mono it never fails closed on multiple
// receivers -- that is the whole point of Poly.
type Poly struct {
	br     *broker.Broker
	sender component.Component
	info   message.Info
	lookup lookupFunc

	mu       sync.Mutex
	snapshot *broker.Snapshot
	entries  []PolyEntry
}

// NewPoly builds a Poly event resolver for id, resolved via
// LookupEventHandler.
func NewPoly(br *broker.Broker, sender component.Component, info message.Info) *Poly {
	return &Poly{br: br, sender: sender, info: info,
		lookup: func(c component.Component, id message.ID) any { return c.LookupEventHandler(id) }}
}

// Lookup returns the cached receiver list, rebuilding if the broker's
// Snapshot for this id has changed. Receivers whose weak reference has
// gone stale, or whose handler table no longer has this id, are silently
// skipped (StaleHandle is not fatal for Poly).
func (p *Poly) Lookup() []PolyEntry {
	p.rebuildIfStale()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PolyEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

func (p *Poly) rebuildIfStale() {
	p.mu.Lock()
	current := p.br.Current(p.info.ID)
	if len(p.entries) > 0 && current == p.snapshot {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	var entries []PolyEntry
	if current != nil {
		entries = make([]PolyEntry, 0, len(current.Receivers))
		for _, w := range current.Receivers {
			ptr := w.Value()
			if ptr == nil {
				continue
			}
			receiver := *ptr

			h := p.lookup(receiver, p.info.ID)
			if h == nil {
				continue
			}

			exec := receiver.LookupExecutorOverride(p.info.ID)
			if exec == nil {
				exec = receiver.DefaultExecutor()
			}

			entries = append(entries, PolyEntry{
				Receiver:     receiver,
				ReceiverExec: exec,
				Handler:      h,
				SameExecutor: p.sender.DefaultExecutor() == exec,
			})
		}
	}

	p.mu.Lock()
	p.snapshot = current
	p.entries = entries
	p.mu.Unlock()
}

// Reset clears the cache unconditionally.
func (p *Poly) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = nil
	p.entries = nil
}

// ForceResolve triggers a rebuild purely for dependency-report purposes.
func (p *Poly) ForceResolve() { p.rebuildIfStale() }

// DescribeDependency reports every receiver this Poly currently resolves
// to.
func (p *Poly) DescribeDependency() DependencyInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := DependencyInfo{Direction: Export, Shape: AsyncPolyShape, Info: p.info}
	for _, e := range p.entries {
		info.Targets = append(info.Targets, e.Receiver.ComponentName())
	}
	return info
}

// Package broker implements the central registry mapping a message id to
// the current immutable set of components that receive it. Snapshots are
// never mutated in place -- every Associate, Disassociate, or Invalidate
// call publishes a brand new *Snapshot, which is exactly the signal
// resolvers use to know their cached view is stale.
package broker

import (
	"sync"
	"weak"

	"github.com/backman-dev/minicomps/component"
	"github.com/backman-dev/minicomps/message"
)

// Snapshot is an immutable receiver set for one message id. Receivers are
// held weakly, anchored on the *component.Component slot the owning
// component keeps alive for exactly as long as the component itself is
// reachable (see base.Base's self field) -- a component that is dropped
// without calling Unpublish does not get kept alive merely by appearing
// in a stale snapshot.
type Snapshot struct {
	Receivers []weak.Pointer[component.Component]
}

// Broker maps message ids to their current Snapshot.
type Broker struct {
	mu     sync.Mutex
	active map[message.ID]*Snapshot
}

// New creates an empty Broker.
func New() *Broker {
	return &Broker{active: make(map[message.ID]*Snapshot)}
}

// Associate adds ref as a receiver of id, publishing a new Snapshot. ref
// must point to a Component slot the caller keeps alive for as long as
// the component is meant to be reachable through the broker (typically a
// field on the component's own struct, set to itself). Any *Snapshot a
// resolver is still holding for id is now stale: resolvers detect this by
// comparing pointer identity against Current, not by waiting for a
// weak.Pointer to expire.
func (b *Broker) Associate(id message.ID, ref *component.Component) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := b.active[id]
	next := make([]weak.Pointer[component.Component], 0, len(receiversOf(old))+1)
	next = append(next, receiversOf(old)...)
	next = append(next, weak.Make(ref))
	b.active[id] = &Snapshot{Receivers: next}
}

// Disassociate removes ref from id's receiver set (along with any entries
// whose weak reference has already gone stale), publishing a new
// Snapshot.
func (b *Broker) Disassociate(id message.ID, ref *component.Component) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disassociateLocked(id, ref)
}

func (b *Broker) disassociateLocked(id message.ID, ref *component.Component) {
	old := b.active[id]
	if old == nil {
		return
	}

	next := make([]weak.Pointer[component.Component], 0, len(old.Receivers))
	for _, w := range old.Receivers {
		ptr := w.Value()
		if ptr == nil || ptr == ref {
			continue
		}
		next = append(next, w)
	}
	b.active[id] = &Snapshot{Receivers: next}
}

// Invalidate publishes a fresh, content-equal Snapshot for id, expiring
// every cached reference a resolver holds without changing the receiver
// set itself. Used after a filter prepend swaps a handler's pointer value
// while keeping the same publishing component.
func (b *Broker) Invalidate(id message.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := b.active[id]
	next := make([]weak.Pointer[component.Component], len(receiversOf(old)))
	copy(next, receiversOf(old))
	b.active[id] = &Snapshot{Receivers: next}
}

// DisassociateEverything removes ref from every message id it is
// currently associated with. The id set is snapshotted under lock before
// iterating and then released before mutation begins, per-id, under lock
// again -- deliberately avoiding the iterator-invalidation hazard of
// mutating active while ranging over it live.
func (b *Broker) DisassociateEverything(ref *component.Component) {
	b.mu.Lock()
	ids := make([]message.ID, 0, len(b.active))
	for id := range b.active {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Disassociate(id, ref)
	}
}

// Current returns the Snapshot currently published for id, or nil if no
// component has ever been associated with it. Resolvers compare the
// pointer they last cached against this value to decide whether a
// rebuild is necessary.
func (b *Broker) Current(id message.ID) *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active[id]
}

func receiversOf(s *Snapshot) []weak.Pointer[component.Component] {
	if s == nil {
		return nil
	}
	return s.Receivers
}

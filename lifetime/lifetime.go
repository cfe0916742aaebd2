// Package lifetime provides the cancellation token used to drop async
// callbacks whose owning scope has gone away. A Lifetime is an owning
// token; a Weak handle created from it expires the moment the Lifetime is
// Reset, regardless of whether the old token has been garbage collected
// yet.
package lifetime

import (
	"sync"
	"weak"
)

// Lifetime is an owning cancellation token. A component holds one default
// Lifetime; sub-scopes (a session, a request) own their own and Reset it
// when the scope ends.
type Lifetime struct {
	mu sync.Mutex
	// token is a non-zero-size allocation: pointers to zero-size values
	// may all share one address, which would make every generation look
	// identical.
	token *byte
}

// New creates a Lifetime that has not been reset.
func New() *Lifetime {
	return &Lifetime{token: new(byte)}
}

// Weak mints a weak handle tied to the Lifetime's current generation. The
// handle expires as soon as Reset is called, independent of GC timing --
// Expired compares what the handle's weak.Pointer still refers to against
// the Lifetime's current token, so an old token that is still reachable
// and one that has already been collected (Value returns nil) both read
// as expired.
func (l *Lifetime) Weak() Weak {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Weak{lifetime: l, generation: weak.Make(l.token)}
}

// Reset expires every Weak handle minted before this call.
func (l *Lifetime) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.token = new(byte)
}

// Weak is a non-owning handle into a Lifetime's generation at the moment
// it was minted.
type Weak struct {
	lifetime   *Lifetime
	generation weak.Pointer[byte]
}

// Expired reports whether the Lifetime has been Reset since this handle
// was minted.
func (w Weak) Expired() bool {
	if w.lifetime == nil {
		return true
	}
	w.lifetime.mu.Lock()
	current := w.lifetime.token
	w.lifetime.mu.Unlock()
	return w.generation.Value() != current
}

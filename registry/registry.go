// Package registry is the composition root: it holds every component
// built for one broker.Broker, publishes and unpublishes them as a unit
// in a defined order, and reports the dependency graph declared through
// their tracked resolver.Resolver references.
package registry

import (
	"errors"
	"fmt"

	"github.com/backman-dev/minicomps/base"
	"github.com/backman-dev/minicomps/broker"
	"github.com/backman-dev/minicomps/resolver"
)

// Publisher is satisfied by any component that can join and leave a
// Registry as a unit -- in practice, anything embedding *base.Base and
// exposing it via Underlying().
type Publisher interface {
	ComponentName() string
	Publish()
	Unpublish()
	Underlying() *base.Base
}

// Registry owns an ordered set of components sharing one broker.Broker.
// Order matters: PublishAll runs forward, UnpublishAll runs in reverse,
// so a component that depends on another at publish time can rely on
// its dependency already being registered.
type Registry struct {
	br         *broker.Broker
	components []Publisher
	byName     map[string]Publisher
}

// New creates an empty Registry backed by br.
func New(br *broker.Broker) *Registry {
	return &Registry{br: br, byName: make(map[string]Publisher)}
}

// Broker returns the broker.Broker every registered component shares.
func (r *Registry) Broker() *broker.Broker { return r.br }

// ErrDuplicateName is wrapped (with the offending name) in the error
// Register returns when a component with the same ComponentName is
// already registered; test for it with errors.Is.
var ErrDuplicateName = errors.New("registry: component name already registered")

// Register appends p to the registration order.
func (r *Registry) Register(p Publisher) error {
	name := p.ComponentName()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	r.byName[name] = p
	r.components = append(r.components, p)
	return nil
}

// Lookup returns the registered component named name, if any.
func (r *Registry) Lookup(name string) (Publisher, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// PublishAll calls Publish on every registered component, in
// registration order.
func (r *Registry) PublishAll() {
	for _, p := range r.components {
		p.Publish()
	}
}

// UnpublishAll calls Unpublish on every registered component, in reverse
// registration order, so a component's dependencies are still published
// while it tears itself down.
func (r *Registry) UnpublishAll() {
	for i := len(r.components) - 1; i >= 0; i-- {
		r.components[i].Unpublish()
	}
}

// Edge is one entry in the dependency graph reported by Graph. Every edge
// runs from the dependent component to the one it depends on: an import
// edge runs from the declaring component to whoever currently satisfies
// it; an export edge runs from whoever currently consumes it (a
// subscriber) to the declaring component.
type Edge struct {
	From      string
	To        string
	Name      string
	Direction string
}

// Graph walks every registered component's tracked resolver.Resolver set
// and returns one Edge per currently-resolved target.
func (r *Registry) Graph() []Edge {
	var edges []Edge
	for _, p := range r.components {
		for _, info := range dependenciesOf(p) {
			for _, target := range info.Targets {
				from, to := p.ComponentName(), target
				if info.Direction == resolver.Export {
					from, to = target, p.ComponentName()
				}
				edges = append(edges, Edge{From: from, To: to, Name: info.Info.Name, Direction: info.Direction.String()})
			}
		}
	}
	return edges
}

// UnresolvedDependency names one tracked dependency Verify found with no
// current receiver.
type UnresolvedDependency struct {
	Component string
	Message   string
}

// Verify reports every tracked import dependency across every registered
// component that is currently unresolved (no handler published to
// satisfy it). It is meant to run once after PublishAll, as a fail-fast
// check that the composition root wired everything it expected to.
// Export dependencies (events) are never reported here: a published
// event with zero current subscribers is a valid silent no-op, not a
// composition error.
func (r *Registry) Verify() []UnresolvedDependency {
	var unresolved []UnresolvedDependency
	for _, p := range r.components {
		for _, res := range p.Underlying().Tracked() {
			res.ForceResolve()
			info := res.DescribeDependency()
			if info.Direction == resolver.Import && len(info.Targets) == 0 {
				unresolved = append(unresolved, UnresolvedDependency{
					Component: p.ComponentName(),
					Message:   info.Info.Name,
				})
			}
		}
	}
	return unresolved
}

func dependenciesOf(p Publisher) []resolver.DependencyInfo {
	tracked := p.Underlying().Tracked()
	out := make([]resolver.DependencyInfo, 0, len(tracked))
	for _, res := range tracked {
		out = append(out, res.DescribeDependency())
	}
	return out
}

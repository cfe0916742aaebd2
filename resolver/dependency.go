package resolver

import "github.com/backman-dev/minicomps/message"

// Direction says which side of a dependency edge a resolver sits on: a
// Mono is always an Import (the owning component depends on whoever
// publishes it); a Poly is always an Export (the owning component
// publishes it and its subscribers depend on it, so registry.Graph draws
// the edge from each subscriber to the owning component).
type Direction int

const (
	Import Direction = iota
	Export
)

func (d Direction) String() string {
	if d == Export {
		return "export"
	}
	return "import"
}

// Shape identifies which kind of reference produced a DependencyInfo.
type Shape int

const (
	SyncMonoShape Shape = iota
	AsyncMonoShape
	AsyncPolyShape
	InterfaceShape
)

func (s Shape) String() string {
	switch s {
	case SyncMonoShape:
		return "sync_mono"
	case AsyncMonoShape:
		return "async_mono"
	case AsyncPolyShape:
		return "async_poly"
	case InterfaceShape:
		return "interface"
	default:
		return "unknown"
	}
}

// DependencyInfo is one edge in a component's dependency graph, as
// reported by Resolver.DescribeDependency. Targets is empty when the
// reference is currently unresolved.
type DependencyInfo struct {
	Direction Direction
	Shape     Shape
	Info      message.Info
	Targets   []string
}

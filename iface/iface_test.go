package iface_test

import (
	"context"
	"testing"

	"github.com/backman-dev/minicomps/broker"
	"github.com/backman-dev/minicomps/component"
	"github.com/backman-dev/minicomps/executor"
	"github.com/backman-dev/minicomps/iface"
	"github.com/backman-dev/minicomps/lifetime"
	"github.com/backman-dev/minicomps/listener"
	"github.com/backman-dev/minicomps/message"
)

type stub struct {
	name              string
	exec              *executor.Executor
	lt                *lifetime.Lifetime
	lock              *component.Lock
	interfaceHandlers map[message.ID]any

	// self anchors the weak.Pointer the broker holds for this stub,
	// mirroring base.Base's own self field.
	self component.Component
}

func newStub(name string) *stub {
	s := &stub{name: name, exec: executor.New(), lt: lifetime.New(), lock: component.NewLock(), interfaceHandlers: make(map[message.ID]any)}
	s.self = s
	return s
}

func (s *stub) ComponentName() string                         { return s.name }
func (s *stub) DefaultExecutor() *executor.Executor            { return s.exec }
func (s *stub) DefaultLifetime() *lifetime.Lifetime            { return s.lt }
func (s *stub) Listener() listener.Listener                    { return nil }
func (s *stub) AllowDirectCallAsync() bool                     { return true }
func (s *stub) AllowLockingCallsSync() bool                    { return true }
func (s *stub) Lock() *component.Lock                          { return s.lock }
func (s *stub) LookupSyncHandler(message.ID) any               { return nil }
func (s *stub) LookupAsyncHandler(message.ID) any               { return nil }
func (s *stub) LookupEventHandler(message.ID) any               { return nil }
func (s *stub) LookupInterfaceHandler(id message.ID) any        { return s.interfaceHandlers[id] }
func (s *stub) LookupExecutorOverride(message.ID) *executor.Executor { return nil }

var _ component.Component = (*stub)(nil)

// greeter is a test Group: Bind captures which sender resolved it so the
// test can assert the binding is sender-scoped rather than shared.
type greeter struct {
	boundTo string
}

func (g greeter) Bind(_ context.Context, sender component.Component) iface.Group {
	return greeter{boundTo: sender.ComponentName()}
}

func (g greeter) Greet() string { return "hello, " + g.boundTo }

func TestRef_LookupBindsToResolvingSender(t *testing.T) {
	br := broker.New()
	info := message.NewInfo("greeter")

	publisher := newStub("publisher")
	publisher.interfaceHandlers[info.ID] = greeter{}
	br.Associate(info.ID, &publisher.self)

	sender := newStub("caller")
	r := iface.New[greeter](br, sender, info)

	g, ok := r.Lookup(context.Background())
	if !ok {
		t.Fatal("Lookup() ok = false, want true")
	}
	if got := g.Greet(); got != "hello, caller" {
		t.Fatalf("Greet() = %q, want %q", got, "hello, caller")
	}
}

func TestRef_LookupNoPublisherFails(t *testing.T) {
	br := broker.New()
	info := message.NewInfo("greeter")
	sender := newStub("caller")

	r := iface.New[greeter](br, sender, info)
	_, ok := r.Lookup(context.Background())
	if ok {
		t.Fatal("Lookup() ok = true with no publisher, want false")
	}
}

func TestRef_Reachable(t *testing.T) {
	br := broker.New()
	info := message.NewInfo("greeter")
	sender := newStub("caller")

	r := iface.New[greeter](br, sender, info)
	if r.Reachable() {
		t.Fatal("Reachable() = true with no publisher, want false")
	}

	publisher := newStub("publisher")
	publisher.interfaceHandlers[info.ID] = greeter{}
	br.Associate(info.ID, &publisher.self)

	if !r.Reachable() {
		t.Fatal("Reachable() = false after a publisher associated, want true")
	}
}

func TestRef_LookupTypeMismatchFails(t *testing.T) {
	br := broker.New()
	info := message.NewInfo("greeter")

	publisher := newStub("publisher")
	publisher.interfaceHandlers[info.ID] = "not-a-greeter"
	br.Associate(info.ID, &publisher.self)

	sender := newStub("caller")
	r := iface.New[greeter](br, sender, info)
	_, ok := r.Lookup(context.Background())
	if ok {
		t.Fatal("Lookup() ok = true despite a handler-table/type mismatch, want false")
	}
}

func TestRef_Reset_ForcesRebind(t *testing.T) {
	br := broker.New()
	info := message.NewInfo("greeter")

	publisher := newStub("publisher")
	publisher.interfaceHandlers[info.ID] = greeter{}
	br.Associate(info.ID, &publisher.self)

	sender := newStub("caller")
	r := iface.New[greeter](br, sender, info)
	if _, ok := r.Lookup(context.Background()); !ok {
		t.Fatal("expected an initial resolution")
	}

	r.Reset()

	if _, ok := r.Lookup(context.Background()); !ok {
		t.Fatal("Lookup() after Reset() ok = false, want true (re-resolved)")
	}
}

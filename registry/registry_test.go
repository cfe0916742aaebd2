package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/backman-dev/minicomps/base"
	"github.com/backman-dev/minicomps/broker"
	"github.com/backman-dev/minicomps/event"
	"github.com/backman-dev/minicomps/message"
	"github.com/backman-dev/minicomps/query"
	"github.com/backman-dev/minicomps/registry"
)

// producer publishes a sync query; consumer imports it. Used to exercise
// Registry.Graph/Verify across a real import/export edge.
type producer struct {
	*base.Base
}

func newProducer(br *broker.Broker, name string) *producer {
	return &producer{Base: base.New(name, br)}
}

func (p *producer) Underlying() *base.Base { return p.Base }
func (p *producer) Publish() {
	base.PublishSyncQuery(p.Base, greetInfo, query.SyncHandler[string, string](func(_ context.Context, req string) string {
		return "hi " + req
	}))
}
func (p *producer) Unpublish() { p.Base.Unpublish(greetInfo.ID) }

type consumer struct {
	*base.Base
	greet *query.SyncQuery[string, string]
}

func newConsumer(br *broker.Broker, name string) *consumer {
	c := &consumer{Base: base.New(name, br)}
	c.greet = query.NewSyncQuery[string, string](br, c.Base, greetInfo)
	c.Base.Track(c.greet)
	return c
}

func (c *consumer) Underlying() *base.Base { return c.Base }
func (c *consumer) Publish()               {}
func (c *consumer) Unpublish()              {}

var greetInfo = message.NewInfo("greet")
var announcementInfo = message.NewInfo("announcement")

// announcer publishes an event and tracks it, with no subscribers ever
// registered. Used to exercise Verify's export/import gating: a tracked
// Poly with zero receivers is a valid silent no-op, not an unresolved
// dependency.
type announcer struct {
	*base.Base
	announce *event.Event[string]
}

func newAnnouncer(br *broker.Broker, name string) *announcer {
	a := &announcer{Base: base.New(name, br)}
	a.announce = event.New[string](br, a.Base, announcementInfo)
	a.Base.Track(a.announce)
	return a
}

func (a *announcer) Underlying() *base.Base { return a.Base }
func (a *announcer) Publish()               {}
func (a *announcer) Unpublish()             {}

func TestRegister_DuplicateNameFails(t *testing.T) {
	br := broker.New()
	r := registry.New(br)
	if err := r.Register(newProducer(br, "dup")); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := r.Register(newProducer(br, "dup")); !errors.Is(err, registry.ErrDuplicateName) {
		t.Fatalf("second Register() error = %v, want ErrDuplicateName", err)
	}
}

func TestLookup_FindsRegisteredComponent(t *testing.T) {
	br := broker.New()
	r := registry.New(br)
	p := newProducer(br, "p")
	_ = r.Register(p)

	got, ok := r.Lookup("p")
	if !ok || got.ComponentName() != "p" {
		t.Fatalf("Lookup(\"p\") = (%v, %v), want (p, true)", got, ok)
	}

	if _, ok := r.Lookup("missing"); ok {
		t.Fatal("Lookup(\"missing\") ok = true, want false")
	}
}

func TestPublishAll_PublishesEveryComponent(t *testing.T) {
	br := broker.New()
	r := registry.New(br)
	p := newProducer(br, "p")
	c := newConsumer(br, "c")
	_ = r.Register(p)
	_ = r.Register(c)

	r.PublishAll()

	if !c.greet.Reachable() {
		t.Fatal("consumer cannot reach producer's published query after PublishAll")
	}
}

func TestUnpublishAll_MakesPublishedQueriesUnreachable(t *testing.T) {
	br := broker.New()
	r := registry.New(br)
	p := newProducer(br, "p")
	c := newConsumer(br, "c")
	_ = r.Register(p)
	_ = r.Register(c)
	r.PublishAll()

	r.UnpublishAll()

	if c.greet.Reachable() {
		t.Fatal("producer's query still reachable after UnpublishAll")
	}
}

func TestGraph_ReportsImportEdge(t *testing.T) {
	br := broker.New()
	r := registry.New(br)
	p := newProducer(br, "p")
	c := newConsumer(br, "c")
	_ = r.Register(p)
	_ = r.Register(c)
	r.PublishAll()
	c.greet.Reachable() // force the resolver to resolve at least once

	edges := r.Graph()
	found := false
	for _, e := range edges {
		if e.From == "c" && e.To == "p" && e.Direction == "import" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Graph() = %+v, want an import edge from c to p", edges)
	}
}

func TestVerify_ReportsUnresolvedDependency(t *testing.T) {
	br := broker.New()
	r := registry.New(br)
	c := newConsumer(br, "c") // no producer registered
	_ = r.Register(c)
	r.PublishAll()

	unresolved := r.Verify()
	if len(unresolved) != 1 || unresolved[0].Component != "c" {
		t.Fatalf("Verify() = %+v, want one unresolved dependency for c", unresolved)
	}
}

func TestVerify_IgnoresUnresolvedExportWithNoSubscribers(t *testing.T) {
	br := broker.New()
	r := registry.New(br)
	a := newAnnouncer(br, "a") // no subscribers ever registered
	_ = r.Register(a)
	r.PublishAll()

	if got := r.Verify(); len(got) != 0 {
		t.Fatalf("Verify() = %+v, want empty: a subscriberless event is not an unresolved dependency", got)
	}
}

func TestVerify_EmptyWhenEverythingResolves(t *testing.T) {
	br := broker.New()
	r := registry.New(br)
	p := newProducer(br, "p")
	c := newConsumer(br, "c")
	_ = r.Register(p)
	_ = r.Register(c)
	r.PublishAll()

	if got := r.Verify(); len(got) != 0 {
		t.Fatalf("Verify() = %+v, want empty", got)
	}
}

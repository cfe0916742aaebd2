package message_test

import (
	"context"
	"testing"

	"github.com/backman-dev/minicomps/message"
)

func TestNewInfo_AssignsDistinctIDs(t *testing.T) {
	a := message.NewInfo("a")
	b := message.NewInfo("b")
	if a.ID == b.ID {
		t.Fatalf("NewInfo assigned the same ID to two distinct declarations: %d", a.ID)
	}
}

func TestNewTraceID_ProducesNonEmptyDistinctValues(t *testing.T) {
	a := message.NewTraceID()
	b := message.NewTraceID()
	if a == "" || b == "" {
		t.Fatal("NewTraceID returned an empty TraceID")
	}
	if a == b {
		t.Fatalf("NewTraceID returned the same value twice: %v", a)
	}
}

func TestWithTraceID_MintsOnFirstCall(t *testing.T) {
	ctx, trace := message.WithTraceID(context.Background())
	if trace == "" {
		t.Fatal("WithTraceID minted an empty TraceID")
	}
	if ctx == context.Background() {
		t.Fatal("WithTraceID did not return a derived context")
	}
}

func TestWithTraceID_ReusesExistingTrace(t *testing.T) {
	ctx, first := message.WithTraceID(context.Background())

	_, second := message.WithTraceID(ctx)
	if second != first {
		t.Fatalf("WithTraceID on a context that already carries a trace minted a new one: first=%v second=%v", first, second)
	}
}

package observability

import (
	"context"
	"time"

	"github.com/backman-dev/minicomps/listener"
	"github.com/backman-dev/minicomps/message"
)

// EventEnqueue and EventInvoke are the two EventTypes an ObserverListener
// emits; event.Data["kind"] carries the listener.Kind string and
// event.Data["sender"]/["receiver"] the component names involved.
const (
	EventEnqueue EventType = "messaging.enqueue"
	EventInvoke  EventType = "messaging.invoke"
)

// ObserverListener adapts an Observer into a listener.Listener, so every
// component can be wired to the same ambient logging/metrics pipeline
// without depending on the observability package directly.
type ObserverListener struct {
	ctx context.Context
	obs Observer
}

// NewObserverListener builds a listener.Listener that reports every
// OnEnqueue/OnInvoke call to obs as an Event, using ctx as the context
// passed through to Observer.OnEvent.
func NewObserverListener(ctx context.Context, obs Observer) *ObserverListener {
	return &ObserverListener{ctx: ctx, obs: obs}
}

func (o *ObserverListener) OnEnqueue(sender, receiver listener.Named, info message.Info, kind listener.Kind, trace message.TraceID) {
	o.emit(EventEnqueue, sender, receiver, info, kind, trace)
}

func (o *ObserverListener) OnInvoke(sender, receiver listener.Named, info message.Info, kind listener.Kind, trace message.TraceID) {
	o.emit(EventInvoke, sender, receiver, info, kind, trace)
}

func (o *ObserverListener) emit(t EventType, sender, receiver listener.Named, info message.Info, kind listener.Kind, trace message.TraceID) {
	o.obs.OnEvent(o.ctx, Event{
		Type:      t,
		Level:     LevelVerbose,
		Timestamp: time.Now(),
		Source:    info.Name,
		Data: map[string]any{
			"kind":     kind.String(),
			"sender":   sender.ComponentName(),
			"receiver": receiver.ComponentName(),
			"trace_id": string(trace),
		},
	})
}

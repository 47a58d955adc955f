package modgraph

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Observer receives lifecycle events as CloudEvents.
type Observer interface {
	// OnEvent is called synchronously on the goroutine that caused the
	// event. Observers should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error
	ObserverID() string
}

// Event types emitted by the application.
const (
	EventTypeNodeConfigured = "com.modgraph.node.configured"
	EventTypeNodeStarted    = "com.modgraph.node.started"
	EventTypeNodeStopped    = "com.modgraph.node.stopped"
	EventTypeNodeFailed     = "com.modgraph.node.failed"
	EventTypePhaseChanged   = "com.modgraph.phase.changed"
	EventTypeConfigReloaded = "com.modgraph.config.reloaded"
)

// NodeEvent is the data payload of node events.
type NodeEvent struct {
	Path  string `json:"path"`
	Kind  Kind   `json:"kind"`
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// PhaseEvent is the data payload of phase events.
type PhaseEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ReloadEvent is the data payload of reload events.
type ReloadEvent struct {
	Changed []string `json:"changed"`
}

// NewCloudEvent builds a CloudEvent with a time-ordered UUIDv7 id.
func NewCloudEvent(eventType, source string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(eventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

func eventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) *FunctionalObserver {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string { return f.id }

type observerRegistration struct {
	observer   Observer
	eventTypes map[string]bool
}

// observers is the set of registered observers, delivered to in
// registration order.
type observers struct {
	mu    sync.RWMutex
	order []string
	regs  map[string]*observerRegistration
}

func (o *observers) register(obs Observer, eventTypes ...string) {
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.regs == nil {
		o.regs = make(map[string]*observerRegistration)
	}
	if _, exists := o.regs[obs.ObserverID()]; !exists {
		o.order = append(o.order, obs.ObserverID())
	}
	o.regs[obs.ObserverID()] = &observerRegistration{observer: obs, eventTypes: types}
}

func (o *observers) unregister(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.regs[id]; !exists {
		return false
	}
	delete(o.regs, id)
	for i, v := range o.order {
		if v == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return true
}

func (o *observers) snapshot(eventType string) []Observer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Observer, 0, len(o.order))
	for _, id := range o.order {
		reg := o.regs[id]
		if len(reg.eventTypes) > 0 && !reg.eventTypes[eventType] {
			continue
		}
		out = append(out, reg.observer)
	}
	return out
}

// notify delivers event to every interested observer. Observer errors and
// panics are logged and never reach the caller.
func (o *observers) notify(ctx context.Context, logger Logger, event cloudevents.Event) {
	for _, obs := range o.snapshot(event.Type()) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Observer panicked", "observerID", obs.ObserverID(), "event", event.Type(), "panic", fmt.Sprint(r))
				}
			}()
			if err := obs.OnEvent(ctx, event); err != nil {
				logger.Error("Observer error", "observerID", obs.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}
}

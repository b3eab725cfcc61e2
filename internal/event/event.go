// Package event implements the typed event-dispatch primitive the transport
// and ingestion components publish their lifecycle through. An Emitter holds
// ordered listener lists per event name; Emit delivers synchronously, in
// registration order, and reports only whether anyone was listening.
package event

import (
	"context"
	"sync"
)

// Handler is the callback signature for event listeners. A returned error is
// recorded on the delivery and on the Listener, never surfaced to whoever
// called Emit.
type Handler func(*Event) error

// Event is the single-use record passed to one listener for one dispatch.
type Event struct {
	name    string
	payload any
	target  any
	binding any
	ctx     context.Context
	cancel  context.CancelFunc
	err     error
}

func newEvent(name string, payload, target, binding any) *Event {
	ctx, cancel := context.WithCancel(context.Background())
	return &Event{
		name:    name,
		payload: payload,
		target:  target,
		binding: binding,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Name returns the event name this delivery belongs to.
func (e *Event) Name() string { return e.name }

// Payload returns the value passed to Emit.
func (e *Event) Payload() any { return e.payload }

// Target returns the optional dispatch target passed to EmitTo.
func (e *Event) Target() any { return e.target }

// Binding returns the context value bound at registration, or nil when the
// listener was registered as a bare handler.
func (e *Event) Binding() any { return e.binding }

// Context returns the per-dispatch cancellation scope. The emitter cancels
// it after the full dispatch loop for this Emit call has finished.
func (e *Event) Context() context.Context { return e.ctx }

// Err returns the error the handler returned for this delivery.
func (e *Event) Err() error { return e.err }

// Listener is the prebuilt registration record: a handler plus its bound
// context and once flag. Registering a Listener and registering its bare
// handler are the same subscription for deduplication purposes.
type Listener struct {
	Fn      Handler
	Binding any
	Once    bool

	mu      sync.Mutex
	lastErr error
}

// NewListener wraps a handler in a listener record.
func NewListener(fn Handler) *Listener {
	return &Listener{Fn: fn}
}

// Err returns the error recorded by the most recent dispatch to this
// listener.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func (l *Listener) record(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
}

package event

import (
	"reflect"
	"sync"

	errspkg "github.com/couriermq/courier/internal/errors"
)

// DefaultListenerCap is the per-name listener limit used by NewEmitter.
const DefaultListenerCap = 32

type subscription struct {
	fn       Handler
	key      uintptr
	binding  any
	once     bool
	listener *Listener
}

// Emitter dispatches named events to ordered listener lists. All methods are
// safe for concurrent use; deliveries for one Emit call run synchronously on
// the calling goroutine.
type Emitter struct {
	mu       sync.Mutex
	cap      int
	subs     map[string][]*subscription
	disposed bool
}

// NewEmitter creates an emitter with the default per-name listener cap.
func NewEmitter() *Emitter {
	return NewEmitterWithCap(DefaultListenerCap)
}

// NewEmitterWithCap creates an emitter with the given per-name listener cap.
// A cap below one falls back to the default.
func NewEmitterWithCap(cap int) *Emitter {
	if cap < 1 {
		cap = DefaultListenerCap
	}
	return &Emitter{cap: cap, subs: make(map[string][]*subscription)}
}

// handlerKey identifies a handler for deduplication. Two closures created
// from the same function literal share an identity; named functions and
// methods are always distinct.
func handlerKey(fn Handler) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// On registers a handler for an event name. Registering a handler that is
// already subscribed for that name is a no-op.
func (e *Emitter) On(name string, fn Handler) error {
	return e.add(name, &subscription{fn: fn, key: handlerKey(fn)})
}

// Once registers a handler that is removed after its first dispatch.
func (e *Emitter) Once(name string, fn Handler) error {
	return e.add(name, &subscription{fn: fn, key: handlerKey(fn), once: true})
}

// OnListener registers a prebuilt listener record. Deduplication unwraps the
// record and compares the underlying handler.
func (e *Emitter) OnListener(name string, l *Listener) error {
	if l == nil || l.Fn == nil {
		return errspkg.New(errspkg.KindInvalidArgument, "event.OnListener", "listener with a handler is required")
	}
	return e.add(name, &subscription{
		fn:       l.Fn,
		key:      handlerKey(l.Fn),
		binding:  l.Binding,
		once:     l.Once,
		listener: l,
	})
}

func (e *Emitter) add(name string, sub *subscription) error {
	if sub.fn == nil {
		return errspkg.New(errspkg.KindInvalidArgument, "event.On", "handler is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return errspkg.New(errspkg.KindResourceDisposed, "event.On", "emitter is disposed")
	}
	list := e.subs[name]
	for _, s := range list {
		if s.key == sub.key {
			return nil
		}
	}
	if len(list) >= e.cap {
		return errspkg.New(errspkg.KindInvalidArgument, "event.On", "listener cap %d reached for %q", e.cap, name)
	}
	e.subs[name] = append(list, sub)
	return nil
}

// Off removes a handler from an event name. Removing a handler that is not
// subscribed is a no-op.
func (e *Emitter) Off(name string, fn Handler) error {
	if fn == nil {
		return errspkg.New(errspkg.KindInvalidArgument, "event.Off", "handler is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return errspkg.New(errspkg.KindResourceDisposed, "event.Off", "emitter is disposed")
	}
	key := handlerKey(fn)
	list := e.subs[name]
	for i, s := range list {
		if s.key == key {
			e.subs[name] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

// ListenerCount returns the number of listeners for an event name.
func (e *Emitter) ListenerCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[name])
}

// Emit dispatches payload to every listener currently registered for name,
// in registration order, and reports whether at least one listener existed.
func (e *Emitter) Emit(name string, payload any) bool {
	return e.EmitTo(name, payload, nil)
}

// EmitTo is Emit with an explicit dispatch target carried on each delivery.
//
// Each listener receives its own single-use Event with a per-dispatch
// cancellation scope; all scopes for one call are cancelled together after
// the loop. Once-listeners are removed in a batch after the loop, so a
// once-listener firing never skips delivery to a later listener of the same
// call. Listeners registered mid-dispatch are not delivered to until the
// next Emit.
func (e *Emitter) EmitTo(name string, payload, target any) bool {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return false
	}
	list := e.subs[name]
	if len(list) == 0 {
		e.mu.Unlock()
		return false
	}
	snapshot := make([]*subscription, len(list))
	copy(snapshot, list)
	e.mu.Unlock()

	events := make([]*Event, 0, len(snapshot))
	fired := make(map[*subscription]bool, len(snapshot))
	for _, s := range snapshot {
		ev := newEvent(name, payload, target, s.binding)
		ev.err = s.fn(ev)
		if s.listener != nil {
			s.listener.record(ev.err)
		}
		events = append(events, ev)
		if s.once {
			fired[s] = true
		}
	}

	if len(fired) > 0 {
		e.mu.Lock()
		if !e.disposed {
			kept := e.subs[name][:0]
			for _, s := range e.subs[name] {
				if !fired[s] {
					kept = append(kept, s)
				}
			}
			if len(kept) == 0 {
				delete(e.subs, name)
			} else {
				e.subs[name] = kept
			}
		}
		e.mu.Unlock()
	}

	for _, ev := range events {
		ev.cancel()
	}
	return true
}

// Dispose clears every subscription and leaves the emitter inert: further
// registrations and removals fail, Emit reports no listeners.
func (e *Emitter) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.disposed = true
	e.subs = nil
}

// Disposed reports whether Dispose has been called.
func (e *Emitter) Disposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

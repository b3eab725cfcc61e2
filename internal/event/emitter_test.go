package event

import (
	"context"
	"errors"
	"testing"

	errspkg "github.com/couriermq/courier/internal/errors"
)

func TestEmitReportsListenerPresence(t *testing.T) {
	em := NewEmitter()
	if em.Emit("silent", nil) {
		t.Error("Emit with no listeners should report false")
	}

	if err := em.On("ping", func(*Event) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if !em.Emit("ping", nil) {
		t.Error("Emit with a listener should report true")
	}
	if em.Emit("other", nil) {
		t.Error("Emit on a different name should report false")
	}
}

func TestDispatchOrderAndPayload(t *testing.T) {
	em := NewEmitter()
	var order []string

	em.On("evt", func(ev *Event) error {
		order = append(order, "first:"+ev.Payload().(string))
		return nil
	})
	em.On("evt", func(ev *Event) error {
		order = append(order, "second:"+ev.Payload().(string))
		return nil
	})

	em.Emit("evt", "p")
	if len(order) != 2 || order[0] != "first:p" || order[1] != "second:p" {
		t.Errorf("dispatch order = %v", order)
	}
}

func TestDedupSameHandler(t *testing.T) {
	em := NewEmitter()
	calls := 0
	h := func(*Event) error { calls++; return nil }

	if err := em.On("evt", h); err != nil {
		t.Fatal(err)
	}
	if err := em.On("evt", h); err != nil {
		t.Fatalf("duplicate registration should be a no-op, got %v", err)
	}
	if n := em.ListenerCount("evt"); n != 1 {
		t.Fatalf("ListenerCount = %d, want 1", n)
	}

	em.Emit("evt", nil)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDedupUnwrapsListener(t *testing.T) {
	em := NewEmitter()
	h := func(*Event) error { return nil }

	if err := em.On("evt", h); err != nil {
		t.Fatal(err)
	}
	if err := em.OnListener("evt", NewListener(h)); err != nil {
		t.Fatal(err)
	}
	if n := em.ListenerCount("evt"); n != 1 {
		t.Errorf("ListenerCount = %d, want 1", n)
	}
}

func TestListenerCap(t *testing.T) {
	em := NewEmitterWithCap(2)

	if err := em.On("evt", func(*Event) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := em.On("evt", func(*Event) error { return nil }); err != nil {
		t.Fatal(err)
	}
	err := em.On("evt", func(*Event) error { return nil })
	if !errspkg.IsKind(err, errspkg.KindInvalidArgument) {
		t.Errorf("over-cap err = %v, want invalid argument", err)
	}
	if n := em.ListenerCount("evt"); n != 2 {
		t.Errorf("ListenerCount = %d, want 2", n)
	}

	// the cap is per event name
	if err := em.On("evt2", func(*Event) error { return nil }); err != nil {
		t.Errorf("second name rejected: %v", err)
	}
}

func TestOnceBatchRemoval(t *testing.T) {
	em := NewEmitter()
	var got []string

	em.Once("evt", func(*Event) error {
		got = append(got, "once")
		return nil
	})
	em.On("evt", func(*Event) error {
		got = append(got, "after")
		return nil
	})

	em.Emit("evt", nil)
	// the once-listener firing must not skip the listener behind it
	if len(got) != 2 || got[0] != "once" || got[1] != "after" {
		t.Fatalf("first emit dispatched %v", got)
	}

	em.Emit("evt", nil)
	if len(got) != 3 || got[2] != "after" {
		t.Fatalf("second emit dispatched %v", got)
	}
	if n := em.ListenerCount("evt"); n != 1 {
		t.Errorf("ListenerCount = %d, want 1", n)
	}
}

func TestHandlerErrorRecordedNotSurfaced(t *testing.T) {
	em := NewEmitter()
	boom := errors.New("boom")
	l := NewListener(func(*Event) error { return boom })

	if err := em.OnListener("evt", l); err != nil {
		t.Fatal(err)
	}
	if !em.Emit("evt", nil) {
		t.Fatal("Emit should report a listener")
	}
	if l.Err() != boom {
		t.Errorf("Listener.Err = %v, want boom", l.Err())
	}
}

func TestDispatchScopeCancelledAfterLoop(t *testing.T) {
	em := NewEmitter()
	var ctx context.Context

	em.On("evt", func(ev *Event) error {
		ctx = ev.Context()
		if ctx.Err() != nil {
			t.Error("dispatch scope cancelled during delivery")
		}
		return nil
	})

	em.Emit("evt", nil)
	if ctx.Err() != context.Canceled {
		t.Errorf("scope after emit = %v, want canceled", ctx.Err())
	}
}

func TestListenerBindingAndTarget(t *testing.T) {
	em := NewEmitter()
	type owner struct{ id int }
	bound := &owner{id: 7}
	sender := &owner{id: 9}

	l := NewListener(func(ev *Event) error {
		if ev.Binding() != bound {
			t.Errorf("Binding = %#v", ev.Binding())
		}
		if ev.Target() != sender {
			t.Errorf("Target = %#v", ev.Target())
		}
		if ev.Name() != "evt" {
			t.Errorf("Name = %q", ev.Name())
		}
		return nil
	})
	l.Binding = bound

	if err := em.OnListener("evt", l); err != nil {
		t.Fatal(err)
	}
	em.EmitTo("evt", nil, sender)
}

func TestOffRemovesHandler(t *testing.T) {
	em := NewEmitter()
	calls := 0
	h := func(*Event) error { calls++; return nil }

	em.On("evt", h)
	if err := em.Off("evt", h); err != nil {
		t.Fatal(err)
	}
	if em.Emit("evt", nil) {
		t.Error("Emit after Off should report false")
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}

	// removing an unknown handler is a no-op
	if err := em.Off("evt", func(*Event) error { return nil }); err != nil {
		t.Errorf("Off on unknown handler: %v", err)
	}
}

func TestRegistrationDuringDispatchWaits(t *testing.T) {
	em := NewEmitter()
	lateCalls := 0
	late := func(*Event) error { lateCalls++; return nil }

	em.On("evt", func(*Event) error {
		return em.On("evt", late)
	})

	em.Emit("evt", nil)
	if lateCalls != 0 {
		t.Errorf("listener added mid-dispatch ran %d times in same emit", lateCalls)
	}
	em.Emit("evt", nil)
	if lateCalls != 1 {
		t.Errorf("lateCalls = %d, want 1", lateCalls)
	}
}

func TestDisposeLeavesEmitterInert(t *testing.T) {
	em := NewEmitter()
	em.On("evt", func(*Event) error { return nil })
	em.Dispose()

	if !em.Disposed() {
		t.Error("Disposed should report true")
	}
	if em.Emit("evt", nil) {
		t.Error("Emit after dispose should report false")
	}
	if n := em.ListenerCount("evt"); n != 0 {
		t.Errorf("ListenerCount = %d, want 0", n)
	}

	err := em.On("evt", func(*Event) error { return nil })
	if !errspkg.IsKind(err, errspkg.KindResourceDisposed) {
		t.Errorf("On after dispose err = %v, want resource disposed", err)
	}
	err = em.Off("evt", func(*Event) error { return nil })
	if !errspkg.IsKind(err, errspkg.KindResourceDisposed) {
		t.Errorf("Off after dispose err = %v, want resource disposed", err)
	}

	em.Dispose() // idempotent
}

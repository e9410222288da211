package alarm

import (
	"testing"
	"time"
)

func waitFired(t *testing.T, e *Engine) Fired {
	t.Helper()
	select {
	case ev := <-e.C():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alarm to fire")
		return Fired{}
	}
}

func TestEngineFiresPastDueImmediately(t *testing.T) {
	e := NewEngine(4)
	e.Start()
	defer e.Stop()

	at := time.Now().Add(-time.Minute)
	if err := e.RegisterOneShot(1, at, Payload{TaskID: 1, Title: "late"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ev := waitFired(t, e)
	if ev.Slot != 1 || ev.Payload.Title != "late" {
		t.Errorf("fired = %+v", ev)
	}
}

func TestEngineFiresInOrder(t *testing.T) {
	e := NewEngine(4)
	e.Start()
	defer e.Stop()

	now := time.Now()
	// Registered out of order; must fire in trigger order.
	_ = e.RegisterOneShot(2, now.Add(100*time.Millisecond), Payload{TaskID: 2})
	_ = e.RegisterOneShot(1, now.Add(20*time.Millisecond), Payload{TaskID: 1})

	first := waitFired(t, e)
	second := waitFired(t, e)
	if first.Slot != 1 || second.Slot != 2 {
		t.Errorf("fire order = %d, %d; want 1, 2", first.Slot, second.Slot)
	}
}

func TestEngineRegisterReplaces(t *testing.T) {
	e := NewEngine(4)
	e.Start()
	defer e.Stop()

	far := time.Now().Add(time.Hour)
	near := time.Now().Add(20 * time.Millisecond)

	_ = e.RegisterOneShot(5, far, Payload{TaskID: 5, Title: "old"})
	_ = e.RegisterOneShot(5, near, Payload{TaskID: 5, Title: "new"})

	if at, ok := e.Pending(5); !ok || !at.Equal(near) {
		t.Fatalf("Pending(5) = %v, %v; want %v, true", at, ok, near)
	}

	ev := waitFired(t, e)
	if ev.Payload.Title != "new" {
		t.Errorf("fired stale payload %q", ev.Payload.Title)
	}

	// Only one entry ever existed for the slot.
	select {
	case extra := <-e.C():
		t.Errorf("unexpected second fire: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngineCancel(t *testing.T) {
	e := NewEngine(4)
	e.Start()
	defer e.Stop()

	_ = e.RegisterOneShot(9, time.Now().Add(30*time.Millisecond), Payload{TaskID: 9})
	if err := e.Cancel(9); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := e.Pending(9); ok {
		t.Error("slot still pending after cancel")
	}

	select {
	case ev := <-e.C():
		t.Errorf("cancelled alarm fired: %+v", ev)
	case <-time.After(80 * time.Millisecond):
	}

	// Cancel of an empty slot never errors.
	if err := e.Cancel(9); err != nil {
		t.Fatalf("cancel empty slot: %v", err)
	}
}

func TestEngineStop(t *testing.T) {
	e := NewEngine(4)
	e.Start()

	_ = e.RegisterOneShot(1, time.Now().Add(time.Hour), Payload{TaskID: 1})
	e.Stop()

	if err := e.RegisterOneShot(2, time.Now(), Payload{TaskID: 2}); err != ErrEngineStopped {
		t.Errorf("register after stop = %v, want ErrEngineStopped", err)
	}

	// Output channel closes on stop so consumers drain cleanly.
	if _, open := <-e.C(); open {
		t.Error("output channel still open after Stop")
	}

	// Stop is idempotent.
	e.Stop()
}

func TestEnginePendingUnknownSlot(t *testing.T) {
	e := NewEngine(1)
	if _, ok := e.Pending(123); ok {
		t.Error("Pending on empty engine reported a slot")
	}
}

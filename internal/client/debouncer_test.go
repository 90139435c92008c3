package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_FiresOnceAfterDelay(t *testing.T) {
	clock := newManualClock(monday)
	var calls atomic.Int32
	d := NewDebouncer(clock, 100*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Trigger()
	d.Trigger()
	if !d.Pending() {
		t.Error("Pending should be true after Trigger")
	}

	clock.Advance(99 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("fired before delay")
	}
	clock.Advance(time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if d.Pending() {
		t.Error("Pending should be false after firing")
	}

	clock.Advance(time.Second)
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	clock := newManualClock(monday)
	var calls atomic.Int32
	d := NewDebouncer(clock, 100*time.Millisecond, func() { calls.Add(1) })

	if d.Cancel() {
		t.Error("Cancel without a timer should return false")
	}
	d.Trigger()
	if !d.Cancel() {
		t.Error("Cancel should return true for a pending timer")
	}
	clock.Advance(time.Second)
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}
}

func TestDebouncer_SystemClock(t *testing.T) {
	done := make(chan struct{})
	d := NewDebouncer(nil, 10*time.Millisecond, func() { close(done) })
	d.Trigger()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer did not fire")
	}
}

// --- Monitor ---

type stubProber struct{ err error }

func (p *stubProber) Health(ctx context.Context) error { return p.err }

type recordingSink struct{ states []bool }

func (s *recordingSink) SetOnline(ctx context.Context, online bool) error {
	s.states = append(s.states, online)
	return nil
}

func TestMonitor_Probe(t *testing.T) {
	prober := &stubProber{err: ErrOffline}
	sink := &recordingSink{}
	m := NewMonitor(prober, sink, time.Minute, nil)

	if m.Probe(context.Background()) {
		t.Error("Probe should report offline")
	}
	prober.err = nil
	if !m.Probe(context.Background()) {
		t.Error("Probe should report online")
	}

	if len(sink.states) != 2 || sink.states[0] || !sink.states[1] {
		t.Errorf("states = %v, want [false true]", sink.states)
	}
}

func TestMonitor_ReplaysStoreQueueWhenServerReturns(t *testing.T) {
	api := newFakeAPI()
	api.setOffline(true)
	store, _ := newTestStore(t, api, nil)
	store.Toggle("2025-06-10")
	if err := store.Flush(context.Background()); !errors.Is(err, ErrOffline) {
		t.Fatalf("Flush error = %v, want offline", err)
	}

	api.setOffline(false)
	m := NewMonitor(&stubProber{}, store, time.Minute, nil)
	m.Probe(context.Background())

	if !store.Online() {
		t.Error("store should be online after successful probe")
	}
	if !store.IsBooked("2025-06-10") {
		t.Error("queued change should be replayed")
	}
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	sink := &recordingSink{}
	m := NewMonitor(&stubProber{}, sink, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

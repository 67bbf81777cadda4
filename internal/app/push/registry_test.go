package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type fakeSink struct {
	mu      sync.Mutex
	frames  []Frame
	closed  bool
	reason  string
	deliver error
}

func (f *fakeSink) Deliver(_ context.Context, frame Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliver != nil {
		return f.deliver
	}
	if f.closed {
		return ErrSinkClosed
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSink) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.reason = reason
	}
}

func (f *fakeSink) snapshot() ([]Frame, bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.frames...), f.closed, f.reason
}

func TestRegisterReplacesAndClosesPrevious(t *testing.T) {
	r := NewRegistry()
	first, second := &fakeSink{}, &fakeSink{}

	r.Register("u1", first)
	r.Register("u1", second)

	got, ok := r.Lookup("u1")
	if !ok || got != second {
		t.Fatalf("lookup returned %v, want the second sink", got)
	}
	if _, closed, reason := first.snapshot(); !closed || reason != CloseReasonReplaced {
		t.Fatalf("first sink closed=%v reason=%q", closed, reason)
	}
	if _, closed, _ := second.snapshot(); closed {
		t.Fatal("second sink must stay open")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
}

func TestStaleUnregisterIsNoop(t *testing.T) {
	r := NewRegistry()
	first, second := &fakeSink{}, &fakeSink{}

	old := r.Register("u1", first)
	current := r.Register("u1", second)

	if r.Unregister(old) {
		t.Fatal("stale handle must not unregister")
	}
	if got, ok := r.Lookup("u1"); !ok || got != second {
		t.Fatal("current session was evicted by a stale unregister")
	}

	if !r.Unregister(current) {
		t.Fatal("current handle should unregister")
	}
	if _, ok := r.Lookup("u1"); ok {
		t.Fatal("lookup should miss after unregister")
	}
	if r.Unregister(current) {
		t.Fatal("second unregister should be a no-op")
	}
}

func TestPublishDeliversOnce(t *testing.T) {
	r := NewRegistry()
	sink := &fakeSink{}
	r.Register("u2", sink)

	err := r.Publish(context.Background(), "u2", Event{Type: TypeNewMessage, Message: map[string]string{"text": "hi"}})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	frames, _, _ := sink.snapshot()
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if frames[0].Type != TypeNewMessage {
		t.Fatalf("frame type = %q", frames[0].Type)
	}

	var decoded struct {
		Type    string            `json:"type"`
		Message map[string]string `json:"message"`
	}
	if err := json.Unmarshal(frames[0].Data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != TypeNewMessage || decoded.Message["text"] != "hi" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestPublishMissIsOffline(t *testing.T) {
	r := NewRegistry()
	err := r.Publish(context.Background(), "nobody", ConnectedEvent("nobody"))
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("err = %v, want ErrOffline", err)
	}
}

func TestPublishSurfacesSinkError(t *testing.T) {
	r := NewRegistry()
	r.Register("u3", &fakeSink{deliver: ErrSinkClosed})

	if err := r.Publish(context.Background(), "u3", ConnectedEvent("u3")); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("err = %v, want ErrSinkClosed", err)
	}
}

func TestShutdownClosesAllAndRejectsLateRegistrations(t *testing.T) {
	r := NewRegistry()
	a, b := &fakeSink{}, &fakeSink{}
	r.Register("a", a)
	r.Register("b", b)

	r.Shutdown()

	for _, sink := range []*fakeSink{a, b} {
		if _, closed, reason := sink.snapshot(); !closed || reason != CloseReasonShutdown {
			t.Fatalf("sink closed=%v reason=%q", closed, reason)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d after shutdown", r.Len())
	}

	late := &fakeSink{}
	h := r.Register("c", late)
	if _, closed, _ := late.snapshot(); !closed {
		t.Fatal("late registration should be closed immediately")
	}
	if r.Unregister(h) {
		t.Fatal("inert handle should not unregister anything")
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := r.Register("shared", &fakeSink{})
			r.Unregister(h)
		}()
	}
	wg.Wait()

	final := &fakeSink{}
	r.Register("shared", final)
	if got, ok := r.Lookup("shared"); !ok || got != final {
		t.Fatal("final registration should be current")
	}
}

func TestOutboxDeliverRespectsContext(t *testing.T) {
	o := newOutbox()
	for i := 0; i < sendQueueSize; i++ {
		if err := o.deliver(context.Background(), Frame{Type: "x"}); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.deliver(ctx, Frame{Type: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	if !o.close("bye") {
		t.Fatal("first close should report true")
	}
	if o.close("again") {
		t.Fatal("second close should report false")
	}
	if o.closeReason() != "bye" {
		t.Fatalf("reason = %q", o.closeReason())
	}
	if err := o.deliver(context.Background(), Frame{}); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("err = %v, want ErrSinkClosed", err)
	}
}

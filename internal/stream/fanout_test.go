package stream

import (
	"testing"
	"time"
)

func TestNewFanout(t *testing.T) {
	f := NewFanout()
	if f == nil {
		t.Fatal("NewFanout returned nil")
	}
	if f.ListenerCount() != 0 {
		t.Errorf("Initial ListenerCount = %d, want 0", f.ListenerCount())
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	f := NewFanout()

	l1 := f.Subscribe()
	if f.ListenerCount() != 1 {
		t.Errorf("After 1 subscribe: ListenerCount = %d, want 1", f.ListenerCount())
	}

	l2 := f.Subscribe()
	if f.ListenerCount() != 2 {
		t.Errorf("After 2 subscribes: ListenerCount = %d, want 2", f.ListenerCount())
	}

	f.Unsubscribe(l1)
	if f.ListenerCount() != 1 {
		t.Errorf("After 1 unsubscribe: ListenerCount = %d, want 1", f.ListenerCount())
	}

	f.Unsubscribe(l2)
	if f.ListenerCount() != 0 {
		t.Errorf("After all unsubscribed: ListenerCount = %d, want 0", f.ListenerCount())
	}
}

func TestPublishDelivers(t *testing.T) {
	f := NewFanout()
	l := f.Subscribe()
	defer f.Unsubscribe(l)

	frame := []byte{0xAA, 0xBB, 0xCC}
	f.Publish(frame)

	select {
	case got := <-l.C:
		if len(got) != len(frame) {
			t.Errorf("Received frame length %d, want %d", len(got), len(frame))
		}
		for i, v := range got {
			if v != frame[i] {
				t.Errorf("Frame[%d] = %d, want %d", i, v, frame[i])
			}
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for frame")
	}
}

func TestPublishMultipleListeners(t *testing.T) {
	f := NewFanout()
	listeners := make([]*Listener, 5)
	for i := range listeners {
		listeners[i] = f.Subscribe()
	}

	f.Publish([]byte{42})

	for i, l := range listeners {
		select {
		case got := <-l.C:
			if got[0] != 42 {
				t.Errorf("Listener %d got frame[0]=%d, want 42", i, got[0])
			}
		case <-time.After(time.Second):
			t.Errorf("Listener %d timed out", i)
		}
	}

	for _, l := range listeners {
		f.Unsubscribe(l)
	}
}

func TestPublishDropsSlowListener(t *testing.T) {
	f := NewFanout()
	slow := f.Subscribe()
	defer f.Unsubscribe(slow)

	// Overfill the listener's buffer (150 capacity) without reading;
	// Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 400; i++ {
			f.Publish([]byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow listener")
	}

	count := 0
	for {
		select {
		case <-slow.C:
			count++
		default:
			if count > 150 {
				t.Errorf("Slow listener got %d frames, should cap at buffer size 150", count)
			}
			if count == 0 {
				t.Error("Slow listener got 0 frames")
			}
			return
		}
	}
}

func TestListenerDoneChannel(t *testing.T) {
	f := NewFanout()
	l := f.Subscribe()

	f.Unsubscribe(l)

	select {
	case <-l.done:
		// good
	default:
		t.Error("Listener done channel not closed after unsubscribe")
	}
}

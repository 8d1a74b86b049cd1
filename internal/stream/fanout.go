package stream

import "sync"

// Fanout mirrors one session's encoded Opus frames to N secondary
// listeners (WebRTC peers). The primary delivery path does not go
// through here.
type Fanout struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives Opus frames from a fanout.
type Listener struct {
	C    chan []byte // buffered channel of encoded 20ms frames
	done chan struct{}
}

// NewFanout creates an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener.
func (f *Fanout) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []byte, 150), // ~3 seconds of buffer at 20ms/frame
		done: make(chan struct{}),
	}
	f.mu.Lock()
	f.listeners[l] = struct{}{}
	f.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (f *Fanout) Unsubscribe(l *Listener) {
	f.mu.Lock()
	delete(f.listeners, l)
	f.mu.Unlock()
	close(l.done)
}

// ListenerCount returns the number of active listeners.
func (f *Fanout) ListenerCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}

// Publish hands one frame to every listener. Slow listeners get frames
// dropped rather than blocking the session worker.
func (f *Fanout) Publish(frame []byte) {
	f.mu.RLock()
	for l := range f.listeners {
		select {
		case l.C <- frame:
		default:
			// listener too slow, drop frame to keep the stream moving
		}
	}
	f.mu.RUnlock()
}

package stream

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handoffWriteWait = 10 * time.Second

	// dropLogInterval throttles drop logging on the hot path.
	dropLogInterval = 50
)

// FallbackFunc sends an enveloped frame over the control channel.
// Returns false when the frame was dropped.
type FallbackFunc func(frame []byte) bool

// Handoff is the bridge between one session's worker and its client's
// transport. While a dedicated stream connection is attached, frames go
// through a single pending slot drained by a writer goroutine; a frame
// arriving while the slot is occupied is dropped, never queued. Without
// a dedicated connection, frames fall back to the control channel.
type Handoff struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	connDone chan struct{}
	pending  []byte
	notify   chan struct{}
	fallback FallbackFunc
	fanout   *Fanout
	drops    uint64
}

// NewHandoff creates a handoff with no transport attached.
func NewHandoff() *Handoff {
	return &Handoff{
		notify: make(chan struct{}, 1),
		fanout: NewFanout(),
	}
}

// Fanout exposes the mirror tap (WebRTC peers subscribe here).
func (h *Handoff) Fanout() *Fanout { return h.fanout }

// SetFallback installs the control-channel path.
func (h *Handoff) SetFallback(f FallbackFunc) {
	h.mu.Lock()
	h.fallback = f
	h.mu.Unlock()
}

// Deliver routes one encoded Opus frame. Never blocks.
func (h *Handoff) Deliver(frame []byte) {
	h.fanout.Publish(frame)
	env := EncodeFrame(frame)

	h.mu.Lock()
	if h.conn != nil {
		if h.pending != nil {
			h.drops++
			if h.drops%dropLogInterval == 1 {
				log.Printf("stream: dedicated channel congested, dropped %d frames", h.drops)
			}
			h.mu.Unlock()
			return
		}
		h.pending = env
		h.mu.Unlock()
		select {
		case h.notify <- struct{}{}:
		default:
		}
		return
	}
	fb := h.fallback
	h.mu.Unlock()

	if fb != nil {
		fb(env)
	}
}

// Attach switches delivery to a dedicated stream connection, replacing
// any previous one. The handoff owns the connection's write side from
// here on and starts a reader that only watches for closure.
func (h *Handoff) Attach(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conn != nil {
		close(h.connDone)
		h.conn.Close()
	}
	h.conn = conn
	h.connDone = make(chan struct{})
	h.pending = nil
	done := h.connDone
	h.mu.Unlock()

	go h.writeLoop(conn, done)
	go h.watchClose(conn)
}

// Detach drops the dedicated connection if it is still the current
// one; delivery reverts to the fallback path.
func (h *Handoff) Detach(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conn == conn {
		close(h.connDone)
		h.conn = nil
		h.pending = nil
	}
	h.mu.Unlock()
	conn.Close()
}

// Close releases any attached connection.
func (h *Handoff) Close() {
	h.mu.Lock()
	conn := h.conn
	if conn != nil {
		close(h.connDone)
		h.conn = nil
		h.pending = nil
	}
	h.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (h *Handoff) writeLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-h.notify:
			h.mu.Lock()
			buf := h.pending
			h.pending = nil
			current := h.conn == conn
			h.mu.Unlock()
			if !current {
				return
			}
			if buf == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(handoffWriteWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
				log.Printf("stream: dedicated write failed: %v", err)
				h.Detach(conn)
				return
			}
		}
	}
}

// watchClose consumes (and discards) inbound messages so the websocket
// close handshake works, detaching when the peer goes away.
func (h *Handoff) watchClose(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.Detach(conn)
			return
		}
	}
}

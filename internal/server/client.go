package server

import (
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256

	// frameHighWater is the fallback-path backpressure threshold: audio
	// frames are dropped once the outbound queue is 75% full so control
	// messages keep flowing.
	frameHighWater = sendBufferSize * 3 / 4

	frameDropLogInterval = 50
)

type outbound struct {
	binary bool
	data   []byte
}

// Client is one control-channel connection and, once subscribed, the
// owner of a playback session.
type Client struct {
	server *Server
	conn   *websocket.Conn
	send   chan outbound

	// cs is only touched from the read pump goroutine.
	cs *clientSession

	frameDrops atomic.Uint64
}

func newClient(s *Server, conn *websocket.Conn) *Client {
	return &Client{
		server: s,
		conn:   conn,
		send:   make(chan outbound, sendBufferSize),
	}
}

// readPump dispatches inbound control messages until the connection
// dies, then tears the session down.
func (c *Client) readPump() {
	defer func() {
		c.server.dropClient(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("server: read error: %v", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

// writePump owns the connection's write side: queued messages plus
// keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			kind := websocket.TextMessage
			if msg.binary {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, msg.data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON queues a control message. Drops instead of blocking.
func (c *Client) sendJSON(msgType string, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("server: marshal %s: %v", msgType, err)
		return false
	}
	data, err := json.Marshal(Message{Type: msgType, Payload: raw})
	if err != nil {
		return false
	}
	select {
	case c.send <- outbound{data: data}:
		return true
	default:
		log.Printf("server: outbound queue full, dropped %s", msgType)
		return false
	}
}

// trySendFrame is the session's fallback frame path over the control
// socket. Above the high-water mark frames drop with throttled logging.
func (c *Client) trySendFrame(frame []byte) bool {
	if len(c.send) > frameHighWater {
		if n := c.frameDrops.Add(1); n%frameDropLogInterval == 1 {
			log.Printf("server: control channel congested, dropped %d frames", n)
		}
		return false
	}
	select {
	case c.send <- outbound{binary: true, data: frame}:
		return true
	default:
		c.frameDrops.Add(1)
		return false
	}
}

func (c *Client) sendError(code, msg string) {
	c.sendJSON("music_error", errorPayload{Code: code, Message: msg})
}

package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const authTimeout = 5 * time.Second

// Attacher resolves a session token to the handoff that should own an
// authenticated stream connection.
type Attacher interface {
	ResolveStream(token string) (*Handoff, error)
}

// Server is the dedicated audio WebSocket endpoint. Clients connect,
// authenticate with their session token, and from then on receive only
// binary audio frames.
type Server struct {
	attacher Attacher
	upgrader websocket.Upgrader
}

// NewServer creates the dedicated stream endpoint.
func NewServer(attacher Attacher) *Server {
	return &Server{
		attacher: attacher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("stream: upgrade failed: %v", err)
		return
	}
	go s.handshake(conn)
}

// handshake runs the auth exchange: the first message must be
// {"type":"auth","token":...} within the timeout, answered with
// auth_ok or auth_failed + close.
func (s *Server) handshake(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(authTimeout))

	var msg authMessage
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return
	}
	if msg.Type != "auth" || msg.Token == "" {
		s.reject(conn, "auth_required")
		return
	}
	conn.SetReadDeadline(time.Time{})

	handoff, err := s.attacher.ResolveStream(msg.Token)
	if err != nil {
		log.Printf("stream: auth failed: %v", err)
		s.reject(conn, "invalid_token")
		return
	}

	// auth_ok must go out before the handoff's writer owns the socket.
	if err := conn.WriteJSON(map[string]string{"type": "auth_ok"}); err != nil {
		conn.Close()
		return
	}
	handoff.Attach(conn)
}

func (s *Server) reject(conn *websocket.Conn, reason string) {
	conn.WriteJSON(map[string]string{"type": "auth_failed", "reason": reason})
	conn.Close()
}

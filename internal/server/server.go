package server

import (
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cadenza-audio/cadenza/internal/codec"
	"github.com/cadenza-audio/cadenza/internal/decode"
	"github.com/cadenza-audio/cadenza/internal/library"
	"github.com/cadenza-audio/cadenza/internal/session"
	"github.com/cadenza-audio/cadenza/internal/stream"
)

var errUnknownToken = errors.New("unknown session token")

// Options configures the control server.
type Options struct {
	MediaRoot  string
	StreamPort int // advertised to clients in the session message
	FFmpegPath string
	Quality    codec.Quality
	Mode       codec.BitrateMode
	QueueMax   int
}

// Server owns all client sessions and speaks the control protocol.
type Server struct {
	store    *library.Store
	opts     Options
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*clientSession
}

// clientSession ties a control client to its playback session and
// transport handoff.
type clientSession struct {
	token   string
	client  *Client
	handoff *stream.Handoff
	sess    *session.Session
}

// New creates the control server over an opened library store.
func New(store *library.Store, opts Options) *Server {
	return &Server{
		store: store,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*clientSession),
	}
}

// ServeWS upgrades a control connection and starts its pumps.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: upgrade failed: %v", err)
		return
	}
	c := newClient(s, conn)
	go c.writePump()
	go c.readPump()
}

// ResolveStream maps a token to its handoff for the dedicated stream
// server's auth handshake.
func (s *Server) ResolveStream(token string) (*stream.Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[token]
	if !ok {
		return nil, errUnknownToken
	}
	return cs.handoff, nil
}

// ResolveFanout maps a token to its frame mirror for WebRTC peers.
func (s *Server) ResolveFanout(token string) (*stream.Fanout, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	return cs.handoff.Fanout(), true
}

// ActiveSessions returns the number of live playback sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ensureSession lazily creates the client's playback session and
// announces its token and stream port.
func (s *Server) ensureSession(c *Client) *clientSession {
	if c.cs != nil {
		return c.cs
	}

	token := uuid.NewString()
	handoff := stream.NewHandoff()
	handoff.SetFallback(c.trySendFrame)

	sess := session.New(session.Options{
		QueueMax:   s.opts.QueueMax,
		Sink:       handoff,
		Notifier:   &clientNotifier{c: c},
		NewEncoder: codec.NewOpusEncoder,
		OpenDecoder: func(path string) (decode.Decoder, error) {
			return decode.Open(path, decode.Options{FFmpegPath: s.opts.FFmpegPath})
		},
		Quality: s.opts.Quality,
		Mode:    s.opts.Mode,
	})

	cs := &clientSession{token: token, client: c, handoff: handoff, sess: sess}
	s.mu.Lock()
	s.sessions[token] = cs
	s.mu.Unlock()
	c.cs = cs

	log.Printf("server: session %s created", token)
	c.sendJSON("session", sessionPayload{Token: token, StreamPort: s.opts.StreamPort})
	return cs
}

// teardownSession stops the worker, releases the transports, and
// forgets the token.
func (s *Server) teardownSession(cs *clientSession) {
	s.mu.Lock()
	delete(s.sessions, cs.token)
	s.mu.Unlock()

	cs.sess.Close()
	cs.handoff.Close()
	log.Printf("server: session %s destroyed", cs.token)
}

// dropClient is the read pump's exit path.
func (s *Server) dropClient(c *Client) {
	if c.cs != nil {
		s.teardownSession(c.cs)
		c.cs = nil
	}
	close(c.send)
}

// clientNotifier adapts session pushes onto the control channel.
type clientNotifier struct {
	c *Client
}

func (n *clientNotifier) StateChanged(st session.State) {
	n.c.sendJSON("music_state", st)
}

func (n *clientNotifier) Position(sec float64) {
	n.c.sendJSON("music_position", positionPayload{PositionSec: sec})
}

func (n *clientNotifier) StreamError(code, msg string) {
	n.c.sendError(code, msg)
}

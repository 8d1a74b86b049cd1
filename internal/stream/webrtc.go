package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/cadenza-audio/cadenza/internal/audio"
)

// WebRTCHandler serves SDP negotiation for low-latency listening: a
// peer attaches to an existing session by token and receives the same
// Opus frames the session delivers over WebSocket.
type WebRTCHandler struct {
	resolve func(token string) (*Fanout, bool)
	mu      sync.Mutex
	peers   []*webrtc.PeerConnection
}

// NewWebRTCHandler creates a WebRTC mirror handler. resolve maps a
// session token to that session's frame fanout.
func NewWebRTCHandler(resolve func(token string) (*Fanout, bool)) *WebRTCHandler {
	return &WebRTCHandler{resolve: resolve}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	fanout, ok := h.resolve(r.URL.Query().Get("token"))
	if !ok {
		http.Error(w, "unknown session token", http.StatusNotFound)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"cadenza-stream",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering to complete
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	<-gatherComplete

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	h.mu.Unlock()

	log.Printf("stream: WebRTC peer connected (total: %d)", h.PeerCount())

	done := make(chan struct{})
	go h.streamToPeer(fanout, audioTrack, done)

	// Clean up on disconnect. The state callback can fire more than
	// once (Disconnected then Closed); removePeer reports whether this
	// call actually removed the peer, so done is closed exactly once.
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			if h.removePeer(pc) {
				close(done)
			}
			pc.Close()
			log.Printf("stream: WebRTC peer disconnected (remaining: %d)", h.PeerCount())
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// streamToPeer mirrors already-encoded session frames into the track
// until the peer's done channel closes. WriteSample on a track whose
// peer went away returns nil, so the done channel is the only reliable
// exit.
func (h *WebRTCHandler) streamToPeer(fanout *Fanout, track *webrtc.TrackLocalStaticSample, done <-chan struct{}) {
	listener := fanout.Subscribe()
	defer fanout.Unsubscribe(listener)

	for {
		select {
		case <-done:
			return
		case <-listener.done:
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			if err := track.WriteSample(media.Sample{
				Data:     frame,
				Duration: audio.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

// removePeer reports whether pc was still registered.
func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if p == pc {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return true
		}
	}
	return false
}

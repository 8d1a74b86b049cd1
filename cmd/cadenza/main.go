package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cadenza-audio/cadenza/internal/codec"
	"github.com/cadenza-audio/cadenza/internal/config"
	"github.com/cadenza-audio/cadenza/internal/library"
	"github.com/cadenza-audio/cadenza/internal/server"
	"github.com/cadenza-audio/cadenza/internal/stream"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	quality, err := codec.ParseQuality(cfg.Quality)
	if err != nil {
		log.Fatalf("CADENZA_QUALITY: %v", err)
	}
	mode, err := codec.ParseBitrateMode(cfg.BitrateMode)
	if err != nil {
		log.Fatalf("CADENZA_BITRATE_MODE: %v", err)
	}

	log.Println("cadenza starting up...")

	store, err := library.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("library: %v", err)
	}
	defer store.Close()

	// Index the media root in the background; the server answers from
	// whatever the store holds meanwhile.
	go func() {
		start := time.Now()
		n, err := store.Scan(cfg.MediaRoot)
		if err != nil {
			log.Printf("library: scan %s: %v", cfg.MediaRoot, err)
			return
		}
		log.Printf("library: indexed %d tracks in %v", n, time.Since(start).Round(time.Millisecond))
	}()

	srv := server.New(store, server.Options{
		MediaRoot:  cfg.MediaRoot,
		StreamPort: cfg.StreamPort,
		FFmpegPath: cfg.FFmpegPath,
		Quality:    quality,
		Mode:       mode,
		QueueMax:   cfg.QueueMax,
	})

	webrtcHandler := stream.NewWebRTCHandler(srv.ResolveFanout)

	// Control plane
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.ServeWS)
	mux.Handle("/webrtc", webrtcHandler)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.Stats()
		if err != nil {
			http.Error(w, "library unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"sessions":         srv.ActiveSessions(),
			"webrtc_listeners": webrtcHandler.PeerCount(),
			"library":          stats,
			"stream_port":      cfg.StreamPort,
			"quality":          quality.String(),
			"bitrate_mode":     mode.String(),
		})
	})

	controlSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}

	// Dedicated audio stream endpoint on its own port.
	streamMux := http.NewServeMux()
	streamMux.Handle("/", stream.NewServer(srv))
	streamSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.StreamPort), Handler: streamMux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		controlSrv.Close()
		streamSrv.Close()
	}()

	go func() {
		log.Printf("cadenza streaming on %s", streamSrv.Addr)
		if err := streamSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("stream server error: %v", err)
		}
	}()

	log.Printf("cadenza live on %s", controlSrv.Addr)
	if err := controlSrv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

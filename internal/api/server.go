package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/crosslabs/camhub/internal/broker"
	"github.com/crosslabs/camhub/internal/control"
	"github.com/crosslabs/camhub/internal/inventory"
	"github.com/crosslabs/camhub/internal/logger"
	"github.com/crosslabs/camhub/internal/snapshot"
	"github.com/crosslabs/camhub/internal/stream"
)

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	inv       inventory.Store
	locks     *broker.LockTable
	admission *broker.AdmissionTable
	gate      *stream.Gate
	snaps     *snapshot.Service
	ctrl      *control.Handler
	upgrader  websocket.Upgrader

	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(inv inventory.Store, locks *broker.LockTable, admission *broker.AdmissionTable,
	gate *stream.Gate, snaps *snapshot.Service, ctrl *control.Handler) *Server {

	s := &Server{
		router:    mux.NewRouter(),
		inv:       inv,
		locks:     locks,
		admission: admission,
		gate:      gate,
		snaps:     snaps,
		ctrl:      ctrl,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/cameras", s.handleCameras).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/snapshot/{id}", s.handleSnapshot).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket control channel, same frames as the TCP listener
	api.HandleFunc("/control", s.handleControlWS)

	// Live MJPEG stream, gated by the admission table
	s.router.HandleFunc("/video/{id}", s.handleVideo).Methods("GET")
}

// Start starts the HTTP server
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.enableCORS(s.router),
	}
	logger.WithComponent("api").Info().Str("addr", addr).Msg("HTTP server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HTTP Handlers

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.inv.List())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"locks":        s.locks.Snapshot(),
		"viewers":      s.admission.Snapshot(),
		"open_cameras": s.admission.OpenCameras(),
		"max_streams":  s.admission.Max(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	camID := mux.Vars(r)["id"]

	path, err := s.snaps.Capture(r.Context(), camID)
	if err != nil {
		if errors.Is(err, inventory.ErrUnknownCamera) {
			http.Error(w, "Unknown camera", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to capture snapshot", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", camID+".jpg"))
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func (s *Server) handleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	// One WebSocket connection is one control session
	s.ctrl.HandleSession(r.Context(), control.NewWebsocketTransport(conn))
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	camID := mux.Vars(r)["id"]

	viewer, err := s.gate.Attach(r.Context(), camID)
	if err != nil {
		switch {
		case errors.Is(err, inventory.ErrUnknownCamera):
			http.Error(w, "Unknown camera", http.StatusNotFound)
		case errors.Is(err, stream.ErrCapacityExceeded):
			http.Error(w, "Maximum concurrent streams reached", http.StatusTooManyRequests)
		default:
			http.Error(w, "Video source unavailable", http.StatusBadGateway)
		}
		return
	}
	defer viewer.Close()

	// Set headers for MJPEG stream
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "close")

	ctx := r.Context()
	flusher, _ := w.(http.Flusher)

	start := time.Now()
	frames := 0
	defer func() {
		logger.WithComponent("api").Info().
			Str("camera", camID).
			Int("frames", frames).
			Dur("duration", time.Since(start)).
			Msg("Stream viewer finished")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-viewer.Frames():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			frames++
		}
	}
}

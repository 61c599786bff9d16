package websocket

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/fortuna/volleysync/internal/logger"
	"github.com/gorilla/websocket"
)

// Server represents the WebSocket server
type Server struct {
	hub      *Hub
	log      *logger.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer creates a WebSocket server over hub listening on addr. Empty
// origins, or a "*" entry, accept every origin.
func NewServer(addr string, hub *Hub, origins []string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{hub: hub, log: log}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(origins) == 0 || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the WebSocket routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/runs", s.handleRuns)
	mux.HandleFunc("/ws/health", s.handleHealth)
	return mux
}

// Start listens on the configured address. The hub must already be
// running. After Shutdown it returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.log.Info("WebSocket server listening", logger.Fields{"addr": s.server.Addr})
	return s.server.ListenAndServe()
}

// handleRuns subscribes a connection to run reports and warnings
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Failed to upgrade connection", logger.Fields{"remote": r.RemoteAddr, "error": err.Error()})
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// handleHealth returns WebSocket server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "healthy", "clients": %d}`, s.hub.ClientCount())
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

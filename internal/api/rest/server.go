package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/fortuna/volleysync/internal/logger"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Options configures optional server features.
type Options struct {
	CORSOrigins []string
	Metrics     http.Handler
	Log         *logger.Logger
}

// Server represents the REST API server
type Server struct {
	server *http.Server
}

// NewRouter builds the status API routes.
func NewRouter(handler *Handler, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggingMiddleware(log))

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics).Methods("GET")
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sources", handler.ListSources).Methods("GET")
	api.HandleFunc("/sources/{sourceID}", handler.GetSource).Methods("GET")
	api.HandleFunc("/sources/{sourceID}/state", handler.GetSourceState).Methods("GET")
	api.HandleFunc("/sources/{sourceID}/run", handler.RunSource).Methods("POST")
	api.HandleFunc("/runs/last", handler.LastRuns).Methods("GET")

	if handler.league != nil {
		api.HandleFunc("/groups/{groupID}", handler.GetGroupSummary).Methods("GET")
		api.HandleFunc("/groups/{groupID}/standings", handler.GetStandings).Methods("GET")
		api.HandleFunc("/groups/{groupID}/matches", handler.GetMatches).Methods("GET")
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	return c.Handler(router)
}

// NewServer creates a new REST API server
func NewServer(addr string, handler *Handler, opts Options) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(handler, opts),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Package server implements HTTPFacade: the HTTP surface over the ratings
// store (spec.md §4.9, §6). Every endpoint is read-only except
// POST /ratings/recalculate-accuracy/{ticker}, which upserts rating_accuracy.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/dr-ratings/internal/accuracy"
	"github.com/aristath/dr-ratings/internal/config"
	"github.com/aristath/dr-ratings/internal/snapshot"
	"github.com/aristath/dr-ratings/internal/store"
)

// Config holds server configuration.
type Config struct {
	Addr       string
	Log        zerolog.Logger
	Query      *store.QueryRepository
	Accuracy   *accuracy.Calculator
	Snapshot   *snapshot.Cache
	Cfg        *config.Config
	StartedAt  time.Time
	AppVersion string
	DevMode    bool
}

// Server is the HTTPFacade.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	query     *store.QueryRepository
	acc       *accuracy.Calculator
	snap      *snapshot.Cache
	cfg       *config.Config
	startedAt time.Time
	version   string

	subscribers   map[chan []byte]struct{}
	subscribersMu sync.Mutex
}

// New builds a Server with routes and middleware wired.
func New(cfg Config) *Server {
	if cfg.AppVersion == "" {
		cfg.AppVersion = "dev"
	}
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "http_facade").Logger(),
		query:       cfg.Query,
		acc:         cfg.Accuracy,
		snap:        cfg.Snapshot,
		cfg:         cfg.Cfg,
		startedAt:   cfg.StartedAt,
		version:     cfg.AppVersion,
		subscribers: make(map[chan []byte]struct{}),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleLiveness)
	s.router.Get("/healthz", s.handleLiveness)

	s.router.Route("/ratings", func(r chi.Router) {
		r.Get("/from-dr-api", s.handleFromDRAPI)
		r.Get("/history-with-accuracy/{ticker}", s.handleHistoryWithAccuracy)
		r.Post("/recalculate-accuracy/{ticker}", s.handleRecalculateAccuracy)
		r.Get("/stream", s.handleStream)
	})

	if s.cfg != nil && s.cfg.DevMode {
		s.router.Get("/debug/dump", s.handleDebugDump)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Ignore encode error - already committed response
}

func writeError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}

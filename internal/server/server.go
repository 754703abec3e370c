// internal/server/server.go
package server

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"daybrief/internal/database"
	"daybrief/internal/ingest"
)

// Config carries the server knobs that are not wiring.
type Config struct {
	Addr         string
	AdminToken   string
	PreviewWords int
}

type Server struct {
	db       *database.DB
	logger   *log.Logger
	ingester *ingest.Ingester
	config   Config
	http     *http.Server
}

func NewServer(db *database.DB, logger *log.Logger, ingester *ingest.Ingester, config Config) *Server {
	s := &Server{
		db:       db,
		logger:   logger,
		ingester: ingester,
		config:   config,
	}
	s.http = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Routes builds the full router. Split out so tests can drive the
// handler tree without binding a port.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/articles", s.handleListArticles).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/articles/{id:[0-9]+}", s.handleGetArticle).Methods(http.MethodGet, http.MethodOptions)

	admin := r.PathPrefix("/v1/admin").Subrouter()
	admin.Use(s.adminAuthMiddleware)
	admin.HandleFunc("/feeds", s.handleListFeeds).Methods(http.MethodGet, http.MethodOptions)
	admin.HandleFunc("/feeds", s.handleCreateFeed).Methods(http.MethodPost)
	admin.HandleFunc("/feeds/{id:[0-9]+}", s.handleUpdateFeed).Methods(http.MethodPatch, http.MethodOptions)
	admin.HandleFunc("/feeds/{id:[0-9]+}", s.handleDeleteFeed).Methods(http.MethodDelete)
	admin.HandleFunc("/fetch", s.handleBackfill).Methods(http.MethodPost, http.MethodOptions)
	admin.HandleFunc("/fetch/today", s.handleFetchToday).Methods(http.MethodPost, http.MethodOptions)

	return r
}

func (s *Server) Start() error {
	s.logger.Printf("Starting server on %s", s.config.Addr)
	return s.http.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// adminAuthMiddleware requires the shared admin token in X-Admin-Token.
func (s *Server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if s.config.AdminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) != 1 {
			RespondWithError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Admin-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

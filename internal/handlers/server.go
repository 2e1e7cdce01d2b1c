package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pep299/repo-profiler/internal/config"
	"github.com/pep299/repo-profiler/internal/github"
	"github.com/pep299/repo-profiler/internal/profiler"
	"github.com/pep299/repo-profiler/internal/summary"
)

// Version is reported by the health endpoint.
const Version = "v1.0.0"

// Fetcher assembles repository snapshots.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, ref github.Ref) (*github.Snapshot, error)
}

// Summarizer generates summary text for an analyzed snapshot.
type Summarizer interface {
	Summarize(ctx context.Context, snap *github.Snapshot, profile *profiler.Profile) (*summary.Result, error)
}

// Server holds the HTTP server and its dependencies
type Server struct {
	config     *config.Config
	fetcher    Fetcher
	summarizer Summarizer
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config) (*Server, error) {
	tokens, err := tokenSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating token source: %w", err)
	}

	composer, err := summary.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating summary composer: %w", err)
	}

	return NewServerWithDeps(cfg, github.NewClient(tokens, cfg.GitHubAPIURL), composer), nil
}

// NewServerWithDeps creates a server with explicit dependencies
func NewServerWithDeps(cfg *config.Config, fetcher Fetcher, summarizer Summarizer) *Server {
	return &Server{
		config:     cfg,
		fetcher:    fetcher,
		summarizer: summarizer,
	}
}

// tokenSource picks GitHub App credentials when configured, falling back to
// the static token.
func tokenSource(cfg *config.Config) (github.TokenSource, error) {
	if cfg.HasGitHubApp() {
		return github.NewAppTokenSource(cfg.GitHubAppID, cfg.GitHubInstallationID, cfg.GitHubPrivateKey, cfg.GitHubAPIURL)
	}
	return github.NewStaticTokenSource(cfg.GitHubToken), nil
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() *mux.Router {
	r := mux.NewRouter()

	// API routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.corsMiddleware)
	api.Use(s.loggingMiddleware)

	// Health check
	api.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Repository analysis. OPTIONS is answered by the CORS middleware before
	// auth runs, so browser preflights succeed without a token.
	api.Handle("/analyze", s.authMiddleware(http.HandlerFunc(s.analyzeHandler))).Methods("POST", "OPTIONS")

	return r
}

// healthHandler provides health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   Version,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Middleware functions

// authMiddleware enforces the Bearer token on analysis endpoints
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, codeAuth, "Missing Authorization header", "")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, codeAuth, "Invalid Authorization header format", "")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != s.config.APIAuthToken {
			writeError(w, http.StatusForbidden, codeAuth, "Invalid token", "")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the ResponseWriter to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, wrapped.statusCode, duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

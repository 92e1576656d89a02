package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dgallion1/storyqa/internal/answer"
	"github.com/dgallion1/storyqa/internal/config"
	"github.com/dgallion1/storyqa/internal/ollama"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

//go:embed static/index.html
var indexHTML []byte

// Answerer is what the API needs from the answer service.
type Answerer interface {
	Generate(ctx context.Context, question string) (answer.Result, error)
	Model() string
}

// StatsSource exposes backend latency stats.
type StatsSource interface {
	Snapshot() ollama.StatsSnapshot
}

// Server is the HTTP API server for storyqa.
type Server struct {
	router  chi.Router
	answers Answerer
	stats   StatsSource
	metrics *Metrics
	log     *slog.Logger
	cfg     config.Config
}

// NewServer creates and configures the HTTP server. stats may be nil.
func NewServer(answers Answerer, stats StatsSource, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		answers: answers,
		stats:   stats,
		metrics: NewMetrics(),
		log:     log,
		cfg:     cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.metrics.Middleware)
	r.Use(RequestLogger(s.log))
	r.Use(Recoverer(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Post("/api/ask", s.handleAsk)
	r.Get("/api/stats/llm", s.handleLLMStats)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router = r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Ready  bool   `json:"ready"`
}

// handleHealth only runs once startup checks passed, so it is always ready.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		Model:  s.answers.Model(),
		Ready:  true,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

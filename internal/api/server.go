package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/docqa/internal/answer"
	"github.com/dgallion1/docqa/internal/config"
	"github.com/dgallion1/docqa/internal/llm"
	"github.com/dgallion1/docqa/internal/pipeline"
	"github.com/dgallion1/docqa/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for docqa.
type Server struct {
	router   chi.Router
	sessions *session.Store
	pipeline *pipeline.Pipeline
	answerer *answer.Answerer
	llm      *llm.Instrumented
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server. llmClient may be nil, in
// which case the stats endpoint reports itself unavailable.
func NewServer(sessions *session.Store, p *pipeline.Pipeline, a *answer.Answerer, llmClient *llm.Instrumented, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		sessions: sessions,
		pipeline: p,
		answerer: a,
		llm:      llmClient,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/sessions", s.handleCreateSession)
		r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/process", s.handleProcess)
			r.Post("/query", s.handleQuery)
			r.Delete("/history", s.handleResetHistory)
		})
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

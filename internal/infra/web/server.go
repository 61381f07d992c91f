package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomshen124/ocr-server/internal/domain/ports/adapter"
	"github.com/tomshen124/ocr-server/internal/usecase"
)

// Server is the HTTP surface: intake, status queries and a few ops endpoints.
type Server struct {
	submitUC *usecase.SubmitUseCase
	statusUC *usecase.StatusUseCase

	callbacks    adapter.CallbackScheduler
	ruleCache    RuleInvalidator
	storageState func() string
	log          zerolog.Logger
}

// RuleInvalidator drops cached rule configs so edits take effect without
// waiting out the TTL.
type RuleInvalidator interface {
	Invalidate(ctx context.Context, matterID string) error
	InvalidateAll(ctx context.Context) error
}

func NewServer(
	submitUC *usecase.SubmitUseCase,
	statusUC *usecase.StatusUseCase,
	callbacks adapter.CallbackScheduler,
	ruleCache RuleInvalidator,
	storageState func() string,
	log zerolog.Logger,
) *Server {
	return &Server{
		submitUC:     submitUC,
		statusUC:     statusUC,
		callbacks:    callbacks,
		ruleCache:    ruleCache,
		storageState: storageState,
		log:          log.With().Str("component", "web").Logger(),
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleSubmit)
		r.Get("/jobs/{jobID}", s.handleJob)
		r.Post("/jobs/{jobID}/callback/retry", s.handleCallbackRetry)
		r.Get("/requests/{requestID}", s.handleRequest)
		r.Get("/status", s.handleStatus)
		r.Post("/rules/{matterID}/reload", s.handleRuleInvalidate)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

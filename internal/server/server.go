// Package server exposes the orchestrator over a small JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/KaramelBytes/insighto/internal/pipeline"
	insightomw "github.com/KaramelBytes/insighto/internal/server/middleware"
)

type WebAPI struct {
	router  chi.Router
	logger  *zerolog.Logger
	server  *http.Server
	timeout time.Duration
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// ConfigureRouter mounts the API routes.
func ConfigureRouter(logger zerolog.Logger, orch *pipeline.Orchestrator) chi.Router {
	h := NewHandler(orch)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(insightomw.Logger(&logger))
	router.Use(middleware.Recoverer)

	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Post("/", h.CreateSession)
		r.Route("/{session}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.ClearSession)
			r.Get("/preview", h.Preview)
			r.Post("/run", h.Run)
			r.Get("/profile", h.Profile)
			r.Get("/report", h.Report)
			r.Get("/charts", h.Charts)
			r.Post("/charts", h.CustomChart)
			r.Get("/charts/{file}", h.ChartImage)
		})
	})
	return router
}

func NewWebAPI(logger zerolog.Logger, config Config, orch *pipeline.Orchestrator) *WebAPI {
	router := ConfigureRouter(logger, orch)
	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebAPI{
		router:  router,
		logger:  &logger,
		timeout: timeout,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (w *WebAPI) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		sctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		err := w.server.Shutdown(sctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}
		if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return err
	}
}

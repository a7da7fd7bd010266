package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"codelens/internal/handlers"
	"codelens/internal/metrics"
	"codelens/internal/middleware"
)

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, analysisHandler *handlers.AnalysisHandler) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer()) // panic recovery
	r.Use(middleware.MaxBodySize(512 * 1024))

	// The timeout must cover the analyzer's worst case: three 60s
	// attempts plus retry delays plus the rate limiter wait.
	r.Use(middleware.Timeout(4 * time.Minute))

	// routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", analysisHandler.Analyze)
		r.Get("/models", analysisHandler.Models)
		r.Get("/history", analysisHandler.HistoryList)
		r.Delete("/history", analysisHandler.HistoryClear)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}

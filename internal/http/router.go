package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard-api/internal/observability"
	"github.com/kjstillabower/weather-dashboard-api/internal/traffic"
)

// RouterConfig holds the tunables of the middleware pipeline.
type RouterConfig struct {
	RateLimit      RateLimitConfig
	MaxBodyBytes   int64
	CORSOrigins    []string
	RequestTimeout time.Duration // per-request deadline on /api/ routes; 0 disables
}

// NewRouter assembles routes and the fixed middleware chain:
// correlation ID, security headers, CORS, rate limiting on /api/, JSON body
// parsing, metrics, then route dispatch.
func NewRouter(h *Handler, cfg RouterConfig, metrics *observability.Metrics, inflight *InFlightTracker, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/location", h.GetLocation).Methods(http.MethodGet)
	api.HandleFunc("/time", h.GetTime).Methods(http.MethodGet)
	api.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)

	window := cfg.RateLimit.withDefaults().Window
	tracker := traffic.NewTracker(window)
	metrics.RegisterRateLimitGauges(
		func() float64 { return float64(tracker.RequestCount()) },
		func() float64 { return float64(tracker.DenialCount()) },
		tracker.ErrorRatio,
	)

	chain := []mux.MiddlewareFunc{
		CorrelationIDMiddleware(logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(cfg.CORSOrigins),
		RateLimitMiddleware(cfg.RateLimit, tracker, metrics),
		JSONBodyMiddleware(cfg.MaxBodyBytes),
		MetricsMiddleware(router, metrics, inflight),
	}
	var handler http.Handler = router
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}
	return handler
}

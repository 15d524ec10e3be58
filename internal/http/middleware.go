package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard-api/internal/observability"
	"github.com/kjstillabower/weather-dashboard-api/internal/traffic"
)

// Rate limiting defaults: 100 requests per 15 minutes per source address.
const (
	DefaultRateLimitRequests = 100
	DefaultRateLimitWindow   = 15 * time.Minute
	rateLimitPrefix          = "/api/"
	rateLimitMessage         = "Too many requests from this IP"
)

// DefaultMaxBodyBytes caps JSON request bodies.
const DefaultMaxBodyBytes = 100 << 10

// unmatchedRoute labels requests that no route matched, keeping metric cardinality bounded.
const unmatchedRoute = "unmatched"

// CorrelationIDMiddleware reuses the caller's X-Correlation-ID or mints one,
// echoes it, and attaches it and a tagged logger to the request context.
func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get("X-Correlation-ID")
			if corrID == "" {
				corrID = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", corrID)

			ctx := observability.ContextWithCorrelationID(r.Context(), corrID)
			ctx = observability.ContextWithLogger(ctx, logger.With(zap.String("correlation_id", corrID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

const contentSecurityPolicy = "default-src 'self';base-uri 'self';font-src 'self' https: data:;" +
	"form-action 'self';frame-ancestors 'self';img-src 'self' data:;object-src 'none';" +
	"script-src 'self';script-src-attr 'none';style-src 'self' https: 'unsafe-inline';" +
	"upgrade-insecure-requests"

// SecurityHeadersMiddleware sets the standard hardening headers on every response.
// HSTS is only sent over HTTPS.
func SecurityHeadersMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			h.Set("Origin-Agent-Cluster", "?1")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-DNS-Prefetch-Control", "off")
			h.Set("X-Download-Options", "noopen")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			h.Set("X-XSS-Protection", "0")
			if isHTTPS(r) {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// CORSMiddleware allows any origin to read the API.
func CORSMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:       allowedOrigins,
		AllowedMethods:       []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowedHeaders:       []string{"*"},
		ExposedHeaders:       []string{"X-Correlation-ID"},
		OptionsSuccessStatus: http.StatusNoContent,
	})
}

// RateLimitConfig configures the /api/ limiter. Zero values take the defaults.
type RateLimitConfig struct {
	Disabled bool
	Requests int
	Window   time.Duration
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.Requests <= 0 {
		c.Requests = DefaultRateLimitRequests
	}
	if c.Window <= 0 {
		c.Window = DefaultRateLimitWindow
	}
	return c
}

// RateLimitMiddleware limits requests under /api/ per source address using a
// sliding window counter. Other paths pass through untouched. Outcomes on the
// limited path are recorded in tracker.
func RateLimitMiddleware(cfg RateLimitConfig, tracker *traffic.Tracker, metrics *observability.Metrics) mux.MiddlewareFunc {
	if cfg.Disabled {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg = cfg.withDefaults()

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFromContext(r.Context(), nil).Debug("rate limit denied", zap.String("remote_addr", r.RemoteAddr))
		metrics.RecordRateLimitDenied()
		if tracker != nil {
			tracker.RecordDenied()
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, rateLimitMessage)
	}
	limit := httprate.Limit(cfg.Requests, cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(onLimit),
	)

	return func(next http.Handler) http.Handler {
		limited := limit(recordOutcome(tracker, next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, rateLimitPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// recordOutcome reports each answered request to tracker as success or error.
func recordOutcome(tracker *traffic.Tracker, next http.Handler) http.Handler {
	if tracker == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if recorder.statusCode >= http.StatusInternalServerError {
			tracker.RecordError()
		} else {
			tracker.RecordSuccess()
		}
	})
}

// JSONBodyMiddleware validates application/json request bodies up to
// maxBytes: oversized bodies get 413, malformed ones 400. Valid bodies are
// handed on unchanged.
func JSONBodyMiddleware(maxBytes int64) mux.MiddlewareFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody || !isJSON(r.Header.Get("Content-Type")) {
				next.ServeHTTP(w, r)
				return
			}
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "Request entity too large")
					return
				}
				writeError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
			if len(body) > 0 && !json.Valid(body) {
				writeError(w, http.StatusBadRequest, "Invalid JSON body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// MetricsMiddleware records request count, latency and in-flight requests.
// The route label is the path template matched on router, or "unmatched".
func MetricsMiddleware(router *mux.Router, metrics *observability.Metrics, inflight *InFlightTracker) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.RequestStarted()
			defer metrics.RequestFinished()
			if inflight != nil {
				inflight.Increment()
				defer inflight.Decrement()
			}

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			metrics.RecordHTTPRequest(r.Method, routeTemplate(router, r), recorder.statusCode, time.Since(start))
		})
	}
}

func routeTemplate(router *mux.Router, r *http.Request) string {
	if router == nil {
		return unmatchedRoute
	}
	var match mux.RouteMatch
	if !router.Match(r, &match) || match.Route == nil {
		return unmatchedRoute
	}
	tpl, err := match.Route.GetPathTemplate()
	if err != nil || tpl == "" {
		return unmatchedRoute
	}
	return tpl
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// TimeoutMiddleware sets a deadline on the request context. When exceeded, downstream handlers
// receive context.DeadlineExceeded. A zero timeout disables it.
func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	if timeout <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard-api/internal/cache"
	"github.com/kjstillabower/weather-dashboard-api/internal/clock"
	"github.com/kjstillabower/weather-dashboard-api/internal/models"
	"github.com/kjstillabower/weather-dashboard-api/internal/observability"
	"github.com/kjstillabower/weather-dashboard-api/internal/service"
	"github.com/kjstillabower/weather-dashboard-api/internal/validation"
)

// DefaultFallbackIP is geolocated when the client address cannot be determined.
const DefaultFallbackIP = "8.8.8.8"

// Client-facing error messages. Provider detail is logged, never returned.
const (
	msgLocationFailed      = "Failed to get location"
	msgWeatherFailed       = "Failed to get weather data"
	msgForecastFailed      = "Failed to get forecast data"
	msgCoordinatesRequired = "Latitude and longitude required"
	msgCoordinatesInvalid  = "Invalid latitude or longitude"
)

// Lookups is the cache-aside surface the handlers serve from.
type Lookups interface {
	Location(ctx context.Context, ip string) (service.Result, error)
	Weather(ctx context.Context, coords models.Coordinates) (service.Result, error)
	Forecast(ctx context.Context, coords models.Coordinates) (service.Result, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	lookups    Lookups
	clock      *clock.Clock
	cache      *cache.Adapter
	logger     *zap.Logger
	startTime  time.Time
	fallbackIP string
	now        func() time.Time
}

// NewHandler returns a Handler. cache is only consulted for health reporting.
func NewHandler(lookups Lookups, clk *clock.Clock, adapter *cache.Adapter, logger *zap.Logger, startTime time.Time, fallbackIP string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallbackIP == "" {
		fallbackIP = DefaultFallbackIP
	}
	return &Handler{
		lookups:    lookups,
		clock:      clk,
		cache:      adapter,
		logger:     logger,
		startTime:  startTime,
		fallbackIP: fallbackIP,
		now:        time.Now,
	}
}

type healthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
	Redis     string  `json:"redis"`
}

// GetHealth handles GET /health. It always answers 200; cache state is
// informational only.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	redis := "disconnected"
	if h.cache.Connected() {
		redis = "connected"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Uptime:    now.Sub(h.startTime).Seconds(),
		Redis:     redis,
	})
}

// GetLocation handles GET /api/location.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, h.fallbackIP)
	res, err := h.lookups.Location(r.Context(), ip)
	if err != nil {
		h.writeUpstreamError(w, r, msgLocationFailed, err)
		return
	}
	writeRaw(w, http.StatusOK, res.Payload)
}

// GetTime handles GET /api/time. Unknown timezones are not an error.
func (h *Handler) GetTime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.clock.TimeRecord(r.URL.Query().Get("timezone")))
}

// GetWeather handles GET /api/weather?lat=&lon=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	coords, ok := h.coordinates(w, r)
	if !ok {
		return
	}
	res, err := h.lookups.Weather(r.Context(), coords)
	if err != nil {
		h.writeUpstreamError(w, r, msgWeatherFailed, err)
		return
	}
	writeRaw(w, http.StatusOK, res.Payload)
}

// GetForecast handles GET /api/forecast?lat=&lon=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	coords, ok := h.coordinates(w, r)
	if !ok {
		return
	}
	res, err := h.lookups.Forecast(r.Context(), coords)
	if err != nil {
		h.writeUpstreamError(w, r, msgForecastFailed, err)
		return
	}
	writeRaw(w, http.StatusOK, res.Payload)
}

// coordinates validates lat/lon and writes the 400 on failure.
func (h *Handler) coordinates(w http.ResponseWriter, r *http.Request) (models.Coordinates, bool) {
	q := r.URL.Query()
	coords, err := validation.ValidateCoordinates(q.Get("lat"), q.Get("lon"))
	switch {
	case err == nil:
		return coords, true
	case errors.Is(err, validation.ErrCoordinatesRequired):
		writeError(w, http.StatusBadRequest, msgCoordinatesRequired)
	default:
		writeError(w, http.StatusBadRequest, msgCoordinatesInvalid)
	}
	return models.Coordinates{}, false
}

// clientIP returns the first X-Forwarded-For entry, else the connection's
// remote host, else fallback. A first entry that is not an IP address is
// ignored.
func clientIP(r *http.Request, fallback string) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := validation.NormalizeIP(first); ok {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, ok := validation.NormalizeIP(host); ok {
		return ip
	}
	return fallback
}

func (h *Handler) writeUpstreamError(w http.ResponseWriter, r *http.Request, message string, err error) {
	observability.LoggerFromContext(r.Context(), h.logger).Error(message, zap.Error(err))
	writeError(w, http.StatusInternalServerError, message)
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw writes an already encoded JSON payload.
func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

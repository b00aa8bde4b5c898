package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/client"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/report"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/saved"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/service"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/validation"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dashboard        *service.DashboardService
	client           client.WeatherClient
	saved            saved.Store
	healthConfig     *HealthConfig
	logger           *zap.Logger
	rateLimiter      *rate.Limiter
	now              func() time.Time
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. client is used for the health check's API key validation.
func NewHandler(
	dashboard *service.DashboardService,
	client client.WeatherClient,
	store saved.Store,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
) *Handler {
	return &Handler{
		dashboard:    dashboard,
		client:       client,
		saved:        store,
		healthConfig: healthConfig,
		logger:       logger,
		rateLimiter:  rateLimiter,
		now:          time.Now,
	}
}

// GetGeocode handles GET /api/geocode?address=.
func (h *Handler) GetGeocode(w http.ResponseWriter, r *http.Request) {
	loc, err := h.dashboard.Geocode(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// GetReverseGeocode handles GET /api/reverse-geocode?lat=&lng=.
func (h *Handler) GetReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := coordinatesFromQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	loc, err := h.dashboard.ReverseGeocode(r.Context(), lat, lng)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// GetWeather handles GET /api/weather?lat=&lng=[&name=&timezone=].
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := coordinatesFromQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q := client.Query{
		Lat:          lat,
		Lon:          lng,
		TimezoneName: strings.TrimSpace(r.URL.Query().Get("timezone")),
	}
	if name := strings.TrimSpace(r.URL.Query().Get("name")); name != "" {
		if q.LocationName, err = validation.ValidateLocation(name, service.MinLocationLength, service.MaxLocationLength); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	data, err := h.dashboard.GetWeather(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// GetSearch handles GET /api/search?q=. A blank query searches the default location.
func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	result, err := h.dashboard.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetLocate handles GET /api/locate?lat=&lng= (a globe click).
func (h *Handler) GetLocate(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := coordinatesFromQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	result, err := h.dashboard.Locate(r.Context(), lat, lng)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetCities handles GET /api/cities?q= for search-bar recommendations.
func (h *Handler) GetCities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dashboard.SuggestCities(r.URL.Query().Get("q")))
}

// GetReport handles GET /api/report?q= or ?lat=&lng= and returns a PDF attachment.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var (
		result models.LocationWeather
		err    error
	)
	if query.Get("lat") != "" || query.Get("lng") != "" {
		var lat, lng float64
		if lat, lng, err = coordinatesFromQuery(r); err == nil {
			result, err = h.dashboard.Locate(r.Context(), lat, lng)
		}
	} else {
		result, err = h.dashboard.Search(r.Context(), query.Get("q"))
	}
	if err != nil {
		observability.ReportsTotal.WithLabelValues("error").Inc()
		writeServiceError(w, r, err)
		return
	}

	now := h.now()
	var buf bytes.Buffer
	if err := report.Generate(&buf, result.Weather, now); err != nil {
		observability.ReportsTotal.WithLabelValues("error").Inc()
		observability.LoggerFromContext(r.Context()).Error("report generation failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "REPORT_FAILED", "Unable to generate report")
		return
	}
	observability.ReportsTotal.WithLabelValues("success").Inc()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(result.Location.Name, now)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// PostSuggestion handles POST /api/suggestions/{mode}. The path mode wins over any mode in the body.
func (h *Handler) PostSuggestion(w http.ResponseWriter, r *http.Request) {
	var req models.SuggestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	req.Mode = strings.ToLower(mux.Vars(r)["mode"])

	sugg, err := h.dashboard.SuggestStartTime(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sugg)
}

func coordinatesFromQuery(r *http.Request) (float64, float64, error) {
	q := r.URL.Query()
	return validation.ParseCoordinates(q.Get("lat"), q.Get("lng"))
}

// decodeJSON reads a bounded JSON body into v. Failures wrap validation.ErrInvalidRequest.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", validation.ErrInvalidRequest, err)
	}
	return nil
}

package dashboard

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/movies"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/middleware"
)

type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "dashboard-handler"),
	}
}

type moviesResponse struct {
	Movies  []movies.Listing `json:"movies"`
	Count   int              `json:"count"`
	Filters Filter           `json:"filters"`
}

// Movies handles GET /api/v1/movies.
func (h *Handler) Movies(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.svc.Movies(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, moviesResponse{Movies: list, Count: len(list), Filters: f})
}

// Genres handles GET /api/v1/genres.
func (h *Handler) Genres(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Genres(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"genres": names})
}

// fail logs err and answers with a generic message; storage details stay in
// the log.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	logger.FromContext(r.Context()).Error("dashboard request failed",
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	msg := "internal error"
	switch {
	case errors.Is(err, apperrors.ErrStorage):
		msg = "movie data is unavailable, try again later"
	case status == http.StatusGatewayTimeout:
		msg = "request timed out"
	}
	h.writeError(w, status, msg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// NewRouter builds the dashboard HTTP handler.
//
//	GET /api/v1/movies   filtered snapshot with posters
//	GET /api/v1/genres   distinct genre names
//	GET /health/live     liveness
//	GET /health/ready    database and cache checks
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → RateLimit → Timeout → mux
//
// limiter may be nil.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, timeout time.Duration, limiter *middleware.ClientLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/movies", h.Movies)
	mux.HandleFunc("GET /api/v1/genres", h.Genres)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(timeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)
	return chain
}

// Package api serves the storefront checkout and the merchant dashboard over
// HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tutaviendo/storefront/internal/analytics"
	"github.com/tutaviendo/storefront/internal/composer"
	"github.com/tutaviendo/storefront/internal/logging"
	"github.com/tutaviendo/storefront/pkg/models"
)

// StoreFinder resolves a store by id or slug.
type StoreFinder interface {
	FindStore(key string) (*models.StoreConfig, error)
}

// Handler holds all API handler state.
type Handler struct {
	stores    StoreFinder
	events    *analytics.Store
	composer  *composer.Dispatcher
	logger    *logging.Logger
	jwtSecret []byte
}

// NewHandler creates a new API handler. An empty jwtSecret leaves the stats
// routes open.
func NewHandler(stores StoreFinder, events *analytics.Store, dispatcher *composer.Dispatcher, logger *logging.Logger, jwtSecret string) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	if dispatcher == nil {
		dispatcher = composer.NewDispatcher("", nil, logger)
	}
	var secret []byte
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	return &Handler{
		stores:    stores,
		events:    events,
		composer:  dispatcher,
		logger:    logger,
		jwtSecret: secret,
	}
}

// NewRouter builds a chi router with the common middleware and all routes.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(h.requestLog)
	h.Routes(r)
	return r
}

// Routes mounts the storefront routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Health)

	r.Route("/api/stores/{storeID}", func(r chi.Router) {
		r.Get("/config", h.GetStoreConfig)
		r.Post("/visits", h.RecordVisit)
		r.Post("/product-views", h.RecordProductView)
		r.Post("/orders", h.CreateOrder)

		// Merchant dashboard
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)
			r.Get("/stats", h.GetStats)
		})
	})
}

// requestLog writes one structured entry per request.
func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := models.LogLevelINFO
		if ww.Status() >= http.StatusInternalServerError {
			level = models.LogLevelERROR
		}
		h.logger.Log(level, "HTTP request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  chimw.GetReqID(r.Context()),
		})
	})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the error response format. Field is set for form errors.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

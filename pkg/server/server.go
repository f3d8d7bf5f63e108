// Package server exposes the priced catalog over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"jewelry-catalog/pkg/catalog"
	"jewelry-catalog/pkg/metrics"
	"jewelry-catalog/pkg/oracle"
)

// productsErrorMessage is the only failure body /api/products ever returns.
const productsErrorMessage = "Server error, failed to load products."

// CatalogService returns the priced catalog.
type CatalogService interface {
	PricedCatalog(ctx context.Context) ([]catalog.PricedItem, error)
}

// PriceReader returns the current unit price and where it came from.
type PriceReader interface {
	Reading(ctx context.Context) oracle.Reading
}

// Config holds router settings.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins. Empty means all.
	AllowedOrigins []string
	// RequestTimeout bounds each request. Zero means 60s.
	RequestTimeout time.Duration
	// MetricsPath mounts the Prometheus handler when Gatherer is set.
	MetricsPath string
	Gatherer    prometheus.Gatherer
	Metrics     *metrics.Metrics
}

// Handler serves the catalog API.
type Handler struct {
	catalog CatalogService
	prices  PriceReader
	logger  zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(c CatalogService, p PriceReader, logger zerolog.Logger) *Handler {
	return &Handler{
		catalog: c,
		prices:  p,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// NewRouter wires the handler into a chi router.
func NewRouter(h *Handler, logger zerolog.Logger, cfg Config) *chi.Mux {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewMetricsMiddleware(cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(NewCORSMiddleware(cfg.AllowedOrigins))

	r.Get("/health", h.HealthCheck)
	if cfg.Gatherer != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, metrics.Handler(cfg.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/price", h.GetPrice)
	})

	return r
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.PricedCatalog(r.Context())
	if err != nil {
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Failed to load products")
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: productsErrorMessage})
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(catalog.FormatText(items)))
		return
	}

	h.writeJSON(w, http.StatusOK, items)
}

// PriceResponse is the body of GET /api/price.
type PriceResponse struct {
	PricePerGram float64    `json:"price_per_gram"`
	Source       string     `json:"source"`
	FetchedAt    *time.Time `json:"fetched_at,omitempty"`
	QuoteID      *uuid.UUID `json:"quote_id,omitempty"`
	Field        string     `json:"field,omitempty"`
}

// GetPrice handles GET /api/price.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	reading := h.prices.Reading(r.Context())

	resp := PriceResponse{
		PricePerGram: reading.Amount,
		Source:       string(reading.Source),
	}
	if q := reading.Quote; q != nil {
		fetchedAt := q.FetchedAt
		id := q.ID
		resp.FetchedAt = &fetchedAt
		resp.QuoteID = &id
		resp.Field = q.Field
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

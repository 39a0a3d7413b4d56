// Package api is the HTTP surface of the publication service: a chi
// router over the saga engine, the catalog store, and the webhook event
// admin operations.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/markethub/markethub/internal/logging"
	"github.com/markethub/markethub/internal/marketplace"
	"github.com/markethub/markethub/internal/product"
	"github.com/markethub/markethub/internal/saga"
	"github.com/markethub/markethub/internal/webhook"
)

// Engine is the saga surface the API serves.
type Engine interface {
	Create(ctx context.Context, productID, marketplaceID uuid.UUID) (*saga.CreateResult, error)
	Status(ctx context.Context, taskID uuid.UUID) (*saga.StatusSnapshot, error)
	ProductSummary(ctx context.Context, productID uuid.UUID, f saga.TaskFilter) (*saga.Summary, error)
}

// CatalogStore is the catalog surface the API serves.
type CatalogStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*product.Product, error)
	InsertProduct(ctx context.Context, p *product.Product) error
	ListProducts(ctx context.Context, limit, offset int) ([]*product.Product, error)
	GetMarketplace(ctx context.Context, id uuid.UUID) (*marketplace.Marketplace, error)
	InsertMarketplace(ctx context.Context, m *marketplace.Marketplace) error
	ListMarketplaces(ctx context.Context, activeOnly bool) ([]*marketplace.Marketplace, error)
}

// Server holds the handler dependencies.
type Server struct {
	engine     Engine
	catalog    CatalogStore
	events     webhook.EventStore
	dispatcher *webhook.Dispatcher
	logger     *logging.Logger
}

func NewServer(engine Engine, catalog CatalogStore, events webhook.EventStore, dispatcher *webhook.Dispatcher) *Server {
	return &Server{
		engine:     engine,
		catalog:    catalog,
		events:     events,
		dispatcher: dispatcher,
		logger:     logging.New("markethub-api"),
	}
}

// Router assembles the chi routes. healthz and metricsHandler come from
// main so the package stays free of pool and registry plumbing.
func (s *Server) Router(healthz http.HandlerFunc, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	r.Use(s.requestLog)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/publications", s.createPublication)
		r.Get("/publications/{taskID}", s.taskStatus)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Post("/", s.createProduct)
			r.Get("/{productID}", s.getProduct)
			r.Get("/{productID}/publications", s.productPublications)
		})

		r.Route("/marketplaces", func(r chi.Router) {
			r.Get("/", s.listMarketplaces)
			r.Post("/", s.createMarketplace)
		})

		r.Route("/webhook-events", func(r chi.Router) {
			r.Get("/", s.listEvents)
			r.Post("/", s.dispatchEvent)
			r.Post("/{eventID}/retry", s.retryEvent)
		})
	})

	if healthz != nil {
		r.Get("/healthz", healthz)
	}
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	return r
}

// requestLog emits one line per request with method, path, status and
// duration.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.logger.WithContext(r.Context()).WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request complete")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

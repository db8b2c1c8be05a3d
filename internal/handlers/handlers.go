package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/XavierBriggs/Tyche/internal/hub"
	"github.com/XavierBriggs/Tyche/internal/loader"
	"github.com/XavierBriggs/Tyche/internal/metrics"
	"github.com/XavierBriggs/Tyche/internal/registry"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	vendor   contracts.VendorAdapter
	networks *registry.NetworkRegistry
	loaders  *loader.Manager
	store    contracts.Store
	hub      *hub.Hub
	metrics  *metrics.Metrics

	// ctx outlives requests; websocket pumps run on it
	ctx         context.Context
	corsOrigins []string
	now         func() time.Time
}

// Deps groups what NewHandler needs. Hub, Store and Metrics may be nil.
type Deps struct {
	Vendor      contracts.VendorAdapter
	Networks    *registry.NetworkRegistry
	Loaders     *loader.Manager
	Store       contracts.Store
	Hub         *hub.Hub
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

// ErrorResponse is the body of every error this service produces
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewHandler creates a new handler with dependencies
func NewHandler(ctx context.Context, deps Deps) *Handler {
	return &Handler{
		vendor:      deps.Vendor,
		networks:    deps.Networks,
		loaders:     deps.Loaders,
		store:       deps.Store,
		hub:         deps.Hub,
		metrics:     deps.Metrics,
		ctx:         ctx,
		corsOrigins: deps.CORSOrigins,
		now:         time.Now,
	}
}

// Router builds the HTTP routes
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.instrument)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	if h.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Vendor proxy
	r.Route("/api", func(r chi.Router) {
		r.Get("/markets", h.GetDefaultMarkets)
		r.Get("/markets/{networkId}", h.GetMarkets)
		r.Get("/profile/{networkId}/{address}", h.GetProfile)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/markets/{networkId}/view", h.GetMarketView)
			r.Post("/markets/{networkId}/refresh", h.RefreshMarkets)
			r.Post("/quote/{networkId}", h.RequestQuote)
			r.Post("/lucky/{networkId}", h.FeelingLucky)
			r.Get("/history/{networkId}/{address}", h.GetHistory)
		})
	})

	if h.hub != nil {
		r.Get("/ws/markets", h.HandleWebSocket)
	}

	return r
}

// HealthCheck returns the health status of the service
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			glog.Warningf("[Handlers] health: store ping failed: %v", err)
			respondError(w, http.StatusServiceUnavailable, "store unhealthy")
			return
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"service":   "tyche",
		"timestamp": h.now().UTC(),
		"networks":  h.networks.Count(),
	}
	if h.hub != nil {
		health["active_clients"] = h.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, health)
}

// instrument records every request by route pattern and status
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		h.metrics.RecordProxy(route, status, time.Since(start))
		glog.V(1).Infof("[HTTP] %s %s %d %v", r.Method, route, status, time.Since(start))
	})
}

// networkParam parses the {networkId} URL parameter
func networkParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "networkId"), 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		glog.Errorf("[Handlers] error encoding response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondRaw writes a vendor body through untouched
func respondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(body); err != nil {
		glog.Errorf("[Handlers] error writing response: %v", err)
	}
}

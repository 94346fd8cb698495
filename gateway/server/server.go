// Package server exposes the two Paymob callback endpoints: the
// server-to-server transaction webhook that mutates order state, and the
// browser-return redirect that only ever renders. Both verify the gateway
// signature before trusting a single field of the message.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spicepay/gateway/middleware"
	"spicepay/gateway/paymob"
	"spicepay/observability"
	"spicepay/storage/deliveries"
	"spicepay/storage/orders"
)

const maxCallbackBody = 1 << 20

// Config carries the dependencies the server needs. Everything is
// constructed once at startup and injected; handlers hold no mutable state
// of their own.
type Config struct {
	Orders     orders.Store
	Deliveries *deliveries.Store
	Verifier   *paymob.Verifier
	Logger     *slog.Logger
	RateLimit  middleware.Limit
	Now        func() time.Time
}

// Server is the HTTP surface for Paymob callbacks.
type Server struct {
	orders     orders.Store
	deliveries *deliveries.Store
	verifier   *paymob.Verifier
	logger     *slog.Logger
	metrics    *observability.PaymentGatewayMetrics
	nowFn      func() time.Time

	router http.Handler
}

// New constructs the server and its router.
func New(cfg Config) *Server {
	if cfg.Orders == nil {
		panic("order store required")
	}
	if cfg.Verifier == nil {
		panic("paymob verifier required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	srv := &Server{
		orders:     cfg.Orders,
		deliveries: cfg.Deliveries,
		verifier:   cfg.Verifier,
		logger:     logger,
		metrics:    observability.PaymentGateway(),
		nowFn:      nowFn,
	}
	srv.router = srv.buildRouter(cfg.RateLimit)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(limit middleware.Limit) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	limiter := middleware.NewClientLimiter(limit)
	r.Route("/payments/paymob", func(pr chi.Router) {
		pr.Use(limiter.Middleware)
		pr.Post("/webhook", s.handleWebhook)
		pr.Get("/redirect", s.handleRedirect)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

// writeError emits the uniform error shape. Messages stay short and
// machine-meaningful; nothing about internal state or which verification
// step failed ever reaches the caller.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

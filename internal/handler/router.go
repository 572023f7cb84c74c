package handler

import (
	"net/http"

	"settld/internal/middleware"
	"settld/pkg/logger"

	"github.com/gorilla/mux"
)

// RouterConfig carries everything the HTTP surface is built from.
// RateLimiter is optional and applies to webhook intake only.
type RouterConfig struct {
	Webhook      *WebhookHandler
	Transactions *TransactionHandler
	System       *SystemHandler
	Stream       *StreamHandler
	RateLimiter  *middleware.RateLimiter
	Logger       logger.Logger
}

func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CorrelationID)
	router.Use(middleware.NewLoggingMiddleware(cfg.Logger).Log)
	router.Use(middleware.Recovery(cfg.Logger))
	router.Use(middleware.SecurityHeaders)

	router.HandleFunc("/", cfg.System.Health).Methods(http.MethodGet)
	router.HandleFunc("/health", cfg.System.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", cfg.System.Ready).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()

	webhooks := v1.PathPrefix("/webhooks").Subrouter()
	if cfg.RateLimiter != nil {
		webhooks.Use(cfg.RateLimiter.Limit)
	}
	webhooks.HandleFunc("/transactions", cfg.Webhook.Receive).Methods(http.MethodPost)

	// Registered before the {transaction_id} route so "stream" is never taken as an id.
	if cfg.Stream != nil {
		v1.HandleFunc("/transactions/stream", cfg.Stream.Stream).Methods(http.MethodGet)
	}
	v1.HandleFunc("/transactions/{transaction_id}", cfg.Transactions.GetTransaction).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, cfg.Logger, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, cfg.Logger, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return router
}

// Package engine orchestrates the payment request lifecycle: creation,
// expiry, regeneration and settlement verification, with the store as the
// single writer of request state.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vorpalengineering/paylink-go/ledger"
	"github.com/vorpalengineering/paylink-go/notify"
	"github.com/vorpalengineering/paylink-go/rail"
	"github.com/vorpalengineering/paylink-go/rate"
	"github.com/vorpalengineering/paylink-go/store"
	"github.com/vorpalengineering/paylink-go/types"
)

type Engine struct {
	config   *Config
	store    *store.Store
	rates    rate.Source
	ledger   ledger.Client
	rail     rail.Rail
	hub      *notify.Hub
	notifier notify.Notifier
	events   chan notify.Event
	router   *gin.Engine
	logger   *logrus.Logger
	server   *http.Server
	upgrader websocket.Upgrader
}

// New wires an engine from its collaborators. Extra notifiers (merchant
// integrations, tests) are fanned in after the built-in log/hub/webhook set.
func New(cfg *Config, st *store.Store, rates rate.Source, lc ledger.Client, topup rail.Rail, extra ...notify.Notifier) *Engine {
	logger := newLogger(cfg.Log.Level)

	hub := notify.NewHub(logger)
	notifiers := notify.Multi{&notify.Log{Logger: logger}, hub}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout(), logger))
	}
	notifiers = append(notifiers, extra...)

	e := &Engine{
		config:   cfg,
		store:    st,
		rates:    rates,
		ledger:   lc,
		rail:     topup,
		hub:      hub,
		notifier: notifiers,
		events:   make(chan notify.Event, 256),
		logger:   logger,
		upgrader: websocket.Upgrader{
			// The payer page is served from a different origin than the API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	e.router = gin.New()
	e.router.Use(gin.Recovery())
	e.registerRoutes()

	go e.dispatchEvents()

	return e
}

// dispatchEvents delivers transitions to the notifiers one at a time, in
// the order they were recorded. A single consumer keeps Pending-before-
// Settled ordering intact for watchers of the same reference.
func (e *Engine) dispatchEvents() {
	for evt := range e.events {
		e.notifier.Notify(evt)
	}
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func (e *Engine) registerRoutes() {
	e.router.POST("/requests", e.handleCreate)
	e.router.GET("/requests", e.handleList)
	e.router.GET("/requests/:reference", e.handleGet)
	e.router.POST("/requests/:reference/regenerate", e.handleRegenerate)
	e.router.POST("/requests/:reference/verify", e.handleVerify)
	e.router.GET("/requests/:reference/gate", e.handleGate)
	e.router.GET("/pay/:reference", e.handlePay)
	e.router.POST("/topups", e.handleTopUp)
	e.router.POST("/topups/:id/callback", e.handleTopUpCallback)
	e.router.GET("/ws/requests/:reference", e.handleWatch)
}

// Run serves the API and the expiry monitor until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	go e.runExpiryMonitor(monitorCtx)

	e.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", e.config.Server.Host, e.config.Server.Port),
		Handler: e.router,
	}

	errChan := make(chan error, 1)
	go func() {
		e.logger.WithField("addr", e.server.Addr).Info("payment engine listening")
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// notifyTransition queues a state change for delivery off the request path.
// Status snapshots always come from the store, never from callers. Delivery
// is best effort: under sustained backpressure transitions are dropped
// rather than blocking the request.
func (e *Engine) notifyTransition(req *types.PaymentRequest) {
	evt := notify.Event{
		Reference:  req.Reference,
		Status:     req.Status,
		Request:    req.Clone(),
		OccurredAt: time.Now().UTC(),
	}

	select {
	case e.events <- evt:
	default:
		e.logger.WithField("reference", evt.Reference).Warn("notification queue full, dropping transition event")
	}
}

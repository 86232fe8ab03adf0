// Package notify fans out payment request state transitions to the merchant
// and to connected payer clients.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/paylink-go/types"
)

// Event describes one state transition of a payment request.
type Event struct {
	Reference  string                `json:"reference"`
	Status     types.Status          `json:"status"`
	Request    *types.PaymentRequest `json:"request,omitempty"`
	OccurredAt time.Time             `json:"occurredAt"`
}

// Notifier receives transition events. Implementations must not block the
// caller for long; the engine invokes Notify off the request path but a slow
// notifier still delays its siblings in a Multi.
type Notifier interface {
	Notify(evt Event)
}

// Multi fans an event out to every child notifier.
type Multi []Notifier

func (m Multi) Notify(evt Event) {
	for _, n := range m {
		n.Notify(evt)
	}
}

// Log writes every transition to the structured log.
type Log struct {
	Logger *logrus.Logger
}

func (l *Log) Notify(evt Event) {
	l.Logger.WithFields(logrus.Fields{
		"reference": evt.Reference,
		"status":    evt.Status,
	}).Info("payment request transition")
}

// Webhook POSTs every transition to the merchant's notification endpoint.
// Delivery is best effort: failures are logged, never retried here.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewWebhook(url string, timeout time.Duration, logger *logrus.Logger) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (w *Webhook) Notify(evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		w.logger.WithError(err).Error("failed to encode webhook event")
		return
	}

	resp, err := w.httpClient.Post(w.url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		w.logger.WithError(err).WithField("reference", evt.Reference).Warn("webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.WithFields(logrus.Fields{
			"reference": evt.Reference,
			"status":    resp.StatusCode,
		}).Warn("webhook delivery rejected")
	}
}

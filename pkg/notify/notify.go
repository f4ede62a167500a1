// Package notify implements the jobs-available hint sent to runners.
// Delivery is best-effort by contract, runners poll anyway.
package notify

import (
	"bytes"
	"net/http"
	"time"

	"github.com/psantana5/runner-orchestrator/pkg/logging"
)

// Noop swallows notifications
type Noop struct{}

// NotifyJobsAvailable implements engine.Notifier
func (Noop) NotifyJobsAvailable() {}

// Log records notifications in the log, useful for development and tests
type Log struct {
	logger *logging.Logger
}

// NewLog creates a logging notifier
func NewLog(logger *logging.Logger) *Log {
	return &Log{logger: logger}
}

// NotifyJobsAvailable implements engine.Notifier
func (n *Log) NotifyJobsAvailable() {
	n.logger.Debug("Jobs available, notifying runners")
}

// Webhook POSTs a ping to a configured URL. The request runs in the
// background so job creation never blocks on a slow receiver; failures are
// logged and dropped.
type Webhook struct {
	url    string
	client *http.Client
	logger *logging.Logger
}

// NewWebhook creates a webhook notifier
func NewWebhook(url string, logger *logging.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// NotifyJobsAvailable implements engine.Notifier
func (n *Webhook) NotifyJobsAvailable() {
	go func() {
		body := bytes.NewBufferString(`{"event":"jobs-available"}`)
		resp, err := n.client.Post(n.url, "application/json", body)
		if err != nil {
			n.logger.Warn("Failed to notify runners", map[string]interface{}{
				"url":   n.url,
				"error": err.Error(),
			})
			return
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 {
			n.logger.Warn("Runner notification rejected", map[string]interface{}{
				"url":    n.url,
				"status": resp.StatusCode,
			})
		}
	}()
}

package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimtrace/internal/config"
	"github.com/sells-group/claimtrace/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertHardFailureRate AlertType = "hard_failure_rate"
	AlertStaleDocuments  AlertType = "stale_documents"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates metrics against configured thresholds and sends alerts
// via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.AlertConfig
	client *http.Client
	retry  resilience.RetryConfig
}

func NewAlerter(cfg config.AlertConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			OnRetry:        resilience.RetryLogger("webhook", "alert"),
		},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// The hard-failure check needs a minimum window size; a 100% failure rate
// over two requests is noise, not a signal.
func (a *Alerter) Evaluate(snap MetricsSnapshot, stale []StalenessReport) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.Requests >= a.cfg.MinWindowAttempts && snap.HardFailRate > a.cfg.HardFailRate {
		alerts = append(alerts, Alert{
			Type:     AlertHardFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Extraction hard-failure rate %.1f%% exceeds threshold %.1f%% (%d exhausted / %d requests)",
				snap.HardFailRate*100, a.cfg.HardFailRate*100,
				snap.Exhausted, snap.Requests,
			),
			Details: map[string]any{
				"hard_fail_rate": snap.HardFailRate,
				"threshold":      a.cfg.HardFailRate,
				"exhausted":      snap.Exhausted,
				"requests":       snap.Requests,
				"check_failures": snap.CheckFailures,
			},
			Timestamp: now,
		})
	}

	if len(stale) > 0 {
		affected := 0
		for _, r := range stale {
			affected += len(r.Impact.ExtractionIDs)
		}
		alerts = append(alerts, Alert{
			Type:     AlertStaleDocuments,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d source document(s) changed since extraction; %d lineage row(s) affected",
				len(stale), affected,
			),
			Details: map[string]any{
				"stale_documents":      len(stale),
				"affected_extractions": affected,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}

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

	"github.com/sells-group/acquisition-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate     AlertType = "run_failure_rate"
	AlertAttemptFailureRate AlertType = "attempt_failure_rate"
	AlertPoolExhausted      AlertType = "pool_exhausted"
)

// Minimum sample sizes before a rate alert fires.
const (
	minFinishedRuns = 5
	minAttempts     = 20
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsCompleted + snap.RunsFailed
	if finished >= minFinishedRuns && snap.RunFailRate > a.cfg.RunFailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RunFailRate*100, a.cfg.RunFailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.RunFailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.AttemptsTotal >= minAttempts && snap.AttemptFailRate > a.cfg.AttemptFailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertAttemptFailureRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Fetch failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempts in last %dh)",
				snap.AttemptFailRate*100, a.cfg.AttemptFailureRateThreshold*100,
				snap.AttemptsFailed, snap.AttemptsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.AttemptFailRate,
				"threshold":    a.cfg.AttemptFailureRateThreshold,
				"failed":       snap.AttemptsFailed,
				"total":        snap.AttemptsTotal,
			},
			Timestamp: now,
		})
	}

	// Direct egress takes over when no endpoint is active.
	if snap.EndpointsTotal > 0 && snap.EndpointsActive < a.cfg.MinActiveEndpoints {
		alerts = append(alerts, Alert{
			Type:     AlertPoolExhausted,
			Severity: "critical",
			Message: fmt.Sprintf(
				"%d of %d proxy endpoints active, minimum is %d",
				snap.EndpointsActive, snap.EndpointsTotal, a.cfg.MinActiveEndpoints,
			),
			Details: map[string]any{
				"active":           snap.EndpointsActive,
				"total":            snap.EndpointsTotal,
				"avg_success_rate": snap.PoolAvgSuccessRate,
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
		if err := a.sendWebhook(ctx, alert); err != nil {
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
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Package monitoring sends webhook alerts about classification runs that
// need human attention.
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

	"github.com/sells-group/tariff-cli/internal/config"
	"github.com/sells-group/tariff-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBudgetExhausted AlertType = "budget_exhausted"
	AlertEscalation      AlertType = "escalation"
	AlertCostOverrun     AlertType = "cost_overrun"
	AlertOracleOutage    AlertType = "oracle_outage"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a finished run and posts alerts to a webhook.
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

// Evaluate returns the alerts a run result warrants.
func (a *Alerter) Evaluate(res *model.RunResult) []Alert {
	if res == nil {
		return nil
	}
	var alerts []Alert
	now := time.Now().UTC()

	if res.Escalation != nil {
		alerts = append(alerts, Alert{
			Type:     AlertEscalation,
			Severity: "medium",
			RunID:    res.RunID,
			Message: fmt.Sprintf("Conversation %s escalated after %d attempts",
				res.Escalation.ThreadKey, res.Escalation.AttemptCount),
			Details: map[string]any{
				"thread_key":  res.Escalation.ThreadKey,
				"codes_tried": res.Escalation.CodesTried,
			},
			Timestamp: now,
		})
	}

	if res.Budget.Stopped {
		alerts = append(alerts, Alert{
			Type:     AlertBudgetExhausted,
			Severity: "high",
			RunID:    res.RunID,
			Message: fmt.Sprintf("Run budget exhausted: $%.4f spent of $%.2f (margin $%.2f)",
				res.Budget.SpentUSD, res.Budget.LimitUSD, res.Budget.MarginUSD),
			Details: map[string]any{
				"spent_usd":   res.Budget.SpentUSD,
				"limit_usd":   res.Budget.LimitUSD,
				"by_category": res.Budget.ByCategory,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && res.Budget.SpentUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			RunID:    res.RunID,
			Message: fmt.Sprintf("Run cost $%.4f exceeds threshold $%.2f",
				res.Budget.SpentUSD, a.cfg.CostThresholdUSD),
			Details: map[string]any{
				"cost_usd":      res.Budget.SpentUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
			},
			Timestamp: now,
		})
	}

	var silent []int
	for _, it := range res.Items {
		if it.CrossCheck != nil && it.CrossCheck.Tier == model.TierNoResponse {
			silent = append(silent, it.Index)
		}
	}
	if len(silent) > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertOracleOutage,
			Severity:  "medium",
			RunID:     res.RunID,
			Message:   fmt.Sprintf("No oracle responded to the cross-check for %d item(s)", len(silent)),
			Details:   map[string]any{"items": silent},
			Timestamp: now,
		})
	}

	return alerts
}

// Notify evaluates res and sends the resulting alerts. It returns the
// number sent.
func (a *Alerter) Notify(ctx context.Context, res *model.RunResult) int {
	return a.SendAlerts(ctx, a.Evaluate(res))
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
				zap.String("run_id", alert.RunID),
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

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

// Client calls uptime heartbeats and posts operator alerts.
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	alertURL   string
}

func New(logger *logger.Logger, alertURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:   logger,
		alertURL: alertURL,
	}
}

// CallUptimeWebhook pings a heartbeat URL; failures are logged, never returned.
func (c *Client) CallUptimeWebhook(ctx context.Context, webhookURL string) {
	if webhookURL == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, webhookURL, nil)
	if err != nil {
		c.logger.Error("[CallUptimeWebhook] build request", map[string]string{
			"url":   webhookURL,
			"error": err.Error(),
		})
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("[CallUptimeWebhook] call failed", map[string]string{
			"url":   webhookURL,
			"error": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	c.logger.Debug("[CallUptimeWebhook] ok", map[string]string{
		"url":         webhookURL,
		"status_code": resp.Status,
	})
}

type Alert struct {
	Severity string            `json:"severity"`
	Title    string            `json:"title"`
	Details  map[string]string `json:"details,omitempty"`
	At       time.Time         `json:"at"`
}

// Notify posts an alert to the configured alert URL. Without one the alert is
// only logged.
func (c *Client) Notify(ctx context.Context, alert Alert) {
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	fields := map[string]string{"title": alert.Title, "severity": alert.Severity}
	for k, v := range alert.Details {
		fields[k] = v
	}
	c.logger.Error("[Notify] operator alert", fields)

	if c.alertURL == "" {
		return
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.alertURL, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("[Notify] build request", map[string]string{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("[Notify] post failed", map[string]string{"error": err.Error()})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.logger.Warn("[Notify] alert endpoint answered", map[string]string{"status_code": resp.Status})
	}
}

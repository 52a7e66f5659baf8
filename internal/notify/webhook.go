package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/riskfoundry/kestrel/internal/domain"
)

// WebhookChannel POSTs a JSON trigger payload to the method's URL. Any
// non-2xx response is a delivery failure for that method only.
type WebhookChannel struct {
	client *http.Client
}

// NewWebhookChannel creates the webhook channel with a per-send timeout.
func NewWebhookChannel(timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *WebhookChannel) Type() string {
	return domain.ChannelWebhook
}

// webhookPayload is the wire shape of a trigger POST.
type webhookPayload struct {
	Event            string    `json:"event"`
	RuleID           string    `json:"ruleId"`
	RuleName         string    `json:"ruleName"`
	OrganizationID   string    `json:"organizationId"`
	InstanceID       string    `json:"instanceId"`
	Status           string    `json:"status"`
	TriggerValue     string    `json:"triggerValue"`
	Threshold        float64   `json:"threshold"`
	TriggerCondition string    `json:"triggerCondition"`
	TriggeredAt      time.Time `json:"triggeredAt"`
}

func (c *WebhookChannel) Send(ctx context.Context, method domain.NotificationMethod, rule *domain.AlertRule, instance *domain.AlertInstance) error {
	if method.Config.URL == "" {
		return fmt.Errorf("webhook method has no URL")
	}

	payload := webhookPayload{
		Event:            "alert.triggered",
		RuleID:           rule.ID,
		RuleName:         rule.Name,
		OrganizationID:   instance.OrganizationID,
		InstanceID:       instance.ID,
		Status:           instance.Status,
		TriggerValue:     instance.TriggerValue,
		Threshold:        instance.Threshold,
		TriggerCondition: instance.TriggerCondition,
		TriggeredAt:      instance.CreatedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, method.Config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range method.Config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fibhq/outbox-bridge/internal/model"
)

// WebhookStrategy POSTs the event document to a configured URL. Any non-2xx
// response fails the delivery.
type WebhookStrategy struct {
	client *http.Client
}

func NewWebhookStrategy(client *http.Client) *WebhookStrategy {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookStrategy{client: client}
}

func (s *WebhookStrategy) Type() string  { return "webhook" }
func (s *WebhookStrategy) Label() string { return "Webhook" }

func (s *WebhookStrategy) ConfigFields() []ConfigField {
	return []ConfigField{
		{Name: "url", Type: "url", Label: "Webhook URL", Required: true, Placeholder: "https://example.com/webhooks/orders"},
		{Name: "secretRef", Type: "text", Label: "Bearer token reference (env:... or file:...)", Placeholder: "env:OUTBOX_WEBHOOK_TOKEN"},
	}
}

func (s *WebhookStrategy) ValidateConfig(config map[string]any) error {
	return requireFields(s.Type(), config, "url")
}

func (s *WebhookStrategy) Publish(ctx context.Context, event model.DomainEvent, dctx Context, config map[string]any) error {
	if err := s.ValidateConfig(config); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, stringValue(config, "url"), bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", event.ID)
	req.Header.Set("X-Event-Name", event.EventName)
	req.Header.Set("X-Outbox-Destination-Id", dctx.DestinationID)
	req.Header.Set("X-Outbox-Destination-Key", dctx.DestinationKey)
	if dctx.DeliveryID != "" {
		req.Header.Set("X-Outbox-Delivery-Id", dctx.DeliveryID)
	}
	if secret := stringValue(config, "secret"); secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	// extra static headers from config
	if extra, ok := config["headers"].(map[string]any); ok {
		for name := range extra {
			if v := stringValue(extra, name); v != "" {
				req.Header.Set(name, v)
			}
		}
	}

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook publish failed: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("webhook publish failed with HTTP %d", res.StatusCode)
	}

	return nil
}

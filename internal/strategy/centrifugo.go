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

// CentrifugoStrategy publishes to a Centrifugo channel via the server HTTP
// API. Centrifugo reports API-level failures in a 200 body, so the response
// is inspected for an "error" field as well.
type CentrifugoStrategy struct {
	client *http.Client
}

func NewCentrifugoStrategy(client *http.Client) *CentrifugoStrategy {
	if client == nil {
		client = http.DefaultClient
	}
	return &CentrifugoStrategy{client: client}
}

func (s *CentrifugoStrategy) Type() string  { return "centrifugo" }
func (s *CentrifugoStrategy) Label() string { return "Centrifugo" }

func (s *CentrifugoStrategy) ConfigFields() []ConfigField {
	return []ConfigField{
		{Name: "apiUrl", Type: "url", Label: "HTTP API URL", Required: true, Placeholder: "http://centrifugo:8000/api"},
		{Name: "apiKey", Type: "text", Label: "API key (direct, avoid in production)"},
		{Name: "apiKeyRef", Type: "text", Label: "API key reference (env:... or file:...)", Placeholder: "env:OUTBOX_CENTRIFUGO_API_KEY"},
		{Name: "channel", Type: "text", Label: "Channel", Required: true, Placeholder: "outbox.events"},
	}
}

func (s *CentrifugoStrategy) ValidateConfig(config map[string]any) error {
	return requireFields(s.Type(), config, "apiUrl", "apiKey", "channel")
}

func (s *CentrifugoStrategy) Publish(ctx context.Context, event model.DomainEvent, dctx Context, config map[string]any) error {
	if err := s.ValidateConfig(config); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"method": "publish",
		"params": map[string]any{
			"channel": stringValue(config, "channel"),
			"data": map[string]any{
				"deliveryId":     dctx.DeliveryID,
				"destinationId":  dctx.DestinationID,
				"destinationKey": dctx.DestinationKey,
				"event":          event,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, stringValue(config, "apiUrl"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "apikey "+stringValue(config, "apiKey"))

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("centrifugo publish failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("centrifugo publish failed with HTTP %d", res.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read centrifugo response: %w", err)
	}

	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && len(payload.Error) > 0 && string(payload.Error) != "null" {
		return fmt.Errorf("centrifugo publish returned error: %s", payload.Error)
	}

	return nil
}

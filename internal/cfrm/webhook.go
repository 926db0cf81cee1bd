package cfrm

import (
	"context"
	"fmt"
)

type WebhookKind string

const (
	WebhookSMS      WebhookKind = "sms"
	WebhookWhatsApp WebhookKind = "whatsapp"
)

type WebhookResult struct {
	Status  string `json:"status"`
	EventId string `json:"event_id"`
}

// SMSStatusPayload mimics a provider delivery-status callback.
func SMSStatusPayload(messageSid, status string) map[string]any {
	return map[string]any{
		"MessageSid":    messageSid,
		"MessageStatus": status,
	}
}

// WhatsAppMessagePayload mimics an inbound WhatsApp Business message.
func WhatsAppMessagePayload(from, body string) map[string]any {
	msg := map[string]any{
		"from": from,
		"type": "text",
		"text": map[string]any{"body": body},
	}
	return map[string]any{
		"entry": []any{
			map[string]any{
				"changes": []any{
					map[string]any{"value": map[string]any{"messages": []any{msg}}},
				},
			},
		},
	}
}

// SendWebhook posts a payload to the inbound webhook for kind so operators
// can check a channel is wired up end to end.
func (c *Client) SendWebhook(ctx context.Context, kind WebhookKind, payload map[string]any) (*WebhookResult, error) {
	switch kind {
	case WebhookSMS, WebhookWhatsApp:
	default:
		return nil, fmt.Errorf("unsupported webhook kind %q", kind)
	}

	res := &WebhookResult{}
	if err := c.api.Post(ctx, "/channels/webhooks/"+string(kind)+"/", payload, res); err != nil {
		return nil, fmt.Errorf("sending %s webhook: %w", kind, err)
	}
	return res, nil
}

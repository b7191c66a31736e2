package asaas

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
)

// TokenHeader carries the shared secret configured on the provider's
// webhook settings.
const TokenHeader = "asaas-access-token"

type webhookPayload struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payment struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		ExternalReference string `json:"externalReference"`
	} `json:"payment"`
}

// ParseWebhook checks the token header and decodes a payment event. An empty
// expected token rejects every delivery.
func ParseWebhook(h http.Header, body []byte, token string) (payments.WebhookEvent, error) {
	got := h.Get(TokenHeader)
	if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return payments.WebhookEvent{}, payments.ErrWebhookUnauthorized
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("%w: %v", payments.ErrWebhookMalformed, err)
	}
	if p.Event == "" || p.Payment.ID == "" {
		return payments.WebhookEvent{}, fmt.Errorf("%w: missing event or payment id", payments.ErrWebhookMalformed)
	}

	id := strings.TrimSpace(p.ID)
	if id == "" {
		// older deliveries carry no event id
		id = p.Event + ":" + p.Payment.ID + ":" + p.Payment.Status
	}
	return payments.WebhookEvent{
		EventID:    id,
		Type:       p.Event,
		PaymentRef: p.Payment.ID,
		Status:     p.Payment.Status,
	}, nil
}

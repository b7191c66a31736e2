package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments/asaas"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	logger *slog.Logger
	token  string
	svc    *payments.WebhookService
}

func NewWebhookHandler(logger *slog.Logger, token string, svc *payments.WebhookService) *WebhookHandler {
	return &WebhookHandler{logger: logger, token: token, svc: svc}
}

// POST /webhooks/asaas
// A 5xx answer makes the provider redeliver; anything the provider cannot
// fix by retrying gets a 4xx or a 200.
func (h *WebhookHandler) Asaas(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	ev, err := asaas.ParseWebhook(c.Request.Header, body, h.token)
	switch {
	case errors.Is(err, payments.ErrWebhookUnauthorized):
		h.logger.WarnContext(c.Request.Context(), "webhook rejected", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid payload"})
		return
	}

	res, err := h.svc.Handle(c.Request.Context(), ev, body)
	if err != nil {
		if errors.Is(err, payments.ErrWebhookMalformed) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid payload"})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "webhook apply failed",
			"event_id", ev.EventID, "type", ev.Type, "payment_ref", ev.PaymentRef, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": res.Duplicate, "ignored": res.Ignored})
}

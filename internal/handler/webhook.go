package handler

import (
	"errors"
	"io"
	"net/http"

	"barbershop-payments/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhookService service.WebhookService
	log            *zap.Logger
}

func NewWebhookHandler(webhookService service.WebhookService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		log:            log,
	}
}

// MercadoPagoWebhook acknowledges every delivery with 200 so the processor
// does not retry-storm; only a verified bad signature gets 401.
func (h *WebhookHandler) MercadoPagoWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.log.Warn("read webhook body", zap.Error(err))
		return c.String(http.StatusOK, "OK")
	}

	err = h.webhookService.HandleWebhook(ctx, &service.WebhookRequest{
		Body:      body,
		Query:     c.QueryParams(),
		Signature: c.Request().Header.Get("x-signature"),
		RequestID: c.Request().Header.Get("x-request-id"),
	})
	if errors.Is(err, service.ErrSignatureInvalid) {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	return c.String(http.StatusOK, "OK")
}

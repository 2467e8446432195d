package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"barbershop-payments/internal/client"
	"barbershop-payments/internal/dto"
	"barbershop-payments/internal/middleware"
	"barbershop-payments/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// The popup reports back to the page that opened it. html/template encodes
// .Message as a JS object literal inside the script.
var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Mercado Pago</title></head>
<body>
<p>{{.Text}}</p>
<script>
  if (window.opener) {
    window.opener.postMessage({{.Message}}, '*');
  }
  window.close();
</script>
</body>
</html>`))

const maxReasonLength = 200

type callbackMessage struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

type OAuthHandler struct {
	oauthService service.OAuthService
	log          *zap.Logger
}

func NewOAuthHandler(oauthService service.OAuthService, log *zap.Logger) *OAuthHandler {
	return &OAuthHandler{
		oauthService: oauthService,
		log:          log,
	}
}

func (h *OAuthHandler) Initiate(c echo.Context) error {
	ctx := c.Request().Context()

	authorizationURL, err := h.oauthService.Initiate(ctx, middleware.UserID(c))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, dto.InitiateOAuthResponse{AuthorizationURL: authorizationURL})
}

func (h *OAuthHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	if providerErr := c.FormValue("error"); providerErr != "" {
		h.log.Warn("oauth authorization denied", zap.String("error", providerErr))
		return h.renderError(c, http.StatusBadRequest, "Autorização negada: "+providerErr)
	}

	code := c.FormValue("code")
	state := c.FormValue("state")
	if code == "" || state == "" {
		return h.renderError(c, http.StatusBadRequest, "Parâmetros de callback inválidos")
	}

	seller, err := h.oauthService.Complete(ctx, code, state)
	if err != nil {
		h.log.Warn("oauth callback failed", zap.Error(err))
		return h.renderError(c, http.StatusBadRequest, callbackFailure(err))
	}

	h.log.Info("oauth callback completed", zap.String("seller_id", seller.ID))
	return h.render(c, http.StatusOK, "Conta do Mercado Pago conectada. Você já pode fechar esta janela.",
		callbackMessage{Type: "MP_AUTH_SUCCESS"})
}

// callbackFailure is the reason shown in the popup. Token exchange failures
// carry the processor's status and the start of its error body.
func callbackFailure(err error) string {
	var perr *client.ProcessorError
	switch {
	case errors.Is(err, service.ErrInvalidState):
		return err.Error()
	case errors.As(err, &perr):
		return fmt.Sprintf("Mercado Pago respondeu %d: %s", perr.Status, perr.Excerpt(maxReasonLength))
	default:
		return "Não foi possível conectar a conta do Mercado Pago"
	}
}

func (h *OAuthHandler) renderError(c echo.Context, status int, message string) error {
	return h.render(c, status, message, callbackMessage{Type: "MP_AUTH_ERROR", Error: message})
}

func (h *OAuthHandler) render(c echo.Context, status int, text string, msg callbackMessage) error {
	var buf bytes.Buffer
	err := callbackPage.Execute(&buf, struct {
		Text    string
		Message callbackMessage
	}{Text: text, Message: msg})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "render callback page").SetInternal(err)
	}

	return c.HTMLBlob(status, buf.Bytes())
}

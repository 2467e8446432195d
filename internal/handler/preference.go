package handler

import (
	"net/http"

	"barbershop-payments/internal/dto"
	"barbershop-payments/internal/middleware"
	"barbershop-payments/internal/service"

	"github.com/labstack/echo/v4"
)

type PreferenceHandler struct {
	preferenceService service.PreferenceService
}

func NewPreferenceHandler(preferenceService service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{
		preferenceService: preferenceService,
	}
}

func (h *PreferenceHandler) CreatePreference(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreatePreferenceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.preferenceService.CreateOrderPreference(ctx, middleware.UserID(c), &req)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *PreferenceHandler) CreateAppointmentPreference(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateAppointmentPreferenceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	baseURL, err := h.baseURL(c, req.AppBaseURL)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.preferenceService.CreateAppointmentPreference(ctx, &service.AppointmentCheckout{
		CustomerID:    middleware.UserID(c),
		ServiceIDs:    req.ServiceIDs,
		ScheduledDate: req.ScheduledDate,
		TimeSlot:      req.TimeSlot,
		BaseURL:       baseURL,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *PreferenceHandler) RetryAppointmentPayment(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		AppBaseURL string `json:"app_base_url"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	baseURL, err := h.baseURL(c, req.AppBaseURL)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.preferenceService.RetryAppointmentPayment(ctx, middleware.UserID(c), c.Param("id"), baseURL)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// PaymentReturn is the landing page of marketplace back_urls. The webhook
// is authoritative; this only echoes what mercado pago appended.
func (h *PreferenceHandler) PaymentReturn(outcome string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"outcome":            outcome,
			"payment_id":         c.QueryParam("payment_id"),
			"status":             c.QueryParam("status"),
			"external_reference": c.QueryParam("external_reference"),
			"preference_id":      c.QueryParam("preference_id"),
		})
	}
}

func (h *PreferenceHandler) baseURL(c echo.Context, explicit string) (string, error) {
	header := c.Request().Header
	return service.ResolveBaseURL(explicit, header.Get("Origin"), header.Get("Referer"))
}

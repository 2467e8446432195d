package handler

import (
	"errors"
	"fmt"
	"net/http"

	"barbershop-payments/internal/client"
	"barbershop-payments/internal/security"
	"barbershop-payments/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var badRequestErrors = []error{
	service.ErrInvalidState,
	service.ErrServiceUnavailable,
	service.ErrProductUnavailable,
	service.ErrInsufficientStock,
	service.ErrMultiSellerNotSupported,
	service.ErrSellerNotConnected,
	service.ErrSlotFull,
	service.ErrMissingBaseURL,
	service.ErrAppointmentLocked,
	service.ErrInvalidAppointmentStatus,
	service.ErrInvalidRequest,
}

// toHTTPError maps service errors onto status codes. The server's error
// handler renders the message as {"error": "..."}.
func toHTTPError(err error) error {
	var perr *client.ProcessorError
	var verr validator.ValidationErrors

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &perr):
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("mercado pago request failed with status %d", perr.Status)).SetInternal(err)
	case errors.Is(err, security.ErrCiphertextTampered):
		return echo.NewHTTPError(http.StatusInternalServerError,
			"seller credentials are unreadable, reconnect the account").SetInternal(err)
	}

	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(req); err != nil {
		return toHTTPError(err)
	}
	return nil
}

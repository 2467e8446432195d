package handler

import (
	"net/http"

	"barbershop-payments/internal/middleware"
	"barbershop-payments/internal/service"

	"github.com/labstack/echo/v4"
)

type SellerHandler struct {
	sellerService service.SellerService
}

func NewSellerHandler(sellerService service.SellerService) *SellerHandler {
	return &SellerHandler{
		sellerService: sellerService,
	}
}

func (h *SellerHandler) Connection(c echo.Context) error {
	status, err := h.sellerService.ConnectionStatus(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, status)
}

func (h *SellerHandler) Disconnect(c echo.Context) error {
	if err := h.sellerService.Disconnect(c.Request().Context(), middleware.UserID(c)); err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *SellerHandler) SplitPayments(c echo.Context) error {
	payments, err := h.sellerService.SplitPayments(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, payments)
}

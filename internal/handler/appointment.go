package handler

import (
	"net/http"

	"barbershop-payments/internal/middleware"
	"barbershop-payments/internal/service"

	"github.com/labstack/echo/v4"
)

type AppointmentHandler struct {
	appointmentService service.AppointmentService
	queueService       service.QueueService
}

func NewAppointmentHandler(appointmentService service.AppointmentService, queueService service.QueueService) *AppointmentHandler {
	return &AppointmentHandler{
		appointmentService: appointmentService,
		queueService:       queueService,
	}
}

func (h *AppointmentHandler) ListMine(c echo.Context) error {
	appointments, err := h.appointmentService.ListMine(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, appointments)
}

func (h *AppointmentHandler) Delete(c echo.Context) error {
	if err := h.appointmentService.Delete(c.Request().Context(), middleware.UserID(c), c.Param("id")); err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *AppointmentHandler) Start(c echo.Context) error {
	if err := h.appointmentService.Start(c.Request().Context(), middleware.UserID(c), c.Param("id")); err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *AppointmentHandler) Complete(c echo.Context) error {
	if err := h.appointmentService.Complete(c.Request().Context(), middleware.UserID(c), c.Param("id")); err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *AppointmentHandler) Queue(c echo.Context) error {
	date := c.QueryParam("date")
	slot := c.QueryParam("slot")
	if date == "" || slot == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date and slot are required")
	}

	occupancy, err := h.queueService.Occupancy(c.Request().Context(), date, slot)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, occupancy)
}

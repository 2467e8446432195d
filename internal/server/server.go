package server

import (
	"context"
	"errors"
	"net/http"

	"barbershop-payments/internal/dto"
	"barbershop-payments/internal/handler"
	authmw "barbershop-payments/internal/middleware"
	"barbershop-payments/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Services struct {
	OAuth       service.OAuthService
	Preference  service.PreferenceService
	Webhook     service.WebhookService
	Appointment service.AppointmentService
	Queue       service.QueueService
	Seller      service.SellerService
}

type Server struct {
	echo               *echo.Echo
	jwtSecret          string
	oauthHandler       *handler.OAuthHandler
	preferenceHandler  *handler.PreferenceHandler
	webhookHandler     *handler.WebhookHandler
	appointmentHandler *handler.AppointmentHandler
	sellerHandler      *handler.SellerHandler
}

func NewServer(services Services, jwtSecret string, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = errorHandler(log)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				log.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:               e,
		jwtSecret:          jwtSecret,
		oauthHandler:       handler.NewOAuthHandler(services.OAuth, log),
		preferenceHandler:  handler.NewPreferenceHandler(services.Preference),
		webhookHandler:     handler.NewWebhookHandler(services.Webhook, log),
		appointmentHandler: handler.NewAppointmentHandler(services.Appointment, services.Queue),
		sellerHandler:      handler.NewSellerHandler(services.Seller),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	auth := authmw.AuthMiddleware(s.jwtSecret)

	// -------- mercado pago --------
	mp := api.Group("/mp")
	mp.POST("/oauth/initiate", s.oauthHandler.Initiate, auth)
	mp.POST("/preferences", s.preferenceHandler.CreatePreference, auth)
	mp.POST("/appointment-preferences", s.preferenceHandler.CreateAppointmentPreference, auth)
	mp.POST("/appointments/:id/payment-preference", s.preferenceHandler.RetryAppointmentPayment, auth)

	// -------- mercado pago callbacks --------
	mp.GET("/oauth/callback", s.oauthHandler.Callback)
	mp.POST("/oauth/callback", s.oauthHandler.Callback)
	mp.POST("/webhook", s.webhookHandler.MercadoPagoWebhook)
	mp.GET("/payment-success", s.preferenceHandler.PaymentReturn("success"))
	mp.GET("/payment-failure", s.preferenceHandler.PaymentReturn("failure"))
	mp.GET("/payment-pending", s.preferenceHandler.PaymentReturn("pending"))

	// -------- sellers --------
	sellers := api.Group("/sellers/me", auth)
	sellers.GET("/connection", s.sellerHandler.Connection)
	sellers.DELETE("/connection", s.sellerHandler.Disconnect)
	sellers.GET("/split-payments", s.sellerHandler.SplitPayments)

	// -------- appointments --------
	appointments := api.Group("/appointments", auth)
	appointments.GET("", s.appointmentHandler.ListMine)
	appointments.DELETE("/:id", s.appointmentHandler.Delete)
	appointments.POST("/:id/start", s.appointmentHandler.Start)
	appointments.POST("/:id/complete", s.appointmentHandler.Complete)

	api.GET("/queue", s.appointmentHandler.Queue, auth)
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// errorHandler renders every error as {"error": "..."}; internal causes are
// logged, never returned to the caller.
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "internal error"

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(code)
			}
			if he.Internal != nil {
				log.Error("request error", zap.Int("status", code), zap.Error(he.Internal))
			}
		} else {
			log.Error("unhandled error", zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, dto.ErrorResponse{Error: message})
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}

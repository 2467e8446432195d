package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"barbershop-payments/internal/client"
	"barbershop-payments/internal/dto"
	"barbershop-payments/internal/middleware"
	"barbershop-payments/internal/model"
	"barbershop-payments/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWebhookService struct {
	err     error
	lastReq *service.WebhookRequest
}

func (f *fakeWebhookService) HandleWebhook(ctx context.Context, req *service.WebhookRequest) error {
	f.lastReq = req
	return f.err
}

type fakePreferenceService struct {
	service.PreferenceService
	checkout *service.AppointmentCheckout
	err      error
}

func (f *fakePreferenceService) CreateAppointmentPreference(ctx context.Context, checkout *service.AppointmentCheckout) (*dto.CreateAppointmentPreferenceResponse, error) {
	f.checkout = checkout
	if f.err != nil {
		return nil, f.err
	}
	return &dto.CreateAppointmentPreferenceResponse{PreferenceID: "pref-1", QueuePosition: 1}, nil
}

type fakeOAuthService struct {
	err error
}

func (f *fakeOAuthService) Initiate(ctx context.Context, userID string) (string, error) {
	return "https://auth.example.test/authorization?state=s", nil
}

func (f *fakeOAuthService) Complete(ctx context.Context, code, state string) (*model.Seller, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Seller{ID: "seller-1"}, nil
}

type fakeQueueService struct {
	service.QueueService
}

func (f *fakeQueueService) Occupancy(ctx context.Context, queueDate, timeSlot string) (*dto.QueueOccupancyResponse, error) {
	return &dto.QueueOccupancyResponse{Date: queueDate, TimeSlot: timeSlot, Capacity: 5, Available: 5}, nil
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.ContextUserID, "user-1")
	return c, rec
}

func TestWebhookAcknowledgesProcessingErrors(t *testing.T) {
	svc := &fakeWebhookService{err: errors.New("boom")}
	h := NewWebhookHandler(svc, zap.NewNop())

	c, rec := newContext(http.MethodPost, "/api/mp/webhook?type=payment&data.id=1", `{"type":"payment","data":{"id":"1"}}`)
	c.Request().Header.Set("x-signature", "ts=1,v1=abc")
	c.Request().Header.Set("x-request-id", "req-1")

	require.NoError(t, h.MercadoPagoWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	require.NotNil(t, svc.lastReq)
	assert.Equal(t, "ts=1,v1=abc", svc.lastReq.Signature)
	assert.Equal(t, "req-1", svc.lastReq.RequestID)
	assert.Equal(t, "1", svc.lastReq.Query.Get("data.id"))
	assert.JSONEq(t, `{"type":"payment","data":{"id":"1"}}`, string(svc.lastReq.Body))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := NewWebhookHandler(&fakeWebhookService{err: fmt.Errorf("verify: %w", service.ErrSignatureInvalid)}, zap.NewNop())

	c, rec := newContext(http.MethodPost, "/api/mp/webhook", `{}`)
	require.NoError(t, h.MercadoPagoWebhook(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAppointmentPreferenceResolvesBaseURL(t *testing.T) {
	svc := &fakePreferenceService{}
	h := NewPreferenceHandler(svc)

	body := `{"service_ids":["svc-1"],"scheduled_date":"2026-11-02","time_slot":"morning"}`
	c, rec := newContext(http.MethodPost, "/api/mp/appointment-preferences", body)
	c.Request().Header.Set("Referer", "https://barbearia.example.test/agendar?x=1")

	require.NoError(t, h.CreateAppointmentPreference(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.checkout)
	assert.Equal(t, "https://barbearia.example.test", svc.checkout.BaseURL)
	assert.Equal(t, "user-1", svc.checkout.CustomerID)
	assert.Equal(t, []string{"svc-1"}, svc.checkout.ServiceIDs)
}

func TestCreateAppointmentPreferenceValidation(t *testing.T) {
	h := NewPreferenceHandler(&fakePreferenceService{})

	cases := map[string]string{
		"no services":  `{"service_ids":[],"scheduled_date":"2026-11-02","time_slot":"morning","app_base_url":"https://a.test"}`,
		"bad date":     `{"service_ids":["s"],"scheduled_date":"02/11/2026","time_slot":"morning","app_base_url":"https://a.test"}`,
		"unknown slot": `{"service_ids":["s"],"scheduled_date":"2026-11-02","time_slot":"night","app_base_url":"https://a.test"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newContext(http.MethodPost, "/api/mp/appointment-preferences", body)
			err := h.CreateAppointmentPreference(c)

			var he *echo.HTTPError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, http.StatusBadRequest, he.Code)
		})
	}
}

func TestCreateAppointmentPreferenceMissingBaseURL(t *testing.T) {
	h := NewPreferenceHandler(&fakePreferenceService{})

	c, _ := newContext(http.MethodPost, "/api/mp/appointment-preferences",
		`{"service_ids":["svc-1"],"scheduled_date":"2026-11-02","time_slot":"evening"}`)
	err := h.CreateAppointmentPreference(c)

	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, service.ErrMissingBaseURL.Error(), he.Message)
}

func TestToHTTPError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"slot full", fmt.Errorf("reserve: %w", service.ErrSlotFull), http.StatusBadRequest},
		{"multi seller", service.ErrMultiSellerNotSupported, http.StatusBadRequest},
		{"unauthenticated", service.ErrUnauthenticated, http.StatusUnauthorized},
		{"not found", service.ErrAppointmentNotFound, http.StatusNotFound},
		{"processor", &client.ProcessorError{Status: 422, Body: "{}"}, http.StatusBadRequest},
		{"unknown", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var he *echo.HTTPError
			require.True(t, errors.As(toHTTPError(tc.err), &he))
			assert.Equal(t, tc.code, he.Code)
		})
	}
}

func TestProcessorErrorBodyIsNotExposed(t *testing.T) {
	var he *echo.HTTPError
	require.True(t, errors.As(toHTTPError(&client.ProcessorError{Status: 401, Body: "secret-token"}), &he))
	assert.NotContains(t, he.Message, "secret-token")
	assert.Error(t, he.Internal)
}

func TestOAuthCallbackRendersPostMessage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := NewOAuthHandler(&fakeOAuthService{}, zap.NewNop())
		c, rec := newContext(http.MethodGet, "/api/mp/oauth/callback?code=c&state=s", "")

		require.NoError(t, h.Callback(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "MP_AUTH_SUCCESS")
		assert.Contains(t, rec.Body.String(), "window.opener.postMessage")
	})

	t.Run("replayed state", func(t *testing.T) {
		h := NewOAuthHandler(&fakeOAuthService{err: service.ErrInvalidState}, zap.NewNop())
		c, rec := newContext(http.MethodGet, "/api/mp/oauth/callback?code=c&state=s", "")

		require.NoError(t, h.Callback(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MP_AUTH_ERROR")
	})

	t.Run("token exchange rejected", func(t *testing.T) {
		perr := &client.ProcessorError{Status: 400, Body: `{"error":"invalid_grant","message":"code expired"}`}
		h := NewOAuthHandler(&fakeOAuthService{err: fmt.Errorf("exchange authorization code: %w", perr)}, zap.NewNop())
		c, rec := newContext(http.MethodGet, "/api/mp/oauth/callback?code=c&state=s", "")

		require.NoError(t, h.Callback(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MP_AUTH_ERROR")
		assert.Contains(t, rec.Body.String(), "400")
		assert.Contains(t, rec.Body.String(), "invalid_grant")
	})

	t.Run("missing params", func(t *testing.T) {
		h := NewOAuthHandler(&fakeOAuthService{}, zap.NewNop())
		c, rec := newContext(http.MethodGet, "/api/mp/oauth/callback", "")

		require.NoError(t, h.Callback(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestQueueRequiresDateAndSlot(t *testing.T) {
	h := NewAppointmentHandler(nil, &fakeQueueService{})

	c, _ := newContext(http.MethodGet, "/api/queue?date=2026-11-02", "")
	var he *echo.HTTPError
	require.True(t, errors.As(h.Queue(c), &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)

	c, rec := newContext(http.MethodGet, "/api/queue?date=2026-11-02&slot=morning", "")
	require.NoError(t, h.Queue(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"capacity":5`)
}

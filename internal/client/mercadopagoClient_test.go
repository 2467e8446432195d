package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"barbershop-payments/internal/config"
	"barbershop-payments/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, platformToken string) MercadoPagoClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewMercadoPagoClient(&config.MercadoPago{
		AuthBaseURL:         "https://auth.example.test",
		BaseApiURL:          srv.URL,
		ClientID:            "client-id",
		ClientSecret:        "client-secret",
		PlatformAccessToken: platformToken,
		RequestTimeout:      2 * time.Second,
	}, "https://api.example.test/api/mp/oauth/callback")
}

func TestAuthorizationURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, "")

	raw := c.AuthorizationURL("state-1")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "auth.example.test", u.Host)
	assert.Equal(t, "/authorization", u.Path)
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "code", u.Query().Get("response_type"))
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "https://api.example.test/api/mp/oauth/callback", u.Query().Get("redirect_uri"))
	assert.NotContains(t, raw, "client-secret")
}

func TestExchangeCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))

		_, _ = io.WriteString(w, `{"access_token":"APP_USR-a","refresh_token":"TG-r","user_id":123456,"expires_in":15552000,"public_key":"APP_USR-pk"}`)
	}, "")

	token, err := c.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "APP_USR-a", token.AccessToken)
	assert.Equal(t, "TG-r", token.RefreshToken)
	assert.Equal(t, "123456", token.UserID.String())
	assert.EqualValues(t, 15552000, token.ExpiresIn)
}

func TestExchangeCodeSurfacesErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
	}, "")

	_, err := c.ExchangeCode(context.Background(), "bad")
	require.Error(t, err)

	var perr *ProcessorError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.Status)
	assert.Contains(t, perr.Body, "invalid_grant")
}

func TestCreatePreferenceUsesSellerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer seller-token", r.Header.Get("Authorization"))

		var req model.PreferenceRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 1.0, req.MarketplaceFee)
		assert.Equal(t, "appointment_1_cust", req.ExternalReference)

		_, _ = io.WriteString(w, `{"id":"123-abc","init_point":"https://mp.test/init"}`)
	}, "platform-token")

	pref, err := c.CreatePreference(context.Background(), "seller-token", &model.PreferenceRequest{
		Items:             []model.PreferenceItem{{Title: "Corte", Quantity: 1, UnitPrice: 50, CurrencyID: "BRL"}},
		ExternalReference: "appointment_1_cust",
		MarketplaceFee:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, "123-abc", pref.ID)
	assert.Equal(t, "https://mp.test/init", pref.InitPoint)
}

func TestGetPaymentWithClientCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			_, _ = io.WriteString(w, `{"access_token":"cc-token"}`)
		case "/v1/payments/987":
			assert.Equal(t, "Bearer cc-token", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"id":987,"status":"approved","transaction_amount":100.00,
				"fee_details":[{"type":"mercadopago_fee","amount":4.99},{"type":"application_fee","amount":1.00}],
				"metadata":{"order_id":"ord-1"},"order":{"id":555,"type":"mercadopago"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}, "")

	p, err := c.GetPayment(context.Background(), "987")
	require.NoError(t, err)
	assert.Equal(t, "987", p.ID.String())
	assert.Equal(t, "approved", p.Status)
	assert.Equal(t, "ord-1", p.MetadataString("order_id"))
	assert.Equal(t, "555", p.Order.ID.String())
	assert.Equal(t, "1", p.ApplicationFee().String())
}

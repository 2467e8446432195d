package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"barbershop-payments/internal/config"
	"barbershop-payments/internal/model"
)

type MercadoPagoClient interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*model.OAuthToken, error)
	// CreatePreference must be called with the seller's access token so the
	// payout lands with the seller and marketplace_fee stays with the platform.
	CreatePreference(ctx context.Context, accessToken string, req *model.PreferenceRequest) (*model.Preference, error)
	GetPayment(ctx context.Context, paymentID string) (*model.Payment, error)
	GetMerchantOrder(ctx context.Context, merchantOrderID string) (*model.MerchantOrder, error)
}

// ProcessorError is returned for every non-2xx answer from mercado pago.
type ProcessorError struct {
	Status int
	Body   string
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("mercadopago error %d: %s", e.Status, e.Body)
}

// Excerpt returns at most n runes of the body on a single line.
func (e *ProcessorError) Excerpt(n int) string {
	body := strings.Join(strings.Fields(e.Body), " ")
	runes := []rune(body)
	if len(runes) <= n {
		return body
	}
	return string(runes[:n]) + "..."
}

type mercadoPagoClientImpl struct {
	httpClient          *http.Client
	authBaseURL         string
	baseApiURL          string
	clientID            string
	clientSecret        string
	redirectURL         string
	platformAccessToken string
	requestTimeout      time.Duration
}

func NewMercadoPagoClient(mpCfg *config.MercadoPago, redirectURL string) MercadoPagoClient {
	timeout := mpCfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &mercadoPagoClientImpl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		authBaseURL:         strings.TrimRight(mpCfg.AuthBaseURL, "/"),
		baseApiURL:          strings.TrimRight(mpCfg.BaseApiURL, "/"),
		clientID:            mpCfg.ClientID,
		clientSecret:        mpCfg.ClientSecret,
		redirectURL:         redirectURL,
		platformAccessToken: mpCfg.PlatformAccessToken,
		requestTimeout:      timeout,
	}
}

func (c *mercadoPagoClientImpl) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("response_type", "code")
	q.Set("platform_id", "mp")
	q.Set("state", state)
	q.Set("redirect_uri", c.redirectURL)

	return c.authBaseURL + "/authorization?" + q.Encode()
}

func (c *mercadoPagoClientImpl) ExchangeCode(ctx context.Context, code string) (*model.OAuthToken, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURL)

	var token model.OAuthToken
	if err := c.postForm(ctx, "/oauth/token", form, &token); err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("exchange authorization code: empty access_token")
	}

	return &token, nil
}

func (c *mercadoPagoClientImpl) CreatePreference(ctx context.Context, accessToken string, req *model.PreferenceRequest) (*model.Preference, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}

	var pref model.Preference
	if err := c.doJSON(ctx, http.MethodPost, "/checkout/preferences", accessToken, body, &pref); err != nil {
		return nil, err
	}
	if pref.ID == "" {
		return nil, fmt.Errorf("create preference: empty preference id")
	}

	return &pref, nil
}

func (c *mercadoPagoClientImpl) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	accessToken, err := c.getPlatformAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get platform access token: %w", err)
	}

	var payment model.Payment
	if err := c.doJSON(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), accessToken, nil, &payment); err != nil {
		return nil, err
	}

	return &payment, nil
}

func (c *mercadoPagoClientImpl) GetMerchantOrder(ctx context.Context, merchantOrderID string) (*model.MerchantOrder, error) {
	accessToken, err := c.getPlatformAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get platform access token: %w", err)
	}

	var order model.MerchantOrder
	if err := c.doJSON(ctx, http.MethodGet, "/merchant_orders/"+url.PathEscape(merchantOrderID), accessToken, nil, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

// getPlatformAccessToken prefers the configured token and falls back to a
// client_credentials grant. The webhook does not know the seller up front.
func (c *mercadoPagoClientImpl) getPlatformAccessToken(ctx context.Context) (string, error) {
	if c.platformAccessToken != "" {
		return c.platformAccessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.postForm(ctx, "/oauth/token", form, &res); err != nil {
		return "", err
	}

	return res.AccessToken, nil
}

func (c *mercadoPagoClientImpl) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseApiURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return c.do(req, out)
}

func (c *mercadoPagoClientImpl) doJSON(ctx context.Context, method, path, accessToken string, body []byte, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseApiURL+path, reader)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *mercadoPagoClientImpl) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProcessorError{Status: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode mercadopago response: %w", err)
	}

	return nil
}

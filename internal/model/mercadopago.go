package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexibleID decodes ids that mercado pago sends either as JSON strings or numbers.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string { return string(f) }

type OAuthToken struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	PublicKey    string     `json:"public_key"`
	UserID       FlexibleID `json:"user_id"`
	ExpiresIn    int64      `json:"expires_in"`
	TokenType    string     `json:"token_type"`
	Scope        string     `json:"scope"`
}

type PreferenceItem struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Quantity    int32   `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	CurrencyID  string  `json:"currency_id"`
}

type PreferencePayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type PreferenceRequest struct {
	Items             []PreferenceItem  `json:"items"`
	Payer             *PreferencePayer  `json:"payer,omitempty"`
	BackURLs          BackURLs          `json:"back_urls"`
	AutoReturn        string            `json:"auto_return,omitempty"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	ExternalReference string            `json:"external_reference,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	MarketplaceFee    float64           `json:"marketplace_fee"`
	SponsorID         int64             `json:"sponsor_id,omitempty"`
}

type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type FeeDetail struct {
	Type     string          `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	FeePayer string          `json:"fee_payer"`
}

type PaymentOrder struct {
	ID   FlexibleID `json:"id"`
	Type string     `json:"type"`
}

type Payment struct {
	ID                FlexibleID             `json:"id"`
	Status            string                 `json:"status"`
	StatusDetail      string                 `json:"status_detail"`
	ExternalReference string                 `json:"external_reference"`
	TransactionAmount decimal.Decimal        `json:"transaction_amount"`
	CurrencyID        string                 `json:"currency_id"`
	FeeDetails        []FeeDetail            `json:"fee_details"`
	Metadata          map[string]interface{} `json:"metadata"`
	Order             PaymentOrder           `json:"order"`
	DateApproved      string                 `json:"date_approved"`
}

// ApplicationFee is the platform fee the processor actually charged.
func (p *Payment) ApplicationFee() decimal.Decimal {
	fee := decimal.Zero
	for _, d := range p.FeeDetails {
		if d.Type == "application_fee" {
			fee = fee.Add(d.Amount)
		}
	}
	return fee
}

// MetadataString reads a metadata value regardless of how it was decoded.
func (p *Payment) MetadataString(key string) string {
	v, ok := p.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

type MerchantOrderPayment struct {
	ID     FlexibleID `json:"id"`
	Status string     `json:"status"`
}

type MerchantOrder struct {
	ID                FlexibleID             `json:"id"`
	PreferenceID      string                 `json:"preference_id"`
	ExternalReference string                 `json:"external_reference"`
	Status            string                 `json:"status"`
	Payments          []MerchantOrderPayment `json:"payments"`
}

// WebhookNotification covers both the webhooks shape ({type, data:{id}})
// and the legacy IPN shape ({topic, resource}).
type WebhookNotification struct {
	ID       FlexibleID `json:"id"`
	Type     string     `json:"type"`
	Topic    string     `json:"topic"`
	Action   string     `json:"action"`
	Resource string     `json:"resource"`
	Data     struct {
		ID FlexibleID `json:"id"`
	} `json:"data"`
}

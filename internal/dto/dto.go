package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int32  `json:"quantity" validate:"required,gt=0"`
}

// CreatePreferenceRequest is the marketplace checkout body.
type CreatePreferenceRequest struct {
	Items         []*Item  `json:"items" validate:"required,min=1,dive"`
	FeePercentage *float64 `json:"fee_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type CreatePreferenceResponse struct {
	PreferenceID   string          `json:"preference_id"`
	InitPoint      string          `json:"init_point"`
	OrderID        string          `json:"order_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ApplicationFee decimal.Decimal `json:"application_fee"`
}

type CreateAppointmentPreferenceRequest struct {
	ServiceIDs    []string `json:"service_ids" validate:"required,min=1,dive,required"`
	ScheduledDate string   `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	TimeSlot      string   `json:"time_slot" validate:"required,oneof=morning afternoon evening"`
	AppBaseURL    string   `json:"app_base_url,omitempty" validate:"omitempty,url"`
}

type CreateAppointmentPreferenceResponse struct {
	PreferenceID   string          `json:"preference_id"`
	InitPoint      string          `json:"init_point"`
	AppointmentIDs []string        `json:"appointment_ids"`
	QueuePosition  int             `json:"queue_position"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

type InitiateOAuthResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

type AppointmentResponse struct {
	ID            string          `json:"id"`
	ServiceID     string          `json:"service_id"`
	SellerID      string          `json:"seller_id,omitempty"`
	ScheduledTime time.Time       `json:"scheduled_time"`
	ScheduledDate string          `json:"scheduled_date"`
	TimeSlot      string          `json:"time_slot"`
	QueuePosition int             `json:"queue_position"`
	Status        string          `json:"status"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	PreferenceID  string          `json:"preference_id,omitempty"`
}

type QueueEntry struct {
	Position       int      `json:"position"`
	CustomerID     string   `json:"customer_id"`
	Status         string   `json:"status"`
	AppointmentIDs []string `json:"appointment_ids"`
}

type QueueOccupancyResponse struct {
	Date      string        `json:"date"`
	TimeSlot  string        `json:"time_slot"`
	Capacity  int           `json:"capacity"`
	Available int           `json:"available"`
	Entries   []*QueueEntry `json:"entries"`
}

type SplitPaymentResponse struct {
	PaymentID    string          `json:"payment_id"`
	OrderID      string          `json:"order_id,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	SellerAmount decimal.Decimal `json:"seller_amount"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	Status       string          `json:"status"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type SplitPaymentStatsResponse struct {
	Count         int64           `json:"count"`
	ApprovedCount int64           `json:"approved_count"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	SellerRevenue decimal.Decimal `json:"seller_revenue"`
	PlatformFees  decimal.Decimal `json:"platform_fees"`
}

type SplitPaymentsResponse struct {
	Payments []*SplitPaymentResponse   `json:"payments"`
	Stats    SplitPaymentStatsResponse `json:"stats"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	AppointmentPendingPayment AppointmentStatus = "pending_payment"
	AppointmentScheduled      AppointmentStatus = "scheduled"
	AppointmentInProgress     AppointmentStatus = "in_progress"
	AppointmentCompleted      AppointmentStatus = "completed"
	AppointmentCancelled      AppointmentStatus = "cancelled"
)

// ActiveAppointmentStatuses hold a queue position.
var ActiveAppointmentStatuses = []AppointmentStatus{AppointmentPendingPayment, AppointmentScheduled}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

type SplitStatus string

const (
	SplitPending  SplitStatus = "pending"
	SplitApproved SplitStatus = "approved"
	SplitRejected SplitStatus = "rejected"
)

type Profile struct {
	UserID    string `gorm:"primaryKey;size:64;not null"`
	FullName  string `gorm:"size:255"`
	Email     string `gorm:"size:255"`
	Phone     string `gorm:"size:32"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Seller struct {
	ID              string `gorm:"primaryKey;size:64;not null"`
	UserID          string `gorm:"size:64;uniqueIndex;not null"`
	BusinessName    string `gorm:"size:255;not null"`
	ProcessorUserID string `gorm:"size:64;index"` // mercado pago user id
	IsActive        bool   `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OAuthCredential only ever holds ciphertext produced by the vault cipher.
type OAuthCredential struct {
	ID                    uint   `gorm:"primaryKey"`
	SellerID              string `gorm:"size:64;uniqueIndex;not null"`
	EncryptedAccessToken  string `gorm:"type:text;not null"`
	EncryptedRefreshToken string `gorm:"type:text"`
	PublicKey             string `gorm:"size:255"`
	ProcessorUserID       string `gorm:"size:64;not null"`
	ExpiresAt             *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type OAuthState struct {
	State     string    `gorm:"primaryKey;size:128;not null"`
	UserID    string    `gorm:"size:64;index;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

type Service struct {
	ID              string          `gorm:"primaryKey;size:64;not null"`
	SellerID        string          `gorm:"size:64;index"`
	Name            string          `gorm:"size:255;not null"`
	Description     string          `gorm:"type:text"`
	Price           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DurationMinutes int             `gorm:"not null;default:30"`
	IsActive        bool            `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Product struct {
	ID            string          `gorm:"primaryKey;size:64;not null"`
	SellerID      string          `gorm:"size:64;index;not null"`
	Name          string          `gorm:"size:255;not null"`
	Description   string          `gorm:"type:text"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	StockQuantity int32           `gorm:"not null;default:0"`
	IsActive      bool            `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// QueueReservation claims one position of a (date, slot) shift. The unique
// index is what serialises concurrent reservations.
type QueueReservation struct {
	ID           uint   `gorm:"primaryKey"`
	QueueDate    string `gorm:"size:10;not null;uniqueIndex:ux_queue_position,priority:1"` // YYYY-MM-DD
	TimeSlot     string `gorm:"size:16;not null;uniqueIndex:ux_queue_position,priority:2"`
	Position     int    `gorm:"not null;uniqueIndex:ux_queue_position,priority:3"`
	CustomerID   string `gorm:"size:64;index;not null"`
	PreferenceID string `gorm:"size:128;index"`
	CreatedAt    time.Time
}

type Appointment struct {
	ID            string            `gorm:"primaryKey;size:64;not null"`
	CustomerID    string            `gorm:"size:64;index;not null"`
	ServiceID     string            `gorm:"size:64;index;not null"`
	SellerID      string            `gorm:"size:64;index"`
	ReservationID uint              `gorm:"index"`
	ScheduledTime time.Time         `gorm:"not null"`
	ScheduledDate string            `gorm:"size:10;index;not null"`
	TimeSlot      string            `gorm:"size:16;not null"`
	QueuePosition int               `gorm:"not null"`
	Status        AppointmentStatus `gorm:"size:32;index;not null"`
	BookingType   string            `gorm:"size:16;not null;default:'app'"`
	TotalPrice    decimal.Decimal   `gorm:"type:decimal(12,2)"`
	Notes         string            `gorm:"size:512"`
	PreferenceID  string            `gorm:"size:128;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Order struct {
	ID                string          `gorm:"primaryKey;size:64;not null"`
	BuyerID           string          `gorm:"size:64;index;not null"`
	SellerID          string          `gorm:"size:64;index;not null"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PlatformFee       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PreferenceID      string          `gorm:"size:128;index"`
	ExternalReference string          `gorm:"size:128"`
	Status            OrderStatus     `gorm:"size:32;index;not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OrderItem struct {
	ID         uint            `gorm:"primaryKey"`
	OrderID    string          `gorm:"size:64;index;not null"`
	ProductID  string          `gorm:"size:64;index;not null"`
	Quantity   int32           `gorm:"not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt  time.Time
}

type SplitPayment struct {
	ID           uint            `gorm:"primaryKey"`
	PaymentID    string          `gorm:"size:64;uniqueIndex;not null"` // mercado pago payment id
	OrderID      string          `gorm:"size:64;index"`
	SellerID     string          `gorm:"size:64;index"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	SellerAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PlatformFee  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status       SplitStatus     `gorm:"size:32;index;not null"`
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ProcessedWebhookEvent struct {
	EventID    string `gorm:"primaryKey;size:128;uniqueIndex;not null"`
	EventType  string `gorm:"size:64;index"`
	ReceivedAt time.Time
}

// All lists every table for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Profile{},
		&Seller{},
		&OAuthCredential{},
		&OAuthState{},
		&Service{},
		&Product{},
		&QueueReservation{},
		&Appointment{},
		&Order{},
		&OrderItem{},
		&SplitPayment{},
		&ProcessedWebhookEvent{},
	}
}

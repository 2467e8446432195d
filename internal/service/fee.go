package service

import (
	"fmt"
	"strings"

	"barbershop-payments/internal/config"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeePolicy computes the platform's marketplace_fee for a checkout total.
type FeePolicy interface {
	Fee(total decimal.Decimal) decimal.Decimal
}

type FlatFee struct {
	Amount decimal.Decimal
}

func (f FlatFee) Fee(total decimal.Decimal) decimal.Decimal {
	// capped at the total, cut to cents without rounding above it
	if f.Amount.GreaterThan(total) {
		return total.Truncate(2)
	}
	return f.Amount.Round(2)
}

type PercentageFee struct {
	Percent decimal.Decimal
}

func (f PercentageFee) Fee(total decimal.Decimal) decimal.Decimal {
	return total.Mul(f.Percent).Div(hundred).Round(2)
}

// NewPercentageFee validates percent in [0, 100].
func NewPercentageFee(percent float64) (PercentageFee, error) {
	p := decimal.NewFromFloat(percent)
	if p.IsNegative() || p.GreaterThan(hundred) {
		return PercentageFee{}, fmt.Errorf("%w: fee percentage must be between 0 and 100", ErrInvalidRequest)
	}
	return PercentageFee{Percent: p}, nil
}

// NewAppointmentFeePolicy reads FEE_APPOINTMENT_MODE; flat is the default.
func NewAppointmentFeePolicy(feeCfg config.Fee) (FeePolicy, error) {
	switch strings.ToLower(feeCfg.AppointmentMode) {
	case "", "flat":
		amount, err := decimal.NewFromString(feeCfg.AppointmentAmount)
		if err != nil {
			return nil, fmt.Errorf("parse appointment fee amount: %w", err)
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("appointment fee amount must not be negative")
		}
		return FlatFee{Amount: amount}, nil
	case "percentage":
		return NewPercentageFee(feeCfg.AppointmentPercent)
	default:
		return nil, fmt.Errorf("unknown appointment fee mode %q", feeCfg.AppointmentMode)
	}
}

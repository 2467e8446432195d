package service

import (
	"testing"

	"barbershop-payments/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatFee(t *testing.T) {
	fee := FlatFee{Amount: decimal.RequireFromString("1.00")}

	assert.Equal(t, "1.00", fee.Fee(decimal.RequireFromString("50.00")).StringFixed(2))
	// never more than the checkout itself
	assert.Equal(t, "0.50", fee.Fee(decimal.RequireFromString("0.50")).StringFixed(2))

	capped := fee.Fee(decimal.RequireFromString("0.505"))
	assert.Equal(t, "0.5", capped.String())
	assert.EqualValues(t, -2, capped.Exponent())
}

func TestPercentageFee(t *testing.T) {
	fee, err := NewPercentageFee(10)
	require.NoError(t, err)
	assert.Equal(t, "10.00", fee.Fee(decimal.RequireFromString("100.00")).StringFixed(2))
	assert.Equal(t, "3.33", fee.Fee(decimal.RequireFromString("33.33")).StringFixed(2))

	_, err = NewPercentageFee(101)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = NewPercentageFee(-1)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNewAppointmentFeePolicy(t *testing.T) {
	policy, err := NewAppointmentFeePolicy(config.Fee{AppointmentMode: "flat", AppointmentAmount: "1.00"})
	require.NoError(t, err)
	assert.Equal(t, "1.00", policy.Fee(decimal.NewFromInt(50)).StringFixed(2))

	policy, err = NewAppointmentFeePolicy(config.Fee{AppointmentMode: "percentage", AppointmentPercent: 5})
	require.NoError(t, err)
	assert.Equal(t, "2.50", policy.Fee(decimal.NewFromInt(50)).StringFixed(2))

	_, err = NewAppointmentFeePolicy(config.Fee{AppointmentMode: "tiered"})
	assert.Error(t, err)

	_, err = NewAppointmentFeePolicy(config.Fee{AppointmentMode: "flat", AppointmentAmount: "abc"})
	assert.Error(t, err)
}

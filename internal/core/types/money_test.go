package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		wantErr  bool
	}{
		{name: "valid SAR amount", amount: "123.45", currency: "SAR"},
		{name: "zero amount", amount: "0", currency: "USD"},
		{name: "negative amount", amount: "-50.00", currency: "SAR"},
		{name: "full precision preserved", amount: "0.015", currency: "SAR"},
		{name: "empty currency", amount: "10", currency: "", wantErr: true},
		{name: "lowercase currency", amount: "10", currency: "sar", wantErr: true},
		{name: "too long currency", amount: "10", currency: "SAAR", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoneyFromString(tt.amount, tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.currency, m.Currency)
			assert.True(t, m.Amount.Equal(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := MustMoney("100.00", "SAR")
	b := MustMoney("50.50", "SAR")

	assert.True(t, a.Add(b).Equal(MustMoney("150.50", "SAR")))
	assert.True(t, a.Sub(b).Equal(MustMoney("49.50", "SAR")))
	assert.True(t, b.MulInt(3).Equal(MustMoney("151.50", "SAR")))
	assert.Equal(t, 1, a.Cmp(b))
	assert.Equal(t, -1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(MustMoney("100", "SAR")))
	assert.True(t, a.GreaterOrEqual(b))
	assert.True(t, a.IsPositive())
	assert.False(t, a.IsNegative())
	assert.True(t, ZeroMoney("SAR").IsZero())
}

func TestMoneyMulIntIsExact(t *testing.T) {
	// 0.10 * 3 must be exactly 0.30, not 0.30000000000000004.
	m := MustMoney("0.10", "SAR").MulInt(3)
	assert.True(t, m.Amount.Equal(decimal.RequireFromString("0.30")))
}

func TestMoneyCurrencyMismatchPanics(t *testing.T) {
	sar := MustMoney("10", "SAR")
	usd := MustMoney("10", "USD")

	assert.Panics(t, func() { sar.Add(usd) })
	assert.Panics(t, func() { sar.Sub(usd) })
	assert.Panics(t, func() { sar.Cmp(usd) })
}

func TestMoneyRoundCents(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"30.000", "30"},
		{"0.005", "0.01"},  // half-up
		{"0.004", "0"},
		{"1.995", "2"},
		{"7.5749", "7.57"},
	}
	for _, tt := range tests {
		got := MustMoney(tt.in, "SAR").RoundCents()
		assert.True(t, got.Amount.Equal(decimal.RequireFromString(tt.want)),
			"round %s: got %s want %s", tt.in, got.Amount, tt.want)
	}
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "280.00 SAR", MustMoney("280", "SAR").String())
	assert.Equal(t, "0.50 USD", MustMoney("0.5", "USD").String())
}

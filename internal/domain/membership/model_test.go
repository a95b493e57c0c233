package membership

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymbill/internal/core/types"
)

func fee(t *testing.T, gross string, rate int64) Fee {
	t.Helper()
	m, err := types.NewMoneyFromString(gross, types.SAR)
	require.NoError(t, err)
	return Fee{Amount: m, TaxRate: decimal.NewFromInt(rate)}
}

func TestFee_NetAmount(t *testing.T) {
	tests := []struct {
		name    string
		gross   string
		rate    int64
		wantNet string
		wantTax string
	}{
		{"15 percent", "115.00", 15, "100.00", "15.00"},
		{"zero rate passes through", "250.00", 0, "250.00", "0.00"},
		{"rounds half up", "100.00", 15, "86.96", "13.04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fee(t, tt.gross, tt.rate)

			assert.Equal(t, tt.wantNet, f.NetAmount().Amount.StringFixed(2))
			assert.Equal(t, tt.wantTax, f.TaxAmount().Amount.StringFixed(2))
			assert.True(t, f.GrossAmount().Equal(f.Amount))
		})
	}
}

func TestFee_IsZero(t *testing.T) {
	assert.True(t, Fee{Amount: types.ZeroMoney(types.SAR)}.IsZero())
	assert.False(t, fee(t, "50.00", 15).IsZero())
}

func TestMembershipPlan_HasFees(t *testing.T) {
	plan := &MembershipPlan{
		MembershipFee:     Fee{Amount: types.ZeroMoney(types.SAR)},
		AdministrationFee: Fee{Amount: types.ZeroMoney(types.SAR)},
		JoinFee:           Fee{Amount: types.ZeroMoney(types.SAR)},
	}
	assert.False(t, plan.HasFees())

	plan.MembershipFee = fee(t, "280.00", 15)
	assert.True(t, plan.HasFees())
}

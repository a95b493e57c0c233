package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymbill/internal/core/types"
	"gymbill/internal/domain/billing/invoice"
)

func lineRequest(price string) LineRequest {
	return LineRequest{
		Description: LocalizedTextDTO{En: "day pass"},
		Quantity:    1,
		UnitPrice:   price,
		ItemType:    string(invoice.ItemGuestPass),
	}
}

func TestLineRequest_ToLineInput(t *testing.T) {
	for _, price := range []string{"10", "10.5", "10.50"} {
		r := lineRequest(price)
		in, err := r.ToLineInput(types.SAR)
		require.NoError(t, err, price)
		assert.Equal(t, types.SAR, in.UnitPrice.Currency)
	}

	r := lineRequest("40.00")
	rate := "15"
	r.TaxRate = &rate
	in, err := r.ToLineInput(types.SAR)
	require.NoError(t, err)
	require.NotNil(t, in.TaxRate)
	assert.Equal(t, "15", in.TaxRate.String())
}

func TestLineRequest_ToLineInput_Rejected(t *testing.T) {
	// finer than cents would be rounded away by the numeric(12,2) column
	for _, price := range []string{"10.505", "0.001", "99.999"} {
		r := lineRequest(price)
		_, err := r.ToLineInput(types.SAR)
		assert.Error(t, err, price)
	}

	nan := lineRequest("not-a-number")
	_, err := nan.ToLineInput(types.SAR)
	assert.Error(t, err)

	r := lineRequest("10.00")
	bad := "abc"
	r.TaxRate = &bad
	_, err = r.ToLineInput(types.SAR)
	assert.Error(t, err)
}

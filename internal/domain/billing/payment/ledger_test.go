package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
)

func TestNewLedgerEntry(t *testing.T) {
	invoiceID := id.New()
	paidAt := time.Date(2025, 6, 1, 14, 30, 0, 0, time.FixedZone("AST", 3*3600))

	e, err := NewLedgerEntry(invoiceID, types.MustMoney("115.00", types.SAR), MethodCard, "POS-42", paidAt)
	require.NoError(t, err)

	assert.False(t, id.IsNil(e.ID))
	assert.Equal(t, invoiceID, e.InvoiceID)
	assert.Equal(t, MethodCard, e.Method)
	assert.Equal(t, "POS-42", e.Reference)
	assert.Equal(t, time.UTC, e.PaidAt.Location())
}

func TestNewLedgerEntry_Validation(t *testing.T) {
	amount := types.MustMoney("50.00", types.SAR)

	_, err := NewLedgerEntry(id.Nil(), amount, MethodCash, "", time.Now())
	assert.Error(t, err, "nil invoice")

	_, err = NewLedgerEntry(id.New(), types.ZeroMoney(types.SAR), MethodCash, "", time.Now())
	assert.Error(t, err, "zero amount")

	_, err = NewLedgerEntry(id.New(), types.MustMoney("-10.00", types.SAR), MethodCash, "", time.Now())
	assert.Error(t, err, "negative amount")

	_, err = NewLedgerEntry(id.New(), amount, Method("WIRE"), "", time.Now())
	assert.Error(t, err, "unknown method")
}

func TestMethod_IsValid(t *testing.T) {
	for _, m := range []Method{MethodCash, MethodCard, MethodBankTransfer, MethodCheque, MethodOnline, MethodOther} {
		assert.True(t, m.IsValid(), string(m))
	}
	assert.False(t, Method("").IsValid())
	assert.False(t, Method("BITCOIN").IsValid())
}

func TestTotal(t *testing.T) {
	invoiceID := id.New()
	e1, err := NewLedgerEntry(invoiceID, types.MustMoney("100.00", types.SAR), MethodCash, "", time.Now())
	require.NoError(t, err)
	e2, err := NewLedgerEntry(invoiceID, types.MustMoney("57.50", types.SAR), MethodCard, "", time.Now())
	require.NoError(t, err)

	total := Total([]*LedgerEntry{e1, e2}, types.SAR)
	assert.True(t, total.Equal(types.MustMoney("157.50", types.SAR)))
}

func TestTotal_Empty(t *testing.T) {
	total := Total(nil, types.SAR)
	assert.True(t, total.IsZero())
	assert.Equal(t, types.SAR, total.Currency)
}

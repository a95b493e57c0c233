package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
	"gymbill/internal/domain/billing/payment"
)

func line(t *testing.T, qty int, price string, rate int64) LineItem {
	t.Helper()
	l, err := NewLineItem(
		types.NewLocalizedText("test line"),
		qty,
		types.MustMoney(price, types.SAR),
		ItemSubscription,
		decimal.NewFromInt(rate),
		0,
	)
	require.NoError(t, err)
	return l
}

func draftInvoice(t *testing.T, lines ...LineItem) *Invoice {
	t.Helper()
	if len(lines) == 0 {
		lines = []LineItem{line(t, 1, "100.00", 15)}
	}
	inv, err := Create("INV-2025-00001", id.New(), id.New(), nil, lines, decimal.NewFromInt(15), types.LocalizedText{})
	require.NoError(t, err)
	return inv
}

func issuedInvoice(t *testing.T, lines ...LineItem) *Invoice {
	t.Helper()
	inv := draftInvoice(t, lines...)
	require.NoError(t, inv.Issue(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 7))
	return inv
}

func TestNewLineItem_Validation(t *testing.T) {
	desc := types.NewLocalizedText("x")
	price := types.MustMoney("10.00", types.SAR)

	_, err := NewLineItem(desc, 0, price, ItemOther, decimal.Zero, 0)
	assert.Error(t, err, "zero quantity")

	_, err = NewLineItem(desc, -1, price, ItemOther, decimal.Zero, 0)
	assert.Error(t, err, "negative quantity")

	_, err = NewLineItem(desc, 1, price, "BOGUS", decimal.Zero, 0)
	assert.Error(t, err, "unknown item type")

	_, err = NewLineItem(desc, 1, price, ItemOther, decimal.NewFromInt(-5), 0)
	assert.Error(t, err, "negative tax rate")

	_, err = NewLineItem(types.LocalizedText{}, 1, price, ItemOther, decimal.Zero, 0)
	assert.Error(t, err, "empty description")
}

func TestLineItem_Amounts(t *testing.T) {
	l := line(t, 2, "100.00", 15)

	assert.Equal(t, "200.00", l.LineTotal().Amount.StringFixed(2))
	assert.Equal(t, "30.00", l.LineTaxAmount().Amount.StringFixed(2))

	// rounding happens per line, half-up to cents
	odd := line(t, 1, "0.03", 15) // 0.0045 -> 0.00
	assert.Equal(t, "0.00", odd.LineTaxAmount().Amount.StringFixed(2))

	odd = line(t, 1, "0.10", 15) // 0.015 -> 0.02
	assert.Equal(t, "0.02", odd.LineTaxAmount().Amount.StringFixed(2))
}

func TestCreate_TotalsScenario(t *testing.T) {
	// 2 x 100.00 SAR at 15% plus 1 x 50.00 SAR at 0%
	inv := draftInvoice(t,
		line(t, 2, "100.00", 15),
		line(t, 1, "50.00", 0),
	)

	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, "250.00", inv.Subtotal.Amount.StringFixed(2))
	assert.Equal(t, "30.00", inv.VATAmount.Amount.StringFixed(2))
	assert.Equal(t, "280.00", inv.TotalAmount.Amount.StringFixed(2))
	assert.True(t, inv.TotalAmount.Equal(inv.Subtotal.Add(inv.VATAmount)))
	assert.True(t, inv.PaidAmount.IsZero())
}

func TestCreate_Validation(t *testing.T) {
	lines := []LineItem{line(t, 1, "10.00", 15)}

	_, err := Create("", id.New(), id.New(), nil, lines, decimal.NewFromInt(15), types.LocalizedText{})
	assert.Error(t, err, "empty number")

	_, err = Create("INV-2025-00001", id.Nil(), id.New(), nil, lines, decimal.NewFromInt(15), types.LocalizedText{})
	assert.Error(t, err, "missing organization")

	_, err = Create("INV-2025-00001", id.New(), id.Nil(), nil, lines, decimal.NewFromInt(15), types.LocalizedText{})
	assert.Error(t, err, "missing member")

	_, err = Create("INV-2025-00001", id.New(), id.New(), nil, nil, decimal.NewFromInt(15), types.LocalizedText{})
	assert.Error(t, err, "no lines")
}

func TestIssue(t *testing.T) {
	inv := draftInvoice(t)
	issueDate := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, inv.Issue(issueDate, 7))

	assert.Equal(t, StatusIssued, inv.Status)
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), *inv.DueDate)

	// issuing twice is rejected without mutating state
	err := inv.Issue(issueDate, 7)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, StatusIssued, inv.Status)
}

func TestRecordPayment_PartialThenFull(t *testing.T) {
	inv := issuedInvoice(t,
		line(t, 2, "100.00", 15),
		line(t, 1, "50.00", 0),
	)
	now := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

	require.NoError(t, inv.RecordPayment(types.MustMoney("100.00", types.SAR), payment.MethodCash, "rcpt-1", now))
	assert.Equal(t, StatusPartiallyPaid, inv.Status)
	assert.Equal(t, "100.00", inv.PaidAmount.Amount.StringFixed(2))
	assert.Nil(t, inv.PaidDate)

	require.NoError(t, inv.RecordPayment(types.MustMoney("180.00", types.SAR), payment.MethodCard, "rcpt-2", now))
	assert.Equal(t, StatusPaid, inv.Status)
	assert.Equal(t, "280.00", inv.PaidAmount.Amount.StringFixed(2))
	require.NotNil(t, inv.PaidDate)
	assert.True(t, inv.RemainingBalance().IsZero())

	// method and reference are last-write-wins
	assert.Equal(t, payment.MethodCard, inv.PaymentMethod)
	assert.Equal(t, "rcpt-2", inv.PaymentReference)
}

func TestRecordPayment_Guards(t *testing.T) {
	now := time.Now()
	amount := types.MustMoney("10.00", types.SAR)

	draft := draftInvoice(t)
	err := draft.RecordPayment(amount, payment.MethodCash, "", now)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, StatusDraft, draft.Status)
	assert.True(t, draft.PaidAmount.IsZero())

	cancelled := draftInvoice(t)
	require.NoError(t, cancelled.Cancel())
	err = cancelled.RecordPayment(amount, payment.MethodCash, "", now)
	assert.True(t, apperror.IsInvalidTransition(err))

	issued := issuedInvoice(t)
	assert.Error(t, issued.RecordPayment(types.MustMoney("-5.00", types.SAR), payment.MethodCash, "", now), "negative amount")
	assert.Error(t, issued.RecordPayment(types.MustMoney("10.00", "USD"), payment.MethodCash, "", now), "currency mismatch")
	assert.Error(t, issued.RecordPayment(amount, "WIRE", now.String(), now), "unknown method")
}

func TestRecordPayment_OverpaymentRejected(t *testing.T) {
	inv := issuedInvoice(t, line(t, 1, "100.00", 0))
	now := time.Now()

	err := inv.RecordPayment(types.MustMoney("100.01", types.SAR), payment.MethodCash, "", now)
	require.Error(t, err)
	assert.Equal(t, StatusIssued, inv.Status)
	assert.True(t, inv.PaidAmount.IsZero())

	// exact remaining balance is accepted
	require.NoError(t, inv.RecordPayment(types.MustMoney("100.00", types.SAR), payment.MethodCash, "", now))
	assert.Equal(t, StatusPaid, inv.Status)
}

func TestRecordPayment_Monotonic(t *testing.T) {
	inv := issuedInvoice(t, line(t, 1, "100.00", 0))
	now := time.Now()

	prev := inv.PaidAmount
	for i := 0; i < 4; i++ {
		require.NoError(t, inv.RecordPayment(types.MustMoney("25.00", types.SAR), payment.MethodCash, "", now))
		assert.True(t, inv.PaidAmount.GreaterOrEqual(prev))
		prev = inv.PaidAmount
	}
	assert.Equal(t, StatusPaid, inv.Status)

	// once PAID, stays PAID: further payments are rejected
	err := inv.RecordPayment(types.MustMoney("1.00", types.SAR), payment.MethodCash, "", now)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, StatusPaid, inv.Status)
}

func TestCancel(t *testing.T) {
	draft := draftInvoice(t)
	require.NoError(t, draft.Cancel())
	assert.Equal(t, StatusCancelled, draft.Status)

	issued := issuedInvoice(t)
	require.NoError(t, issued.Cancel())

	// a partially paid invoice cannot be cancelled
	paying := issuedInvoice(t, line(t, 1, "100.00", 0))
	require.NoError(t, paying.RecordPayment(types.MustMoney("40.00", types.SAR), payment.MethodCash, "", time.Now()))
	err := paying.Cancel()
	require.Error(t, err)
	assert.Equal(t, StatusPartiallyPaid, paying.Status)

	// neither can a cancelled one be cancelled again
	assert.True(t, apperror.IsInvalidTransition(draft.Cancel()))
}

func TestRefund(t *testing.T) {
	inv := issuedInvoice(t, line(t, 1, "100.00", 0))
	require.NoError(t, inv.RecordPayment(types.MustMoney("100.00", types.SAR), payment.MethodCash, "", time.Now()))
	require.Equal(t, StatusPaid, inv.Status)

	require.NoError(t, inv.Refund())
	assert.Equal(t, StatusRefunded, inv.Status)

	// refund is only reachable from PAID
	issued := issuedInvoice(t)
	assert.True(t, apperror.IsInvalidTransition(issued.Refund()))
	assert.True(t, apperror.IsInvalidTransition(inv.Refund()))
}

func TestMarkOverdue(t *testing.T) {
	inv := issuedInvoice(t) // issued 2025-01-01, due 2025-01-08
	sweepDay := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)

	require.NoError(t, inv.MarkOverdue(sweepDay))
	assert.Equal(t, StatusOverdue, inv.Status)

	// re-running the sweep the same day is a no-op: the guard rejects
	err := inv.MarkOverdue(sweepDay)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, StatusOverdue, inv.Status)
}

func TestMarkOverdue_NotPastDue(t *testing.T) {
	inv := issuedInvoice(t)

	err := inv.MarkOverdue(time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC))
	require.Error(t, err, "due date itself is not past due")
	assert.Equal(t, StatusIssued, inv.Status)

	draft := draftInvoice(t)
	assert.True(t, apperror.IsInvalidTransition(draft.MarkOverdue(time.Now())))
}

func TestLineMutation_DraftOnly(t *testing.T) {
	inv := draftInvoice(t, line(t, 1, "100.00", 15))

	extra := line(t, 1, "50.00", 0)
	require.NoError(t, inv.AddLineItem(extra))
	assert.Equal(t, "150.00", inv.Subtotal.Amount.StringFixed(2))
	assert.Equal(t, "165.00", inv.TotalAmount.Amount.StringFixed(2))

	require.NoError(t, inv.RemoveLineItem(extra.ID))
	assert.Equal(t, "100.00", inv.Subtotal.Amount.StringFixed(2))

	assert.Error(t, inv.RemoveLineItem(id.New()), "unknown line")

	require.NoError(t, inv.Issue(time.Now(), 7))
	assert.Error(t, inv.AddLineItem(extra))
	assert.Error(t, inv.RemoveLineItem(inv.LineItems[0].ID))
}

func TestLineMutation_CurrencySwitchOnDrainedDraft(t *testing.T) {
	inv := draftInvoice(t, line(t, 1, "100.00", 15))
	require.NoError(t, inv.RemoveLineItem(inv.LineItems[0].ID))

	// An empty draft accepts a line in a different currency; the whole
	// invoice, PaidAmount included, must follow it.
	usd, err := NewLineItem(
		types.NewLocalizedText("day pass"),
		1,
		types.MustMoney("40.00", "USD"),
		ItemGuestPass,
		decimal.NewFromInt(15),
		0,
	)
	require.NoError(t, err)
	require.NoError(t, inv.AddLineItem(usd))

	assert.Equal(t, "USD", inv.Currency())
	assert.Equal(t, "USD", inv.PaidAmount.Currency)
	require.NoError(t, inv.Validate(context.Background()))

	require.NoError(t, inv.Issue(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 7))
	require.NoError(t, inv.RecordPayment(
		types.MustMoney("46.00", "USD"), payment.MethodCard, "", time.Now()))
	assert.Equal(t, StatusPaid, inv.Status)
}

func TestRecalculateTotals_Empty(t *testing.T) {
	inv := draftInvoice(t)
	require.NoError(t, inv.RemoveLineItem(inv.LineItems[0].ID))

	assert.True(t, inv.Subtotal.IsZero())
	assert.True(t, inv.VATAmount.IsZero())
	assert.True(t, inv.TotalAmount.IsZero())
	assert.Equal(t, types.SAR, inv.Currency())
}

func TestUpdateNotes(t *testing.T) {
	inv := draftInvoice(t)
	notes := types.LocalizedText{En: "paid at front desk", Ar: "تم الدفع في الاستقبال"}

	require.NoError(t, inv.UpdateNotes(notes))
	assert.Equal(t, notes, inv.Notes)

	require.NoError(t, inv.Cancel())
	assert.Error(t, inv.UpdateNotes(types.LocalizedText{En: "x"}))
}

func TestStatus_TransitionTable(t *testing.T) {
	assert.True(t, StatusDraft.CanTransitionTo(StatusIssued))
	assert.True(t, StatusDraft.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusDraft.CanTransitionTo(StatusPaid))

	assert.True(t, StatusIssued.CanTransitionTo(StatusOverdue))
	assert.True(t, StatusOverdue.CanTransitionTo(StatusPaid))
	assert.True(t, StatusPaid.CanTransitionTo(StatusRefunded))

	assert.False(t, StatusPaid.CanTransitionTo(StatusDraft))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusIssued))
	assert.False(t, StatusRefunded.CanTransitionTo(StatusPaid))

	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
	assert.False(t, StatusPaid.IsTerminal())
}

func TestInvoice_Validate(t *testing.T) {
	ctx := context.Background()

	inv := draftInvoice(t)
	require.NoError(t, inv.Validate(ctx))

	broken := draftInvoice(t)
	broken.TotalAmount = types.MustMoney("999.00", types.SAR)
	assert.Error(t, broken.Validate(ctx), "totals identity")

	overpaid := draftInvoice(t)
	overpaid.PaidAmount = overpaid.TotalAmount.Add(types.MustMoney("1.00", types.SAR))
	assert.Error(t, overpaid.Validate(ctx), "paid exceeds total")
}

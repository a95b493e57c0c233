package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
	"gymbill/internal/domain/billing/payment"
)

func TestService_BulkIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)
	unknown := id.New()

	res := f.svc.BulkIssue(ctx, []id.ID{first.ID, second.ID, unknown},
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 14)

	assert.ElementsMatch(t, []id.ID{first.ID, second.ID}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, unknown, res.Failed[0].ID)

	for _, invoiceID := range []id.ID{first.ID, second.ID} {
		stored, err := f.svc.GetByID(ctx, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, StatusIssued, stored.Status)
	}
}

func TestService_BulkCancel_SkipsNonCancellable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)

	paid, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, paid.ID, time.Now(), 7)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, RecordPaymentParams{
		InvoiceID: paid.ID,
		Amount:    types.MustMoney("280.00", types.SAR),
		Method:    payment.MethodCash,
	})
	require.NoError(t, err)

	res := f.svc.BulkCancel(ctx, []id.ID{draft.ID, paid.ID})

	assert.Equal(t, []id.ID{draft.ID}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, paid.ID, res.Failed[0].ID)

	stored, err := f.svc.GetByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, stored.Status, "paid invoice untouched by the batch")
}

func TestService_BulkRecordPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, inv.ID, time.Now(), 7)
	require.NoError(t, err)

	res := f.svc.BulkRecordPayments(ctx, []RecordPaymentParams{
		{
			InvoiceID: inv.ID,
			Amount:    types.MustMoney("280.00", types.SAR),
			Method:    payment.MethodCard,
			Reference: "POS-7",
		},
		{
			InvoiceID: id.New(),
			Amount:    types.MustMoney("10.00", types.SAR),
			Method:    payment.MethodCash,
		},
	})

	assert.Equal(t, []id.ID{inv.ID}, res.Succeeded)
	assert.Len(t, res.Failed, 1)

	stored, err := f.svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, stored.Status)

	entries, err := f.svc.Payments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_BulkCreateFromSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unknown := id.New()
	res, created := f.svc.BulkCreateFromSubscriptions(ctx, []id.ID{f.subID, unknown},
		types.LocalizedText{En: "renewal batch"})

	assert.Equal(t, []id.ID{f.subID}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, unknown, res.Failed[0].ID)

	require.Len(t, created, 1)
	assert.Equal(t, StatusDraft, created[0].Status)
	assert.Equal(t, f.memberID, created[0].MemberID)
	assert.Equal(t, "renewal batch", created[0].Notes.En)
}

package invoice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/entity"
	"gymbill/internal/core/id"
	"gymbill/internal/core/numerator"
	"gymbill/internal/core/types"
	"gymbill/internal/domain"
	"gymbill/internal/domain/billing/payment"
	"gymbill/internal/domain/membership"
)

// --- In-memory fakes ---

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRepo struct {
	mu       sync.Mutex
	invoices map[id.ID]*Invoice
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{invoices: make(map[id.ID]*Invoice)}
}

func (r *fakeRepo) Create(ctx context.Context, inv *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[inv.ID] = inv
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok || inv.DeletionMark {
		return nil, apperror.NewNotFound("invoice", invoiceID.String())
	}
	return inv, nil
}

func (r *fakeRepo) GetByNumber(ctx context.Context, organizationID id.ID, number string) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.OrganizationID == organizationID && inv.InvoiceNumber == number && !inv.DeletionMark {
			return inv, nil
		}
	}
	return nil, apperror.NewNotFound("invoice", number)
}

func (r *fakeRepo) Update(ctx context.Context, inv *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[inv.ID]; !ok {
		return apperror.NewNotFound("invoice", inv.ID.String())
	}
	r.invoices[inv.ID] = inv
	return nil
}

func (r *fakeRepo) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Invoice], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*Invoice
	for _, inv := range r.invoices {
		if !inv.DeletionMark {
			items = append(items, inv)
		}
	}
	return domain.ListResult[*Invoice]{Items: items, TotalCount: int64(len(items))}, nil
}

func (r *fakeRepo) FindOverdue(ctx context.Context, organizationID id.ID, before time.Time) ([]*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Invoice
	for _, inv := range r.invoices {
		if !id.IsNil(organizationID) && inv.OrganizationID != organizationID {
			continue
		}
		if inv.Status == StatusIssued && inv.DueDate != nil && inv.DueDate.Before(before) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindUnpaidBySubscription(ctx context.Context, subscriptionID id.ID) ([]*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Invoice
	for _, inv := range r.invoices {
		if inv.SubscriptionID == nil || *inv.SubscriptionID != subscriptionID {
			continue
		}
		for _, s := range UnpaidStatuses {
			if inv.Status == s {
				out = append(out, inv)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) Stats(ctx context.Context, organizationID id.ID) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{ByStatus: make(map[Status]int64)}
	for _, inv := range r.invoices {
		if inv.OrganizationID != organizationID || inv.DeletionMark {
			continue
		}
		stats.Total++
		stats.ByStatus[inv.Status]++
	}
	return stats, nil
}

func (r *fakeRepo) SetDeletionMark(ctx context.Context, invoiceID id.ID, marked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return apperror.NewNotFound("invoice", invoiceID.String())
	}
	inv.DeletionMark = marked
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*payment.LedgerEntry
}

func (l *fakeLedger) Append(ctx context.Context, entry *payment.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *fakeLedger) ListByInvoice(ctx context.Context, invoiceID id.ID) ([]*payment.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*payment.LedgerEntry
	for _, e := range l.entries {
		if e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeLedger) SumByInvoice(ctx context.Context, invoiceID id.ID, currency string) (types.Money, error) {
	entries, _ := l.ListByInvoice(ctx, invoiceID)
	return payment.Total(entries, currency), nil
}

type fakeMembers struct{ members map[id.ID]*membership.Member }

func (m *fakeMembers) GetByID(ctx context.Context, memberID id.ID) (*membership.Member, error) {
	if mem, ok := m.members[memberID]; ok {
		return mem, nil
	}
	return nil, apperror.NewNotFound("member", memberID.String())
}

type fakePlans struct{ plans map[id.ID]*membership.MembershipPlan }

func (p *fakePlans) GetByID(ctx context.Context, planID id.ID) (*membership.MembershipPlan, error) {
	if plan, ok := p.plans[planID]; ok {
		return plan, nil
	}
	return nil, apperror.NewNotFound("membership plan", planID.String())
}

type fakeSubscriptions struct {
	subs   map[id.ID]*membership.Subscription
	counts map[id.ID]int64
}

func (s *fakeSubscriptions) GetByID(ctx context.Context, subscriptionID id.ID) (*membership.Subscription, error) {
	if sub, ok := s.subs[subscriptionID]; ok {
		return sub, nil
	}
	return nil, apperror.NewNotFound("subscription", subscriptionID.String())
}

func (s *fakeSubscriptions) CountByMember(ctx context.Context, memberID id.ID) (int64, error) {
	return s.counts[memberID], nil
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

// --- Fixture ---

type fixture struct {
	svc    *Service
	repo   *fakeRepo
	ledger *fakeLedger
	subs   *fakeSubscriptions
	audit  *recordingAudit

	orgID    id.ID
	memberID id.ID
	planID   id.ID
	subID    id.ID
}

func grossFee(t *testing.T, gross string, rate int64) membership.Fee {
	t.Helper()
	return membership.Fee{
		Amount:  types.MustMoney(gross, types.SAR),
		TaxRate: decimal.NewFromInt(rate),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:     newFakeRepo(),
		ledger:   &fakeLedger{},
		audit:    &recordingAudit{},
		orgID:    id.New(),
		memberID: id.New(),
		planID:   id.New(),
		subID:    id.New(),
	}

	members := &fakeMembers{members: map[id.ID]*membership.Member{
		f.memberID: {
			OrganizationID: f.orgID,
			Name:           types.NewLocalizedText("Test Member"),
			Email:          "member@example.com",
		},
	}}

	plans := &fakePlans{plans: map[id.ID]*membership.MembershipPlan{
		f.planID: {
			OrganizationID:    f.orgID,
			Name:              types.LocalizedText{En: "Gold Monthly", Ar: "ذهبي شهري"},
			DurationDays:      30,
			MembershipFee:     grossFee(t, "115.00", 15),
			AdministrationFee: grossFee(t, "57.50", 15),
			JoinFee:           grossFee(t, "230.00", 15),
		},
	}}

	f.subs = &fakeSubscriptions{
		subs: map[id.ID]*membership.Subscription{
			f.subID: {
				BaseDocument:   entity.BaseDocument{BaseEntity: entity.BaseEntity{ID: f.subID}},
				OrganizationID: f.orgID,
				MemberID:       f.memberID,
				PlanID:         f.planID,
				Status:         membership.SubscriptionActive,
			},
		},
		counts: map[id.ID]int64{f.memberID: 1},
	}

	f.svc = NewService(ServiceConfig{
		Repo:          f.repo,
		Ledger:        f.ledger,
		Members:       members,
		Plans:         plans,
		Subscriptions: f.subs,
		Numerator:     &numerator.MockGenerator{},
		TxManager:     fakeTxManager{},
		Audit:         f.audit,
	})

	return f
}

func (f *fixture) createParams() CreateParams {
	zeroRate := decimal.Zero
	return CreateParams{
		OrganizationID: f.orgID,
		MemberID:       f.memberID,
		Lines: []LineInput{
			{
				Description: types.NewLocalizedText("Monthly membership"),
				Quantity:    2,
				UnitPrice:   types.MustMoney("100.00", types.SAR),
				ItemType:    ItemSubscription,
			},
			{
				Description: types.NewLocalizedText("Guest pass"),
				Quantity:    1,
				UnitPrice:   types.MustMoney("50.00", types.SAR),
				ItemType:    ItemGuestPass,
				TaxRate:     &zeroRate,
			},
		},
	}
}

// --- Tests ---

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, inv.Status)
	assert.Regexp(t, `^INV-\d{4}-00001$`, inv.InvoiceNumber)
	assert.Equal(t, "250.00", inv.Subtotal.Amount.StringFixed(2))
	assert.Equal(t, "30.00", inv.VATAmount.Amount.StringFixed(2))
	assert.Equal(t, "280.00", inv.TotalAmount.Amount.StringFixed(2))
	assert.Contains(t, f.audit.actions, "create")

	stored, err := f.svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, stored.InvoiceNumber)
}

func TestService_Create_MemberNotFound(t *testing.T) {
	f := newFixture(t)

	params := f.createParams()
	params.MemberID = id.New()

	_, err := f.svc.Create(context.Background(), params)
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_Create_ConcurrentNumbersUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 50
	numbers := make(chan string, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := f.svc.Create(ctx, f.createParams())
			if err == nil {
				numbers <- inv.InvoiceNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for n := range numbers {
		assert.False(t, seen[n], "duplicate invoice number %s", n)
		seen[n] = true
	}
	assert.Len(t, seen, callers)
}

func TestService_CreateFromSubscription_FirstEver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.CreateFromSubscription(ctx, FromSubscriptionParams{SubscriptionID: f.subID})
	require.NoError(t, err)

	// membership + administration + one-time joining fee
	require.Len(t, inv.LineItems, 3)
	assert.Equal(t, "Membership Fee - Gold Monthly", inv.LineItems[0].Description.En)
	assert.Equal(t, "Administration Fee", inv.LineItems[1].Description.En)
	assert.Equal(t, "Joining Fee (One-time)", inv.LineItems[2].Description.En)

	// gross fees split into net price + per-line tax: 115.00 -> 100.00+15.00,
	// 57.50 -> 50.00+7.50, 230.00 -> 200.00+30.00
	assert.Equal(t, "350.00", inv.Subtotal.Amount.StringFixed(2))
	assert.Equal(t, "52.50", inv.VATAmount.Amount.StringFixed(2))
	assert.Equal(t, "402.50", inv.TotalAmount.Amount.StringFixed(2))

	require.NotNil(t, inv.SubscriptionID)
	assert.Equal(t, f.subID, *inv.SubscriptionID)
}

func TestService_CreateFromSubscription_NoJoinFeeOnRenewal(t *testing.T) {
	f := newFixture(t)
	f.subs.counts[f.memberID] = 2 // member has an earlier subscription

	inv, err := f.svc.CreateFromSubscription(context.Background(), FromSubscriptionParams{SubscriptionID: f.subID})
	require.NoError(t, err)

	require.Len(t, inv.LineItems, 2)
	for _, l := range inv.LineItems {
		assert.NotContains(t, l.Description.En, "Joining")
	}
}

func TestService_CreateFromSubscription_UnpaidInvoiceBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateFromSubscription(ctx, FromSubscriptionParams{SubscriptionID: f.subID})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, first.Status)

	_, err = f.svc.CreateFromSubscription(ctx, FromSubscriptionParams{SubscriptionID: f.subID})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeUnpaidInvoiceExists, appErr.Code)

	// once the blocker is cancelled, creation succeeds again
	_, err = f.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)

	_, err = f.svc.CreateFromSubscription(ctx, FromSubscriptionParams{SubscriptionID: f.subID})
	assert.NoError(t, err)
}

func TestService_IssueAndRecordPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)

	issueDate := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	inv, err = f.svc.Issue(ctx, inv.ID, issueDate, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, inv.Status)
	assert.Equal(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), *inv.DueDate)

	inv, err = f.svc.RecordPayment(ctx, RecordPaymentParams{
		InvoiceID: inv.ID,
		Amount:    types.MustMoney("100.00", types.SAR),
		Method:    payment.MethodCash,
		Reference: "rcpt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyPaid, inv.Status)

	inv, err = f.svc.RecordPayment(ctx, RecordPaymentParams{
		InvoiceID: inv.ID,
		Amount:    types.MustMoney("180.00", types.SAR),
		Method:    payment.MethodCard,
		Reference: "rcpt-2",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, inv.Status)

	// the ledger kept both payments even though the invoice's own
	// method/reference fields only keep the last one
	entries, err := f.svc.Payments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, payment.Total(entries, types.SAR).Equal(inv.PaidAmount))
}

func TestService_RecordPayment_LedgerMismatchAborts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, inv.ID, time.Now(), 7)
	require.NoError(t, err)

	// a stray ledger row that the invoice knows nothing about
	stray, err := payment.NewLedgerEntry(inv.ID, types.MustMoney("5.00", types.SAR), payment.MethodCash, "", time.Now())
	require.NoError(t, err)
	require.NoError(t, f.ledger.Append(ctx, stray))

	_, err = f.svc.RecordPayment(ctx, RecordPaymentParams{
		InvoiceID: inv.ID,
		Amount:    types.MustMoney("100.00", types.SAR),
		Method:    payment.MethodCash,
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvariantViolation, appErr.Code)
}

func TestService_MarkOverdueInvoices_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issueDate := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var due, notDue *Invoice
	var err error

	due, err = f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, due.ID, issueDate, 7)
	require.NoError(t, err)

	notDue, err = f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, notDue.ID, issueDate, 30)
	require.NoError(t, err)

	sweepDay := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)

	marked, err := f.svc.MarkOverdueInvoices(ctx, f.orgID, sweepDay)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	got, err := f.svc.GetByID(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)

	got, err = f.svc.GetByID(ctx, notDue.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, got.Status)

	// second run finds nothing new
	marked, err = f.svc.MarkOverdueInvoices(ctx, f.orgID, sweepDay)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}

func TestService_Delete_DraftOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, inv.ID))
	_, err = f.svc.GetByID(ctx, inv.ID)
	assert.True(t, apperror.IsNotFound(err))

	issued, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, issued.ID, time.Now(), 7)
	require.NoError(t, err)

	assert.Error(t, f.svc.Delete(ctx, issued.ID))
}

func TestService_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, first.ID, time.Now(), 7)
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[StatusDraft])
	assert.Equal(t, int64(1), stats.ByStatus[StatusIssued])
}

func TestService_UpdateNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.createParams())
	require.NoError(t, err)

	notes := types.LocalizedText{En: "front desk", Ar: "الاستقبال"}
	inv, err = f.svc.UpdateNotes(ctx, inv.ID, notes)
	require.NoError(t, err)
	assert.Equal(t, notes, inv.Notes)
}

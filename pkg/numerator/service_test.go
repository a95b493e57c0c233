package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"gymbill/internal/core/id"
	corenum "gymbill/internal/core/numerator"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

type counterState struct {
	year int
	seq  int64
}

// mockQuerier simulates the invoice_sequences UPSERT: one counter row per
// organization, reset to 1 when the requested year changes.
type mockQuerier struct {
	mu       sync.Mutex
	counters map[id.ID]*counterState
	calls    int
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{counters: make(map[id.ID]*counterState)}
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	orgID, ok := args[0].(id.ID)
	if !ok {
		return &mockRow{err: pgx.ErrNoRows}
	}
	year, ok := args[1].(int)
	if !ok {
		return &mockRow{err: pgx.ErrNoRows}
	}

	state, exists := m.counters[orgID]
	if !exists || state.year != year {
		state = &counterState{year: year, seq: 1}
		m.counters[orgID] = state
	} else {
		state.seq++
	}

	return &mockRow{val: state.seq}
}

func date(year int) time.Time {
	return time.Date(year, time.March, 15, 0, 0, 0, 0, time.UTC)
}

func TestNextInvoiceNumber_Sequential(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	orgID := id.New()

	num, err := svc.NextInvoiceNumber(ctx, orgID, date(2025))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "INV-2025-00001" {
		t.Errorf("expected INV-2025-00001, got %s", num)
	}

	num, err = svc.NextInvoiceNumber(ctx, orgID, date(2025))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "INV-2025-00002" {
		t.Errorf("expected INV-2025-00002, got %s", num)
	}
}

func TestNextInvoiceNumber_PerOrganization(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()

	orgA := id.New()
	orgB := id.New()

	for i := 0; i < 3; i++ {
		if _, err := svc.NextInvoiceNumber(ctx, orgA, date(2025)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Second organization starts its own counter at 1.
	num, err := svc.NextInvoiceNumber(ctx, orgB, date(2025))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "INV-2025-00001" {
		t.Errorf("expected INV-2025-00001 for second org, got %s", num)
	}

	num, err = svc.NextInvoiceNumber(ctx, orgA, date(2025))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "INV-2025-00004" {
		t.Errorf("expected INV-2025-00004 for first org, got %s", num)
	}
}

func TestNextInvoiceNumber_YearRollover(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	orgID := id.New()

	for i := 0; i < 7; i++ {
		if _, err := svc.NextInvoiceNumber(ctx, orgID, date(2024)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// First claim in the new year resets the counter.
	num, err := svc.NextInvoiceNumber(ctx, orgID, date(2025))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "INV-2025-00001" {
		t.Errorf("expected INV-2025-00001 after rollover, got %s", num)
	}
}

func TestNextInvoiceNumber_ConcurrentUnique(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	orgID := id.New()

	const callers = 50
	results := make(chan string, callers)
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.NextInvoiceNumber(ctx, orgID, date(2025))
			if err != nil {
				errs <- err
				return
			}
			results <- num
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]bool)
	for num := range results {
		if seen[num] {
			t.Errorf("duplicate number issued: %s", num)
		}
		seen[num] = true
	}
	if len(seen) != callers {
		t.Errorf("expected %d distinct numbers, got %d", callers, len(seen))
	}
}

func TestNextInvoiceNumber_WithProvider(t *testing.T) {
	q := newMockQuerier()
	svc := NewWithProvider(func(ctx context.Context) Querier { return q })
	ctx := context.Background()

	num, err := svc.NextInvoiceNumber(ctx, id.New(), date(2025))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "INV-2025-00001" {
		t.Errorf("expected INV-2025-00001, got %s", num)
	}
	if q.calls != 1 {
		t.Errorf("expected 1 DB call, got %d", q.calls)
	}
}

func TestNextInvoiceNumber_CustomConfig(t *testing.T) {
	q := newMockQuerier()
	svc := New(q).WithConfig(corenum.Config{Prefix: "CN", PadWidth: 3})
	ctx := context.Background()

	num, err := svc.NextInvoiceNumber(ctx, id.New(), date(2025))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "CN-2025-001" {
		t.Errorf("expected CN-2025-001, got %s", num)
	}
}

func TestNextInvoiceNumber_NoQuerier(t *testing.T) {
	svc := &Service{}
	if _, err := svc.NextInvoiceNumber(context.Background(), id.New(), date(2025)); err == nil {
		t.Error("expected error when no querier configured")
	}
}

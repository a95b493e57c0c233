package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gymbill/internal/core/id"
)

// MockGenerator is a test implementation of Generator.
// Use in unit tests to avoid database dependencies. When no custom func is
// set it behaves like a real counter: per-organization, per-year, safe for
// concurrent use.
type MockGenerator struct {
	NextInvoiceNumberFunc func(ctx context.Context, organizationID id.ID, period time.Time) (string, error)

	mu       sync.Mutex
	counters map[string]int64
}

// NextInvoiceNumber implements Generator.
func (m *MockGenerator) NextInvoiceNumber(ctx context.Context, organizationID id.ID, period time.Time) (string, error) {
	if m.NextInvoiceNumberFunc != nil {
		return m.NextInvoiceNumberFunc(ctx, organizationID, period)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	key := fmt.Sprintf("%s:%d", organizationID, period.Year())
	m.counters[key]++
	return DefaultConfig().FormatNumber(period, m.counters[key]), nil
}

// Ensure compile-time interface compliance.
var _ Generator = (*MockGenerator)(nil)

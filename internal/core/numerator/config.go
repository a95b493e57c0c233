package numerator

import (
	"fmt"
	"time"
)

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g. "INV")
	Prefix string

	// PadWidth is the minimum sequence width (default 5)
	PadWidth int
}

// DefaultConfig returns the invoice numbering defaults.
// The resulting format, INV-{4-digit year}-{5-digit sequence}, is part of
// the external contract: it appears on documents and is searched by users.
func DefaultConfig() Config {
	return Config{
		Prefix:   "INV",
		PadWidth: 5,
	}
}

// FormatNumber renders the final number string, e.g. INV-2025-00042.
func (c Config) FormatNumber(period time.Time, seq int64) string {
	padWidth := c.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}
	return fmt.Sprintf("%s-%s-%0*d", c.Prefix, period.Format("2006"), padWidth, seq)
}

// ParseNumber extracts the numeric part from a formatted number.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	var num int64
	if _, err := fmt.Sscanf(formatted, "%*[^-]-%*d-%d", &num); err == nil {
		return num
	}
	return -1
}

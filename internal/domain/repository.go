// Package domain provides shared repository types for the billing domain.
package domain

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// Page holds pagination parameters common to all list filters.
type Page struct {
	// Limit caps result size (default 50, max 500)
	Limit int

	// Offset skips the first N matching rows
	Offset int
}

// Normalize clamps pagination to safe bounds.
func (p *Page) Normalize() {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

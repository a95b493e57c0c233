// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
)

// --- Pagination ---

// PaginationRequest contains pagination parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults sets default pagination values.
func (p *PaginationRequest) Defaults() {
	if p.Limit == 0 {
		p.Limit = 20
	}
}

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// --- Localized text ---

// LocalizedTextDTO carries a bilingual string pair.
type LocalizedTextDTO struct {
	En string `json:"en"`
	Ar string `json:"ar,omitempty"`
}

// ToLocalized converts to the domain value.
func (l LocalizedTextDTO) ToLocalized() types.LocalizedText {
	return types.LocalizedText{En: l.En, Ar: l.Ar}
}

// FromLocalized creates a DTO from the domain value.
func FromLocalized(t types.LocalizedText) LocalizedTextDTO {
	return LocalizedTextDTO{En: t.En, Ar: t.Ar}
}

// --- Money ---

// MoneyDTO carries an amount as a decimal string plus ISO currency code.
type MoneyDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// FromMoney creates a DTO from the domain value.
func FromMoney(m types.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount.StringFixed(2), Currency: m.Currency}
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- Deletion ---
type SetDeletionMarkRequest struct {
	Marked bool `json:"marked"`
}

package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/seedround/noteledger/internal/finance"
	"github.com/seedround/noteledger/internal/models"
)

// CreateNoteRequest is the request body for issuing a note.
type CreateNoteRequest struct {
	Principal      decimal.Decimal     `json:"principal" example:"100000" validate:"required"`
	InterestRate   decimal.Decimal     `json:"interest_rate" example:"0.06" validate:"required"`
	Compounding    finance.Compounding `json:"compounding" example:"SIMPLE" validate:"required"`
	IssuedAt       time.Time           `json:"issued_at,omitempty"`
	MaturityDate   time.Time           `json:"maturity_date" validate:"required"`
	DiscountRate   *decimal.Decimal    `json:"discount_rate,omitempty" example:"0.20"`
	ValuationCap   *decimal.Decimal    `json:"valuation_cap,omitempty" example:"5000000"`
	QFThreshold    *decimal.Decimal    `json:"qualified_financing_threshold,omitempty" example:"1000000"`
	AutoConversion bool                `json:"auto_conversion"`
}

// AccrualRequest is the request body for booking interest. A zero AsOf
// accrues up to now.
type AccrualRequest struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// ConversionRequest is the request body for converting a note.
type ConversionRequest struct {
	PricePerShare  decimal.Decimal  `json:"price_per_share" example:"1.00" validate:"required"`
	RoundValuation *decimal.Decimal `json:"round_valuation,omitempty" example:"8000000"`
	AsOf           time.Time        `json:"as_of,omitempty"`
}

// RepaymentRequest is the request body for repaying a note. Amount must cover
// the full payoff (principal plus booked interest).
type RepaymentRequest struct {
	Amount decimal.Decimal `json:"amount" example:"102958.90" validate:"required"`
}

// FinancingEventRequest is the request body for recording a financing round
// against a note.
type FinancingEventRequest struct {
	RoundAmount    decimal.Decimal  `json:"round_amount" example:"1500000" validate:"required"`
	PricePerShare  decimal.Decimal  `json:"price_per_share,omitempty" example:"1.00"`
	RoundValuation *decimal.Decimal `json:"round_valuation,omitempty" example:"8000000"`
	AsOf           time.Time        `json:"as_of,omitempty"`
}

// FinancingEventResponse reports the qualification verdict and the note state
// after processing the round.
type FinancingEventResponse struct {
	Qualified bool                    `json:"qualified"`
	Note      *models.ConvertibleNote `json:"note" validate:"required"`
}

// InterestResponse wraps an accrued interest projection.
type InterestResponse struct {
	NoteID          string          `json:"note_id" validate:"required"`
	AsOf            time.Time       `json:"as_of"`
	AccruedInterest decimal.Decimal `json:"accrued_interest" example:"2958.90"`
}

// ConversionQuote is the conversion preview response (aliased from the
// finance layer).
type ConversionQuote = finance.Quote

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.ConvertibleNote `json:"notes" validate:"required"`
	Total int                      `json:"total" example:"42" validate:"required"`
}

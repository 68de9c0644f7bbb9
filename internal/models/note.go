// Package models defines the convertible-note aggregate and its state machine.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/seedround/noteledger/internal/apperr"
	"github.com/seedround/noteledger/internal/finance"
)

// Status is the lifecycle state of a note. ACTIVE is the initial state;
// CONVERTED, REPAID, and DEFAULTED are terminal.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusConverted Status = "CONVERTED"
	StatusRepaid    Status = "REPAID"
	StatusDefaulted Status = "DEFAULTED"
)

// Terminal reports whether no further transitions leave this status.
func (s Status) Terminal() bool {
	return s == StatusConverted || s == StatusRepaid || s == StatusDefaulted
}

// ConvertibleNote is the ledger aggregate for a single note. Principal, rate,
// dates, and terms are fixed at issuance; accrued interest and status are
// mutated only through the methods below. Notes are never deleted.
type ConvertibleNote struct {
	ID              string              `json:"id"`
	Principal       decimal.Decimal     `json:"principal"`
	InterestRate    decimal.Decimal     `json:"interest_rate"`
	Compounding     finance.Compounding `json:"compounding"`
	IssuedAt        time.Time           `json:"issued_at"`
	MaturityDate    time.Time           `json:"maturity_date"`
	DiscountRate    *decimal.Decimal    `json:"discount_rate,omitempty"`
	ValuationCap    *decimal.Decimal    `json:"valuation_cap,omitempty"`
	QFThreshold     *decimal.Decimal    `json:"qualified_financing_threshold,omitempty"`
	AutoConversion  bool                `json:"auto_conversion"`
	AccruedInterest decimal.Decimal     `json:"accrued_interest"`
	LastAccrualDate time.Time           `json:"last_accrual_date"`
	Status          Status              `json:"status"`
	ConversionPrice *decimal.Decimal    `json:"conversion_price,omitempty"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// TotalAmount is principal plus interest accrued so far.
func (n *ConvertibleNote) TotalAmount() decimal.Decimal {
	return n.Principal.Add(n.AccruedInterest)
}

// AccruedAsOf projects total accrued interest as of the given date without
// mutating the note: booked interest plus the unbooked delta since
// LastAccrualDate. Dates at or before LastAccrualDate project the booked
// amount unchanged.
func (n *ConvertibleNote) AccruedAsOf(asOf time.Time) (decimal.Decimal, error) {
	if asOf.Before(n.IssuedAt) {
		return decimal.Zero, apperr.ErrInvalidAccrualDate
	}
	// Interest froze when the note left the ACTIVE state.
	if n.Status.Terminal() {
		return n.AccruedInterest, nil
	}
	delta := finance.Accrue(n.Principal, n.InterestRate, n.LastAccrualDate, asOf, n.Compounding)
	return n.AccruedInterest.Add(delta), nil
}

// Accrue books interest from LastAccrualDate up to asOf and advances
// LastAccrualDate by the whole days booked. Sub-day remainders stay on the
// accrual clock and are picked up by a later call, so frequent invocation
// never loses time. A target at or before LastAccrualDate is a no-op, which
// makes repeated invocation with the same date idempotent. Only ACTIVE notes
// accrue.
func (n *ConvertibleNote) Accrue(asOf time.Time) (decimal.Decimal, error) {
	if n.Status != StatusActive {
		return decimal.Zero, apperr.ErrInvalidStateTransition
	}
	if asOf.Before(n.IssuedAt) {
		return decimal.Zero, apperr.ErrInvalidAccrualDate
	}
	days := finance.DaysBetween(n.LastAccrualDate, asOf)
	if days == 0 {
		return decimal.Zero, nil
	}
	delta := finance.Accrue(n.Principal, n.InterestRate, n.LastAccrualDate, asOf, n.Compounding)
	n.AccruedInterest = n.AccruedInterest.Add(delta)
	n.LastAccrualDate = n.LastAccrualDate.AddDate(0, 0, int(days))
	return delta, nil
}

// ConversionQuote computes the conversion outcome at the given trigger price
// without transitioning state. Interest must already be accrued up to the
// trigger date; this method does not accrue.
func (n *ConvertibleNote) ConversionQuote(triggerPrice decimal.Decimal, roundValuation *decimal.Decimal) (finance.Quote, error) {
	terms := finance.ConversionTerms{DiscountRate: n.DiscountRate, ValuationCap: n.ValuationCap}
	return finance.Conversion(n.TotalAmount(), triggerPrice, terms, roundValuation)
}

// Convert transitions an ACTIVE note to CONVERTED, fixing its conversion
// price. The caller is responsible for accruing interest up to the conversion
// date first.
func (n *ConvertibleNote) Convert(triggerPrice decimal.Decimal, roundValuation *decimal.Decimal) (finance.Quote, error) {
	if n.Status != StatusActive {
		return finance.Quote{}, apperr.ErrInvalidStateTransition
	}
	quote, err := n.ConversionQuote(triggerPrice, roundValuation)
	if err != nil {
		return finance.Quote{}, err
	}
	price := quote.ConversionPrice
	n.ConversionPrice = &price
	n.Status = StatusConverted
	return quote, nil
}

// Repay transitions an ACTIVE note to REPAID. Partial repayment is not
// modeled: the amount must cover principal plus accrued interest in full.
func (n *ConvertibleNote) Repay(amount decimal.Decimal) error {
	if n.Status != StatusActive {
		return apperr.ErrInvalidStateTransition
	}
	required := n.TotalAmount()
	if amount.LessThan(required) {
		return &apperr.InsufficientRepaymentError{Required: required}
	}
	n.Status = StatusRepaid
	return nil
}

// MarkDefaulted transitions an ACTIVE note to DEFAULTED. Invoked by an
// operator once the maturity date has passed without repayment or conversion.
func (n *ConvertibleNote) MarkDefaulted() error {
	if n.Status != StatusActive {
		return apperr.ErrInvalidStateTransition
	}
	n.Status = StatusDefaulted
	return nil
}

// IsQualifiedFinancing reports whether a round of the given size crosses the
// note's qualified-financing threshold.
func (n *ConvertibleNote) IsQualifiedFinancing(roundAmount decimal.Decimal) bool {
	return finance.IsQualified(n.QFThreshold, roundAmount)
}

// Overdue reports whether the note is past maturity at now.
func (n *ConvertibleNote) Overdue(now time.Time) bool {
	return now.After(n.MaturityDate)
}

// MaturesWithin reports whether the maturity date falls inside the advisory
// window [now, now+window]. Overdue notes are excluded; they get their own
// signal.
func (n *ConvertibleNote) MaturesWithin(now time.Time, window time.Duration) bool {
	return !n.Overdue(now) && !n.MaturityDate.After(now.Add(window))
}

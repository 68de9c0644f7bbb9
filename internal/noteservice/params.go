package noteservice

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/seedround/noteledger/internal/finance"
)

// CreateParams holds the terms of a note to issue. A zero IssuedAt means the
// note is issued now.
type CreateParams struct {
	Principal      decimal.Decimal
	InterestRate   decimal.Decimal
	Compounding    finance.Compounding
	IssuedAt       time.Time
	MaturityDate   time.Time
	DiscountRate   *decimal.Decimal
	ValuationCap   *decimal.Decimal
	QFThreshold    *decimal.Decimal
	AutoConversion bool
}

// Validate validates the note terms. The issuance/maturity ordering is
// checked at creation time, once the effective issuance date is known.
func (p CreateParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Principal, validation.By(positiveDecimal)),
		validation.Field(&p.InterestRate, validation.By(nonNegativeDecimal)),
		validation.Field(&p.Compounding, validation.Required, validation.In(finance.CompoundingSimple, finance.CompoundingCompound)),
		validation.Field(&p.DiscountRate, validation.By(optionalFraction)),
		validation.Field(&p.ValuationCap, validation.By(optionalPositive)),
		validation.Field(&p.QFThreshold, validation.By(optionalPositive)),
	)
}

func positiveDecimal(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal amount")
	}
	if d.Sign() <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func nonNegativeDecimal(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal amount")
	}
	if d.Sign() < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

func optionalPositive(value any) error {
	d, ok := value.(*decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal amount")
	}
	if d == nil {
		return nil
	}
	if d.Sign() <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

// optionalFraction accepts nil or a decimal in [0, 1).
func optionalFraction(value any) error {
	d, ok := value.(*decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal rate")
	}
	if d == nil {
		return nil
	}
	if d.Sign() < 0 || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("must be at least 0 and below 1")
	}
	return nil
}

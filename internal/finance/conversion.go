package finance

import (
	"github.com/seedround/noteledger/internal/apperr"
	"github.com/shopspring/decimal"
)

// Quote is the outcome of a conversion computation.
type Quote struct {
	ConversionPrice decimal.Decimal `json:"conversion_price"`
	Shares          int64           `json:"shares"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// ConversionTerms are the note terms that influence the conversion price.
// DiscountRate and ValuationCap are optional; a nil field means the term is
// absent from the note.
type ConversionTerms struct {
	DiscountRate *decimal.Decimal
	ValuationCap *decimal.Decimal
}

// Conversion computes the price and whole-share count for converting
// totalAmount (principal plus accrued interest) at a financing round priced at
// triggerPrice per share. Every applicable candidate price is computed and the
// minimum is taken: the lower price yields more shares and is the
// noteholder-favorable outcome.
//
// roundValuation is required when a valuation cap is present; it is ignored
// otherwise. Fractional shares are not issued, so the share count is rounded
// down.
func Conversion(totalAmount, triggerPrice decimal.Decimal, terms ConversionTerms, roundValuation *decimal.Decimal) (Quote, error) {
	if triggerPrice.Sign() <= 0 {
		return Quote{}, apperr.ErrInvalidConversionInput
	}

	candidates := []decimal.Decimal{}
	if terms.DiscountRate != nil {
		candidates = append(candidates, triggerPrice.Mul(one.Sub(*terms.DiscountRate)))
	}
	if terms.ValuationCap != nil {
		if roundValuation == nil || roundValuation.Sign() <= 0 {
			return Quote{}, apperr.ErrInvalidConversionInput
		}
		// cap price = valuationCap * triggerPrice / roundValuation
		candidates = append(candidates, terms.ValuationCap.Mul(triggerPrice).Div(*roundValuation))
	}

	price := triggerPrice
	for _, c := range candidates {
		if c.LessThan(price) {
			price = c
		}
	}
	if price.Sign() <= 0 {
		return Quote{}, apperr.ErrInvalidConversionInput
	}

	// QuoRem truncates; Div rounds and can cross a whole-share boundary,
	// which would issue shares worth more than totalAmount.
	wholeShares, _ := totalAmount.QuoRem(price, 0)

	return Quote{
		ConversionPrice: price,
		Shares:          wholeShares.IntPart(),
		TotalAmount:     totalAmount,
	}, nil
}

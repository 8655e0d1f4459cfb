package settlement

import (
	"djhub-api/res/money"

	"github.com/shopspring/decimal"
)

var hundredPercent = decimal.NewFromInt(100)

// PayoutOverride lets an admin pay out something other than the DJ's configured split
type PayoutOverride struct {
	Amount     *int64           `json:"amount,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
}

// ResolvePayout picks the payout amount: explicit amount, then explicit percentage,
// then the DJ's split percentage, all against the quoted price.
func ResolvePayout(quoted money.Money, override PayoutOverride, splitPercentage decimal.Decimal) (money.Money, error) {
	var amount money.Money

	switch {
	case override.Amount != nil:
		amount = money.New(*override.Amount, quoted.Currency)
	case override.Percentage != nil:
		if err := checkPercentage(*override.Percentage); err != nil {
			return money.Money{}, err
		}
		amount = quoted.Percent(*override.Percentage)
	default:
		if err := checkPercentage(splitPercentage); err != nil {
			return money.Money{}, err
		}
		amount = quoted.Percent(splitPercentage)
	}

	if !amount.IsPositive() {
		return money.Money{}, validationError("Payout amount must be greater than zero")
	}
	if amount.GreaterThan(quoted) {
		return money.Money{}, validationError("Payout amount %s cannot exceed the quoted price %s", amount, quoted)
	}
	return amount, nil
}

func checkPercentage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundredPercent) {
		return validationError("Payout percentage must be between 0 and 100")
	}
	return nil
}

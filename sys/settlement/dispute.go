package settlement

import (
	"djhub-api/res/money"
	"djhub-api/res/store"

	"github.com/shopspring/decimal"
)

type ResolutionKind string

const (
	ResolutionRefundClient  ResolutionKind = "REFUND_CLIENT"
	ResolutionPayProvider   ResolutionKind = "PAY_PROVIDER"
	ResolutionPartialRefund ResolutionKind = "PARTIAL_REFUND"
	ResolutionSplit         ResolutionKind = "SPLIT"
)

func (k ResolutionKind) Valid() bool {
	switch k {
	case ResolutionRefundClient, ResolutionPayProvider, ResolutionPartialRefund, ResolutionSplit:
		return true
	}
	return false
}

// ResolutionPlan is the money movement a dispute resolution requires.
// Zero legs are skipped.
type ResolutionPlan struct {
	Kind   ResolutionKind     `json:"kind"`
	Refund money.Money        `json:"refund"`
	Payout money.Money        `json:"payout"`
	Escrow store.EscrowStatus `json:"escrow"`
}

// PlanResolution computes both legs of a resolution against the quoted price.
// For SPLIT each side gets the floor of half; an odd cent stays with the platform.
func PlanResolution(quoted money.Money, kind ResolutionKind, refundAmount *int64, platformFeePercentage decimal.Decimal) (ResolutionPlan, error) {
	plan := ResolutionPlan{
		Kind:   kind,
		Refund: money.Zero(quoted.Currency),
		Payout: money.Zero(quoted.Currency),
	}

	switch kind {
	case ResolutionRefundClient:
		plan.Refund = quoted
		plan.Escrow = store.EscrowStatusRefunded

	case ResolutionPayProvider:
		fee := quoted.Percent(platformFeePercentage)
		plan.Payout = money.New(quoted.Amount-fee.Amount, quoted.Currency)
		plan.Escrow = store.EscrowStatusReleased
		if !plan.Payout.IsPositive() {
			return ResolutionPlan{}, validationError("Platform fee leaves nothing to pay out")
		}

	case ResolutionPartialRefund:
		if refundAmount == nil {
			return ResolutionPlan{}, validationError("Refund amount is required for a partial refund")
		}
		if *refundAmount <= 0 || *refundAmount >= quoted.Amount {
			return ResolutionPlan{}, validationError("Partial refund must be greater than zero and less than the quoted price %s", quoted)
		}
		plan.Refund = money.New(*refundAmount, quoted.Currency)
		plan.Payout = money.New(quoted.Amount-*refundAmount, quoted.Currency)
		plan.Escrow = store.EscrowStatusReleased

	case ResolutionSplit:
		plan.Refund = quoted.Half()
		plan.Payout = quoted.Half()
		plan.Escrow = store.EscrowStatusReleased

	default:
		return ResolutionPlan{}, validationError("Unknown resolution kind %q", kind)
	}

	return plan, nil
}

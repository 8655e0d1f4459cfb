package settlement

import (
	"djhub-api/res/money"
	"djhub-api/res/store"
)

// Ledger is the escrow view of a booking: quoted = held + paid out + refunded
type Ledger struct {
	Quoted   money.Money        `json:"quoted"`
	PaidOut  money.Money        `json:"paidOut"`
	Refunded money.Money        `json:"refunded"`
	Held     money.Money        `json:"held"`
	Status   store.EscrowStatus `json:"status"`
}

func LedgerOf(b *store.Booking) Ledger {
	quoted, paidOut, refunded := b.Quoted(), b.PaidOut(), b.Refunded()
	return Ledger{
		Quoted:   quoted,
		PaidOut:  paidOut,
		Refunded: refunded,
		Held:     money.New(quoted.Amount-paidOut.Amount-refunded.Amount, quoted.Currency),
		Status:   b.EscrowStatus,
	}
}

// Allow checks that moving refund and payout out of escrow keeps
// refunded + paid out within the quoted price
func (l Ledger) Allow(refund, payout money.Money) error {
	if refund.IsNegative() || payout.IsNegative() {
		return validationError("Settlement amounts cannot be negative")
	}
	if refund.Currency != l.Quoted.Currency || payout.Currency != l.Quoted.Currency {
		return validationError("Settlement currency must be %s", l.Quoted.Currency)
	}
	if refund.Amount+payout.Amount > l.Held.Amount {
		return validationError("Settlement of %s exceeds the %s held in escrow",
			money.New(refund.Amount+payout.Amount, l.Quoted.Currency), l.Held)
	}
	return nil
}

func applyPayout(b *store.Booking, amount money.Money, reference string) {
	total := b.PaidOut().Amount + amount.Amount
	b.PayoutAmount = &total
	b.PayoutReference = &reference
	b.PayoutStatus = store.PayoutStatusCompleted
	b.EscrowStatus = store.EscrowStatusReleased
}

func applyRefund(b *store.Booking, amount money.Money, reference string) {
	total := b.Refunded().Amount + amount.Amount
	b.RefundAmount = &total
	b.RefundReference = &reference
	if b.PayoutStatus != store.PayoutStatusCompleted {
		b.EscrowStatus = store.EscrowStatusRefunded
	}
}

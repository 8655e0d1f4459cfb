package settlement

import (
	"context"
	"strings"

	"djhub-api/res/money"
	"djhub-api/res/store"
)

// LedgerView is the escrow ledger of a booking with its recorded money movements
type LedgerView struct {
	BookingID    string               `json:"bookingId"`
	Ledger       Ledger               `json:"ledger"`
	Pending      string               `json:"pendingSettlement,omitempty"`
	Transactions []*store.Transaction `json:"transactions"`
}

// ReconcileResult reports what the processor knew about each pending leg
type ReconcileResult struct {
	Booking *store.Booking    `json:"booking"`
	Legs    map[string]string `json:"legs"` // leg -> processor reference, empty when it never happened
}

// ProcessPayout transfers the DJ's share of a paid, finished booking
func (e *Engine) ProcessPayout(ctx context.Context, bookingID string, override PayoutOverride) (booking *store.Booking, err error) {
	ctx, span := e.startSpan(ctx, "ProcessPayout", bookingID)
	defer func() { endSpan(span, err) }()

	actorID, err := e.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	var provider *store.StaffProfile
	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		b, err := e.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if _, err := Guard(b, ActionProcessPayout); err != nil {
			return err
		}
		if err := e.requireEventOver(b, "Event must be completed before processing payout"); err != nil {
			return err
		}
		provider, err = e.payoutDestination(ctx, tx, b)
		if err != nil {
			return err
		}

		amount, err := ResolvePayout(b.Quoted(), override, e.splitFor(provider))
		if err != nil {
			return err
		}
		if err := LedgerOf(b).Allow(money.Zero(b.Currency), amount); err != nil {
			return err
		}

		transfer, err := e.transfer(ctx, b, *provider.PaymentAccountID, amount, legPayout)
		if err != nil {
			return err
		}

		now := e.now()
		applyPayout(b, amount, transfer.ID)
		b.PayoutAt = &now
		booking = b
		return e.persistSettled(ctx, tx, b, actorID, "booking.payout", map[string]interface{}{
			"staffId":  provider.ID,
			"amount":   moneyDetails(amount),
			"transfer": transfer.ID,
		}, movement{leg: legPayout, kind: store.TransactionTypePayout, amount: amount, reference: transfer.ID})
	})
	if err != nil {
		return nil, e.settleFailure(ctx, bookingID, err)
	}

	e.notify(ctx, provider.UserID, "payout.completed", map[string]interface{}{
		"bookingId": booking.ID,
		"amount":    moneyDetails(booking.PaidOut()),
	})
	return booking, nil
}

// ProcessRefund refunds the client from escrow. amount defaults to everything still held.
// Refunding a booking that has not happened yet cancels it.
func (e *Engine) ProcessRefund(ctx context.Context, bookingID string, amount *int64, reason string) (booking *store.Booking, err error) {
	ctx, span := e.startSpan(ctx, "ProcessRefund", bookingID)
	defer func() { endSpan(span, err) }()

	actorID, err := e.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		b, err := e.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		next, err := Guard(b, ActionProcessRefund)
		if err != nil {
			return err
		}

		ledger := LedgerOf(b)
		refundAmount := ledger.Held
		if amount != nil {
			refundAmount = money.New(*amount, b.Currency)
		}
		if !refundAmount.IsPositive() {
			return validationError("Refund amount must be greater than zero")
		}
		if err := ledger.Allow(refundAmount, money.Zero(b.Currency)); err != nil {
			return err
		}

		paymentRef, err := e.paymentReference(ctx, b)
		if err != nil {
			return err
		}
		refund, err := e.refund(ctx, b, paymentRef, refundAmount, reason, legRefund)
		if err != nil {
			return err
		}

		now := e.now()
		applyRefund(b, refundAmount, refund.ID)
		b.RefundedAt = &now
		if next != b.Status {
			b.Status = next
			b.CancelledAt = &now
			b.CancellationReason = reason
		}
		booking = b
		return e.persistSettled(ctx, tx, b, actorID, "booking.refund", map[string]interface{}{
			"amount": moneyDetails(refundAmount),
			"refund": refund.ID,
			"reason": reason,
		}, movement{leg: legRefund, kind: store.TransactionTypeRefund, amount: refundAmount, reference: refund.ID})
	})
	if err != nil {
		return nil, e.settleFailure(ctx, bookingID, err)
	}

	e.notify(ctx, booking.ClientID, "refund.completed", map[string]interface{}{
		"bookingId": booking.ID,
		"amount":    moneyDetails(booking.Refunded()),
	})
	return booking, nil
}

// ReconcileBooking resolves legs left with an unknown outcome. Each leg is looked up by its
// idempotency key: found legs are recorded as if the original call had succeeded, missing
// ones are dropped so the operation can be retried.
func (e *Engine) ReconcileBooking(ctx context.Context, bookingID string) (result *ReconcileResult, err error) {
	ctx, span := e.startSpan(ctx, "ReconcileBooking", bookingID)
	defer func() { endSpan(span, err) }()

	actorID, err := e.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		b, err := e.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		result = &ReconcileResult{Booking: b, Legs: map[string]string{}}
		if b.PendingSettlement == "" {
			return nil
		}

		var movements []movement
		for _, leg := range strings.Split(b.PendingSettlement, ",") {
			m, err := e.reconcileLeg(ctx, tx, b, leg)
			if err != nil {
				return err
			}
			if m != nil {
				movements = append(movements, *m)
				result.Legs[leg] = m.reference
			} else {
				result.Legs[leg] = ""
			}
		}

		details := map[string]interface{}{"legs": result.Legs}
		b.PendingSettlement = ""
		return e.persistSettled(ctx, tx, b, actorID, "booking.reconciled", details, movements...)
	})
	if err != nil {
		return nil, e.settleFailure(ctx, bookingID, err)
	}
	return result, nil
}

// reconcileLeg applies a leg the processor did carry out. Returns nil when it did not.
func (e *Engine) reconcileLeg(ctx context.Context, tx store.Store, b *store.Booking, leg string) (*movement, error) {
	key := idempotencyKey(b.ID, leg)
	now := e.now()

	switch leg {
	case legPayout, legDisputePayout:
		transfer, err := e.processor.FindTransfer(ctx, key)
		if err != nil {
			e.logger.Printf("Error looking up transfer %s: %s", key, err)
			return nil, processorError("Could not look up the transfer with the processor", err)
		}
		if transfer == nil {
			e.logger.Printf("Transfer %s not found at the processor; clearing pending flag", key)
			return nil, nil
		}
		amount := money.New(transfer.Amount, b.Currency)
		applyPayout(b, amount, transfer.ID)
		b.PayoutAt = &now
		holdWhileDisputed(b)
		return &movement{leg: leg, kind: store.TransactionTypePayout, amount: amount, reference: transfer.ID}, nil

	case legRefund, legDisputeRefund:
		paymentReference, err := e.paymentReference(ctx, b)
		if err != nil {
			return nil, err
		}
		refund, err := e.processor.FindRefund(ctx, paymentReference, key)
		if err != nil {
			e.logger.Printf("Error looking up refund %s: %s", key, err)
			return nil, processorError("Could not look up the refund with the processor", err)
		}
		if refund == nil {
			e.logger.Printf("Refund %s not found at the processor; clearing pending flag", key)
			return nil, nil
		}
		amount := money.New(refund.Amount, b.Currency)
		applyRefund(b, amount, refund.ID)
		b.RefundedAt = &now
		holdWhileDisputed(b)
		if leg == legRefund {
			if next, ok := NextStatus(b.Status, ActionProcessRefund); ok && next != b.Status {
				b.Status = next
				b.CancelledAt = &now
			}
		}
		return &movement{leg: leg, kind: store.TransactionTypeRefund, amount: amount, reference: refund.ID}, nil
	}

	return nil, conflictError("Unknown pending settlement leg %q", leg)
}

// Ledger returns the escrow ledger of a booking
func (e *Engine) Ledger(ctx context.Context, bookingID string) (view *LedgerView, err error) {
	ctx, span := e.startSpan(ctx, "Ledger", bookingID)
	defer func() { endSpan(span, err) }()

	if _, err := e.gate.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	b, err := e.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	transactions, err := e.store.Transactions().ListByBooking(ctx, b.ID)
	if err != nil {
		e.logger.Printf("Error listing transactions of booking %s: %s", b.ID, err)
		return nil, err
	}
	return &LedgerView{
		BookingID:    b.ID,
		Ledger:       LedgerOf(b),
		Pending:      b.PendingSettlement,
		Transactions: transactions,
	}, nil
}

// holdWhileDisputed keeps escrow HELD until a partially settled dispute is resolved
func holdWhileDisputed(b *store.Booking) {
	if b.DisputeStatus == store.DisputeStatusOpen {
		b.EscrowStatus = store.EscrowStatusHeld
	}
}

// payoutDestination loads the assigned DJ and checks they can receive transfers
func (e *Engine) payoutDestination(ctx context.Context, tx store.Store, b *store.Booking) (*store.StaffProfile, error) {
	if b.ProviderID == nil {
		return nil, conflictError("Booking has no assigned DJ")
	}
	provider, err := e.getStaff(ctx, tx.StaffProfiles(), *b.ProviderID, false)
	if err != nil {
		return nil, err
	}
	if provider.PaymentAccountID == nil || !provider.PaymentAccountEnabled {
		return nil, conflictError("DJ payout account is not enabled")
	}
	return provider, nil
}

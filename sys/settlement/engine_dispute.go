package settlement

import (
	"context"
	"errors"
	"strings"

	"djhub-api/res/money"
	"djhub-api/res/store"
)

// DisputeResolution is an admin's decision on an open dispute
type DisputeResolution struct {
	Kind         ResolutionKind `json:"kind"`
	RefundAmount *int64         `json:"refundAmount,omitempty"` // PARTIAL_REFUND only
	Notes        string         `json:"notes,omitempty"`
}

// OpenDispute freezes the funds of a paid booking until the dispute is resolved
func (e *Engine) OpenDispute(ctx context.Context, bookingID, reason string) (booking *store.Booking, err error) {
	ctx, span := e.startSpan(ctx, "OpenDispute", bookingID)
	defer func() { endSpan(span, err) }()

	actorID, err := e.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("Dispute reason is required")
	}

	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		b, err := e.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if _, err := Guard(b, ActionOpenDispute); err != nil {
			return err
		}

		now := e.now()
		b.DisputeStatus = store.DisputeStatusOpen
		b.DisputeReason = reason
		b.DisputeOpenedAt = &now
		if err := e.saveBooking(ctx, tx, b); err != nil {
			return err
		}
		booking = b
		return e.audit(ctx, tx, actorID, "dispute.opened", b.ID, map[string]interface{}{"reason": reason})
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"bookingId": booking.ID, "reason": reason}
	e.notify(ctx, booking.ClientID, "dispute.opened", payload)
	e.notifyProvider(ctx, booking.ProviderID, "dispute.opened", payload)
	return booking, nil
}

// ResolveDispute settles an open dispute. The refund leg runs before the payout leg.
// When the payout leg fails after the refund went through, the refund is recorded, the
// dispute stays open and calling again with the same resolution finishes the payout.
func (e *Engine) ResolveDispute(ctx context.Context, bookingID string, resolution DisputeResolution) (booking *store.Booking, err error) {
	ctx, span := e.startSpan(ctx, "ResolveDispute", bookingID)
	defer func() { endSpan(span, err) }()

	actorID, err := e.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if !resolution.Kind.Valid() {
		return nil, validationError("Unknown resolution kind %q", resolution.Kind)
	}

	var legErr error
	var provider *store.StaffProfile
	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		b, err := e.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		next, err := Guard(b, ActionResolveDispute)
		if err != nil {
			return err
		}

		plan, err := PlanResolution(b.Quoted(), resolution.Kind, resolution.RefundAmount, e.settings.PlatformFeePercentage)
		if err != nil {
			return err
		}
		if b.DisputeResolution != nil && *b.DisputeResolution != string(plan.Kind) {
			return conflictError("Dispute is already being resolved as %s", *b.DisputeResolution)
		}

		refund, payout, err := remainingLegs(b, plan)
		if err != nil {
			return err
		}
		if err := LedgerOf(b).Allow(refund, payout); err != nil {
			return err
		}

		var paymentRef string
		if refund.IsPositive() {
			if paymentRef, err = e.paymentReference(ctx, b); err != nil {
				return err
			}
		}
		if payout.IsPositive() {
			if provider, err = e.payoutDestination(ctx, tx, b); err != nil {
				return err
			}
		}

		kind := string(plan.Kind)
		b.DisputeResolution = &kind
		now := e.now()
		var done []movement

		if refund.IsPositive() {
			r, err := e.refund(ctx, b, paymentRef, refund, resolution.Notes, legDisputeRefund)
			if err != nil {
				return err
			}
			applyRefund(b, refund, r.ID)
			b.RefundedAt = &now
			done = append(done, movement{leg: legDisputeRefund, kind: store.TransactionTypeRefund, amount: refund, reference: r.ID})
		}

		if payout.IsPositive() {
			t, err := e.transfer(ctx, b, *provider.PaymentAccountID, payout, legDisputePayout)
			switch {
			case err != nil && len(done) == 0:
				return err
			case err != nil:
				legErr = err
			default:
				applyPayout(b, payout, t.ID)
				b.PayoutAt = &now
				done = append(done, movement{leg: legDisputePayout, kind: store.TransactionTypePayout, amount: payout, reference: t.ID})
			}
		}

		details := map[string]interface{}{
			"kind":   kind,
			"refund": moneyDetails(plan.Refund),
			"payout": moneyDetails(plan.Payout),
		}
		if resolution.Notes != "" {
			details["notes"] = resolution.Notes
		}

		action := "dispute.resolved"
		var unknownLeg *reconcileRequired
		if legErr != nil {
			action = "dispute.leg_completed"
			b.EscrowStatus = store.EscrowStatusHeld
			if errors.As(legErr, &unknownLeg) {
				b.PendingSettlement = strings.Join(unknownLeg.legs, ",")
			}
		} else {
			b.DisputeStatus = store.DisputeStatusResolved
			b.DisputeResolvedAt = &now
			b.EscrowStatus = plan.Escrow
			b.Status = next
		}
		booking = b

		err = e.persistSettled(ctx, tx, b, actorID, action, details, done...)
		var pending *reconcileRequired
		if unknownLeg != nil && errors.As(err, &pending) {
			pending.legs = append(pending.legs, unknownLeg.legs...)
		}
		return err
	})
	if err != nil {
		return nil, e.settleFailure(ctx, bookingID, err)
	}

	if legErr != nil {
		var unknownLeg *reconcileRequired
		if errors.As(legErr, &unknownLeg) {
			return nil, unknownLeg.surface()
		}
		return nil, legErr
	}

	payload := map[string]interface{}{
		"bookingId":  booking.ID,
		"resolution": resolution.Kind,
		"refund":     moneyDetails(booking.Refunded()),
		"payout":     moneyDetails(booking.PaidOut()),
	}
	e.notify(ctx, booking.ClientID, "dispute.resolved", payload)
	if provider != nil {
		e.notify(ctx, provider.UserID, "dispute.resolved", payload)
	} else {
		e.notifyProvider(ctx, booking.ProviderID, "dispute.resolved", payload)
	}
	return booking, nil
}

// remainingLegs subtracts legs already carried out by an earlier attempt from the plan.
// A completed leg must match the plan exactly.
func remainingLegs(b *store.Booking, plan ResolutionPlan) (refund, payout money.Money, err error) {
	refund, payout = plan.Refund, plan.Payout

	if b.RefundReference != nil {
		if b.Refunded() != plan.Refund {
			return money.Money{}, money.Money{}, conflictError("A refund of %s was already made for this dispute", b.Refunded())
		}
		refund = money.Zero(b.Currency)
	}
	if b.PayoutReference != nil {
		if b.PaidOut() != plan.Payout {
			return money.Money{}, money.Money{}, conflictError("A payout of %s was already made for this dispute", b.PaidOut())
		}
		payout = money.Zero(b.Currency)
	}
	return refund, payout, nil
}

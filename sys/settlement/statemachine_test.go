package settlement

import (
	"errors"
	"testing"

	"djhub-api/res/store"
)

func strPtr(s string) *string { return &s }

func paidConfirmedBooking() *store.Booking {
	return &store.Booking{
		ID:            "bk_1",
		ProviderID:    strPtr("stf_1"),
		QuotedPrice:   50000,
		Currency:      "USD",
		Status:        store.BookingStatusConfirmed,
		IsPaid:        true,
		EscrowStatus:  store.EscrowStatusHeld,
		PayoutStatus:  store.PayoutStatusNone,
		DisputeStatus: store.DisputeStatusNone,
	}
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if KindOf(err) != kind {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from   store.BookingStatus
		action Action
		next   store.BookingStatus
		ok     bool
	}{
		{store.BookingStatusPendingReview, ActionBeginReview, store.BookingStatusAdminReviewing, true},
		{store.BookingStatusAdminReviewing, ActionAssignStaff, store.BookingStatusStaffAssigned, true},
		{store.BookingStatusStaffAssigned, ActionMarkPaid, store.BookingStatusConfirmed, true},
		{store.BookingStatusPendingReview, ActionMarkPaid, store.BookingStatusPendingReview, true},
		{store.BookingStatusConfirmed, ActionComplete, store.BookingStatusCompleted, true},
		{store.BookingStatusConfirmed, ActionProcessRefund, store.BookingStatusCancelled, true},
		{store.BookingStatusCompleted, ActionProcessRefund, store.BookingStatusCompleted, true},
		{store.BookingStatusCancelled, ActionResolveDispute, store.BookingStatusCancelled, true},
		{store.BookingStatusCompleted, ActionCancel, "", false},
		{store.BookingStatusCancelled, ActionAssignStaff, "", false},
		{store.BookingStatusStaffAssigned, ActionProcessPayout, "", false},
		{store.BookingStatusPendingReview, ActionOpenDispute, "", false},
		{store.BookingStatusAdminReviewing, ActionBeginReview, "", false},
	}

	for _, c := range cases {
		next, ok := NextStatus(c.from, c.action)
		if ok != c.ok || next != c.next {
			t.Fatalf("NextStatus(%s, %s) = %s, %v; want %s, %v", c.from, c.action, next, ok, c.next, c.ok)
		}
	}
}

func TestTerminalStatusesOnlyAllowSettlement(t *testing.T) {
	lifecycle := []Action{ActionBeginReview, ActionAssignStaff, ActionMarkPaid, ActionComplete, ActionCancel}
	for _, status := range []store.BookingStatus{store.BookingStatusCompleted, store.BookingStatusCancelled} {
		for _, action := range lifecycle {
			if _, ok := NextStatus(status, action); ok {
				t.Fatalf("%s must not allow %s", status, action)
			}
		}
	}
}

func TestGuardAssignPaidBookingConfirms(t *testing.T) {
	b := paidConfirmedBooking()
	b.Status = store.BookingStatusAdminReviewing

	next, err := Guard(b, ActionAssignStaff)
	if err != nil {
		t.Fatalf("Guard: %v", err)
	}
	if next != store.BookingStatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", next)
	}
}

func TestGuardPayout(t *testing.T) {
	b := paidConfirmedBooking()
	if _, err := Guard(b, ActionProcessPayout); err != nil {
		t.Fatalf("payout of a paid confirmed booking should pass: %v", err)
	}

	b.PayoutStatus = store.PayoutStatusCompleted
	_, err := Guard(b, ActionProcessPayout)
	requireKind(t, err, KindStateConflict)
	if ReasonOf(err) != "Payout has already been processed for this booking" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}

	b = paidConfirmedBooking()
	b.IsPaid = false
	_, err = Guard(b, ActionProcessPayout)
	requireKind(t, err, KindStateConflict)

	b = paidConfirmedBooking()
	b.Status = store.BookingStatusStaffAssigned
	_, err = Guard(b, ActionProcessPayout)
	if ReasonOf(err) != "Booking must be confirmed before processing payout" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}

	b = paidConfirmedBooking()
	b.ProviderID = nil
	_, err = Guard(b, ActionProcessPayout)
	requireKind(t, err, KindStateConflict)
}

func TestGuardRefundOnce(t *testing.T) {
	b := paidConfirmedBooking()
	b.RefundReference = strPtr("rfnd_1")

	_, err := Guard(b, ActionProcessRefund)
	if ReasonOf(err) != "Booking has already been refunded" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}

func TestGuardOpenDisputeBlocksDirectSettlement(t *testing.T) {
	b := paidConfirmedBooking()
	b.DisputeStatus = store.DisputeStatusOpen

	for _, action := range []Action{ActionProcessPayout, ActionProcessRefund, ActionCancel, ActionOpenDispute} {
		_, err := Guard(b, action)
		requireKind(t, err, KindStateConflict)
	}
	if _, err := Guard(b, ActionResolveDispute); err != nil {
		t.Fatalf("resolving an open dispute should pass: %v", err)
	}
}

func TestGuardDisputeRequiresUnsettledFunds(t *testing.T) {
	b := paidConfirmedBooking()
	b.PayoutStatus = store.PayoutStatusCompleted

	_, err := Guard(b, ActionOpenDispute)
	if ReasonOf(err) != "Funds for this booking have already been settled" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}

	b = paidConfirmedBooking()
	_, err = Guard(b, ActionResolveDispute)
	if ReasonOf(err) != "Dispute is not open" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}
}

func TestGuardPendingSettlementBlocksMoneyMovement(t *testing.T) {
	b := paidConfirmedBooking()
	b.PendingSettlement = legPayout

	for _, action := range []Action{ActionProcessPayout, ActionProcessRefund} {
		_, err := Guard(b, action)
		requireKind(t, err, KindStateConflict)
	}
	if _, err := Guard(b, ActionOpenDispute); err != nil {
		t.Fatalf("opening a dispute moves no money and should pass: %v", err)
	}
}

func TestGuardCancelledBooking(t *testing.T) {
	b := paidConfirmedBooking()
	b.Status = store.BookingStatusCancelled

	_, err := Guard(b, ActionProcessPayout)
	if ReasonOf(err) != "Booking is cancelled" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}
	if _, err := Guard(b, ActionProcessRefund); err != nil {
		t.Fatalf("a cancelled paid booking can still be refunded: %v", err)
	}
}

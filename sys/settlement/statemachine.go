package settlement

import (
	"djhub-api/res/store"
)

// Action is an operation that may change a booking's status or settlement flags
type Action string

const (
	ActionBeginReview    Action = "BEGIN_REVIEW"
	ActionAssignStaff    Action = "ASSIGN_STAFF"
	ActionMarkPaid       Action = "MARK_PAID"
	ActionComplete       Action = "COMPLETE"
	ActionCancel         Action = "CANCEL"
	ActionOpenDispute    Action = "OPEN_DISPUTE"
	ActionResolveDispute Action = "RESOLVE_DISPUTE"
	ActionProcessPayout  Action = "PROCESS_PAYOUT"
	ActionProcessRefund  Action = "PROCESS_REFUND"
)

type transitionKey struct {
	from   store.BookingStatus
	action Action
}

const (
	pendingReview  = store.BookingStatusPendingReview
	adminReviewing = store.BookingStatusAdminReviewing
	staffAssigned  = store.BookingStatusStaffAssigned
	confirmed      = store.BookingStatusConfirmed
	completed      = store.BookingStatusCompleted
	cancelled      = store.BookingStatusCancelled
)

// transitions maps (current status, action) to the next status.
// A missing entry means the action is not allowed from that status.
var transitions = map[transitionKey]store.BookingStatus{
	{pendingReview, ActionBeginReview}: adminReviewing,

	{pendingReview, ActionAssignStaff}:  staffAssigned,
	{adminReviewing, ActionAssignStaff}: staffAssigned,
	{staffAssigned, ActionAssignStaff}:  staffAssigned,
	{confirmed, ActionAssignStaff}:      confirmed,

	{pendingReview, ActionMarkPaid}:  pendingReview,
	{adminReviewing, ActionMarkPaid}: adminReviewing,
	{staffAssigned, ActionMarkPaid}:  confirmed,

	{confirmed, ActionComplete}: completed,

	{pendingReview, ActionCancel}:  cancelled,
	{adminReviewing, ActionCancel}: cancelled,
	{staffAssigned, ActionCancel}:  cancelled,
	{confirmed, ActionCancel}:      cancelled,

	{confirmed, ActionOpenDispute}: confirmed,
	{completed, ActionOpenDispute}: completed,

	{confirmed, ActionResolveDispute}: confirmed,
	{completed, ActionResolveDispute}: completed,
	{cancelled, ActionResolveDispute}: cancelled,

	{confirmed, ActionProcessPayout}: confirmed,
	{completed, ActionProcessPayout}: completed,

	{pendingReview, ActionProcessRefund}:  cancelled,
	{adminReviewing, ActionProcessRefund}: cancelled,
	{staffAssigned, ActionProcessRefund}:  cancelled,
	{confirmed, ActionProcessRefund}:      cancelled,
	{completed, ActionProcessRefund}:      completed,
	{cancelled, ActionProcessRefund}:      cancelled,
}

// NextStatus looks up the transition table
func NextStatus(from store.BookingStatus, action Action) (store.BookingStatus, bool) {
	next, ok := transitions[transitionKey{from: from, action: action}]
	return next, ok
}

// Guard checks every precondition of action against the booking and returns the status
// the booking moves to. Conditions that need outside data (event end, payout account)
// are checked by the engine.
func Guard(b *store.Booking, action Action) (store.BookingStatus, error) {
	next, ok := NextStatus(b.Status, action)
	if !ok {
		return "", statusConflict(b.Status, action)
	}

	// Paid bookings skip straight to CONFIRMED once a DJ is on them
	if action == ActionAssignStaff && b.IsPaid {
		next = confirmed
	}

	switch action {
	case ActionMarkPaid:
		if b.IsPaid {
			return "", conflictError("Booking is already paid")
		}

	case ActionProcessPayout:
		if !b.IsPaid {
			return "", conflictError("Booking has not been paid")
		}
		if b.PayoutStatus == store.PayoutStatusCompleted {
			return "", conflictError("Payout has already been processed for this booking")
		}
		if b.DisputeStatus == store.DisputeStatusOpen {
			return "", conflictError("Booking has an open dispute; resolve the dispute instead")
		}
		if b.ProviderID == nil {
			return "", conflictError("Booking has no assigned DJ")
		}

	case ActionProcessRefund:
		if !b.IsPaid {
			return "", conflictError("Booking has not been paid")
		}
		if b.RefundReference != nil {
			return "", conflictError("Booking has already been refunded")
		}
		if b.DisputeStatus == store.DisputeStatusOpen {
			return "", conflictError("Booking has an open dispute; resolve the dispute instead")
		}

	case ActionOpenDispute:
		if b.DisputeStatus != store.DisputeStatusNone {
			return "", conflictError("A dispute has already been opened for this booking")
		}
		if !b.IsPaid {
			return "", conflictError("Booking has not been paid")
		}
		if b.PayoutStatus == store.PayoutStatusCompleted || b.RefundReference != nil {
			return "", conflictError("Funds for this booking have already been settled")
		}

	case ActionCancel:
		if b.DisputeStatus == store.DisputeStatusOpen {
			return "", conflictError("Booking has an open dispute; resolve the dispute first")
		}

	case ActionResolveDispute:
		if b.DisputeStatus != store.DisputeStatusOpen {
			return "", conflictError("Dispute is not open")
		}
	}

	if isMoneyMoving(action) && b.PendingSettlement != "" {
		return "", conflictError("A previous %s call has an unknown outcome; reconcile the booking before retrying", b.PendingSettlement)
	}

	return next, nil
}

func isMoneyMoving(action Action) bool {
	return action == ActionProcessPayout || action == ActionProcessRefund || action == ActionResolveDispute
}

func statusConflict(status store.BookingStatus, action Action) error {
	switch status {
	case store.BookingStatusCancelled:
		return conflictError("Booking is cancelled")
	case store.BookingStatusCompleted:
		if action == ActionCancel || action == ActionAssignStaff || action == ActionComplete {
			return conflictError("Booking is already completed")
		}
	}

	switch action {
	case ActionProcessPayout:
		return conflictError("Booking must be confirmed before processing payout")
	case ActionOpenDispute:
		return conflictError("Only confirmed or completed bookings can be disputed")
	case ActionComplete:
		return conflictError("Only confirmed bookings can be completed")
	case ActionMarkPaid:
		return conflictError("Booking is already paid")
	case ActionBeginReview:
		return conflictError("Booking is already under review")
	}
	return conflictError("Cannot %s a booking in status %s", action, status)
}

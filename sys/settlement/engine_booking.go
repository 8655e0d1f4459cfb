package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"djhub-api/res/store"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BookingRequest is what a client submits to book a DJ
type BookingRequest struct {
	EventType           string    `json:"eventType"`
	EventDate           time.Time `json:"eventDate"`
	StartTime           string    `json:"startTime"`
	EndTime             string    `json:"endTime"`
	QuotedPrice         int64     `json:"quotedPrice"`
	RequestedProviderID *string   `json:"requestedProviderId,omitempty"`
	Notes               string    `json:"notes,omitempty"`
}

// StaffAssignment assigns or reassigns a DJ
type StaffAssignment struct {
	StaffID string `json:"staffId"`
	Notes   string `json:"notes,omitempty"`
	// Force assigns even when the DJ has no matching weekly window.
	// Booking conflicts are never overridden.
	Force bool `json:"force,omitempty"`
}

// RequestBooking creates a PENDING_REVIEW booking for the current actor
func (e *Engine) RequestBooking(ctx context.Context, req BookingRequest) (booking *store.Booking, err error) {
	ctx, span := e.startSpan(ctx, "RequestBooking", "")
	defer func() { endSpan(span, err) }()

	clientID, err := e.gate.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}

	req.EventType = strings.TrimSpace(req.EventType)
	if req.EventType == "" {
		return nil, validationError("Event type is required")
	}
	if req.EventDate.IsZero() {
		return nil, validationError("Event date is required")
	}
	if _, err := ParseInterval(req.StartTime, req.EndTime); err != nil {
		return nil, validationError("Invalid event window: %s", err)
	}
	if req.QuotedPrice <= 0 {
		return nil, validationError("Quoted price must be greater than zero")
	}

	day := startOfDay(req.EventDate)
	nowLocal := e.now().In(e.location)
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(today) {
		return nil, validationError("Event date cannot be in the past")
	}

	if req.RequestedProviderID != nil {
		if _, err := e.store.StaffProfiles().Get(ctx, *req.RequestedProviderID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, validationError("Requested DJ does not exist")
			}
			e.logger.Printf("Error retrieving requested staff profile: %s", err)
			return nil, err
		}
	}

	booking = &store.Booking{
		ID:                  uuid.NewString(),
		ClientID:            clientID,
		RequestedProviderID: req.RequestedProviderID,
		EventType:           req.EventType,
		EventDate:           datatypes.Date(day),
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		Notes:               req.Notes,
		QuotedPrice:         req.QuotedPrice,
		Currency:            e.settings.Currency,
		Status:              store.BookingStatusPendingReview,
		EscrowStatus:        store.EscrowStatusHeld,
		PayoutStatus:        store.PayoutStatusNone,
		DisputeStatus:       store.DisputeStatusNone,
	}

	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			e.logger.Printf("Error creating booking: %s", err)
			return err
		}
		return e.audit(ctx, tx, clientID, "booking.requested", booking.ID, map[string]interface{}{
			"eventType":   booking.EventType,
			"eventDate":   day.Format(time.DateOnly),
			"quotedPrice": moneyDetails(booking.Quoted()),
		})
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, clientID, "booking.requested", map[string]interface{}{"bookingId": booking.ID})
	return booking, nil
}

// BeginReview marks a booking as picked up by an admin
func (e *Engine) BeginReview(ctx context.Context, bookingID string) (booking *store.Booking, err error) {
	ctx, span := e.startSpan(ctx, "BeginReview", bookingID)
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
		next, err := Guard(b, ActionBeginReview)
		if err != nil {
			return err
		}
		b.Status = next
		if err := e.saveBooking(ctx, tx, b); err != nil {
			return err
		}
		booking = b
		return e.audit(ctx, tx, actorID, "booking.review_started", b.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// AssignStaff puts a DJ on a booking. The DJ's row is locked so two assignments
// of the same DJ cannot both pass the conflict check.
func (e *Engine) AssignStaff(ctx context.Context, bookingID string, assignment StaffAssignment) (booking *store.Booking, err error) {
	ctx, span := e.startSpan(ctx, "AssignStaff", bookingID)
	defer func() { endSpan(span, err) }()

	actorID, err := e.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if assignment.StaffID == "" {
		return nil, validationError("Staff ID is required")
	}

	var staff *store.StaffProfile
	var previous *string
	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		b, err := e.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		next, err := Guard(b, ActionAssignStaff)
		if err != nil {
			return err
		}

		staff, err = e.getStaff(ctx, tx.StaffProfiles(), assignment.StaffID, true)
		if err != nil {
			return err
		}
		if !staff.IsActive {
			return conflictError("Staff member is not active")
		}

		existing, err := tx.Bookings().ListActiveByProviders(ctx, b.Day(), []string{staff.ID})
		if err != nil {
			e.logger.Printf("Error listing bookings of staff %s: %s", staff.ID, err)
			return err
		}
		result, err := MatchAvailability(AvailabilityQuery{
			Date:            b.Day(),
			StartTime:       b.StartTime,
			EndTime:         b.EndTime,
			IgnoreBookingID: b.ID,
		}, []*store.StaffProfile{staff}, existing)
		if err != nil {
			return err
		}
		forced := false
		if len(result.Unavailable) > 0 {
			reason := result.Unavailable[0].Reason
			if reason == ReasonAlreadyBooked || !assignment.Force {
				return conflictError("Staff member is unavailable: %s", reason.Message())
			}
			forced = true
		}

		previous = b.ProviderID
		wasRequested := b.RequestedProviderID != nil && *b.RequestedProviderID == staff.ID
		b.ProviderID = &staff.ID
		b.Status = next
		if err := e.saveBooking(ctx, tx, b); err != nil {
			return err
		}
		booking = b

		details := map[string]interface{}{
			"staffId":      staff.ID,
			"wasRequested": wasRequested,
			"forced":       forced,
		}
		if previous != nil {
			details["previousStaffId"] = *previous
		}
		if assignment.Notes != "" {
			details["notes"] = assignment.Notes
		}
		return e.audit(ctx, tx, actorID, "booking.staff_assigned", b.ID, details)
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"bookingId": booking.ID, "eventDate": booking.Day().Format(time.DateOnly)}
	e.notify(ctx, staff.UserID, "booking.assigned", payload)
	e.notify(ctx, booking.ClientID, "booking.staff_assigned", payload)
	if previous != nil && *previous != staff.ID {
		e.notifyProvider(ctx, previous, "booking.unassigned", payload)
	}
	return booking, nil
}

// ConfirmPayment verifies the checkout session with the processor and marks the booking paid
func (e *Engine) ConfirmPayment(ctx context.Context, bookingID, sessionID string) (booking *store.Booking, err error) {
	ctx, span := e.startSpan(ctx, "ConfirmPayment", bookingID)
	defer func() { endSpan(span, err) }()

	actorID, err := e.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, validationError("Checkout session ID is required")
	}

	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		b, err := e.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		next, err := Guard(b, ActionMarkPaid)
		if err != nil {
			return err
		}

		session, err := e.processor.RetrieveCheckoutSession(ctx, sessionID)
		if err != nil {
			e.logger.Printf("Error retrieving checkout session %s: %s", sessionID, err)
			return processorError("Could not verify the payment with the processor", err)
		}
		if !session.Paid {
			return conflictError("Checkout session has not been paid")
		}
		if session.BookingID != "" && session.BookingID != b.ID {
			return validationError("Checkout session belongs to another booking")
		}
		if session.Amount != b.QuotedPrice || !strings.EqualFold(session.Currency, b.Currency) {
			return conflictError("Paid amount %d %s does not match the quoted price %s", session.Amount, session.Currency, b.Quoted())
		}

		now := e.now()
		b.IsPaid = true
		b.PaidAt = &now
		b.CheckoutReference = &session.ID
		b.PaymentReference = &session.PaymentReference
		b.Status = next
		if err := e.saveBooking(ctx, tx, b); err != nil {
			return err
		}
		booking = b

		if err := tx.Transactions().Create(ctx, &store.Transaction{
			Type:              store.TransactionTypePayment,
			BookingID:         b.ID,
			Amount:            session.Amount,
			Currency:          b.Currency,
			ExternalReference: session.PaymentReference,
			IdempotencyKey:    idempotencyKey(b.ID, "payment"),
			ActorID:           actorID,
			Description:       "client payment",
		}); err != nil {
			e.logger.Printf("Error recording payment of booking %s: %s", b.ID, err)
			return err
		}
		return e.audit(ctx, tx, actorID, "booking.paid", b.ID, map[string]interface{}{
			"sessionId":        session.ID,
			"paymentReference": session.PaymentReference,
			"amount":           moneyDetails(b.Quoted()),
		})
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, booking.ClientID, "booking.paid", map[string]interface{}{"bookingId": booking.ID})
	return booking, nil
}

// CompleteEvent closes a confirmed booking once its event has ended
func (e *Engine) CompleteEvent(ctx context.Context, bookingID string) (booking *store.Booking, err error) {
	ctx, span := e.startSpan(ctx, "CompleteEvent", bookingID)
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
		next, err := Guard(b, ActionComplete)
		if err != nil {
			return err
		}
		if err := e.requireEventOver(b, "Event has not ended yet"); err != nil {
			return err
		}

		now := e.now()
		b.Status = next
		b.CompletedAt = &now
		if err := e.saveBooking(ctx, tx, b); err != nil {
			return err
		}
		if b.ProviderID != nil {
			if err := tx.StaffProfiles().IncrementCompletedEvents(ctx, *b.ProviderID); err != nil {
				e.logger.Printf("Error incrementing completed events of %s: %s", *b.ProviderID, err)
				return err
			}
		}
		booking = b
		return e.audit(ctx, tx, actorID, "booking.completed", b.ID, nil)
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, booking.ClientID, "booking.completed", map[string]interface{}{"bookingId": booking.ID})
	return booking, nil
}

// CancelBooking cancels a booking. Paid funds stay in escrow until refunded.
func (e *Engine) CancelBooking(ctx context.Context, bookingID, reason string) (booking *store.Booking, err error) {
	ctx, span := e.startSpan(ctx, "CancelBooking", bookingID)
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
		next, err := Guard(b, ActionCancel)
		if err != nil {
			return err
		}

		now := e.now()
		b.Status = next
		b.CancelledAt = &now
		b.CancellationReason = reason
		if err := e.saveBooking(ctx, tx, b); err != nil {
			return err
		}
		booking = b
		return e.audit(ctx, tx, actorID, "booking.cancelled", b.ID, map[string]interface{}{
			"reason": reason,
			"isPaid": b.IsPaid,
		})
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"bookingId": booking.ID, "reason": reason}
	e.notify(ctx, booking.ClientID, "booking.cancelled", payload)
	e.notifyProvider(ctx, booking.ProviderID, "booking.cancelled", payload)
	return booking, nil
}

// GetBooking returns a booking by ID
func (e *Engine) GetBooking(ctx context.Context, bookingID string) (*store.Booking, error) {
	if _, err := e.gate.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return e.getBooking(ctx, bookingID)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListBookings pages through bookings, newest event first
func (e *Engine) ListBookings(ctx context.Context, filters store.BookingFilters) ([]*store.Booking, error) {
	if _, err := e.gate.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if filters.Limit < 0 || filters.Offset < 0 {
		return nil, validationError("Limit and offset cannot be negative")
	}
	if filters.Limit == 0 {
		filters.Limit = defaultListLimit
	}
	if filters.Limit > maxListLimit {
		filters.Limit = maxListLimit
	}
	// ordering is fixed; it is never taken from the request
	filters.OrderBy = ""

	bookings, err := e.store.Bookings().ListAll(ctx, filters)
	if err != nil {
		e.logger.Printf("Error listing bookings: %s", err)
		return nil, err
	}
	return bookings, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

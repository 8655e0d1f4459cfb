package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"djhub-api/res/money"
	"djhub-api/res/notification"
	"djhub-api/res/payment"
	"djhub-api/res/store"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("djhub-api/sys/settlement")

// AuthGate resolves the actor of a request
type AuthGate interface {
	// RequireAdmin returns the acting admin, or a PermissionDenied error
	RequireAdmin(ctx context.Context) (actorID string, err error)
	// CurrentActor returns any authenticated actor
	CurrentActor(ctx context.Context) (actorID string, err error)
}

// StatementArchive stores generated payroll statements
type StatementArchive interface {
	UploadPayrollStatement(ctx context.Context, objectPath string, data []byte) (string, error)
	// StatementURL returns a time-limited download link for an archived statement
	StatementURL(ctx context.Context, uri string, expiration time.Duration) (string, error)
}

type Config struct {
	Logger    *log.Logger
	Store     store.Store
	Processor payment.Processor
	Gate      AuthGate
	Notifier  notification.Sink // optional
	Archive   StatementArchive  // optional
	Settings  Settings
	Now       func() time.Time // defaults to time.Now
}

// Engine runs every settlement operation: guard, processor call, persistence and audit
// in one locked unit of work, then notifications.
type Engine struct {
	logger    *log.Logger
	store     store.Store
	processor payment.Processor
	gate      AuthGate
	notifier  notification.Sink
	archive   StatementArchive
	settings  Settings
	location  *time.Location
	now       func() time.Time

	inflight sync.WaitGroup
}

func New(config *Config) (*Engine, error) {
	if config.Store == nil || config.Processor == nil || config.Gate == nil {
		return nil, errors.New("settlement: store, processor and gate are required")
	}

	location, err := time.LoadLocation(config.Settings.EventTimezone)
	if err != nil {
		return nil, fmt.Errorf("settlement: invalid event timezone: %w", err)
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		logger:    logger,
		store:     config.Store,
		processor: config.Processor,
		gate:      config.Gate,
		notifier:  config.Notifier,
		archive:   config.Archive,
		settings:  config.Settings,
		location:  location,
		now:       now,
	}, nil
}

// Drain waits for notifications that are still being delivered
func (e *Engine) Drain() {
	e.inflight.Wait()
}

// LEGS

// A leg is one processor call of a settlement. Each has a deterministic idempotency key.
const (
	legPayout        = "payout"
	legRefund        = "refund"
	legDisputeRefund = "dispute-refund"
	legDisputePayout = "dispute-payout"
)

func idempotencyKey(bookingID, leg string) string {
	return fmt.Sprintf("booking:%s:%s", bookingID, leg)
}

// reconcileRequired means money may have moved at the processor without being recorded here
type reconcileRequired struct {
	legs []string
	err  error
}

func (r *reconcileRequired) Error() string {
	return fmt.Sprintf("settlement legs %s need reconciliation: %v", strings.Join(r.legs, ","), r.err)
}

func (r *reconcileRequired) Unwrap() error {
	return r.err
}

func (r *reconcileRequired) surface() error {
	return processorError(
		fmt.Sprintf("Payment processor outcome of the %s is unknown; reconcile the booking before retrying", strings.Join(r.legs, " and ")),
		r.err,
	)
}

// settleFailure flags the booking when the failed unit of work left processor calls
// unaccounted for, and turns internal errors into what the caller sees.
func (e *Engine) settleFailure(ctx context.Context, bookingID string, err error) error {
	var pending *reconcileRequired
	if !errors.As(err, &pending) {
		return err
	}

	legs := strings.Join(pending.legs, ",")
	if markErr := e.store.Bookings().MarkSettlementPending(context.WithoutCancel(ctx), bookingID, legs); markErr != nil {
		e.logger.Printf("RECONCILE booking %s legs %s: failed to flag pending settlement: %s", bookingID, legs, markErr)
	}
	return pending.surface()
}

// PROCESSOR CALLS

func (e *Engine) transfer(ctx context.Context, b *store.Booking, destination string, amount money.Money, leg string) (*payment.Transfer, error) {
	key := idempotencyKey(b.ID, leg)
	req := payment.TransferRequest{
		Destination:    destination,
		Amount:         amount.Amount,
		Currency:       amount.Currency,
		IdempotencyKey: key,
		Metadata:       map[string]interface{}{"booking_id": b.ID, "leg": leg},
	}

	transfer, err := e.processor.CreateTransfer(ctx, req)
	if err == nil {
		e.logger.Printf("Transfer %s of %s for booking %s completed", transfer.ID, amount, b.ID)
		return transfer, nil
	}
	if !payment.IsOutcomeUnknown(err) {
		e.logger.Printf("Error creating transfer for booking %s: %s", b.ID, err)
		return nil, processorError(payment.Message(err), err)
	}

	e.logger.Printf("Transfer for booking %s has unknown outcome, looking it up: %s", b.ID, err)
	found, lookupErr := e.processor.FindTransfer(ctx, key)
	if lookupErr == nil && found != nil {
		e.logger.Printf("Transfer %s for booking %s found after unknown outcome", found.ID, b.ID)
		return found, nil
	}
	if lookupErr != nil {
		e.logger.Printf("Error looking up transfer %s: %s", key, lookupErr)
	}
	return nil, &reconcileRequired{legs: []string{leg}, err: err}
}

func (e *Engine) refund(ctx context.Context, b *store.Booking, paymentReference string, amount money.Money, reason, leg string) (*payment.Refund, error) {
	key := idempotencyKey(b.ID, leg)
	req := payment.RefundRequest{
		PaymentReference: paymentReference,
		Amount:           amount.Amount,
		Currency:         amount.Currency,
		Reason:           reason,
		IdempotencyKey:   key,
		Metadata:         map[string]interface{}{"booking_id": b.ID, "leg": leg},
	}

	refund, err := e.processor.CreateRefund(ctx, req)
	if err == nil {
		e.logger.Printf("Refund %s of %s for booking %s completed", refund.ID, amount, b.ID)
		return refund, nil
	}
	if !payment.IsOutcomeUnknown(err) {
		e.logger.Printf("Error creating refund for booking %s: %s", b.ID, err)
		return nil, processorError(payment.Message(err), err)
	}

	e.logger.Printf("Refund for booking %s has unknown outcome, looking it up: %s", b.ID, err)
	found, lookupErr := e.processor.FindRefund(ctx, paymentReference, key)
	if lookupErr == nil && found != nil {
		e.logger.Printf("Refund %s for booking %s found after unknown outcome", found.ID, b.ID)
		return found, nil
	}
	if lookupErr != nil {
		e.logger.Printf("Error looking up refund %s: %s", key, lookupErr)
	}
	return nil, &reconcileRequired{legs: []string{leg}, err: err}
}

// paymentReference resolves the client payment a refund goes against
func (e *Engine) paymentReference(ctx context.Context, b *store.Booking) (string, error) {
	if b.PaymentReference != nil {
		return *b.PaymentReference, nil
	}
	if b.CheckoutReference == nil {
		return "", conflictError("Booking has no recorded payment to refund")
	}

	session, err := e.processor.RetrieveCheckoutSession(ctx, *b.CheckoutReference)
	if err != nil {
		e.logger.Printf("Error retrieving checkout session for booking %s: %s", b.ID, err)
		return "", processorError(payment.Message(err), err)
	}
	b.PaymentReference = &session.PaymentReference
	return session.PaymentReference, nil
}

// PERSISTENCE

func (e *Engine) lockBooking(ctx context.Context, tx store.Store, bookingID string) (*store.Booking, error) {
	booking, err := tx.Bookings().GetForUpdate(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("Booking not found")
	}
	if err != nil {
		e.logger.Printf("Error retrieving booking: %s", err)
		return nil, err
	}
	return booking, nil
}

func (e *Engine) getBooking(ctx context.Context, bookingID string) (*store.Booking, error) {
	booking, err := e.store.Bookings().Get(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("Booking not found")
	}
	if err != nil {
		e.logger.Printf("Error retrieving booking: %s", err)
		return nil, err
	}
	return booking, nil
}

func (e *Engine) getStaff(ctx context.Context, staffStore store.StaffProfileStore, staffID string, forUpdate bool) (*store.StaffProfile, error) {
	var profile *store.StaffProfile
	var err error
	if forUpdate {
		profile, err = staffStore.GetForUpdate(ctx, staffID)
	} else {
		profile, err = staffStore.Get(ctx, staffID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("Staff member not found")
	}
	if err != nil {
		e.logger.Printf("Error retrieving staff profile: %s", err)
		return nil, err
	}
	return profile, nil
}

func (e *Engine) saveBooking(ctx context.Context, tx store.Store, b *store.Booking) error {
	err := tx.Bookings().Update(ctx, b)
	if errors.Is(err, store.ErrStaleVersion) {
		return conflictError("Booking was modified by another request; reload and retry")
	}
	if err != nil {
		e.logger.Printf("Error updating booking: %s", err)
	}
	return err
}

func (e *Engine) audit(ctx context.Context, tx store.Store, actorID, action, subjectID string, details map[string]interface{}) error {
	if err := tx.AuditRecords().Record(ctx, actorID, action, subjectID, details); err != nil {
		e.logger.Printf("Error writing audit record %s for %s: %s", action, subjectID, err)
		return err
	}
	return nil
}

// movement is a processor-confirmed leg to be written to the transaction ledger
type movement struct {
	leg       string
	kind      store.TransactionType
	amount    money.Money
	reference string
}

func (e *Engine) recordMovement(ctx context.Context, tx store.Store, b *store.Booking, actorID string, m movement) error {
	return tx.Transactions().Create(ctx, &store.Transaction{
		Type:              m.kind,
		BookingID:         b.ID,
		Amount:            m.amount.Amount,
		Currency:          m.amount.Currency,
		ExternalReference: m.reference,
		IdempotencyKey:    idempotencyKey(b.ID, m.leg),
		ActorID:           actorID,
		Description:       fmt.Sprintf("%s %s", m.leg, m.amount),
	})
}

// persistSettled writes the booking, its movements and the audit record after the
// processor accepted every movement. A failure here leaves money moved but unrecorded.
func (e *Engine) persistSettled(ctx context.Context, tx store.Store, b *store.Booking, actorID, action string, details map[string]interface{}, movements ...movement) error {
	err := e.saveBooking(ctx, tx, b)
	if err == nil {
		for _, m := range movements {
			if err = e.recordMovement(ctx, tx, b, actorID, m); err != nil {
				break
			}
		}
	}
	if err == nil {
		err = e.audit(ctx, tx, actorID, action, b.ID, details)
	}
	if err == nil {
		return nil
	}

	legs := make([]string, 0, len(movements))
	for _, m := range movements {
		legs = append(legs, m.leg)
		e.logger.Printf("RECONCILE booking %s: %s %s accepted by processor (ref %s) but not recorded: %s",
			b.ID, m.leg, m.amount, m.reference, err)
	}
	if len(legs) == 0 {
		return err
	}
	return &reconcileRequired{legs: legs, err: err}
}

// NOTIFICATIONS

// notify delivers in the background; failures are logged and never reach the caller
func (e *Engine) notify(ctx context.Context, userID, eventKind string, payload map[string]interface{}) {
	if e.notifier == nil || userID == "" {
		return
	}

	ctx = context.WithoutCancel(ctx)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()

		ctx, cancel := context.WithTimeout(ctx, e.settings.NotificationTimeout)
		defer cancel()

		if err := e.notifier.Notify(ctx, userID, eventKind, payload); err != nil {
			e.logger.Printf("Error sending %s notification to user %s: %s", eventKind, userID, err)
		}
	}()
}

// notifyProvider resolves the DJ's user before notifying
func (e *Engine) notifyProvider(ctx context.Context, providerID *string, eventKind string, payload map[string]interface{}) {
	if providerID == nil || e.notifier == nil {
		return
	}
	profile, err := e.store.StaffProfiles().Get(ctx, *providerID)
	if err != nil {
		e.logger.Printf("Error resolving staff %s for %s notification: %s", *providerID, eventKind, err)
		return
	}
	e.notify(ctx, profile.UserID, eventKind, payload)
}

// COMMON UTILITIES

func (e *Engine) startSpan(ctx context.Context, operation, subjectID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "settlement."+operation, trace.WithAttributes(attribute.String("settlement.subject_id", subjectID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

// eventEnd is the moment the booked event is over, in the configured event timezone
func (e *Engine) eventEnd(b *store.Booking) (time.Time, error) {
	interval, err := ParseInterval(b.StartTime, b.EndTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("booking %s has an invalid event window: %w", b.ID, err)
	}
	_, end := interval.At(b.Day(), e.location)
	return end, nil
}

func (e *Engine) requireEventOver(b *store.Booking, reason string) error {
	end, err := e.eventEnd(b)
	if err != nil {
		return err
	}
	if !e.now().After(end) {
		return conflictError("%s", reason)
	}
	return nil
}

// splitFor treats an unset split as the platform default
func (e *Engine) splitFor(profile *store.StaffProfile) decimal.Decimal {
	if profile.ContractorSplitPercentage.IsZero() {
		return e.settings.DefaultContractorSplit
	}
	return profile.ContractorSplitPercentage
}

func moneyDetails(m money.Money) map[string]interface{} {
	return map[string]interface{}{"amount": m.Amount, "currency": m.Currency}
}

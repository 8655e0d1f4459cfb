package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"djhub-api/res/payment"
	"djhub-api/res/store"
	"djhub-api/res/store/postgresql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TEST DOUBLES

type fakeProcessor struct {
	mu sync.Mutex

	transfers     map[string]*payment.Transfer // by idempotency key
	refunds       map[string]*payment.Refund
	transferCalls int
	refundCalls   int
	sessions      map[string]*payment.CheckoutSession

	transferErr error
	refundErr   error
	lookupErr   error
	// lostResponse performs the call but reports an unknown outcome
	lostResponse bool
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		transfers: map[string]*payment.Transfer{},
		refunds:   map[string]*payment.Refund{},
		sessions:  map[string]*payment.CheckoutSession{},
	}
}

func (p *fakeProcessor) CreateTransfer(ctx context.Context, req payment.TransferRequest) (*payment.Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transferCalls++
	if p.transferErr != nil {
		return nil, p.transferErr
	}
	transfer := &payment.Transfer{ID: fmt.Sprintf("trsf_%d", p.transferCalls), Amount: req.Amount}
	p.transfers[req.IdempotencyKey] = transfer
	if p.lostResponse {
		return nil, fmt.Errorf("%w: read timeout", payment.ErrOutcomeUnknown)
	}
	return transfer, nil
}

func (p *fakeProcessor) CreateRefund(ctx context.Context, req payment.RefundRequest) (*payment.Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refundCalls++
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	refund := &payment.Refund{ID: fmt.Sprintf("rfnd_%d", p.refundCalls), Amount: req.Amount}
	p.refunds[req.IdempotencyKey] = refund
	if p.lostResponse {
		return nil, fmt.Errorf("%w: read timeout", payment.ErrOutcomeUnknown)
	}
	return refund, nil
}

func (p *fakeProcessor) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[sessionID]
	if !ok {
		return nil, &payment.ProcessorError{Op: "retrieve charge", Code: "not_found", Message: "charge not found"}
	}
	return session, nil
}

func (p *fakeProcessor) FindTransfer(ctx context.Context, key string) (*payment.Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lookupErr != nil {
		return nil, p.lookupErr
	}
	return p.transfers[key], nil
}

func (p *fakeProcessor) FindRefund(ctx context.Context, paymentReference, key string) (*payment.Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lookupErr != nil {
		return nil, p.lookupErr
	}
	return p.refunds[key], nil
}

func (p *fakeProcessor) RetrieveEvent(ctx context.Context, eventID string) (*payment.Event, error) {
	return nil, errors.New("not implemented")
}

func (p *fakeProcessor) set(fn func(p *fakeProcessor)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

type fakeGate struct {
	actorID string
	admin   bool
}

func (g *fakeGate) RequireAdmin(ctx context.Context) (string, error) {
	if !g.admin {
		return "", PermissionDenied("Admin access required")
	}
	return g.actorID, nil
}

func (g *fakeGate) CurrentActor(ctx context.Context) (string, error) {
	return g.actorID, nil
}

type sentNotification struct {
	userID string
	kind   string
}

type recordingSink struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (s *recordingSink) Notify(ctx context.Context, userID, eventKind string, payload map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentNotification{userID: userID, kind: eventKind})
	return nil
}

func (s *recordingSink) kinds(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []string
	for _, n := range s.sent {
		if n.userID == userID {
			kinds = append(kinds, n.kind)
		}
	}
	return kinds
}

type memoryArchive struct {
	objects map[string][]byte
}

func (a *memoryArchive) UploadPayrollStatement(ctx context.Context, objectPath string, data []byte) (string, error) {
	a.objects[objectPath] = data
	return "gs://statements/" + objectPath, nil
}

func (a *memoryArchive) StatementURL(ctx context.Context, uri string, expiration time.Duration) (string, error) {
	objectPath := strings.TrimPrefix(uri, "gs://statements/")
	if _, ok := a.objects[objectPath]; !ok {
		return "", fmt.Errorf("object %s not found", uri)
	}
	return fmt.Sprintf("https://storage.example/%s?expires=%s", objectPath, expiration), nil
}

// HARNESS

// now is Monday after the Saturday event
var engineNow = time.Date(2024, 6, 17, 12, 0, 0, 0, time.UTC)

type harness struct {
	engine    *Engine
	store     store.Store
	processor *fakeProcessor
	gate      *fakeGate
	sink      *recordingSink
	archive   *memoryArchive
	dj        *store.StaffProfile
	employee  *store.StaffProfile
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := postgresql.New(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, u := range []struct{ id, email string }{{"usr_client", "client@example.com"}, {"usr_dj", "dj@example.com"}, {"usr_emp", "emp@example.com"}} {
		if _, err := s.Users().Create(ctx, u.id, u.id, u.email, store.UserRoleClient); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	dj := &store.StaffProfile{
		ID:                        "stf_dj",
		UserID:                    "usr_dj",
		DisplayName:               "DJ Contractor",
		EmploymentType:            store.EmploymentTypeContractor,
		ContractorSplitPercentage: decimal.NewFromInt(40),
		Currency:                  "USD",
		PaymentAccountID:          strPtr("recp_dj"),
		PaymentAccountEnabled:     true,
		AverageRating:             4.8,
		IsActive:                  true,
		IsAcceptingWork:           true,
	}
	hourly, bonus := int64(10000), int64(10000)
	employee := &store.StaffProfile{
		ID:                        "stf_emp",
		UserID:                    "usr_emp",
		DisplayName:               "DJ Employee",
		EmploymentType:            store.EmploymentTypePartTimeEmployee,
		ContractorSplitPercentage: decimal.NewFromInt(30),
		HourlyRate:                &hourly,
		EventBonus:                &bonus,
		Currency:                  "USD",
		AverageRating:             4.2,
		IsActive:                  true,
		IsAcceptingWork:           true,
	}
	for _, profile := range []*store.StaffProfile{dj, employee} {
		if err := s.StaffProfiles().Create(ctx, profile); err != nil {
			t.Fatalf("create staff: %v", err)
		}
		window := &store.Availability{StaffProfileID: profile.ID, DayOfWeek: time.Saturday, StartTime: "12:00", EndTime: "24:00"}
		if err := s.Availability().Create(ctx, window); err != nil {
			t.Fatalf("create window: %v", err)
		}
	}

	h := &harness{
		store:     s,
		processor: newFakeProcessor(),
		gate:      &fakeGate{actorID: "usr_admin", admin: true},
		sink:      &recordingSink{},
		archive:   &memoryArchive{objects: map[string][]byte{}},
		dj:        dj,
		employee:  employee,
	}
	h.engine, err = New(&Config{
		Logger:    log.New(io.Discard, "", 0),
		Store:     s,
		Processor: h.processor,
		Gate:      h.gate,
		Notifier:  h.sink,
		Archive:   h.archive,
		Settings:  DefaultSettings(),
		Now:       func() time.Time { return engineNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

// seedBooking stores a booking on the Saturday before engineNow
func (h *harness) seedBooking(t *testing.T, mutate func(b *store.Booking)) *store.Booking {
	t.Helper()
	paidAt := engineNow.Add(-72 * time.Hour)
	b := &store.Booking{
		ID:                uuid.NewString(),
		ClientID:          "usr_client",
		ProviderID:        strPtr(h.dj.ID),
		EventType:         "wedding",
		EventDate:         datatypes.Date(saturday),
		StartTime:         "19:00",
		EndTime:           "23:00",
		QuotedPrice:       50000,
		Currency:          "USD",
		Status:            store.BookingStatusConfirmed,
		IsPaid:            true,
		PaidAt:            &paidAt,
		CheckoutReference: strPtr("chrg_1"),
		PaymentReference:  strPtr("chrg_1"),
		EscrowStatus:      store.EscrowStatusHeld,
		PayoutStatus:      store.PayoutStatusNone,
		DisputeStatus:     store.DisputeStatusNone,
	}
	if mutate != nil {
		mutate(b)
	}
	if err := h.store.Bookings().Create(context.Background(), b); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}

func (h *harness) reload(t *testing.T, id string) *store.Booking {
	t.Helper()
	b, err := h.store.Bookings().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	return b
}

func (h *harness) transactions(t *testing.T, bookingID string) []*store.Transaction {
	t.Helper()
	txns, err := h.store.Transactions().ListByBooking(context.Background(), bookingID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	return txns
}

// BOOKING LIFECYCLE

func TestBookingLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.gate.actorID = "usr_client"
	booking, err := h.engine.RequestBooking(ctx, BookingRequest{
		EventType:           "birthday",
		EventDate:           time.Date(2024, 6, 22, 0, 0, 0, 0, time.UTC),
		StartTime:           "20:00",
		EndTime:             "23:30",
		QuotedPrice:         30000,
		RequestedProviderID: strPtr(h.dj.ID),
	})
	if err != nil {
		t.Fatalf("RequestBooking: %v", err)
	}
	if booking.Status != store.BookingStatusPendingReview || booking.EscrowStatus != store.EscrowStatusHeld {
		t.Fatalf("unexpected new booking %s / %s", booking.Status, booking.EscrowStatus)
	}

	h.gate.actorID = "usr_admin"
	if _, err := h.engine.BeginReview(ctx, booking.ID); err != nil {
		t.Fatalf("BeginReview: %v", err)
	}
	assigned, err := h.engine.AssignStaff(ctx, booking.ID, StaffAssignment{StaffID: h.dj.ID})
	if err != nil {
		t.Fatalf("AssignStaff: %v", err)
	}
	if assigned.Status != store.BookingStatusStaffAssigned || *assigned.ProviderID != h.dj.ID {
		t.Fatalf("unexpected assignment %s", assigned.Status)
	}

	h.processor.sessions["chrg_new"] = &payment.CheckoutSession{
		ID: "chrg_new", PaymentReference: "chrg_new", Paid: true, Amount: 30000, Currency: "usd", BookingID: booking.ID,
	}
	paid, err := h.engine.ConfirmPayment(ctx, booking.ID, "chrg_new")
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if paid.Status != store.BookingStatusConfirmed || !paid.IsPaid {
		t.Fatalf("payment should confirm the booking, got %s", paid.Status)
	}
	_, err = h.engine.ConfirmPayment(ctx, booking.ID, "chrg_new")
	requireKind(t, err, KindStateConflict)

	// the event is next Saturday
	_, err = h.engine.CompleteEvent(ctx, booking.ID)
	requireKind(t, err, KindStateConflict)

	h.engine.Drain()
	if kinds := h.sink.kinds("usr_dj"); len(kinds) != 1 || kinds[0] != "booking.assigned" {
		t.Fatalf("DJ notifications = %v", kinds)
	}

	records, err := h.store.AuditRecords().ListBySubject(ctx, booking.ID)
	if err != nil {
		t.Fatalf("ListBySubject: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 audit records, got %d", len(records))
	}
}

func TestRequestBookingValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	base := BookingRequest{EventType: "wedding", EventDate: engineNow.AddDate(0, 0, 7), StartTime: "19:00", EndTime: "23:00", QuotedPrice: 1000}

	past := base
	past.EventDate = engineNow.AddDate(0, 0, -1)
	reversed := base
	reversed.StartTime, reversed.EndTime = "23:00", "19:00"
	free := base
	free.QuotedPrice = 0
	unknownDJ := base
	unknownDJ.RequestedProviderID = strPtr("stf_nobody")

	for _, req := range []BookingRequest{past, reversed, free, unknownDJ} {
		_, err := h.engine.RequestBooking(ctx, req)
		requireKind(t, err, KindValidation)
	}
}

func TestConfirmPaymentRejectsAmountMismatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, func(b *store.Booking) {
		b.Status = store.BookingStatusStaffAssigned
		b.IsPaid = false
		b.PaidAt, b.CheckoutReference, b.PaymentReference = nil, nil, nil
	})
	h.processor.sessions["chrg_short"] = &payment.CheckoutSession{ID: "chrg_short", PaymentReference: "chrg_short", Paid: true, Amount: 100, Currency: "USD"}

	_, err := h.engine.ConfirmPayment(ctx, b.ID, "chrg_short")
	requireKind(t, err, KindStateConflict)
	if h.reload(t, b.ID).IsPaid {
		t.Fatalf("booking must stay unpaid")
	}
}

func TestAssignStaffConflicts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedBooking(t, func(b *store.Booking) { b.StartTime, b.EndTime = "18:00", "20:00" })
	target := h.seedBooking(t, func(b *store.Booking) {
		b.ProviderID = nil
		b.Status = store.BookingStatusAdminReviewing
		b.IsPaid = false
	})

	_, err := h.engine.AssignStaff(ctx, target.ID, StaffAssignment{StaffID: h.dj.ID, Force: true})
	requireKind(t, err, KindStateConflict)

	assigned, err := h.engine.AssignStaff(ctx, target.ID, StaffAssignment{StaffID: h.employee.ID})
	if err != nil {
		t.Fatalf("AssignStaff: %v", err)
	}
	if *assigned.ProviderID != h.employee.ID {
		t.Fatalf("expected employee assigned")
	}

	h.gate.admin = false
	_, err = h.engine.AssignStaff(ctx, target.ID, StaffAssignment{StaffID: h.dj.ID})
	requireKind(t, err, KindPermission)
}

func TestAssignStaffForceOverridesAvailabilityOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	target := h.seedBooking(t, func(b *store.Booking) {
		b.ProviderID = nil
		b.Status = store.BookingStatusPendingReview
		b.IsPaid = false
		b.StartTime, b.EndTime = "08:00", "10:00"
	})

	_, err := h.engine.AssignStaff(ctx, target.ID, StaffAssignment{StaffID: h.dj.ID})
	requireKind(t, err, KindStateConflict)

	if _, err := h.engine.AssignStaff(ctx, target.ID, StaffAssignment{StaffID: h.dj.ID, Force: true}); err != nil {
		t.Fatalf("forced assignment outside availability: %v", err)
	}
}

// PAYOUTS AND REFUNDS

func TestProcessPayoutOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, nil)

	paid, err := h.engine.ProcessPayout(ctx, b.ID, PayoutOverride{})
	if err != nil {
		t.Fatalf("ProcessPayout: %v", err)
	}
	if paid.PaidOut().Amount != 20000 || paid.EscrowStatus != store.EscrowStatusReleased {
		t.Fatalf("expected 40%% payout released, got %d / %s", paid.PaidOut().Amount, paid.EscrowStatus)
	}

	_, err = h.engine.ProcessPayout(ctx, b.ID, PayoutOverride{})
	requireKind(t, err, KindStateConflict)
	if ReasonOf(err) != "Payout has already been processed for this booking" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}
	if h.processor.transferCalls != 1 {
		t.Fatalf("expected exactly one transfer, got %d", h.processor.transferCalls)
	}

	txns := h.transactions(t, b.ID)
	if len(txns) != 1 || txns[0].Type != store.TransactionTypePayout || txns[0].IdempotencyKey != "booking:"+b.ID+":payout" {
		t.Fatalf("unexpected ledger %+v", txns)
	}

	h.engine.Drain()
	if kinds := h.sink.kinds("usr_dj"); len(kinds) != 1 || kinds[0] != "payout.completed" {
		t.Fatalf("DJ notifications = %v", kinds)
	}
}

func TestConcurrentPayoutsTransferOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.ProcessPayout(ctx, b.ID, PayoutOverride{})
		}(i)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrStateConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 || conflicted != 1 {
		t.Fatalf("expected one success and one conflict, got %d / %d", succeeded, conflicted)
	}
	if h.processor.transferCalls != 1 {
		t.Fatalf("expected exactly one transfer, got %d", h.processor.transferCalls)
	}
}

func TestProcessPayoutGuards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	future := h.seedBooking(t, func(b *store.Booking) { b.EventDate = datatypes.Date(testDate(2024, 6, 22)) })
	_, err := h.engine.ProcessPayout(ctx, future.ID, PayoutOverride{})
	if ReasonOf(err) != "Event must be completed before processing payout" {
		t.Fatalf("unexpected error %v", err)
	}

	unpaid := h.seedBooking(t, func(b *store.Booking) { b.IsPaid = false })
	_, err = h.engine.ProcessPayout(ctx, unpaid.ID, PayoutOverride{})
	requireKind(t, err, KindStateConflict)

	tooMuch := h.seedBooking(t, nil)
	_, err = h.engine.ProcessPayout(ctx, tooMuch.ID, PayoutOverride{Amount: int64Ptr(50001)})
	requireKind(t, err, KindValidation)

	noAccount := h.seedBooking(t, func(b *store.Booking) { b.ProviderID = strPtr(h.employee.ID) })
	_, err = h.engine.ProcessPayout(ctx, noAccount.ID, PayoutOverride{})
	requireKind(t, err, KindStateConflict)

	_, err = h.engine.ProcessPayout(ctx, "bk_missing", PayoutOverride{})
	requireKind(t, err, KindNotFound)

	if h.processor.transferCalls != 0 {
		t.Fatalf("no transfer should have been attempted, got %d", h.processor.transferCalls)
	}
}

func TestProcessPayoutRejectedByProcessorLeavesBookingUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, nil)
	h.processor.transferErr = &payment.ProcessorError{Op: "create transfer", Code: "insufficient_fund", Message: "insufficient funds"}

	_, err := h.engine.ProcessPayout(ctx, b.ID, PayoutOverride{})
	requireKind(t, err, KindExternalProcessor)
	if ReasonOf(err) != "insufficient funds" {
		t.Fatalf("processor message should be surfaced, got %q", ReasonOf(err))
	}

	after := h.reload(t, b.ID)
	if after.PayoutStatus != store.PayoutStatusNone || after.PendingSettlement != "" || len(h.transactions(t, b.ID)) != 0 {
		t.Fatalf("rejected payout must not change the booking: %+v", after)
	}

	h.processor.set(func(p *fakeProcessor) { p.transferErr = nil })
	if _, err := h.engine.ProcessPayout(ctx, b.ID, PayoutOverride{}); err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
}

func TestUnknownOutcomeFoundByLookup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, nil)
	h.processor.lostResponse = true

	paid, err := h.engine.ProcessPayout(ctx, b.ID, PayoutOverride{})
	if err != nil {
		t.Fatalf("ProcessPayout: %v", err)
	}
	if paid.PayoutStatus != store.PayoutStatusCompleted || paid.PayoutReference == nil || *paid.PayoutReference != "trsf_1" {
		t.Fatalf("transfer found by lookup should be recorded: %+v", paid)
	}
}

func TestUnknownOutcomeBlocksUntilReconciled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, nil)
	h.processor.lostResponse = true
	h.processor.lookupErr = errors.New("connection reset")

	_, err := h.engine.ProcessPayout(ctx, b.ID, PayoutOverride{})
	requireKind(t, err, KindExternalProcessor)

	pending := h.reload(t, b.ID)
	if pending.PendingSettlement != legPayout || pending.PayoutStatus != store.PayoutStatusNone {
		t.Fatalf("booking should be flagged pending: %q / %s", pending.PendingSettlement, pending.PayoutStatus)
	}

	_, err = h.engine.ProcessPayout(ctx, b.ID, PayoutOverride{})
	requireKind(t, err, KindStateConflict)
	_, err = h.engine.ProcessRefund(ctx, b.ID, nil, "client asked")
	requireKind(t, err, KindStateConflict)

	h.processor.set(func(p *fakeProcessor) {
		p.lostResponse = false
		p.lookupErr = nil
	})
	result, err := h.engine.ReconcileBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("ReconcileBooking: %v", err)
	}
	if result.Legs[legPayout] != "trsf_1" {
		t.Fatalf("reconcile should find the transfer, got %v", result.Legs)
	}

	after := h.reload(t, b.ID)
	if after.PendingSettlement != "" || after.PayoutStatus != store.PayoutStatusCompleted || after.PaidOut().Amount != 20000 {
		t.Fatalf("reconciled booking: %+v", after)
	}
	if len(h.transactions(t, b.ID)) != 1 {
		t.Fatalf("expected the reconciled payout in the ledger")
	}

	_, err = h.engine.ProcessPayout(ctx, b.ID, PayoutOverride{})
	requireKind(t, err, KindStateConflict)
	if h.processor.transferCalls != 1 {
		t.Fatalf("expected exactly one transfer, got %d", h.processor.transferCalls)
	}
}

func TestReconcileClearsLegThatNeverHappened(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, func(b *store.Booking) { b.PendingSettlement = legRefund })

	result, err := h.engine.ReconcileBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("ReconcileBooking: %v", err)
	}
	if ref, ok := result.Legs[legRefund]; !ok || ref != "" {
		t.Fatalf("refund leg should be reported missing, got %v", result.Legs)
	}

	refunded, err := h.engine.ProcessRefund(ctx, b.ID, nil, "")
	if err != nil {
		t.Fatalf("refund after reconcile: %v", err)
	}
	if refunded.Refunded().Amount != 50000 {
		t.Fatalf("expected full refund, got %d", refunded.Refunded().Amount)
	}
}

func TestReconcileRefundResolvesPaymentFromCheckout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, func(b *store.Booking) {
		b.PaymentReference = nil
		b.PendingSettlement = legRefund
	})
	h.processor.set(func(p *fakeProcessor) {
		p.sessions["chrg_1"] = &payment.CheckoutSession{ID: "chrg_1", PaymentReference: "chrg_1", Paid: true, Amount: 50000}
		p.refunds[idempotencyKey(b.ID, legRefund)] = &payment.Refund{ID: "rfnd_late", Amount: 50000}
	})

	result, err := h.engine.ReconcileBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("ReconcileBooking: %v", err)
	}
	if result.Legs[legRefund] != "rfnd_late" {
		t.Fatalf("reconcile should find the refund, got %v", result.Legs)
	}

	after := h.reload(t, b.ID)
	if after.PendingSettlement != "" || after.Refunded().Amount != 50000 {
		t.Fatalf("reconciled booking: %+v", after)
	}
	if after.PaymentReference == nil || *after.PaymentReference != "chrg_1" {
		t.Fatalf("payment reference should be recorded, got %v", after.PaymentReference)
	}
}

func TestRequireEventOverKeepsReasonVerbatim(t *testing.T) {
	h := newHarness(t)
	b := h.seedBooking(t, func(b *store.Booking) { b.EventDate = datatypes.Date(testDate(2024, 6, 22)) })

	err := h.engine.requireEventOver(b, "Payout of 100% waits for the event")
	requireKind(t, err, KindStateConflict)
	if ReasonOf(err) != "Payout of 100% waits for the event" {
		t.Fatalf("reason was rewritten: %q", ReasonOf(err))
	}
}

func TestProcessRefundCancelsUpcomingBooking(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, func(b *store.Booking) { b.EventDate = datatypes.Date(testDate(2024, 6, 22)) })

	refunded, err := h.engine.ProcessRefund(ctx, b.ID, int64Ptr(15000), "venue closed")
	if err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}
	if refunded.Status != store.BookingStatusCancelled || refunded.EscrowStatus != store.EscrowStatusRefunded || refunded.CancellationReason != "venue closed" {
		t.Fatalf("unexpected refunded booking %s / %s", refunded.Status, refunded.EscrowStatus)
	}

	_, err = h.engine.ProcessRefund(ctx, b.ID, nil, "")
	if ReasonOf(err) != "Booking has already been refunded" {
		t.Fatalf("unexpected error %v", err)
	}

	view, err := h.engine.Ledger(ctx, b.ID)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if view.Ledger.Refunded.Amount != 15000 || view.Ledger.Held.Amount != 35000 || len(view.Transactions) != 1 {
		t.Fatalf("unexpected ledger %+v", view.Ledger)
	}
}

func TestProcessRefundOverHeldAmount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, nil)

	_, err := h.engine.ProcessRefund(ctx, b.ID, int64Ptr(50001), "")
	requireKind(t, err, KindValidation)
	_, err = h.engine.ProcessRefund(ctx, b.ID, int64Ptr(0), "")
	requireKind(t, err, KindValidation)
	if h.processor.refundCalls != 0 {
		t.Fatalf("no refund should have been attempted")
	}
}

// DISPUTES

func TestDisputeResolutionSplit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, func(b *store.Booking) { b.QuotedPrice = 333 })

	if _, err := h.engine.OpenDispute(ctx, b.ID, "DJ left early"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}
	_, err := h.engine.ProcessPayout(ctx, b.ID, PayoutOverride{})
	requireKind(t, err, KindStateConflict)

	resolved, err := h.engine.ResolveDispute(ctx, b.ID, DisputeResolution{Kind: ResolutionSplit})
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if resolved.Refunded().Amount != 166 || resolved.PaidOut().Amount != 166 {
		t.Fatalf("split 333 should be 166/166, got %d/%d", resolved.Refunded().Amount, resolved.PaidOut().Amount)
	}
	if resolved.DisputeStatus != store.DisputeStatusResolved || resolved.EscrowStatus != store.EscrowStatusReleased {
		t.Fatalf("unexpected resolution state %s / %s", resolved.DisputeStatus, resolved.EscrowStatus)
	}
	if len(h.transactions(t, b.ID)) != 2 {
		t.Fatalf("expected refund and payout in the ledger")
	}

	_, err = h.engine.ResolveDispute(ctx, b.ID, DisputeResolution{Kind: ResolutionSplit})
	if ReasonOf(err) != "Dispute is not open" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDisputeRefundClient(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, nil)

	if _, err := h.engine.OpenDispute(ctx, b.ID, "no show"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}
	resolved, err := h.engine.ResolveDispute(ctx, b.ID, DisputeResolution{Kind: ResolutionRefundClient})
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if resolved.Refunded().Amount != 50000 || resolved.EscrowStatus != store.EscrowStatusRefunded || h.processor.transferCalls != 0 {
		t.Fatalf("unexpected refund resolution %+v", resolved)
	}
}

func TestDisputeSecondLegFailureIsResumable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, nil)

	if _, err := h.engine.OpenDispute(ctx, b.ID, "partial set"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}
	h.processor.transferErr = &payment.ProcessorError{Op: "create transfer", Message: "recipient inactive"}

	_, err := h.engine.ResolveDispute(ctx, b.ID, DisputeResolution{Kind: ResolutionSplit})
	requireKind(t, err, KindExternalProcessor)

	partial := h.reload(t, b.ID)
	if partial.DisputeStatus != store.DisputeStatusOpen || partial.Refunded().Amount != 25000 || partial.EscrowStatus != store.EscrowStatusHeld {
		t.Fatalf("refund leg should be recorded with the dispute still open: %+v", partial)
	}

	_, err = h.engine.ResolveDispute(ctx, b.ID, DisputeResolution{Kind: ResolutionPayProvider})
	requireKind(t, err, KindStateConflict)

	h.processor.set(func(p *fakeProcessor) { p.transferErr = nil })
	resolved, err := h.engine.ResolveDispute(ctx, b.ID, DisputeResolution{Kind: ResolutionSplit})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resolved.DisputeStatus != store.DisputeStatusResolved || resolved.PaidOut().Amount != 25000 {
		t.Fatalf("unexpected resolved booking %+v", resolved)
	}
	if h.processor.refundCalls != 1 {
		t.Fatalf("refund leg must not run twice, got %d calls", h.processor.refundCalls)
	}
}

// AVAILABILITY

func TestSuggestReplacementsExcludesCurrentDJ(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.seedBooking(t, func(b *store.Booking) {
		b.EventDate = datatypes.Date(testDate(2024, 6, 22))
		b.Status = store.BookingStatusStaffAssigned
		b.IsPaid = false
	})

	result, err := h.engine.SuggestReplacements(ctx, b.ID)
	if err != nil {
		t.Fatalf("SuggestReplacements: %v", err)
	}
	if len(result.Available) != 1 || result.Available[0].Staff.ID != h.employee.ID {
		t.Fatalf("expected only the employee, got %+v", result.Available)
	}

	search, err := h.engine.SearchAvailability(ctx, AvailabilityQuery{Date: testDate(2024, 6, 22), StartTime: "20:00", EndTime: "22:00"})
	if err != nil {
		t.Fatalf("SearchAvailability: %v", err)
	}
	if len(search.Available) != 1 || len(search.Unavailable) != 1 || search.Unavailable[0].Reason != ReasonAlreadyBooked {
		t.Fatalf("the assigned DJ should be booked: %+v", search)
	}
}

func TestListBookingsFilters(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	confirmed := h.seedBooking(t, nil)
	h.seedBooking(t, func(b *store.Booking) { b.Status = store.BookingStatusCompleted })

	status := store.BookingStatusConfirmed
	bookings, err := h.engine.ListBookings(ctx, store.BookingFilters{Status: &status, OrderBy: "id; DROP TABLE bookings"})
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if len(bookings) != 1 || bookings[0].ID != confirmed.ID {
		t.Fatalf("expected only the confirmed booking, got %d", len(bookings))
	}

	_, err = h.engine.ListBookings(ctx, store.BookingFilters{Limit: -1})
	requireKind(t, err, KindValidation)

	h.gate.admin = false
	_, err = h.engine.ListBookings(ctx, store.BookingFilters{})
	requireKind(t, err, KindPermission)
}

func TestReplaceAvailability(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	windows, err := h.engine.ReplaceAvailability(ctx, h.dj.ID, []WeeklyWindow{
		{DayOfWeek: time.Saturday, StartTime: "18:00", EndTime: "24:00"},
		{DayOfWeek: time.Friday, StartTime: "18:00", EndTime: "23:00"},
		{DayOfWeek: time.Saturday, StartTime: "14:00", EndTime: "18:00"},
	})
	if err != nil {
		t.Fatalf("ReplaceAvailability: %v", err)
	}
	if len(windows) != 3 || windows[0].DayOfWeek != time.Friday || windows[1].StartTime != "14:00" {
		t.Fatalf("unexpected windows %+v", windows)
	}

	// touching windows are not stitched: 17:00-20:00 spans both Saturday windows
	search, err := h.engine.SearchAvailability(ctx, AvailabilityQuery{Date: saturday, StartTime: "17:00", EndTime: "20:00", ExcludeStaffIDs: []string{h.employee.ID}})
	if err != nil {
		t.Fatalf("SearchAvailability: %v", err)
	}
	if len(search.Unavailable) != 1 || search.Unavailable[0].Reason != ReasonNoAvailability {
		t.Fatalf("expected NO_AVAILABILITY, got %+v", search)
	}

	_, err = h.engine.ReplaceAvailability(ctx, h.dj.ID, []WeeklyWindow{
		{DayOfWeek: time.Saturday, StartTime: "14:00", EndTime: "19:00"},
		{DayOfWeek: time.Saturday, StartTime: "18:00", EndTime: "24:00"},
	})
	requireKind(t, err, KindValidation)
	_, err = h.engine.ReplaceAvailability(ctx, h.dj.ID, []WeeklyWindow{{DayOfWeek: 7, StartTime: "18:00", EndTime: "23:00"}})
	requireKind(t, err, KindValidation)
	_, err = h.engine.ReplaceAvailability(ctx, "stf_missing", nil)
	requireKind(t, err, KindNotFound)
}

func TestReplaceOwnAvailability(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gate.admin = false

	h.gate.actorID = "usr_dj"
	windows, err := h.engine.ReplaceAvailability(ctx, "", []WeeklyWindow{{DayOfWeek: time.Sunday, StartTime: "12:00", EndTime: "16:00"}})
	if err != nil {
		t.Fatalf("ReplaceAvailability: %v", err)
	}
	if len(windows) != 1 || windows[0].StaffProfileID != h.dj.ID {
		t.Fatalf("unexpected windows %+v", windows)
	}

	_, err = h.engine.ReplaceAvailability(ctx, h.employee.ID, nil)
	requireKind(t, err, KindPermission)

	h.gate.actorID = "usr_client"
	_, err = h.engine.ReplaceAvailability(ctx, "", nil)
	requireKind(t, err, KindPermission)
}

// PAYROLL

func TestRunPayrollFromCompletedBookings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedBooking(t, func(b *store.Booking) {
		b.ProviderID = strPtr(h.employee.ID)
		b.Status = store.BookingStatusCompleted
		b.StartTime, b.EndTime = "16:00", "24:00"
	})

	record, err := h.engine.RunPayroll(ctx, PayrollRun{
		StaffID:     h.employee.ID,
		PeriodStart: testDate(2024, 6, 1),
		PeriodEnd:   testDate(2024, 6, 15),
	})
	if err != nil {
		t.Fatalf("RunPayroll: %v", err)
	}
	if !record.HoursWorked.Equal(decimal.NewFromInt(8)) || record.EventsCompleted != 1 {
		t.Fatalf("derived %s hours / %d events", record.HoursWorked, record.EventsCompleted)
	}
	if record.GrossPay != 90000 || record.NetPay != 67815 || record.TotalEmployerTax != 10755 {
		t.Fatalf("unexpected payroll amounts %+v", record)
	}
	if record.StatementURI == nil || len(h.archive.objects) != 1 {
		t.Fatalf("statement should be archived")
	}
	link, err := h.engine.PayrollStatementLink(ctx, record.ID)
	if err != nil {
		t.Fatalf("PayrollStatementLink: %v", err)
	}
	if !strings.Contains(link, h.employee.ID) {
		t.Fatalf("unexpected link %q", link)
	}
	_, err = h.engine.PayrollStatementLink(ctx, "pay_missing")
	requireKind(t, err, KindNotFound)

	_, err = h.engine.RunPayroll(ctx, PayrollRun{StaffID: h.employee.ID, PeriodStart: testDate(2024, 6, 1), PeriodEnd: testDate(2024, 6, 15)})
	requireKind(t, err, KindStateConflict)
	if ReasonOf(err) != "Payroll already exists for this staff member and pay period" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}

	history, err := h.engine.PayrollHistory(ctx, h.employee.ID)
	if err != nil {
		t.Fatalf("PayrollHistory: %v", err)
	}
	if len(history) != 1 || history[0].ID != record.ID {
		t.Fatalf("unexpected payroll history %+v", history)
	}

	paid, err := h.engine.MarkPayrollPaid(ctx, record.ID)
	if err != nil {
		t.Fatalf("MarkPayrollPaid: %v", err)
	}
	if paid.Status != store.PayrollStatusPaid {
		t.Fatalf("expected PAID, got %s", paid.Status)
	}
	_, err = h.engine.MarkPayrollPaid(ctx, record.ID)
	requireKind(t, err, KindStateConflict)
}

func TestRunPayrollRejectsContractors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	hours, events := decimal.NewFromInt(4), 1

	_, err := h.engine.RunPayroll(ctx, PayrollRun{
		StaffID: h.dj.ID, PeriodStart: testDate(2024, 6, 1), PeriodEnd: testDate(2024, 6, 15),
		HoursWorked: &hours, EventsCompleted: &events,
	})
	requireKind(t, err, KindValidation)

	_, err = h.engine.RunPayroll(ctx, PayrollRun{StaffID: h.employee.ID, PeriodStart: testDate(2024, 6, 15), PeriodEnd: testDate(2024, 6, 1)})
	requireKind(t, err, KindValidation)
}

package postgresql

import (
	"context"
	"errors"
	"testing"
	"time"

	"djhub-api/res/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *storeImpl {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A single connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := New(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }

func testDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newBooking(providerID *string, day time.Time, start, end string, status store.BookingStatus) *store.Booking {
	return &store.Booking{
		ID:          uuid.New().String(),
		ClientID:    "usr_client",
		ProviderID:  providerID,
		EventType:   "wedding",
		EventDate:   datatypes.Date(day),
		StartTime:   start,
		EndTime:     end,
		QuotedPrice: 10000,
		Currency:    "USD",
		Status:      status,
	}
}

func TestBookingUpdateRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	booking := newBooking(nil, testDay(2026, 10, 17), "20:00", "23:00", store.BookingStatusPendingReview)
	if err := s.Bookings().Create(ctx, booking); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := s.Bookings().Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := s.Bookings().Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	first.Status = store.BookingStatusAdminReviewing
	if err := s.Bookings().Update(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version 2 after update, got %d", first.Version)
	}

	second.Status = store.BookingStatusCancelled
	err = s.Bookings().Update(ctx, second)
	if !errors.Is(err, store.ErrStaleVersion) {
		t.Fatalf("expected stale version error, got %v", err)
	}

	stored, err := s.Bookings().Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != store.BookingStatusAdminReviewing {
		t.Fatalf("stale write leaked: status %s", stored.Status)
	}
}

func TestBookingGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Bookings().Get(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListActiveByProviders(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := testDay(2026, 10, 17)
	providerA, providerB := "stf_a", "stf_b"

	fixtures := []*store.Booking{
		newBooking(&providerA, day, "20:00", "23:00", store.BookingStatusConfirmed),
		newBooking(&providerA, day, "12:00", "14:00", store.BookingStatusCancelled),
		newBooking(&providerB, day.AddDate(0, 0, 1), "20:00", "23:00", store.BookingStatusStaffAssigned),
		newBooking(&providerB, day, "18:00", "19:00", store.BookingStatusStaffAssigned),
		newBooking(&providerB, day, "09:00", "10:00", store.BookingStatusCompleted),
	}
	for _, booking := range fixtures {
		if err := s.Bookings().Create(ctx, booking); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.Bookings().ListActiveByProviders(ctx, day, []string{providerA, providerB, "stf_c"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(got[providerA]) != 1 || got[providerA][0].StartTime != "20:00" {
		t.Fatalf("unexpected bookings for A: %+v", got[providerA])
	}
	if len(got[providerB]) != 1 || got[providerB][0].StartTime != "18:00" {
		t.Fatalf("unexpected bookings for B: %+v", got[providerB])
	}
	if len(got["stf_c"]) != 0 {
		t.Fatalf("expected no bookings for C, got %d", len(got["stf_c"]))
	}
}

func TestRunInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	booking := newBooking(nil, testDay(2026, 10, 17), "20:00", "23:00", store.BookingStatusPendingReview)
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return err
		}
		if err := tx.AuditRecords().Record(ctx, "usr_admin", "booking.requested", booking.ID, nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := s.Bookings().Get(ctx, booking.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("booking survived rollback: %v", err)
	}
	records, err := s.AuditRecords().ListBySubject(ctx, booking.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("audit record survived rollback")
	}
}

func TestPayrollDuplicatePeriodRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	newRecord := func(gross int64) *store.PayrollRecord {
		return &store.PayrollRecord{
			ID:             uuid.New().String(),
			StaffProfileID: "stf_a",
			PayPeriodStart: datatypes.Date(testDay(2026, 10, 1)),
			PayPeriodEnd:   datatypes.Date(testDay(2026, 10, 15)),
			HoursWorked:    decimal.NewFromInt(40),
			Currency:       "USD",
			GrossPay:       gross,
			Status:         store.PayrollStatusPending,
		}
	}

	first := newRecord(90000)
	if err := s.Payrolls().Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.Payrolls().Create(ctx, newRecord(12345))
	if !errors.Is(err, store.ErrUniqueViolation) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	stored, err := s.Payrolls().Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.GrossPay != 90000 {
		t.Fatalf("first record mutated: gross %d", stored.GrossPay)
	}
	if !stored.HoursWorked.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected hours %s", stored.HoursWorked)
	}
}

func TestPayrollMarkPaidOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	record := &store.PayrollRecord{
		ID:             uuid.New().String(),
		StaffProfileID: "stf_a",
		PayPeriodStart: datatypes.Date(testDay(2026, 9, 1)),
		PayPeriodEnd:   datatypes.Date(testDay(2026, 9, 30)),
		HoursWorked:    decimal.NewFromInt(10),
		Currency:       "USD",
		Status:         store.PayrollStatusPending,
	}
	if err := s.Payrolls().Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC()
	if err := s.Payrolls().MarkPaid(ctx, record.ID, now); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := s.Payrolls().MarkPaid(ctx, record.ID, now); !errors.Is(err, store.ErrStaleVersion) {
		t.Fatalf("expected second mark paid to fail, got %v", err)
	}
}

func TestStaffProfileWindowsOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	profile := &store.StaffProfile{
		ID:          "stf_a",
		UserID:      "usr_a",
		DisplayName: "DJ A",
		Currency:    "USD",
		IsActive:    true,
	}
	if err := s.StaffProfiles().Create(ctx, profile); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	windows := []*store.Availability{
		{DayOfWeek: time.Saturday, StartTime: "18:00", EndTime: "23:00"},
		{DayOfWeek: time.Friday, StartTime: "20:00", EndTime: "23:59"},
		{DayOfWeek: time.Saturday, StartTime: "10:00", EndTime: "14:00"},
	}
	if err := s.Availability().ReplaceForStaffProfile(ctx, profile.ID, windows); err != nil {
		t.Fatalf("replace windows: %v", err)
	}

	got, err := s.StaffProfiles().Get(ctx, profile.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if len(got.Availability) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(got.Availability))
	}
	if got.Availability[0].DayOfWeek != time.Friday || got.Availability[1].StartTime != "10:00" {
		t.Fatalf("windows out of order: %+v %+v", got.Availability[0], got.Availability[1])
	}
}

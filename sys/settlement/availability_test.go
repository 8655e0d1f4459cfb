package settlement

import (
	"testing"
	"time"

	"djhub-api/res/store"
)

func testDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// 2024-06-15 is a Saturday
var saturday = testDate(2024, 6, 15)

func staffWithWindow(id string, rating float64, events int, start, end string) *store.StaffProfile {
	return &store.StaffProfile{
		ID:              id,
		UserID:          "usr_" + id,
		DisplayName:     id,
		AverageRating:   rating,
		CompletedEvents: events,
		IsActive:        true,
		IsAcceptingWork: true,
		Availability: []*store.Availability{
			{ID: "avl_" + id, StaffProfileID: id, DayOfWeek: time.Saturday, StartTime: start, EndTime: end},
		},
	}
}

func activeBooking(id, providerID, start, end string, status store.BookingStatus) *store.Booking {
	return &store.Booking{ID: id, ProviderID: strPtr(providerID), StartTime: start, EndTime: end, Status: status}
}

func saturdayQuery(start, end string) AvailabilityQuery {
	return AvailabilityQuery{Date: saturday, StartTime: start, EndTime: end}
}

func TestMatchAvailabilityPartitionsAndRanks(t *testing.T) {
	staff := []*store.StaffProfile{
		staffWithWindow("a", 4.5, 10, "18:00", "23:00"),
		staffWithWindow("b", 4.9, 3, "17:00", "24:00"),
		staffWithWindow("c", 4.5, 20, "18:00", "23:00"),
		staffWithWindow("d", 5.0, 50, "12:00", "19:00"),
		staffWithWindow("e", 5.0, 50, "18:00", "23:00"),
	}
	bookings := map[string][]*store.Booking{
		"e": {activeBooking("bk_e", "e", "21:00", "22:00", store.BookingStatusConfirmed)},
	}

	result, err := MatchAvailability(saturdayQuery("19:00", "22:00"), staff, bookings)
	if err != nil {
		t.Fatalf("MatchAvailability: %v", err)
	}

	var order []string
	for _, candidate := range result.Available {
		order = append(order, candidate.Staff.ID)
	}
	want := []string{"b", "c", "a"}
	if len(order) != len(want) {
		t.Fatalf("available = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("available = %v, want %v", order, want)
		}
	}

	reasons := map[string]UnavailableReason{}
	for _, u := range result.Unavailable {
		reasons[u.Staff.ID] = u.Reason
	}
	if reasons["d"] != ReasonNoAvailability || reasons["e"] != ReasonAlreadyBooked {
		t.Fatalf("unexpected reasons %v", reasons)
	}
}

func TestMatchAvailabilityIgnoresInactiveAndCancelledBookings(t *testing.T) {
	inactive := staffWithWindow("x", 5, 0, "18:00", "23:00")
	inactive.IsActive = false
	resting := staffWithWindow("y", 5, 0, "18:00", "23:00")
	resting.IsAcceptingWork = false
	free := staffWithWindow("z", 5, 0, "18:00", "23:00")

	bookings := map[string][]*store.Booking{
		"z": {
			activeBooking("bk_1", "z", "19:00", "20:00", store.BookingStatusCancelled),
			activeBooking("bk_2", "z", "19:00", "20:00", store.BookingStatusCompleted),
		},
	}

	result, err := MatchAvailability(saturdayQuery("19:00", "22:00"), []*store.StaffProfile{inactive, resting, free}, bookings)
	if err != nil {
		t.Fatalf("MatchAvailability: %v", err)
	}
	if len(result.Available) != 1 || result.Available[0].Staff.ID != "z" {
		t.Fatalf("expected only z available, got %+v", result.Available)
	}
	if len(result.Unavailable) != 1 || result.Unavailable[0].Reason != ReasonNotAcceptingWork {
		t.Fatalf("expected y not accepting work, got %+v", result.Unavailable)
	}
}

func TestMatchAvailabilityTouchingBookingConflicts(t *testing.T) {
	staff := []*store.StaffProfile{staffWithWindow("a", 5, 0, "12:00", "24:00")}
	bookings := map[string][]*store.Booking{
		"a": {activeBooking("bk_1", "a", "17:00", "19:00", store.BookingStatusStaffAssigned)},
	}

	result, err := MatchAvailability(saturdayQuery("19:00", "22:00"), staff, bookings)
	if err != nil {
		t.Fatalf("MatchAvailability: %v", err)
	}
	if len(result.Available) != 0 || result.Unavailable[0].Message != "already booked" {
		t.Fatalf("back-to-back booking should conflict, got %+v", result)
	}

	q := saturdayQuery("19:00", "22:00")
	q.IgnoreBookingID = "bk_1"
	result, _ = MatchAvailability(q, staff, bookings)
	if len(result.Available) != 1 {
		t.Fatalf("the booking being staffed must not conflict with itself")
	}
}

func TestMatchAvailabilityNeedsSingleWindow(t *testing.T) {
	profile := staffWithWindow("a", 5, 0, "18:00", "20:00")
	profile.Availability = append(profile.Availability,
		&store.Availability{ID: "avl_a2", StaffProfileID: "a", DayOfWeek: time.Saturday, StartTime: "20:00", EndTime: "23:00"})

	result, err := MatchAvailability(saturdayQuery("19:00", "22:00"), []*store.StaffProfile{profile}, nil)
	if err != nil {
		t.Fatalf("MatchAvailability: %v", err)
	}
	if len(result.Available) != 0 || result.Unavailable[0].Reason != ReasonNoAvailability {
		t.Fatalf("adjacent windows must not be stitched, got %+v", result)
	}
}

func TestMatchAvailabilityExcludesStaff(t *testing.T) {
	staff := []*store.StaffProfile{
		staffWithWindow("a", 5, 0, "18:00", "23:00"),
		staffWithWindow("b", 4, 0, "18:00", "23:00"),
	}
	q := saturdayQuery("19:00", "22:00")
	q.ExcludeStaffIDs = []string{"a"}

	result, err := MatchAvailability(q, staff, nil)
	if err != nil {
		t.Fatalf("MatchAvailability: %v", err)
	}
	if len(result.Available) != 1 || result.Available[0].Staff.ID != "b" || len(result.Unavailable) != 0 {
		t.Fatalf("excluded staff must not appear, got %+v", result)
	}
}

func TestMatchAvailabilityRejectsBadWindow(t *testing.T) {
	_, err := MatchAvailability(saturdayQuery("22:00", "19:00"), nil, nil)
	requireKind(t, err, KindValidation)
}

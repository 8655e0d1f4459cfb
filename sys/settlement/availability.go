package settlement

import (
	"sort"
	"time"

	"djhub-api/res/store"
)

type UnavailableReason string

const (
	ReasonNoAvailability   UnavailableReason = "NO_AVAILABILITY"
	ReasonAlreadyBooked    UnavailableReason = "ALREADY_BOOKED"
	ReasonNotAcceptingWork UnavailableReason = "NOT_ACCEPTING_WORK"
)

var reasonMessages = map[UnavailableReason]string{
	ReasonNoAvailability:   "no availability for this day/time",
	ReasonAlreadyBooked:    "already booked",
	ReasonNotAcceptingWork: "not accepting work",
}

func (r UnavailableReason) Message() string {
	return reasonMessages[r]
}

// AvailabilityQuery is an event window to staff
type AvailabilityQuery struct {
	Date      time.Time `json:"date"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	EventType string    `json:"eventType,omitempty"`

	// ExcludeStaffIDs are left out of the result entirely
	ExcludeStaffIDs []string `json:"excludeStaffIds,omitempty"`
	// IgnoreBookingID is not counted as a conflict (the booking being staffed)
	IgnoreBookingID string `json:"ignoreBookingId,omitempty"`
}

type AvailableStaff struct {
	Staff   *store.StaffProfile `json:"staff"`
	Windows []Interval          `json:"windows"`
}

type UnavailableStaff struct {
	Staff   *store.StaffProfile `json:"staff"`
	Reason  UnavailableReason   `json:"reason"`
	Message string              `json:"message"`
}

type AvailabilityResult struct {
	Available   []AvailableStaff   `json:"available"`
	Unavailable []UnavailableStaff `json:"unavailable"`
}

// MatchAvailability partitions staff for the requested window. The event has to fit
// inside a single weekly window; adjacent windows are not stitched together.
// bookings holds the STAFF_ASSIGNED and CONFIRMED bookings of that day, keyed by staff ID.
func MatchAvailability(q AvailabilityQuery, staff []*store.StaffProfile, bookings map[string][]*store.Booking) (AvailabilityResult, error) {
	requested, err := ParseInterval(q.StartTime, q.EndTime)
	if err != nil {
		return AvailabilityResult{}, validationError("Invalid event window: %s", err)
	}
	day := q.Date.Weekday()

	excluded := make(map[string]bool, len(q.ExcludeStaffIDs))
	for _, id := range q.ExcludeStaffIDs {
		excluded[id] = true
	}

	result := AvailabilityResult{
		Available:   []AvailableStaff{},
		Unavailable: []UnavailableStaff{},
	}
	for _, profile := range staff {
		if !profile.IsActive || excluded[profile.ID] {
			continue
		}
		if !profile.IsAcceptingWork {
			result.Unavailable = append(result.Unavailable, unavailable(profile, ReasonNotAcceptingWork))
			continue
		}

		var matched []Interval
		for _, window := range profile.Availability {
			if window.DayOfWeek != day {
				continue
			}
			interval, err := ParseInterval(window.StartTime, window.EndTime)
			if err != nil {
				// a malformed window never qualifies
				continue
			}
			if interval.Contains(requested) {
				matched = append(matched, interval)
			}
		}
		if len(matched) == 0 {
			result.Unavailable = append(result.Unavailable, unavailable(profile, ReasonNoAvailability))
			continue
		}

		if hasConflict(requested, bookings[profile.ID], q.IgnoreBookingID) {
			result.Unavailable = append(result.Unavailable, unavailable(profile, ReasonAlreadyBooked))
			continue
		}

		result.Available = append(result.Available, AvailableStaff{Staff: profile, Windows: matched})
	}

	RankCandidates(result.Available)
	return result, nil
}

// RankCandidates orders by rating, then completed events, both descending.
// ID breaks remaining ties so the order is deterministic.
func RankCandidates(candidates []AvailableStaff) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Staff, candidates[j].Staff
		if a.AverageRating != b.AverageRating {
			return a.AverageRating > b.AverageRating
		}
		if a.CompletedEvents != b.CompletedEvents {
			return a.CompletedEvents > b.CompletedEvents
		}
		return a.ID < b.ID
	})
}

func hasConflict(requested Interval, existing []*store.Booking, ignoreBookingID string) bool {
	for _, booking := range existing {
		if booking.ID == ignoreBookingID {
			continue
		}
		if booking.Status != store.BookingStatusStaffAssigned && booking.Status != store.BookingStatusConfirmed {
			continue
		}
		interval, err := ParseInterval(booking.StartTime, booking.EndTime)
		if err != nil {
			// unparseable bookings block the whole day rather than being ignored
			return true
		}
		if interval.Overlaps(requested) {
			return true
		}
	}
	return false
}

func unavailable(profile *store.StaffProfile, reason UnavailableReason) UnavailableStaff {
	return UnavailableStaff{Staff: profile, Reason: reason, Message: reason.Message()}
}

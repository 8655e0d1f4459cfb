package settlement

import (
	"context"
	"errors"
	"sort"
	"time"

	"djhub-api/res/store"
)

// WeeklyWindow is one recurring window of a DJ's schedule
type WeeklyWindow struct {
	DayOfWeek time.Weekday `json:"dayOfWeek"`
	StartTime string       `json:"startTime"`
	EndTime   string       `json:"endTime"`
	Notes     string       `json:"notes,omitempty"`
}

// SearchAvailability matches every active DJ against an event window
func (e *Engine) SearchAvailability(ctx context.Context, q AvailabilityQuery) (result *AvailabilityResult, err error) {
	ctx, span := e.startSpan(ctx, "SearchAvailability", "")
	defer func() { endSpan(span, err) }()

	if _, err := e.gate.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if q.Date.IsZero() {
		return nil, validationError("Date is required")
	}
	q.Date = startOfDay(q.Date)
	return e.matchActiveStaff(ctx, q)
}

// SuggestReplacements ranks DJs who could take over a booking from its current DJ
func (e *Engine) SuggestReplacements(ctx context.Context, bookingID string) (result *AvailabilityResult, err error) {
	ctx, span := e.startSpan(ctx, "SuggestReplacements", bookingID)
	defer func() { endSpan(span, err) }()

	if _, err := e.gate.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	b, err := e.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return nil, conflictError("Booking is %s", b.Status)
	}

	q := AvailabilityQuery{
		Date:            b.Day(),
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		EventType:       b.EventType,
		IgnoreBookingID: b.ID,
	}
	if b.ProviderID != nil {
		q.ExcludeStaffIDs = []string{*b.ProviderID}
	}
	return e.matchActiveStaff(ctx, q)
}

// matchActiveStaff loads the staff and the day's bookings in one read each
func (e *Engine) matchActiveStaff(ctx context.Context, q AvailabilityQuery) (*AvailabilityResult, error) {
	staff, err := e.store.StaffProfiles().ListActive(ctx)
	if err != nil {
		e.logger.Printf("Error listing active staff: %s", err)
		return nil, err
	}

	ids := make([]string, 0, len(staff))
	for _, profile := range staff {
		ids = append(ids, profile.ID)
	}

	var bookings map[string][]*store.Booking
	if len(ids) > 0 {
		bookings, err = e.store.Bookings().ListActiveByProviders(ctx, q.Date, ids)
		if err != nil {
			e.logger.Printf("Error listing bookings for %s: %s", q.Date.Format("2006-01-02"), err)
			return nil, err
		}
	}

	result, err := MatchAvailability(q, staff, bookings)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ReplaceAvailability swaps the weekly schedule of a DJ. An empty staffID means the
// profile of the acting DJ; any other profile requires an admin.
func (e *Engine) ReplaceAvailability(ctx context.Context, staffID string, windows []WeeklyWindow) (result []*store.Availability, err error) {
	ctx, span := e.startSpan(ctx, "ReplaceAvailability", staffID)
	defer func() { endSpan(span, err) }()

	var actorID string
	if staffID == "" {
		actorID, err = e.gate.CurrentActor(ctx)
		if err != nil {
			return nil, err
		}
		profile, err := e.store.StaffProfiles().GetByUserID(ctx, actorID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, PermissionDenied("Only DJs have a weekly schedule")
		}
		if err != nil {
			e.logger.Printf("Error retrieving staff profile of user %s: %s", actorID, err)
			return nil, err
		}
		staffID = profile.ID
	} else {
		actorID, err = e.gate.RequireAdmin(ctx)
		if err != nil {
			return nil, err
		}
	}

	rows, err := validateWeeklyWindows(windows)
	if err != nil {
		return nil, err
	}

	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		if _, err := e.getStaff(ctx, tx.StaffProfiles(), staffID, true); err != nil {
			return err
		}
		if err := tx.Availability().ReplaceForStaffProfile(ctx, staffID, rows); err != nil {
			e.logger.Printf("Error replacing availability of %s: %s", staffID, err)
			return err
		}
		result, err = tx.Availability().ListByStaffProfile(ctx, staffID)
		if err != nil {
			return err
		}
		return e.audit(ctx, tx, actorID, "staff.availability_replaced", staffID, map[string]interface{}{
			"windows": len(rows),
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validateWeeklyWindows rejects malformed windows and windows overlapping on the same day.
// Windows that only touch are fine; they are still matched one at a time.
func validateWeeklyWindows(windows []WeeklyWindow) ([]*store.Availability, error) {
	type parsed struct {
		day      time.Weekday
		interval Interval
	}

	all := make([]parsed, 0, len(windows))
	rows := make([]*store.Availability, 0, len(windows))
	for _, w := range windows {
		if w.DayOfWeek < time.Sunday || w.DayOfWeek > time.Saturday {
			return nil, validationError("Day of week must be between 0 (Sunday) and 6 (Saturday)")
		}
		interval, err := ParseInterval(w.StartTime, w.EndTime)
		if err != nil {
			return nil, validationError("Invalid window on %s: %s", w.DayOfWeek, err)
		}
		all = append(all, parsed{day: w.DayOfWeek, interval: interval})
		rows = append(rows, &store.Availability{
			DayOfWeek: w.DayOfWeek,
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
			Notes:     w.Notes,
		})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].day != all[j].day {
			return all[i].day < all[j].day
		}
		return all[i].interval.Start < all[j].interval.Start
	})
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if prev.day == cur.day && cur.interval.Start < prev.interval.End {
			return nil, validationError("Windows %s and %s on %s overlap", prev.interval, cur.interval, cur.day)
		}
	}
	return rows, nil
}

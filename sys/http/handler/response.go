package handler

import (
	"time"

	"djhub-api/res/store"
	"djhub-api/sys/settlement"
)

// Response bodies. Store records carry persistence tags only, so every record is
// mapped onto a JSON shape here.

type bookingJSON struct {
	ID                  string     `json:"id"`
	ClientID            string     `json:"clientId"`
	ProviderID          *string    `json:"providerId"`
	RequestedProviderID *string    `json:"requestedProviderId"`
	EventType           string     `json:"eventType"`
	EventDate           string     `json:"eventDate"`
	StartTime           string     `json:"startTime"`
	EndTime             string     `json:"endTime"`
	Notes               string     `json:"notes,omitempty"`
	QuotedPrice         int64      `json:"quotedPrice"`
	Currency            string     `json:"currency"`
	Status              string     `json:"status"`
	IsPaid              bool       `json:"isPaid"`
	PaidAt              *time.Time `json:"paidAt"`
	EscrowStatus        string     `json:"escrowStatus"`
	PayoutStatus        string     `json:"payoutStatus"`
	PayoutAmount        *int64     `json:"payoutAmount"`
	PayoutReference     *string    `json:"payoutReference"`
	RefundAmount        *int64     `json:"refundAmount"`
	RefundReference     *string    `json:"refundReference"`
	PendingSettlement   string     `json:"pendingSettlement,omitempty"`
	DisputeStatus       string     `json:"disputeStatus"`
	DisputeReason       string     `json:"disputeReason,omitempty"`
	DisputeResolution   *string    `json:"disputeResolution"`
	CancellationReason  string     `json:"cancellationReason,omitempty"`
	Version             int64      `json:"version"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func toBookingJSON(b *store.Booking) *bookingJSON {
	if b == nil {
		return nil
	}
	return &bookingJSON{
		ID:                  b.ID,
		ClientID:            b.ClientID,
		ProviderID:          b.ProviderID,
		RequestedProviderID: b.RequestedProviderID,
		EventType:           b.EventType,
		EventDate:           time.Time(b.EventDate).Format(time.DateOnly),
		StartTime:           b.StartTime,
		EndTime:             b.EndTime,
		Notes:               b.Notes,
		QuotedPrice:         b.QuotedPrice,
		Currency:            b.Currency,
		Status:              string(b.Status),
		IsPaid:              b.IsPaid,
		PaidAt:              b.PaidAt,
		EscrowStatus:        string(b.EscrowStatus),
		PayoutStatus:        string(b.PayoutStatus),
		PayoutAmount:        b.PayoutAmount,
		PayoutReference:     b.PayoutReference,
		RefundAmount:        b.RefundAmount,
		RefundReference:     b.RefundReference,
		PendingSettlement:   b.PendingSettlement,
		DisputeStatus:       string(b.DisputeStatus),
		DisputeReason:       b.DisputeReason,
		DisputeResolution:   b.DisputeResolution,
		CancellationReason:  b.CancellationReason,
		Version:             b.Version,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

type transactionJSON struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	ExternalReference string    `json:"externalReference"`
	ActorID           string    `json:"actorId"`
	Description       string    `json:"description,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type ledgerJSON struct {
	BookingID         string             `json:"bookingId"`
	Ledger            settlement.Ledger  `json:"ledger"`
	PendingSettlement string             `json:"pendingSettlement,omitempty"`
	Transactions      []*transactionJSON `json:"transactions"`
}

func toLedgerJSON(view *settlement.LedgerView) *ledgerJSON {
	out := &ledgerJSON{
		BookingID:         view.BookingID,
		Ledger:            view.Ledger,
		PendingSettlement: view.Pending,
		Transactions:      make([]*transactionJSON, 0, len(view.Transactions)),
	}
	for _, t := range view.Transactions {
		out.Transactions = append(out.Transactions, &transactionJSON{
			ID:                t.ID,
			Type:              string(t.Type),
			Amount:            t.Amount,
			Currency:          t.Currency,
			ExternalReference: t.ExternalReference,
			ActorID:           t.ActorID,
			Description:       t.Description,
			CreatedAt:         t.CreatedAt,
		})
	}
	return out
}

type staffJSON struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"displayName"`
	EmploymentType  string   `json:"employmentType"`
	AverageRating   float64  `json:"averageRating"`
	CompletedEvents int      `json:"completedEvents"`
	Windows         []string `json:"windows,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	Message         string   `json:"message,omitempty"`
}

type availabilityJSON struct {
	Available   []*staffJSON `json:"available"`
	Unavailable []*staffJSON `json:"unavailable"`
}

func toStaffJSON(p *store.StaffProfile) *staffJSON {
	return &staffJSON{
		ID:              p.ID,
		DisplayName:     p.DisplayName,
		EmploymentType:  string(p.EmploymentType),
		AverageRating:   p.AverageRating,
		CompletedEvents: p.CompletedEvents,
	}
}

func toAvailabilityJSON(result *settlement.AvailabilityResult) *availabilityJSON {
	out := &availabilityJSON{
		Available:   make([]*staffJSON, 0, len(result.Available)),
		Unavailable: make([]*staffJSON, 0, len(result.Unavailable)),
	}
	for _, a := range result.Available {
		s := toStaffJSON(a.Staff)
		for _, w := range a.Windows {
			s.Windows = append(s.Windows, w.String())
		}
		out.Available = append(out.Available, s)
	}
	for _, u := range result.Unavailable {
		s := toStaffJSON(u.Staff)
		s.Reason = string(u.Reason)
		s.Message = u.Message
		out.Unavailable = append(out.Unavailable, s)
	}
	return out
}

type windowJSON struct {
	ID        string `json:"id"`
	DayOfWeek int    `json:"dayOfWeek"`
	Day       string `json:"day"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Notes     string `json:"notes,omitempty"`
}

func toWindowsJSON(windows []*store.Availability) []*windowJSON {
	out := make([]*windowJSON, 0, len(windows))
	for _, w := range windows {
		out = append(out, &windowJSON{
			ID:        w.ID,
			DayOfWeek: int(w.DayOfWeek),
			Day:       w.DayOfWeek.String(),
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
			Notes:     w.Notes,
		})
	}
	return out
}

type payrollJSON struct {
	ID                     string     `json:"id"`
	StaffProfileID         string     `json:"staffProfileId"`
	PayPeriodStart         string     `json:"payPeriodStart"`
	PayPeriodEnd           string     `json:"payPeriodEnd"`
	HoursWorked            string     `json:"hoursWorked"`
	EventsCompleted        int        `json:"eventsCompleted"`
	Currency               string     `json:"currency"`
	HourlyRate             int64      `json:"hourlyRate"`
	EventBonus             int64      `json:"eventBonus"`
	GrossPay               int64      `json:"grossPay"`
	FederalTax             int64      `json:"federalTax"`
	StateTax               int64      `json:"stateTax"`
	EmployeeSocialSecurity int64      `json:"employeeSocialSecurity"`
	EmployeeMedicare       int64      `json:"employeeMedicare"`
	NetPay                 int64      `json:"netPay"`
	EmployerSocialSecurity int64      `json:"employerSocialSecurity"`
	EmployerMedicare       int64      `json:"employerMedicare"`
	EmployerFUTA           int64      `json:"employerFuta"`
	EmployerSUTA           int64      `json:"employerSuta"`
	WorkersComp            int64      `json:"workersComp"`
	TotalEmployerTax       int64      `json:"totalEmployerTax"`
	Status                 string     `json:"status"`
	PaidAt                 *time.Time `json:"paidAt"`
	HasStatement           bool       `json:"hasStatement"`
}

func toPayrollJSON(r *store.PayrollRecord) *payrollJSON {
	return &payrollJSON{
		ID:                     r.ID,
		StaffProfileID:         r.StaffProfileID,
		PayPeriodStart:         time.Time(r.PayPeriodStart).Format(time.DateOnly),
		PayPeriodEnd:           time.Time(r.PayPeriodEnd).Format(time.DateOnly),
		HoursWorked:            r.HoursWorked.StringFixed(2),
		EventsCompleted:        r.EventsCompleted,
		Currency:               r.Currency,
		HourlyRate:             r.HourlyRate,
		EventBonus:             r.EventBonus,
		GrossPay:               r.GrossPay,
		FederalTax:             r.FederalTax,
		StateTax:               r.StateTax,
		EmployeeSocialSecurity: r.EmployeeSocialSecurity,
		EmployeeMedicare:       r.EmployeeMedicare,
		NetPay:                 r.NetPay,
		EmployerSocialSecurity: r.EmployerSocialSecurity,
		EmployerMedicare:       r.EmployerMedicare,
		EmployerFUTA:           r.EmployerFUTA,
		EmployerSUTA:           r.EmployerSUTA,
		WorkersComp:            r.WorkersComp,
		TotalEmployerTax:       r.TotalEmployerTax,
		Status:                 string(r.Status),
		PaidAt:                 r.PaidAt,
		HasStatement:           r.StatementURI != nil,
	}
}

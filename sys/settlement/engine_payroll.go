package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"djhub-api/res/money"
	"djhub-api/res/store"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PayrollRun asks for the payroll of one employee and pay period.
// Hours and events default to what the employee's completed bookings in the period add up to.
type PayrollRun struct {
	StaffID         string           `json:"staffId"`
	PeriodStart     time.Time        `json:"periodStart"`
	PeriodEnd       time.Time        `json:"periodEnd"`
	HoursWorked     *decimal.Decimal `json:"hoursWorked,omitempty"`
	EventsCompleted *int             `json:"eventsCompleted,omitempty"`
}

var minutesPerHour = decimal.NewFromInt(60)

// RunPayroll computes and stores a PENDING payroll record, then archives its statement
func (e *Engine) RunPayroll(ctx context.Context, run PayrollRun) (record *store.PayrollRecord, err error) {
	ctx, span := e.startSpan(ctx, "RunPayroll", run.StaffID)
	defer func() { endSpan(span, err) }()

	actorID, err := e.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if run.PeriodStart.IsZero() || run.PeriodEnd.IsZero() {
		return nil, validationError("Pay period start and end are required")
	}
	start, end := startOfDay(run.PeriodStart), startOfDay(run.PeriodEnd)
	if end.Before(start) {
		return nil, validationError("Pay period end cannot be before its start")
	}

	staff, err := e.getStaff(ctx, e.store.StaffProfiles(), run.StaffID, false)
	if err != nil {
		return nil, err
	}
	if !staff.EmploymentType.IsEmployee() {
		return nil, validationError("Payroll only applies to employees; contractors are paid per booking")
	}
	hourlyRate, hasRate := staff.HourlyRateMoney()
	eventBonus, hasBonus := staff.EventBonusMoney()
	if !hasRate || !hasBonus {
		return nil, validationError("Hourly rate and event bonus must be set on the employee profile")
	}

	hours, events, err := e.workedInPeriod(ctx, staff.ID, start, end, run)
	if err != nil {
		return nil, err
	}

	breakdown, err := ComputePayroll(hours, events, hourlyRate, eventBonus, e.settings.Payroll)
	if err != nil {
		return nil, err
	}

	record = &store.PayrollRecord{
		ID:                     fmt.Sprintf("pay_%s", xid.New().String()),
		StaffProfileID:         staff.ID,
		PayPeriodStart:         datatypes.Date(start),
		PayPeriodEnd:           datatypes.Date(end),
		HoursWorked:            hours,
		EventsCompleted:        events,
		HourlyRate:             hourlyRate.Amount,
		EventBonus:             eventBonus.Amount,
		Currency:               hourlyRate.Currency,
		GrossPay:               breakdown.GrossPay.Amount,
		FederalTax:             breakdown.FederalTax.Amount,
		StateTax:               breakdown.StateTax.Amount,
		EmployeeSocialSecurity: breakdown.EmployeeSocialSecurity.Amount,
		EmployeeMedicare:       breakdown.EmployeeMedicare.Amount,
		NetPay:                 breakdown.NetPay.Amount,
		EmployerSocialSecurity: breakdown.EmployerSocialSecurity.Amount,
		EmployerMedicare:       breakdown.EmployerMedicare.Amount,
		EmployerFUTA:           breakdown.EmployerFUTA.Amount,
		EmployerSUTA:           breakdown.EmployerSUTA.Amount,
		WorkersComp:            breakdown.WorkersComp.Amount,
		TotalEmployerTax:       breakdown.TotalEmployerTax.Amount,
		Status:                 store.PayrollStatusPending,
	}

	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.Payrolls().Create(ctx, record); err != nil {
			if errors.Is(err, store.ErrUniqueViolation) {
				return conflictError("Payroll already exists for this staff member and pay period")
			}
			e.logger.Printf("Error creating payroll record: %s", err)
			return err
		}
		return e.audit(ctx, tx, actorID, "payroll.created", record.ID, map[string]interface{}{
			"staffId":     staff.ID,
			"periodStart": start.Format(time.DateOnly),
			"periodEnd":   end.Format(time.DateOnly),
			"grossPay":    moneyDetails(breakdown.GrossPay),
			"netPay":      moneyDetails(breakdown.NetPay),
		})
	})
	if err != nil {
		return nil, err
	}

	e.archiveStatement(ctx, staff, record)
	e.notify(ctx, staff.UserID, "payroll.created", map[string]interface{}{
		"payrollId": record.ID,
		"netPay":    moneyDetails(breakdown.NetPay),
	})
	return record, nil
}

// MarkPayrollPaid records that a PENDING payroll has been paid out of band
func (e *Engine) MarkPayrollPaid(ctx context.Context, payrollID string) (record *store.PayrollRecord, err error) {
	ctx, span := e.startSpan(ctx, "MarkPayrollPaid", payrollID)
	defer func() { endSpan(span, err) }()

	actorID, err := e.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		existing, err := tx.Payrolls().GetForUpdate(ctx, payrollID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("Payroll record not found")
		}
		if err != nil {
			e.logger.Printf("Error retrieving payroll record: %s", err)
			return err
		}
		if existing.Status == store.PayrollStatusPaid {
			return conflictError("Payroll has already been paid")
		}

		now := e.now()
		if err := tx.Payrolls().MarkPaid(ctx, existing.ID, now); err != nil {
			if errors.Is(err, store.ErrStaleVersion) {
				return conflictError("Payroll has already been paid")
			}
			e.logger.Printf("Error marking payroll %s paid: %s", existing.ID, err)
			return err
		}
		existing.Status = store.PayrollStatusPaid
		existing.PaidAt = &now
		record = existing
		return e.audit(ctx, tx, actorID, "payroll.paid", existing.ID, map[string]interface{}{
			"netPay": moneyDetails(money.New(existing.NetPay, existing.Currency)),
		})
	})
	if err != nil {
		return nil, err
	}

	e.notifyProvider(ctx, &record.StaffProfileID, "payroll.paid", map[string]interface{}{"payrollId": record.ID})
	return record, nil
}

// PayrollHistory lists the payroll records of an employee
func (e *Engine) PayrollHistory(ctx context.Context, staffID string) ([]*store.PayrollRecord, error) {
	if _, err := e.gate.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if _, err := e.getStaff(ctx, e.store.StaffProfiles(), staffID, false); err != nil {
		return nil, err
	}

	records, err := e.store.Payrolls().ListByStaffProfile(ctx, staffID)
	if err != nil {
		e.logger.Printf("Error listing payroll of %s: %s", staffID, err)
		return nil, err
	}
	return records, nil
}

const statementLinkExpiry = 15 * time.Minute

// PayrollStatementLink returns a short-lived download link for the archived statement of a payroll
func (e *Engine) PayrollStatementLink(ctx context.Context, payrollID string) (link string, err error) {
	ctx, span := e.startSpan(ctx, "PayrollStatementLink", payrollID)
	defer func() { endSpan(span, err) }()

	if _, err := e.gate.RequireAdmin(ctx); err != nil {
		return "", err
	}

	record, err := e.store.Payrolls().Get(ctx, payrollID)
	if errors.Is(err, store.ErrNotFound) {
		return "", notFoundError("Payroll record not found")
	}
	if err != nil {
		e.logger.Printf("Error retrieving payroll record: %s", err)
		return "", err
	}
	if e.archive == nil || record.StatementURI == nil {
		return "", notFoundError("Payroll statement has not been archived")
	}

	link, err = e.archive.StatementURL(ctx, *record.StatementURI, statementLinkExpiry)
	if err != nil {
		e.logger.Printf("Error signing statement of payroll %s: %s", payrollID, err)
		return "", err
	}
	return link, nil
}

// workedInPeriod fills in whatever the run did not state from completed bookings
func (e *Engine) workedInPeriod(ctx context.Context, staffID string, start, end time.Time, run PayrollRun) (decimal.Decimal, int, error) {
	if run.HoursWorked != nil && run.EventsCompleted != nil {
		return *run.HoursWorked, *run.EventsCompleted, nil
	}

	bookings, err := e.store.Bookings().ListCompletedByProvider(ctx, staffID, start, end)
	if err != nil {
		e.logger.Printf("Error listing completed bookings of %s: %s", staffID, err)
		return decimal.Zero, 0, err
	}

	minutes := int64(0)
	for _, b := range bookings {
		interval, err := ParseInterval(b.StartTime, b.EndTime)
		if err != nil {
			e.logger.Printf("Skipping booking %s with invalid event window in payroll: %s", b.ID, err)
			continue
		}
		minutes += int64(interval.Duration() / time.Minute)
	}

	hours := decimal.NewFromInt(minutes).Div(minutesPerHour).Round(2)
	events := len(bookings)
	if run.HoursWorked != nil {
		hours = *run.HoursWorked
	}
	if run.EventsCompleted != nil {
		events = *run.EventsCompleted
	}
	return hours, events, nil
}

// archiveStatement uploads the CSV statement. Failures are logged; the record stands without it.
func (e *Engine) archiveStatement(ctx context.Context, staff *store.StaffProfile, record *store.PayrollRecord) {
	if e.archive == nil {
		return
	}

	data, err := PayrollStatementCSV(staff, record)
	if err != nil {
		e.logger.Printf("Error rendering payroll statement %s: %s", record.ID, err)
		return
	}

	path := fmt.Sprintf("%s/%s/%s_%s.csv",
		e.settings.PayrollStatementKeyPrefix, staff.ID,
		time.Time(record.PayPeriodStart).Format(time.DateOnly),
		time.Time(record.PayPeriodEnd).Format(time.DateOnly),
	)
	uri, err := e.archive.UploadPayrollStatement(ctx, path, data)
	if err != nil {
		e.logger.Printf("Error archiving payroll statement %s: %s", record.ID, err)
		return
	}
	if err := e.store.Payrolls().SetStatementURI(ctx, record.ID, uri); err != nil {
		e.logger.Printf("Error saving statement URI of payroll %s: %s", record.ID, err)
		return
	}
	record.StatementURI = &uri
}

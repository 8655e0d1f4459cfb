package settlement

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"djhub-api/res/money"
	"djhub-api/res/store"
)

// PayrollStatementCSV renders a payroll record as a two-column line/amount statement
func PayrollStatementCSV(staff *store.StaffProfile, record *store.PayrollRecord) ([]byte, error) {
	amount := func(cents int64) string {
		return money.New(cents, record.Currency).String()
	}

	rows := [][]string{
		{"line", "value"},
		{"employee", staff.DisplayName},
		{"staff_id", staff.ID},
		{"period_start", time.Time(record.PayPeriodStart).Format(time.DateOnly)},
		{"period_end", time.Time(record.PayPeriodEnd).Format(time.DateOnly)},
		{"hours_worked", record.HoursWorked.StringFixed(2)},
		{"events_completed", strconv.Itoa(record.EventsCompleted)},
		{"hourly_rate", amount(record.HourlyRate)},
		{"event_bonus", amount(record.EventBonus)},
		{"gross_pay", amount(record.GrossPay)},
		{"federal_tax", amount(record.FederalTax)},
		{"state_tax", amount(record.StateTax)},
		{"social_security", amount(record.EmployeeSocialSecurity)},
		{"medicare", amount(record.EmployeeMedicare)},
		{"net_pay", amount(record.NetPay)},
		{"employer_social_security", amount(record.EmployerSocialSecurity)},
		{"employer_medicare", amount(record.EmployerMedicare)},
		{"employer_futa", amount(record.EmployerFUTA)},
		{"employer_suta", amount(record.EmployerSUTA)},
		{"workers_comp", amount(record.WorkersComp)},
		{"total_employer_tax", amount(record.TotalEmployerTax)},
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

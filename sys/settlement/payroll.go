package settlement

import (
	"djhub-api/res/money"

	"github.com/shopspring/decimal"
)

// PayrollBreakdown is the gross-to-net result for one pay period
type PayrollBreakdown struct {
	HourlyPay    money.Money `json:"hourlyPay"`
	EventBonuses money.Money `json:"eventBonuses"`
	GrossPay     money.Money `json:"grossPay"`

	FederalTax             money.Money `json:"federalTax"`
	StateTax               money.Money `json:"stateTax"`
	EmployeeSocialSecurity money.Money `json:"employeeSocialSecurity"`
	EmployeeMedicare       money.Money `json:"employeeMedicare"`
	NetPay                 money.Money `json:"netPay"`

	EmployerSocialSecurity money.Money `json:"employerSocialSecurity"`
	EmployerMedicare       money.Money `json:"employerMedicare"`
	EmployerFUTA           money.Money `json:"employerFuta"`
	EmployerSUTA           money.Money `json:"employerSuta"`
	WorkersComp            money.Money `json:"workersComp"`
	TotalEmployerTax       money.Money `json:"totalEmployerTax"`
}

// ComputePayroll turns hours and completed events into gross pay, withholdings and
// employer liabilities. Every line is rounded half-up to the cent on its own.
func ComputePayroll(hoursWorked decimal.Decimal, eventsCompleted int, hourlyRate, eventBonus money.Money, rates PayrollRates) (PayrollBreakdown, error) {
	if hoursWorked.IsNegative() {
		return PayrollBreakdown{}, validationError("Hours worked cannot be negative")
	}
	if eventsCompleted < 0 {
		return PayrollBreakdown{}, validationError("Events completed cannot be negative")
	}
	if hourlyRate.IsNegative() || eventBonus.IsNegative() {
		return PayrollBreakdown{}, validationError("Hourly rate and event bonus cannot be negative")
	}
	if hourlyRate.Currency != eventBonus.Currency {
		return PayrollBreakdown{}, validationError("Hourly rate and event bonus must share a currency")
	}

	var b PayrollBreakdown
	b.HourlyPay = hourlyRate.MulRate(hoursWorked)
	b.EventBonuses = eventBonus.Times(int64(eventsCompleted))
	b.GrossPay = money.New(b.HourlyPay.Amount+b.EventBonuses.Amount, hourlyRate.Currency)

	gross := b.GrossPay
	b.FederalTax = gross.MulRate(rates.FederalRate)
	b.StateTax = gross.MulRate(rates.StateRate)
	b.EmployeeSocialSecurity = gross.MulRate(rates.SocialSecurityEmployee)
	b.EmployeeMedicare = gross.MulRate(rates.MedicareEmployee)
	b.NetPay = money.New(
		gross.Amount-b.FederalTax.Amount-b.StateTax.Amount-b.EmployeeSocialSecurity.Amount-b.EmployeeMedicare.Amount,
		gross.Currency,
	)

	b.EmployerSocialSecurity = gross.MulRate(rates.SocialSecurityEmployer)
	b.EmployerMedicare = gross.MulRate(rates.MedicareEmployer)
	// the cap is a flat ceiling, not a wage base
	b.EmployerFUTA = gross.MulRate(rates.FUTARate).Min(money.New(rates.FUTACapPerPeriod, gross.Currency))
	b.EmployerSUTA = gross.MulRate(rates.SUTARate)
	b.WorkersComp = gross.MulRate(rates.WorkersCompRate)
	b.TotalEmployerTax = money.New(
		b.EmployerSocialSecurity.Amount+b.EmployerMedicare.Amount+b.EmployerFUTA.Amount+b.EmployerSUTA.Amount+b.WorkersComp.Amount,
		gross.Currency,
	)

	return b, nil
}

package settlement

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// PayrollRates is the jurisdiction and year dependent tax table
type PayrollRates struct {
	FederalRate            decimal.Decimal `envconfig:"FEDERAL_RATE" default:"0.12"`
	StateRate              decimal.Decimal `envconfig:"STATE_RATE" default:"0.05"`
	SocialSecurityEmployee decimal.Decimal `envconfig:"SS_EMPLOYEE_RATE" default:"0.062"`
	MedicareEmployee       decimal.Decimal `envconfig:"MEDICARE_EMPLOYEE_RATE" default:"0.0145"`
	SocialSecurityEmployer decimal.Decimal `envconfig:"SS_EMPLOYER_RATE" default:"0.062"`
	MedicareEmployer       decimal.Decimal `envconfig:"MEDICARE_EMPLOYER_RATE" default:"0.0145"`
	FUTARate               decimal.Decimal `envconfig:"FUTA_RATE" default:"0.006"`
	FUTACapPerPeriod       int64           `envconfig:"FUTA_CAP_CENTS" default:"4200"`
	SUTARate               decimal.Decimal `envconfig:"SUTA_RATE" default:"0.027"`
	WorkersCompRate        decimal.Decimal `envconfig:"WORKERS_COMP_RATE" default:"0.01"`
}

// Settings is read from SETTLEMENT_* environment variables
type Settings struct {
	Currency                  string          `envconfig:"CURRENCY" default:"USD"`
	PlatformFeePercentage     decimal.Decimal `envconfig:"PLATFORM_FEE_PERCENTAGE" default:"0"`
	DefaultContractorSplit    decimal.Decimal `envconfig:"DEFAULT_CONTRACTOR_SPLIT" default:"30"`
	ProcessorTimeout          time.Duration   `envconfig:"PROCESSOR_TIMEOUT" default:"15s"`
	EventTimezone             string          `envconfig:"EVENT_TIMEZONE" default:"UTC"`
	NotificationTimeout       time.Duration   `envconfig:"NOTIFICATION_TIMEOUT" default:"5s"`
	PayrollStatementKeyPrefix string          `envconfig:"PAYROLL_STATEMENT_PREFIX" default:"payroll"`

	Payroll PayrollRates `envconfig:"PAYROLL"`
}

func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process("SETTLEMENT", &s); err != nil {
		return Settings{}, fmt.Errorf("failed to read settlement settings: %w", err)
	}
	if _, err := time.LoadLocation(s.EventTimezone); err != nil {
		return Settings{}, fmt.Errorf("invalid SETTLEMENT_EVENT_TIMEZONE: %w", err)
	}
	return s, nil
}

// DefaultSettings returns the settings used when no environment overrides are present
func DefaultSettings() Settings {
	return Settings{
		Currency:                  "USD",
		PlatformFeePercentage:     decimal.Zero,
		DefaultContractorSplit:    decimal.NewFromInt(30),
		ProcessorTimeout:          15 * time.Second,
		EventTimezone:             "UTC",
		NotificationTimeout:       5 * time.Second,
		PayrollStatementKeyPrefix: "payroll",
		Payroll:                   DefaultPayrollRates(),
	}
}

func DefaultPayrollRates() PayrollRates {
	return PayrollRates{
		FederalRate:            decimal.RequireFromString("0.12"),
		StateRate:              decimal.RequireFromString("0.05"),
		SocialSecurityEmployee: decimal.RequireFromString("0.062"),
		MedicareEmployee:       decimal.RequireFromString("0.0145"),
		SocialSecurityEmployer: decimal.RequireFromString("0.062"),
		MedicareEmployer:       decimal.RequireFromString("0.0145"),
		FUTARate:               decimal.RequireFromString("0.006"),
		FUTACapPerPeriod:       4200,
		SUTARate:               decimal.RequireFromString("0.027"),
		WorkersCompRate:        decimal.RequireFromString("0.01"),
	}
}

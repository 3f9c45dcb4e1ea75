// Package risk scores a receipt Record with deterministic rule checks and
// fuses the result with the AI verdict.
package risk

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/TaranshG/Receipt-Identifer/internal/domain"
)

// Status of a single check.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Check names, in evaluation order.
const (
	CheckMerchant   = "merchant"
	CheckArithmetic = "arithmetic"
	CheckCurrency   = "currency"
	CheckAmounts    = "amounts_positive"
	CheckTaxRate    = "tax_rate"
	CheckDate       = "date"
)

const startScore = 100

// DefaultPrimaryCurrency gets the tighter tax-rate band.
const DefaultPrimaryCurrency = "CAD"

var allowedCurrencies = map[string]bool{"CAD": true, "USD": true, "EUR": true, "GBP": true}

var (
	arithmeticExact   = decimal.RequireFromString("0.02")
	arithmeticLoose   = decimal.RequireFromString("0.25")
	hundred           = decimal.NewFromInt(100)
	primaryTaxPass    = decimal.NewFromInt(15)
	primaryTaxWarn    = decimal.NewFromInt(20)
	secondaryTaxPass  = decimal.NewFromInt(27)
	secondaryTaxWarn  = decimal.NewFromInt(35)
	minMerchantLength = 3
)

// Check is one named rule outcome. Impact is the (non-positive) number of
// points it removed from the score.
type Check struct {
	Name        string `json:"name"`
	Status      Status `json:"status"`
	Impact      int    `json:"impact"`
	Description string `json:"description"`
}

// Assessment is the ordered list of checks plus the clamped score.
type Assessment struct {
	Checks []Check `json:"checks"`
	Score  int     `json:"score"`
}

// HasFailure reports whether any check failed.
func (a Assessment) HasFailure() bool {
	for _, c := range a.Checks {
		if c.Status == StatusFail {
			return true
		}
	}
	return false
}

// Engine holds the knobs the checks depend on.
type Engine struct {
	Now             func() time.Time
	PrimaryCurrency string
}

// NewEngine returns an Engine using the wall clock.
func NewEngine(primaryCurrency string) *Engine {
	return &Engine{Now: time.Now, PrimaryCurrency: primaryCurrency}
}

func (e *Engine) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) primary() string {
	if e == nil || e.PrimaryCurrency == "" {
		return DefaultPrimaryCurrency
	}
	return strings.ToUpper(e.PrimaryCurrency)
}

// ComputeChecks runs every check against r.
func (e *Engine) ComputeChecks(r domain.Record) Assessment {
	checks := []Check{
		checkMerchant(r),
		checkArithmetic(r),
		checkCurrency(r),
		checkAmounts(r),
		e.checkTaxRate(r),
		e.checkDate(r),
	}

	score := startScore
	for _, c := range checks {
		score += c.Impact
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return Assessment{Checks: checks, Score: score}
}

func pass(name, desc string) Check {
	return Check{Name: name, Status: StatusPass, Description: desc}
}

func warn(name string, impact int, desc string) Check {
	return Check{Name: name, Status: StatusWarn, Impact: -impact, Description: desc}
}

func fail(name string, impact int, desc string) Check {
	return Check{Name: name, Status: StatusFail, Impact: -impact, Description: desc}
}

func checkMerchant(r domain.Record) Check {
	name := strings.TrimSpace(r.Merchant)
	switch {
	case name == "":
		return fail(CheckMerchant, 20, "Merchant name is missing")
	case len([]rune(name)) < minMerchantLength:
		return warn(CheckMerchant, 10, fmt.Sprintf("Merchant name %q is unusually short", name))
	default:
		return pass(CheckMerchant, "Merchant name present")
	}
}

func checkArithmetic(r domain.Record) Check {
	diff := r.Subtotal.Add(r.Tax.Decimal).Sub(r.Total.Decimal).Abs()
	desc := fmt.Sprintf("subtotal %s + tax %s vs total %s (off by %s)", r.Subtotal, r.Tax, r.Total, diff.StringFixed(2))
	switch {
	case diff.LessThanOrEqual(arithmeticExact):
		return pass(CheckArithmetic, "Totals reconcile: "+desc)
	case diff.LessThanOrEqual(arithmeticLoose):
		return warn(CheckArithmetic, 10, "Totals nearly reconcile: "+desc)
	default:
		return fail(CheckArithmetic, 35, "Totals do not reconcile: "+desc)
	}
}

func checkCurrency(r domain.Record) Check {
	cur := strings.ToUpper(strings.TrimSpace(r.Currency))
	switch {
	case cur == "":
		return fail(CheckCurrency, 15, "Currency is missing")
	case !allowedCurrencies[cur]:
		return warn(CheckCurrency, 10, fmt.Sprintf("Currency %s is not one of CAD, USD, EUR or GBP", cur))
	default:
		return pass(CheckCurrency, "Currency "+cur+" recognised")
	}
}

func checkAmounts(r domain.Record) Check {
	if !r.Subtotal.IsPositive() || !r.Total.IsPositive() {
		return fail(CheckAmounts, 20, fmt.Sprintf("Subtotal %s and total %s must both be positive", r.Subtotal, r.Total))
	}
	return pass(CheckAmounts, "Subtotal and total are positive")
}

func (e *Engine) checkTaxRate(r domain.Record) Check {
	if r.Tax.IsNegative() {
		return fail(CheckTaxRate, 15, fmt.Sprintf("Tax %s is negative", r.Tax))
	}
	if !r.Subtotal.IsPositive() {
		return warn(CheckTaxRate, 5, "Tax rate cannot be computed without a positive subtotal")
	}

	passBand, warnBand := secondaryTaxPass, secondaryTaxWarn
	cur := strings.ToUpper(strings.TrimSpace(r.Currency))
	if cur == e.primary() {
		passBand, warnBand = primaryTaxPass, primaryTaxWarn
	}

	rate := r.Tax.Div(r.Subtotal.Decimal).Mul(hundred)
	desc := fmt.Sprintf("Tax rate %s%%", rate.StringFixed(1))
	switch {
	case rate.LessThanOrEqual(passBand):
		return pass(CheckTaxRate, desc+" is plausible")
	case rate.LessThanOrEqual(warnBand):
		return warn(CheckTaxRate, 5, desc+" is high")
	default:
		return fail(CheckTaxRate, 15, desc+" is implausible")
	}
}

func (e *Engine) checkDate(r domain.Record) Check {
	raw := strings.TrimSpace(r.Date)
	if raw == "" {
		return warn(CheckDate, 10, "Date is missing")
	}
	date, ok := parseDate(raw)
	if !ok {
		return warn(CheckDate, 10, fmt.Sprintf("Date %q is not in YYYY-MM-DD format", raw))
	}

	now := e.now().In(time.Local)
	today := civil.DateOf(now)
	switch {
	case date.After(today):
		return fail(CheckDate, 25, fmt.Sprintf("Date %s is in the future", date))
	case date.Before(civil.DateOf(now.AddDate(-1, 0, 0))):
		return warn(CheckDate, 5, fmt.Sprintf("Date %s is more than a year old", date))
	default:
		return pass(CheckDate, "Date "+date.String()+" is plausible")
	}
}

// parseDate is strict about the YYYY-MM-DD part and tolerates a trailing
// HH:MM clock separated by a space or 'T'.
func parseDate(s string) (civil.Date, bool) {
	if len(s) < 10 {
		return civil.Date{}, false
	}
	d, err := civil.ParseDate(s[:10])
	if err != nil {
		return civil.Date{}, false
	}
	rest := s[10:]
	if rest == "" {
		return d, true
	}
	if rest[0] != ' ' && rest[0] != 'T' {
		return civil.Date{}, false
	}
	clock := strings.TrimSpace(rest[1:])
	if len(clock) == 5 {
		clock += ":00"
	}
	if _, err := civil.ParseTime(clock); err != nil {
		return civil.Date{}, false
	}
	return d, true
}

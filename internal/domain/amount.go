package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value. Decoding is lenient: JSON numbers, numeric
// strings ("12.490", "$1,204.50") and anything unparsable all produce a
// value, the latter as zero.
type Amount struct {
	decimal.Decimal
}

// NewAmount builds an Amount from a decimal string, panicking on bad input.
// Intended for literals in code and tests.
func NewAmount(s string) Amount {
	return Amount{decimal.RequireFromString(s)}
}

// AmountFromFloat converts a float, mapping NaN and infinities to zero.
func AmountFromFloat(f float64) Amount {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Amount{}
	}
	return Amount{decimal.NewFromFloat(f)}
}

// ParseAmount coerces an arbitrary decoded JSON value into an Amount.
// ok is false when the value was missing or not representable as a number.
func ParseAmount(v interface{}) (Amount, bool) {
	switch val := v.(type) {
	case nil:
		return Amount{}, false
	case Amount:
		return val, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return Amount{}, false
		}
		return AmountFromFloat(val), true
	case int:
		return Amount{decimal.NewFromInt(int64(val))}, true
	case int64:
		return Amount{decimal.NewFromInt(val)}, true
	case json.Number:
		return ParseAmount(val.String())
	case string:
		s := cleanNumeric(val)
		if s == "" {
			return Amount{}, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Amount{}, false
		}
		return Amount{d}, true
	default:
		return Amount{}, false
	}
}

// cleanNumeric strips currency symbols and spaces and resolves the
// separators. The last of ',' and '.' is the decimal point when both
// appear; a lone comma followed by exactly two digits ("12,49") is a
// decimal comma; any other comma groups thousands.
func cleanNumeric(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch r {
		case ' ', '$', '€', '£':
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()

	lastComma := strings.LastIndexByte(out, ',')
	lastDot := strings.LastIndexByte(out, '.')
	switch {
	case lastComma < 0:
		return out
	case lastDot > lastComma:
		return strings.ReplaceAll(out, ",", "")
	case lastDot >= 0:
		// "1.204,50"
		out = strings.ReplaceAll(out, ".", "")
		return strings.Replace(out, ",", ".", 1)
	case strings.Count(out, ",") == 1 && len(out)-lastComma-1 == 2:
		return strings.Replace(out, ",", ".", 1)
	default:
		return strings.ReplaceAll(out, ",", "")
	}
}

// String renders the amount with exactly two decimals.
func (a Amount) String() string {
	return a.StringFixed(2)
}

// MarshalJSON emits the canonical two-decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON never fails; unparsable input decodes to zero.
func (a *Amount) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		a.Decimal = decimal.Zero
		return nil
	}
	parsed, _ := ParseAmount(v)
	a.Decimal = parsed.Decimal
	return nil
}

// Float returns the amount as a float64 for reporting sinks.
func (a Amount) Float() float64 {
	f, _ := a.Decimal.Float64()
	return f
}

// GoString keeps %#v output readable in test failures.
func (a Amount) GoString() string {
	return fmt.Sprintf("domain.NewAmount(%q)", a.Decimal.String())
}

package extraction

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/TaranshG/Receipt-Identifer/internal/domain"
)

const (
	defaultFraudScore = 50
	defaultConfidence = 0.5
	defaultReason     = "No reasons provided by the model"
)

var verdictAliases = map[string]domain.Verdict{
	"GENUINE":    domain.VerdictGenuine,
	"REAL":       domain.VerdictGenuine,
	"LEGIT":      domain.VerdictGenuine,
	"LEGITIMATE": domain.VerdictGenuine,
	"AUTHENTIC":  domain.VerdictGenuine,
	"SUSPICIOUS": domain.VerdictSuspicious,
	"FAKE":       domain.VerdictFake,
	"FRAUD":      domain.VerdictFake,
	"FRAUDULENT": domain.VerdictFake,
	"FORGED":     domain.VerdictFake,
	"UNREADABLE": domain.VerdictUnreadable,
}

// getString returns a trimmed string field; numbers are rendered as text.
func getString(m map[string]interface{}, key string) string {
	switch val := m[key].(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

// getNumber coerces a numeric or numeric-string field. ok is false for
// missing, non-numeric and non-finite values.
func getNumber(m map[string]interface{}, key string) (float64, bool) {
	var f float64
	switch val := m[key].(type) {
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "%")), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func getAmount(m map[string]interface{}, key string) (domain.Amount, bool) {
	return domain.ParseAmount(m[key])
}

// coerceFraudScore clamps to an integer in [0,100].
func coerceFraudScore(m map[string]interface{}) (score int, present bool) {
	f, ok := getNumber(m, "fraud_score")
	if !ok {
		return defaultFraudScore, false
	}
	// Clamp before converting: out-of-range floats have no defined int value.
	return int(math.Round(math.Max(0, math.Min(100, f)))), true
}

func coerceConfidence(m map[string]interface{}) float64 {
	f, ok := getNumber(m, "confidence")
	if !ok {
		return defaultConfidence
	}
	// Some models answer in percent.
	if f > 1 && f <= 100 {
		f /= 100
	}
	return math.Max(0, math.Min(1, f))
}

func coerceVerdict(m map[string]interface{}) (verdict domain.Verdict, present bool) {
	raw := strings.ToUpper(getString(m, "verdict"))
	if raw == "" {
		return domain.VerdictSuspicious, false
	}
	raw = strings.NewReplacer("-", "_", " ", "_").Replace(raw)
	if v, ok := verdictAliases[raw]; ok {
		return v, true
	}
	if raw == "LIKELY_GENUINE" || raw == "LIKELY_REAL" {
		return domain.VerdictGenuine, true
	}
	return domain.VerdictSuspicious, true
}

func coerceReasons(m map[string]interface{}) []string {
	var out []string
	switch val := m["reasons"].(type) {
	case []interface{}:
		for _, item := range val {
			switch s := item.(type) {
			case string:
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			case json.Number:
				out = append(out, s.String())
			}
		}
	case string:
		if s := strings.TrimSpace(val); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{defaultReason}
	}
	return out
}

func coerceItems(m map[string]interface{}) []domain.Item {
	list, ok := m["items"].([]interface{})
	if !ok {
		return nil
	}
	items := make([]domain.Item, 0, len(list))
	for _, raw := range list {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		name := getString(obj, "name")
		if name == "" {
			continue
		}
		price, _ := getAmount(obj, "price")
		item := domain.Item{Name: name, Price: price}
		if qty, ok := getAmount(obj, "quantity"); ok && qty.IsPositive() {
			item.Quantity = &qty
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil
	}
	return items
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package extraction recovers a receipt Record from raw, possibly
// malformed AI output. It never fails: anything it cannot make sense of
// becomes an UNREADABLE extraction.
package extraction

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/TaranshG/Receipt-Identifer/internal/domain"
)

const (
	unreadableFraudScore = 90
	unreadableReason     = "AI output could not be parsed"
	maxExcerptRunes      = 300
)

// Normalizer turns raw model text into an Extraction.
type Normalizer struct {
	// Now is used by the future-date correction. Defaults to time.Now.
	Now func() time.Time
}

// Normalize runs the default Normalizer.
func Normalize(raw string) domain.Extraction {
	return Normalizer{}.Normalize(raw)
}

// Normalize never panics and never returns a partially valid record.
func (n Normalizer) Normalize(raw string) (out domain.Extraction) {
	defer func() {
		if r := recover(); r != nil {
			out = Unreadable(raw)
		}
	}()

	obj, ok := parseObject(raw)
	if !ok {
		return Unreadable(raw)
	}

	total, hasTotal := getAmount(obj, "total")
	verdict, hasVerdict := coerceVerdict(obj)
	score, hasScore := coerceFraudScore(obj)
	if !hasTotal || !hasVerdict || !hasScore {
		return Unreadable(raw)
	}

	subtotal, _ := getAmount(obj, "subtotal")
	tax, _ := getAmount(obj, "tax")

	ext := domain.Extraction{
		Record: domain.Record{
			Merchant: getString(obj, "merchant"),
			Date:     getString(obj, "date"),
			Currency: strings.ToUpper(getString(obj, "currency")),
			Subtotal: subtotal,
			Tax:      tax,
			Total:    total,
			Items:    coerceItems(obj),
		},
		Verdict:    verdict,
		FraudScore: score,
		Confidence: coerceConfidence(obj),
		Reasons:    coerceReasons(obj),
	}

	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	ext.Reasons, ext.FraudScore, _ = correctFutureDateClaim(ext.Reasons, ext.FraudScore, ext.Record.Date, now())

	return ext
}

// Unreadable builds the sentinel extraction for raw.
func Unreadable(raw string) domain.Extraction {
	return domain.Extraction{
		Verdict:    domain.VerdictUnreadable,
		FraudScore: unreadableFraudScore,
		Confidence: 0,
		Reasons:    []string{unreadableReason},
		RawExcerpt: excerpt(raw),
	}
}

// parseObject walks the repair pipeline: fences, brace scan, strict parse,
// bounded brace-append retries.
func parseObject(raw string) (map[string]interface{}, bool) {
	text := stripFences(raw)
	candidate, truncated, found := extractObject(text)
	if !found {
		return nil, false
	}

	if obj, ok := decodeObject(candidate); ok {
		return obj, true
	}
	if !truncated {
		// Balanced but invalid; a brace-append may still help when the
		// model closed an inner object and got cut off afterwards.
		candidate = strings.TrimSuffix(candidate, "}")
	}
	for _, attempt := range repairCandidates(candidate) {
		if obj, ok := decodeObject(attempt); ok {
			return obj, true
		}
	}
	return nil, false
}

func decodeObject(s string) (map[string]interface{}, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	obj, ok := v.(map[string]interface{})
	return obj, ok
}

// excerpt returns a printable, length-capped prefix of raw for diagnostics.
func excerpt(raw string) string {
	var b strings.Builder
	n := 0
	for _, r := range raw {
		if n >= maxExcerptRunes {
			b.WriteString("…")
			break
		}
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case r == unicode.ReplacementChar || unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
		n++
	}
	return strings.TrimSpace(b.String())
}

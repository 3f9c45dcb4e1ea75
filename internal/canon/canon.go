// Package canon turns receipt Records into one deterministic text form and
// derives the fingerprint that gets anchored on the ledger.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/TaranshG/Receipt-Identifer/internal/domain"
	"github.com/shopspring/decimal"
)

// Keys lists the canonical line keys in emission order.
var Keys = []string{"merchant", "date", "currency", "subtotal", "tax", "total", "items"}

const (
	itemSeparator  = "|"
	fieldSeparator = ":"
)

// Canonicalize serialises r as newline-joined key=value lines.
// Records that differ only in casing, whitespace or numeric spelling
// produce byte-identical output.
func Canonicalize(r domain.Record) string {
	lines := make([]string, 0, len(Keys))

	if m := normalizeName(r.Merchant); m != "" {
		lines = append(lines, "merchant="+m)
	}
	if d := collapseSpace(r.Date); d != "" {
		lines = append(lines, "date="+d)
	}
	if c := strings.ToUpper(collapseSpace(r.Currency)); c != "" {
		lines = append(lines, "currency="+c)
	}
	lines = append(lines,
		"subtotal="+r.Subtotal.String(),
		"tax="+r.Tax.String(),
		"total="+r.Total.String(),
	)
	if items := canonicalItems(r.Items); items != "" {
		lines = append(lines, "items="+items)
	}

	return strings.Join(lines, "\n")
}

// Hash returns the lowercase hex SHA-256 of canonical text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Fingerprint canonicalises r and hashes the result.
func Fingerprint(r domain.Record) (text, fingerprint string) {
	text = Canonicalize(r)
	return text, Hash(text)
}

// ValidFingerprint reports whether s has the shape of a fingerprint.
func ValidFingerprint(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// NormalizeFingerprint trims and lower-cases s.
func NormalizeFingerprint(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func canonicalItems(items []domain.Item) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		qty := decimal.NewFromInt(1)
		if it.Quantity != nil && it.Quantity.IsPositive() {
			qty = it.Quantity.Decimal
		}
		parts = append(parts, strings.Join([]string{
			normalizeItemName(it.Name),
			it.Price.String(),
			qty.String(),
		}, fieldSeparator))
	}
	sort.Strings(parts)
	return strings.Join(parts, itemSeparator)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeName trims, collapses inner whitespace and lower-cases.
func normalizeName(s string) string {
	return strings.ToLower(collapseSpace(s))
}

func normalizeItemName(s string) string {
	s = strings.NewReplacer(fieldSeparator, " ", itemSeparator, " ").Replace(s)
	return normalizeName(s)
}

// Parse reads canonical text back into a Record. Unknown keys are rejected
// so that a tampered text cannot smuggle extra fields past Diff.
func Parse(text string) (domain.Record, error) {
	var r domain.Record
	for i, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return domain.Record{}, fmt.Errorf("Parse: line %d: missing '='", i+1)
		}
		switch key {
		case "merchant":
			r.Merchant = value
		case "date":
			r.Date = value
		case "currency":
			r.Currency = value
		case "subtotal", "tax", "total":
			amt, ok := domain.ParseAmount(value)
			if !ok {
				return domain.Record{}, fmt.Errorf("Parse: line %d: invalid amount %q", i+1, value)
			}
			switch key {
			case "subtotal":
				r.Subtotal = amt
			case "tax":
				r.Tax = amt
			default:
				r.Total = amt
			}
		case "items":
			items, err := parseItems(value)
			if err != nil {
				return domain.Record{}, fmt.Errorf("Parse: line %d: %w", i+1, err)
			}
			r.Items = items
		default:
			return domain.Record{}, fmt.Errorf("Parse: line %d: unknown key %q", i+1, key)
		}
	}
	return r, nil
}

func parseItems(value string) ([]domain.Item, error) {
	var items []domain.Item
	for _, part := range strings.Split(value, itemSeparator) {
		fields := strings.Split(part, fieldSeparator)
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid item %q", part)
		}
		price, ok := domain.ParseAmount(fields[1])
		if !ok {
			return nil, fmt.Errorf("invalid item price %q", fields[1])
		}
		qty, ok := domain.ParseAmount(fields[2])
		if !ok {
			return nil, fmt.Errorf("invalid item quantity %q", fields[2])
		}
		items = append(items, domain.Item{Name: fields[0], Price: price, Quantity: &qty})
	}
	return items, nil
}

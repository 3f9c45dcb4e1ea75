package canon

import (
	"sort"
	"strings"
)

// FieldDiff is one field whose certified and presented values disagree.
type FieldDiff struct {
	Field     string `json:"field"`
	Certified string `json:"certified"`
	Presented string `json:"presented"`
}

// Diff compares two canonical texts field by field, in canonical key order,
// and returns only the fields that differ. A field absent on one side is
// reported with an empty value there.
func Diff(certified, presented string) []FieldDiff {
	a := splitLines(certified)
	b := splitLines(presented)

	var diffs []FieldDiff
	seen := make(map[string]bool, len(Keys))
	for _, key := range Keys {
		seen[key] = true
		if a[key] != b[key] {
			diffs = append(diffs, FieldDiff{Field: key, Certified: a[key], Presented: b[key]})
		}
	}
	// Keys outside the canonical set only show up in tampered text.
	for _, extra := range extraKeys(a, b, seen) {
		if a[extra] != b[extra] {
			diffs = append(diffs, FieldDiff{Field: extra, Certified: a[extra], Presented: b[extra]})
		}
	}
	return diffs
}

func splitLines(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		if key, value, ok := strings.Cut(line, "="); ok {
			out[key] = value
		}
	}
	return out
}

func extraKeys(a, b map[string]string, seen map[string]bool) []string {
	var keys []string
	for _, m := range []map[string]string{a, b} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

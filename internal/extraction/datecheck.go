package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// futureDatePenalty is subtracted from the fraud score when the model's
// future-date claim is overruled by the local check.
const futureDatePenalty = 25

var futureDateReason = regexp.MustCompile(`(?i)future[\s-]*dat|dated\s+in\s+the\s+future|date\s+(is\s+)?in\s+the\s+future|future\s+(transaction|purchase|receipt)`)

// parseLocalDate accepts YYYY-MM-DD with an optional HH:MM[:SS] suffix,
// separated by a space or 'T'. Only the calendar date matters here.
func parseLocalDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(s)
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
	for _, layout := range []string{"15:04", "15:04:05"} {
		if _, err := time.ParseInLocation(layout, clock, time.Local); err == nil {
			return d, true
		}
	}
	return civil.Date{}, false
}

// isFutureDated reports whether date lies beyond tomorrow in local time.
// Tomorrow itself is allowed to absorb timezone skew between the merchant
// and this host.
func isFutureDated(date civil.Date, now time.Time) bool {
	tomorrow := civil.DateOf(now.In(time.Local)).AddDays(1)
	return date.After(tomorrow)
}

// correctFutureDateClaim drops future-date reasons the local check
// disproves. It returns the adjusted reasons, score and whether anything
// changed.
func correctFutureDateClaim(reasons []string, score int, recordDate string, now time.Time) ([]string, int, bool) {
	var claims, kept []string
	for _, r := range reasons {
		if futureDateReason.MatchString(r) {
			claims = append(claims, r)
			continue
		}
		kept = append(kept, r)
	}
	if len(claims) == 0 {
		return reasons, score, false
	}

	date, ok := parseLocalDate(recordDate)
	if !ok || isFutureDated(date, now) {
		return reasons, score, false
	}

	score = clampInt(score-futureDatePenalty, 0, 100)
	note := fmt.Sprintf("Local date check: %s is not in the future; removed %d future-date claim(s) from the model", date, len(claims))
	return append(kept, note), score, true
}

package fulfillment

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// durationPattern matches "<n> <unit>" with Vietnamese or English
// units, e.g. "Canva Pro 1 Năm", "Netflix 3 tháng", "30 days".
var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(năm|year|tháng|month|ngày|day)`)

const defaultYears = 1

// entitlementEnd derives the subscription end from the product name,
// falling back to the billing cycle. The second return is false when
// neither text parsed and the one-year default was applied.
func entitlementEnd(start time.Time, productName, billingCycle string) (time.Time, bool) {
	if end, ok := parseDuration(start, productName); ok {
		return end, true
	}
	if end, ok := parseDuration(start, billingCycle); ok {
		return end, true
	}
	return start.AddDate(defaultYears, 0, 0), false
}

func parseDuration(start time.Time, text string) (time.Time, bool) {
	match := durationPattern.FindStringSubmatch(text)
	if match == nil {
		return time.Time{}, false
	}

	n, err := strconv.Atoi(match[1])
	if err != nil || n <= 0 {
		return time.Time{}, false
	}

	switch strings.ToLower(match[2]) {
	case "năm", "year":
		return start.AddDate(n, 0, 0), true
	case "tháng", "month":
		return start.AddDate(0, n, 0), true
	case "ngày", "day":
		return start.AddDate(0, 0, n), true
	default:
		return time.Time{}, false
	}
}

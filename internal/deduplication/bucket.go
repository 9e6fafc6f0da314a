package deduplication

import (
	"fmt"
	"time"

	"alertrelay/internal/constants"
)

// BucketKey names one local calendar day, formatted YYYYMMDD in the reference zone.
type BucketKey string

// BucketFor returns the bucket of the local date of t in loc. UTC dates are never used.
func BucketFor(t time.Time, loc *time.Location) BucketKey {
	return BucketKey(t.In(loc).Format(constants.BucketLayout))
}

// ParseBucketKey validates s as a YYYYMMDD day.
func ParseBucketKey(s string) (BucketKey, error) {
	if len(s) != len(constants.BucketLayout) {
		return "", fmt.Errorf("bucket %q: expected YYYYMMDD", s)
	}
	if _, err := time.Parse(constants.BucketLayout, s); err != nil {
		return "", fmt.Errorf("bucket %q: %w", s, err)
	}
	return BucketKey(s), nil
}

// WindowBuckets lists every local day from since minus paddingDays through now, oldest first.
func WindowBuckets(since, now time.Time, paddingDays int, loc *time.Location) []BucketKey {
	if paddingDays < 0 {
		paddingDays = 0
	}
	start := startOfDay(since.In(loc)).AddDate(0, 0, -paddingDays)
	end := startOfDay(now.In(loc))
	if start.After(end) {
		start = end
	}

	var keys []BucketKey
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		keys = append(keys, BucketKey(d.Format(constants.BucketLayout)))
	}
	return keys
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

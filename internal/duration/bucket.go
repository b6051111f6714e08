// Package duration classifies account ages from the locale-formatted
// creation dates stored on account records.
package duration

import "fmt"

// Bucket is an age range used by the duration filter.
type Bucket string

const (
	BucketNone     Bucket = ""
	BucketSameDay  Bucket = "0"
	BucketOneDay   Bucket = "1"
	BucketWeek     Bucket = "2-7"
	BucketMonth    Bucket = "8-30"
	BucketYear     Bucket = "31-365"
	BucketOverYear Bucket = "365+"
)

// Unclassifiable is returned by DaysSince when a creation date cannot be parsed.
// It matches no bucket.
const Unclassifiable = -1

// Buckets lists the selectable buckets in display order.
var Buckets = []Bucket{
	BucketSameDay,
	BucketOneDay,
	BucketWeek,
	BucketMonth,
	BucketYear,
	BucketOverYear,
}

// ParseBucket validates a bucket token. The empty string means no filter.
func ParseBucket(s string) (Bucket, error) {
	if s == "" {
		return BucketNone, nil
	}
	for _, b := range Buckets {
		if string(b) == s {
			return b, nil
		}
	}
	return BucketNone, fmt.Errorf("unknown duration bucket %q (want one of 0, 1, 2-7, 8-30, 31-365, 365+)", s)
}

// Label returns a human-readable name for the bucket.
func (b Bucket) Label() string {
	switch b {
	case BucketSameDay:
		return "Today"
	case BucketOneDay:
		return "1 day"
	case BucketWeek:
		return "2-7 days"
	case BucketMonth:
		return "8-30 days"
	case BucketYear:
		return "31-365 days"
	case BucketOverYear:
		return "Over 1 year"
	default:
		return "All durations"
	}
}

// Matches reports whether an age in days falls inside the bucket.
// Negative ages, including Unclassifiable, match nothing.
func (b Bucket) Matches(days int) bool {
	switch b {
	case BucketSameDay:
		return days == 0
	case BucketOneDay:
		return days == 1
	case BucketWeek:
		return days >= 2 && days <= 7
	case BucketMonth:
		return days >= 8 && days <= 30
	case BucketYear:
		return days >= 31 && days <= 365
	case BucketOverYear:
		return days > 365
	default:
		return false
	}
}

// Classify returns the unique bucket containing days, or false for negative input.
func Classify(days int) (Bucket, bool) {
	for _, b := range Buckets {
		if b.Matches(days) {
			return b, true
		}
	}
	return BucketNone, false
}

package redact

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/nao1215/reviewgate/internal/model"
)

const day = 24 * time.Hour

// Bucket boundaries in calendar days, inclusive.
const (
	todayRangeMaxDays  = 2
	withinWeekMaxDays  = 7
	withinMonthMaxDays = 30
)

var (
	relativeCNPattern = regexp.MustCompile(`(\d+)\s*(分钟|小时|天|周|星期|个月|月|年)前`)
	relativeENPattern = regexp.MustCompile(`(?i)\b(\d+|an?|one)\s+(minute|hour|day|week|month|year)s?\s+ago\b`)
	absolutePattern   = regexp.MustCompile(`(\d{4})\s*[-/.年]\s*(\d{1,2})\s*[-/.月]\s*(\d{1,2})`)
	monthDayPattern   = regexp.MustCompile(`^(\d{1,2})[-/.月](\d{1,2})日?(?:\s+\d{1,2}:\d{2})?$`)
)

// keywordOffsets maps fixed words to a day offset from the reference time.
// Longer phrases come first.
var keywordOffsets = []struct {
	word string
	days int
}{
	{"just now", 0},
	{"刚刚", 0},
	{"前天", 2},
	{"昨天", 1},
	{"yesterday", 1},
	{"今天", 0},
	{"today", 0},
}

// ParseTime estimates the instant described by a time expression relative to
// ref. It understands Chinese and English relative expressions ("3天前",
// "2 weeks ago", "yesterday"), month-day dates of the reference year
// ("03-01") and absolute dates in most common layouts.
// The second return value is false when the text cannot be interpreted.
func ParseTime(raw string, ref time.Time) (time.Time, bool) {
	s := strings.TrimSpace(normalize(raw))
	if s == "" {
		return time.Time{}, false
	}
	lower := strings.ToLower(s)

	if m := relativeCNPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return subtractUnit(ref, n, m[2]), true
		}
	}
	if m := relativeENPattern.FindStringSubmatch(lower); m != nil {
		n := 1
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
		return subtractUnit(ref, n, m[2]), true
	}

	for _, kw := range keywordOffsets {
		if strings.Contains(lower, kw.word) {
			return ref.AddDate(0, 0, -kw.days), true
		}
	}

	if m := monthDayPattern.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1]) //nolint:errcheck // pattern guarantees digits
		dom, _ := strconv.Atoi(m[2])   //nolint:errcheck // pattern guarantees digits
		if t, ok := date(ref.Year(), month, dom, ref.Location()); ok {
			if t.After(ref) {
				t = t.AddDate(-1, 0, 0)
			}
			return t, true
		}
	}

	if m := absolutePattern.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])  //nolint:errcheck // pattern guarantees digits
		month, _ := strconv.Atoi(m[2]) //nolint:errcheck // pattern guarantees digits
		dom, _ := strconv.Atoi(m[3])   //nolint:errcheck // pattern guarantees digits
		if t, ok := date(year, month, dom, ref.Location()); ok {
			return t, true
		}
	}

	if t, err := dateparse.ParseIn(s, ref.Location()); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// date builds a calendar date and rejects out-of-range components instead
// of letting time.Date normalize them.
func date(year, month, dom int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || dom < 1 || dom > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), dom, 0, 0, 0, 0, loc)
	if t.Day() != dom {
		return time.Time{}, false
	}
	return t, true
}

func subtractUnit(ref time.Time, n int, unit string) time.Time {
	switch unit {
	case "分钟", "minute":
		return ref.Add(-time.Duration(n) * time.Minute)
	case "小时", "hour":
		return ref.Add(-time.Duration(n) * time.Hour)
	case "天", "day":
		return ref.AddDate(0, 0, -n)
	case "周", "星期", "week":
		return ref.AddDate(0, 0, -7*n)
	case "个月", "月", "month":
		return ref.AddDate(0, -n, 0)
	default: // 年, year
		return ref.AddDate(-n, 0, 0)
	}
}

// BucketTime generalizes a time expression into a coarse bucket relative to
// ref. Ages are counted in calendar days of ref's location, so a daylight
// saving change never moves "前天" out of the today range.
// It never fails; unparseable text maps to TimeBucketUnknown.
func BucketTime(raw string, ref time.Time) model.TimeBucket {
	t, ok := ParseTime(raw, ref)
	if !ok {
		return model.TimeBucketUnknown
	}
	return BucketDays(calendarDays(t, ref))
}

// calendarDays returns the number of calendar days from t to ref, both read
// in ref's location. It is negative when t is on a later date.
func calendarDays(t, ref time.Time) int {
	t = t.In(ref.Location())
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from) / day)
}

// BucketDays maps an age in calendar days to its bucket. Negative ages count
// as today.
func BucketDays(days int) model.TimeBucket {
	switch {
	case days <= todayRangeMaxDays:
		return model.TimeBucketTodayRange
	case days <= withinWeekMaxDays:
		return model.TimeBucketWithinWeek
	case days <= withinMonthMaxDays:
		return model.TimeBucketWithinMonth
	default:
		return model.TimeBucketOlder
	}
}

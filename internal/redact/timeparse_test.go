package redact

import (
	"testing"
	"time"
	_ "time/tzdata" // zone data for the daylight saving cases

	"github.com/nao1215/reviewgate/internal/model"
)

func TestParseTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{name: "chinese days ago", raw: "3天前", want: refTime.AddDate(0, 0, -3)},
		{name: "chinese hours ago", raw: "5小时前", want: refTime.Add(-5 * time.Hour)},
		{name: "chinese weeks ago", raw: "2周前", want: refTime.AddDate(0, 0, -14)},
		{name: "chinese months ago", raw: "1个月前", want: refTime.AddDate(0, -1, 0)},
		{name: "chinese short months ago", raw: "2月前", want: refTime.AddDate(0, -2, 0)},
		{name: "chinese years ago", raw: "1年前", want: refTime.AddDate(-1, 0, 0)},
		{name: "today", raw: "今天 12:30", want: refTime},
		{name: "yesterday", raw: "昨天", want: refTime.AddDate(0, 0, -1)},
		{name: "day before yesterday", raw: "前天", want: refTime.AddDate(0, 0, -2)},
		{name: "just now", raw: "刚刚", want: refTime},
		{name: "english days ago", raw: "15 days ago", want: refTime.AddDate(0, 0, -15)},
		{name: "english a month ago", raw: "a month ago", want: refTime.AddDate(0, -1, 0)},
		{name: "english yesterday", raw: "Yesterday", want: refTime.AddDate(0, 0, -1)},
		{name: "iso date", raw: "2025-03-01", want: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "iso date with time", raw: "2025-03-01 18:20", want: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "chinese date", raw: "2024年12月5日", want: time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC)},
		{name: "month day in reference year", raw: "03-01", want: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "month day after reference rolls back a year", raw: "12-24", want: time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC)},
		{name: "english long date", raw: "March 1, 2025", want: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ParseTime(tt.raw, refTime)
			if !ok {
				t.Fatalf("expected %q to parse", tt.raw)
			}
			if !tt.want.Equal(got) {
				t.Errorf("ParseTime(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}

	t.Run("rejects garbage", func(t *testing.T) {
		t.Parallel()

		for _, raw := range []string{"", "   ", "很久以前", "sometime", "第三次来"} {
			if _, ok := ParseTime(raw, refTime); ok {
				t.Errorf("expected %q to be rejected", raw)
			}
		}
	})
}

func TestBucketTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want model.TimeBucket
	}{
		{raw: "今天", want: model.TimeBucketTodayRange},
		{raw: "前天", want: model.TimeBucketTodayRange},
		{raw: "3天前", want: model.TimeBucketWithinWeek},
		{raw: "7天前", want: model.TimeBucketWithinWeek},
		{raw: "8 days ago", want: model.TimeBucketWithinMonth},
		{raw: "30天前", want: model.TimeBucketWithinMonth},
		{raw: "31天前", want: model.TimeBucketOlder},
		{raw: "2年前", want: model.TimeBucketOlder},
		{raw: "2020-01-01", want: model.TimeBucketOlder},
		{raw: "no idea", want: model.TimeBucketUnknown},
		{raw: "", want: model.TimeBucketUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			got := BucketTime(tt.raw, refTime)
			if got != tt.want {
				t.Errorf("BucketTime(%q) = %s, want %s", tt.raw, got, tt.want)
			}
			if again := BucketTime(tt.raw, refTime); again != got {
				t.Errorf("BucketTime(%q) is not deterministic: %s then %s", tt.raw, got, again)
			}
		})
	}

	t.Run("dates are compared by calendar day", func(t *testing.T) {
		t.Parallel()

		// Midnight two days back is 71 hours before a late evening
		// reference but only two calendar days old.
		late := time.Date(2025, 10, 15, 23, 0, 0, 0, time.UTC)
		if got := BucketTime("2025-10-13", late); got != model.TimeBucketTodayRange {
			t.Errorf("expected today_range, got %s", got)
		}
		if got := BucketTime("2025-10-12", late); got != model.TimeBucketWithinWeek {
			t.Errorf("expected within_week, got %s", got)
		}
	})

	t.Run("future dates count as today", func(t *testing.T) {
		t.Parallel()

		if got := BucketTime("2025-10-20", refTime); got != model.TimeBucketTodayRange {
			t.Errorf("expected today_range, got %s", got)
		}
		if got := BucketDays(-1); got != model.TimeBucketTodayRange {
			t.Errorf("expected today_range, got %s", got)
		}
	})
}

func TestBucketTimeAcrossDaylightSaving(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}

	tests := []struct {
		name string
		ref  time.Time
	}{
		// Clocks fall back on 2025-11-02, so two days back spans 49 hours.
		{name: "fall back", ref: time.Date(2025, 11, 3, 12, 0, 0, 0, loc)},
		// Clocks spring forward on 2025-03-09, so two days back spans 47 hours.
		{name: "spring forward", ref: time.Date(2025, 3, 10, 12, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			for _, raw := range []string{"前天", "2 days ago", "2天前"} {
				if got := BucketTime(raw, tt.ref); got != model.TimeBucketTodayRange {
					t.Errorf("BucketTime(%q) = %s, want today_range", raw, got)
				}
			}
			if got := BucketTime("7天前", tt.ref); got != model.TimeBucketWithinWeek {
				t.Errorf("BucketTime(7天前) = %s, want within_week", got)
			}
		})
	}
}

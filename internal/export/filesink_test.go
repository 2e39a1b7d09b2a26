package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/reviewgate/internal/model"
)

var collectedAt = time.Date(2025, 10, 1, 9, 30, 0, 0, time.UTC)

func testBundle() *model.Bundle {
	state := model.NewSessionState("s-42", "全聚德", collectedAt.Add(-time.Minute))
	state.Finish(model.SessionCompleted, model.ReasonMaxPages, collectedAt)
	records := []model.AnonymizedReview{
		{
			Content:          "烤鸭很好吃，电话[PHONE]可以订座",
			Rating:           4.5,
			TimeBucket:       model.TimeBucketWithinWeek,
			UserHash:         "0a1b2c3d",
			Tags:             []string{"环境好", "服务热情"},
			ContentHash:      "h1",
			ProcessedAt:      collectedAt,
			PrivacyProtected: true,
		},
		{
			Content:          "排队太久, \"性价比\" 一般",
			TimeBucket:       model.TimeBucketUnknown,
			ContentHash:      "h2",
			ProcessedAt:      collectedAt,
			PrivacyProtected: true,
		},
	}
	return model.NewBundle(state, model.PurposeAcademic, model.PlatformDianping, records, collectedAt, 30*24*time.Hour)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yaml": FormatYAML, "yml": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("%q: expected %s, got %s", in, want, got)
		}
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()

			bundle := testBundle()
			var buf bytes.Buffer
			if err := Encode(&buf, bundle, format); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, err := Decode(&buf, format)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got.Metadata.SessionID != "s-42" {
				t.Errorf("expected session s-42, got %q", got.Metadata.SessionID)
			}
			if got.Metadata.ComplianceVersion != model.ComplianceVersion {
				t.Errorf("expected compliance version %q, got %q", model.ComplianceVersion, got.Metadata.ComplianceVersion)
			}
			if !got.Metadata.PrivacyProtected {
				t.Error("expected privacy protected metadata")
			}
			if !got.Metadata.RetentionUntil.Equal(bundle.Metadata.RetentionUntil) {
				t.Errorf("expected retention %v, got %v", bundle.Metadata.RetentionUntil, got.Metadata.RetentionUntil)
			}
			if len(got.Records) != 2 {
				t.Fatalf("expected 2 records, got %d", len(got.Records))
			}
			if got.Records[0].Content != bundle.Records[0].Content {
				t.Errorf("expected content %q, got %q", bundle.Records[0].Content, got.Records[0].Content)
			}
			if !slices.Equal(got.Records[0].Tags, bundle.Records[0].Tags) {
				t.Errorf("expected tags %v, got %v", bundle.Records[0].Tags, got.Records[0].Tags)
			}
		})
	}

	if err := Encode(&bytes.Buffer{}, testBundle(), Format("xml")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, testBundle().Records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	if !slices.Equal(rows[0], csvHeader) {
		t.Errorf("unexpected header %v", rows[0])
	}
	want := []string{"h1", "烤鸭很好吃，电话[PHONE]可以订座", "4.5", "within_week", "0a1b2c3d", "环境好|服务热情", "2025-10-01T09:30:00Z"}
	if !slices.Equal(rows[1], want) {
		t.Errorf("expected row %v, got %v", want, rows[1])
	}
	if rows[2][1] != "排队太久, \"性价比\" 一般" {
		t.Errorf("unexpected quoted content %q", rows[2][1])
	}
	if rows[2][2] != "0" {
		t.Errorf("expected rating 0, got %q", rows[2][2])
	}
}

func TestFileSink(t *testing.T) {
	t.Parallel()

	t.Run("writes bundle and csv", func(t *testing.T) {
		t.Parallel()

		sink := NewFileSink(t.TempDir()+"/exports", WithFormat(FormatYAML))
		if err := sink.SaveBundle(context.Background(), testBundle()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		f, err := os.Open(sink.BundlePath("s-42"))
		if err != nil {
			t.Fatalf("failed to open bundle: %v", err)
		}
		defer f.Close()

		got, err := Decode(f, FormatYAML)
		if err != nil {
			t.Fatalf("failed to decode bundle: %v", err)
		}
		if len(got.Records) != 2 {
			t.Errorf("expected 2 records, got %d", len(got.Records))
		}

		if _, err := os.Stat(sink.CSVPath("s-42")); err != nil {
			t.Errorf("expected csv file: %v", err)
		}
	})

	t.Run("without csv", func(t *testing.T) {
		t.Parallel()

		sink := NewFileSink(t.TempDir(), WithoutCSV())
		if err := sink.SaveBundle(context.Background(), testBundle()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := os.Stat(sink.BundlePath("s-42")); err != nil {
			t.Errorf("expected bundle file: %v", err)
		}
		if _, err := os.Stat(sink.CSVPath("s-42")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected no csv file, got %v", err)
		}
	})

	t.Run("rejects bundle without session id", func(t *testing.T) {
		t.Parallel()

		bundle := testBundle()
		bundle.Metadata.SessionID = ""
		if err := NewFileSink(t.TempDir()).SaveBundle(context.Background(), bundle); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := NewFileSink(t.TempDir()).SaveBundle(ctx, testBundle()); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

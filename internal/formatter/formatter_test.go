package formatter

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/desertthunder/crossfade/internal/tasks"
)

func sampleResult() *tasks.TransferResult {
	return &tasks.TransferResult{
		Success:       true,
		PlaylistID:    "dest-pl",
		PlaylistName:  "Road Trip",
		SourceService: "Spotify",
		DestService:   "Tidal",
		TotalTracks:   5,
		TracksAdded:   3,
		TracksFailed:  2,
		NotFound:      []string{"Lost Song - Artist A", "Gone - Artist B"},
	}
}

func TestReportToCSV(t *testing.T) {
	data, err := ReportToCSV(sampleResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}

	// header + summary + two not-found rows
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	if records[1][0] != "Road Trip" || records[1][4] != "3" {
		t.Errorf("unexpected summary row: %v", records[1])
	}
	if records[2][1] != "Lost Song - Artist A" {
		t.Errorf("unexpected not-found row: %v", records[2])
	}
}

func TestReportToMarkdown(t *testing.T) {
	out := string(ReportToMarkdown(sampleResult()))

	if !strings.HasPrefix(out, "# Road Trip") {
		t.Errorf("expected playlist heading, got %q", out)
	}
	if !strings.Contains(out, "Spotify → Tidal") {
		t.Errorf("expected route line, got %q", out)
	}
	if !strings.Contains(out, "## Not Found") || !strings.Contains(out, "1. Lost Song - Artist A") {
		t.Errorf("expected not-found section, got %q", out)
	}
}

func TestReportToText(t *testing.T) {
	t.Run("includes failures when present", func(t *testing.T) {
		out := string(ReportToText(sampleResult()))

		if !strings.Contains(out, "Added: 3/5 (2 failed)") {
			t.Errorf("expected counts line, got %q", out)
		}
		if !strings.Contains(out, "Status: transferred") {
			t.Errorf("expected status line, got %q", out)
		}
	})

	t.Run("clean transfer omits the failure clause", func(t *testing.T) {
		result := sampleResult()
		result.TracksAdded = 5
		result.TracksFailed = 0
		result.NotFound = nil

		out := string(ReportToText(result))
		if strings.Contains(out, "failed)") || strings.Contains(out, "Not found") {
			t.Errorf("expected clean report, got %q", out)
		}
	})

	t.Run("zero added is a failed status", func(t *testing.T) {
		result := sampleResult()
		result.Success = false
		result.TracksAdded = 0

		out := string(ReportToText(result))
		if !strings.Contains(out, "Status: failed") {
			t.Errorf("expected failed status, got %q", out)
		}
	})
}

// package formatter renders transfer results to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/desertthunder/crossfade/internal/tasks"
)

// ReportToCSV converts a TransferResult to CSV format with a summary row
// followed by one row per unmatched track from the sample.
func ReportToCSV(result *tasks.TransferResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Playlist", "Source", "Destination", "Total", "Added", "Failed", "Success"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	summary := []string{
		result.PlaylistName,
		result.SourceService,
		result.DestService,
		strconv.Itoa(result.TotalTracks),
		strconv.Itoa(result.TracksAdded),
		strconv.Itoa(result.TracksFailed),
		strconv.FormatBool(result.Success),
	}
	if err := writer.Write(summary); err != nil {
		return nil, fmt.Errorf("failed to write CSV record: %w", err)
	}

	for _, label := range result.NotFound {
		if err := writer.Write([]string{"not found", label, "", "", "", "", ""}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ReportToMarkdown converts a TransferResult to Markdown format.
func ReportToMarkdown(result *tasks.TransferResult) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", result.PlaylistName))
	buf.WriteString(fmt.Sprintf("**Route**: %s → %s\n", result.SourceService, result.DestService))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d added of %d (%d failed)\n", result.TracksAdded, result.TotalTracks, result.TracksFailed))
	buf.WriteString(fmt.Sprintf("**Status**: %s\n\n", statusString(result.Success)))

	if len(result.NotFound) > 0 {
		buf.WriteString("## Not Found\n\n")
		for i, label := range result.NotFound {
			buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, label))
		}
		if result.TracksFailed > len(result.NotFound) {
			buf.WriteString(fmt.Sprintf("\n…and %d more.\n", result.TracksFailed-len(result.NotFound)))
		}
	}

	return buf.Bytes()
}

// ReportToText converts a TransferResult to plain text format for terminal output.
func ReportToText(result *tasks.TransferResult) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Playlist: %s\n", result.PlaylistName))
	buf.WriteString(fmt.Sprintf("Route: %s -> %s\n", result.SourceService, result.DestService))
	buf.WriteString(fmt.Sprintf("Added: %d/%d", result.TracksAdded, result.TotalTracks))
	if result.TracksFailed > 0 {
		buf.WriteString(fmt.Sprintf(" (%d failed)", result.TracksFailed))
	}
	buf.WriteString(fmt.Sprintf("\nStatus: %s\n", statusString(result.Success)))

	if len(result.NotFound) > 0 {
		buf.WriteString("\nNot found:\n")
		for i, label := range result.NotFound {
			buf.WriteString(fmt.Sprintf("  %d. %s\n", i+1, label))
		}
	}

	return buf.Bytes()
}

func statusString(success bool) string {
	if success {
		return "transferred"
	}
	return "failed"
}

// package formatter renders the pending queue and submission history as text, CSV, Markdown or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/shared"
	"github.com/dustin/go-humanize"
)

// Format is an output format for listings.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat resolves a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

// WriteQueue renders events to w in format.
func WriteQueue(w io.Writer, format Format, events []models.QueuedEvent) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = QueueToCSV(events)
	case FormatMarkdown:
		data, err = QueueToMarkdown(events)
	case FormatJSON:
		data, err = json.MarshalIndent(events, "", "  ")
		data = append(data, '\n')
	default:
		data, err = QueueToText(events)
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// QueueToCSV converts events to CSV with columns: ID, Started, Artist, Title, Album, Track, Duration, MBID, Invalid
func QueueToCSV(events []models.QueuedEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Started", "Artist", "Title", "Album", "Track", "Duration", "MBID", "Invalid"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, ev := range events {
		record := []string{
			ev.ID,
			ev.StartedAt.UTC().Format(time.RFC3339),
			ev.Artist,
			ev.Title,
			ev.Album,
			strconv.Itoa(ev.TrackNumber),
			strconv.Itoa(ev.DurationSeconds),
			ev.MusicBrainzID,
			ev.InvalidReason,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// QueueToMarkdown converts events to a Markdown table.
func QueueToMarkdown(events []models.QueuedEvent) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Pending scrobbles\n\n**Queued**: %s\n\n", humanize.Comma(int64(len(events))))
	if len(events) == 0 {
		return buf.Bytes(), nil
	}

	buf.WriteString("| # | Artist | Title | Album | Length | Played |\n")
	buf.WriteString("|---|--------|-------|-------|--------|--------|\n")
	for i, ev := range events {
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s | %s |\n",
			i+1,
			escapeCell(ev.Artist),
			escapeCell(ev.Title),
			escapeCell(ev.Album),
			shared.FormatDuration(ev.DurationSeconds),
			ev.StartedAt.UTC().Format("2006-01-02 15:04"),
		)
	}
	return buf.Bytes(), nil
}

// QueueToText converts events to a plain text listing.
func QueueToText(events []models.QueuedEvent) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Queued: %s\n", humanize.Comma(int64(len(events))))
	if len(events) > 0 {
		buf.WriteString("\n")
	}

	for i, ev := range events {
		albumPart := ""
		if ev.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", ev.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s] %s", i+1, ev.Artist, ev.Title, albumPart,
			shared.FormatDuration(ev.DurationSeconds), shared.HumanTime(ev.StartedAt))
		if ev.InvalidReason != "" {
			fmt.Fprintf(&buf, " !%s", ev.InvalidReason)
		}
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// WriteHistory renders submission records to w in format.
func WriteHistory(w io.Writer, format Format, records []models.SubmissionRecord) error {
	var buf bytes.Buffer

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("failed to encode history: %w", err)
		}
	case FormatCSV:
		writer := csv.NewWriter(&buf)
		writer.Write([]string{"ID", "Submitted", "Outcome", "Batch", "Accepted", "Ignored", "Detail"})
		for _, r := range records {
			writer.Write([]string{
				strconv.FormatInt(r.ID, 10),
				r.SubmittedAt.UTC().Format(time.RFC3339),
				string(r.Outcome),
				strconv.Itoa(r.BatchSize),
				strconv.Itoa(r.Accepted),
				strconv.Itoa(r.Ignored),
				r.Detail,
			})
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("CSV writer error: %w", err)
		}
	case FormatMarkdown:
		buf.WriteString("| Submitted | Outcome | Batch | Accepted | Ignored | Detail |\n")
		buf.WriteString("|-----------|---------|-------|----------|---------|--------|\n")
		for _, r := range records {
			fmt.Fprintf(&buf, "| %s | %s | %d | %d | %d | %s |\n",
				r.SubmittedAt.UTC().Format("2006-01-02 15:04"), r.Outcome, r.BatchSize, r.Accepted, r.Ignored, escapeCell(r.Detail))
		}
	default:
		if len(records) == 0 {
			buf.WriteString("No submissions recorded\n")
		}
		for _, r := range records {
			fmt.Fprintf(&buf, "%-13s %3d sent, %3d accepted, %3d ignored  %s", r.Outcome, r.BatchSize, r.Accepted, r.Ignored, shared.HumanTime(r.SubmittedAt))
			if r.Detail != "" {
				fmt.Fprintf(&buf, "  (%s)", r.Detail)
			}
			buf.WriteString("\n")
		}
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

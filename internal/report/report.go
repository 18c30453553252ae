// Package report renders baseline records as CSV or JSON. The CSV rendering
// follows the original scanner's export: semicolon-separated, every field
// quoted, internal quotes doubled.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"fimon/internal/fim"
)

// Format selects the export rendering.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat maps a user-supplied format name onto a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q (expected csv or json)", name)
	}
}

// Write renders records in the given format.
func Write(w io.Writer, format Format, records []fim.FileRecord) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, records)
	case FormatJSON:
		return writeJSON(w, records)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

var csvHeader = []string{"Path", "Status", "Size", "Permissions", "Hash", "LastCheck"}

// csvQuote quotes a single field unconditionally, doubling internal quotes.
func csvQuote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func writeCSVRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(';'); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(csvQuote(f)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

func writeCSV(w io.Writer, records []fim.FileRecord) error {
	bw := bufio.NewWriter(w)

	if err := writeCSVRow(bw, csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Path,
			rec.Status.String(),
			fmt.Sprintf("%d", rec.Size),
			PermissionsString(&rec),
			rec.Hash,
			formatTime(rec.LastChecked),
		}
		if err := writeCSVRow(bw, row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

type jsonRecord struct {
	Path        string `json:"path"`
	Status      string `json:"status"`
	Size        uint64 `json:"size"`
	Permissions string `json:"permissions"`
	Hash        string `json:"hash"`
	LastCheck   string `json:"lastCheck"`
}

func writeJSON(w io.Writer, records []fim.FileRecord) error {
	out := make([]jsonRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, jsonRecord{
			Path:        rec.Path,
			Status:      rec.Status.String(),
			Size:        rec.Size,
			Permissions: PermissionsString(&rec),
			Hash:        rec.Hash,
			LastCheck:   formatTime(rec.LastChecked),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

// PermissionsString renders a record's access information the way the
// original scanner displayed it: "owner:group rwxrwxrwx". Unknown owner or
// group names fall back to the numeric ids.
func PermissionsString(rec *fim.FileRecord) string {
	owner := rec.Owner
	if owner == "" {
		owner = fmt.Sprintf("%d", rec.UID)
	}
	group := rec.Group
	if group == "" {
		group = fmt.Sprintf("%d", rec.GID)
	}
	return fmt.Sprintf("%s:%s %s", owner, group, rwxString(rec.Permissions))
}

func rwxString(perm uint32) string {
	var b strings.Builder
	flags := "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if perm&(1<<uint(8-i)) != 0 {
			b.WriteByte(flags[i])
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02T15:04:05")
}

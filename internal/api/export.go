package api

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Reports carry a Malaysia-local timestamp in the filename.
var reportLocation = time.FixedZone("MYT", 8*60*60)

// ReportTimestamp formats now for report filenames: local time up to seconds,
// colons replaced with dashes so the name is filesystem safe.
func ReportTimestamp(now time.Time) string {
	stamp := now.In(reportLocation).Format("2006-01-02 15:04:05")
	return strings.ReplaceAll(stamp, ":", "-")
}

// WriteCSVAttachment renders header+rows as a CSV file download.
func WriteCSVAttachment(w http.ResponseWriter, filename string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(buf.Bytes())
	return err
}

// Package export renders the attendance list as downloadable CSV and XLSX
// files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"absengo/internal/attendance"
)

// CSVHeader is the fixed export header. The No column is a 1-based row
// number, not a record field.
const CSVHeader = "No,StudentName,Date,Time,Status"

// CSVFilename embeds the current date in the download name.
func CSVFilename(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return fmt.Sprintf("data_absensi_%s.csv", now.In(loc).Format("2006-01-02"))
}

// WriteCSV writes the attendance rows with every field after No quoted,
// matching the format consumers of the previous exports already parse.
func WriteCSV(w io.Writer, rows []attendance.Record) error {
	if _, err := fmt.Fprintln(w, CSVHeader); err != nil {
		return err
	}
	for i, r := range rows {
		_, err := fmt.Fprintf(w, "%d,%s,%s,%s,%s\n", i+1, quote(r.StudentName), quote(r.Date), quote(r.Time), quote(r.Status))
		if err != nil {
			return err
		}
	}
	return nil
}

// quote wraps a field in CSV quotes, doubling embedded quotes per RFC 4180.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ParseCSV reads an export back into records. Only the exported fields
// (name, date, time, status) are populated.
func ParseCSV(r io.Reader) ([]attendance.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 5

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != "No" || header[1] != "StudentName" {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var out []attendance.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, err := strconv.Atoi(row[0]); err != nil {
			return nil, fmt.Errorf("row number %q: %w", row[0], err)
		}
		out = append(out, attendance.Record{
			StudentName: row[1],
			Date:        row[2],
			Time:        row[3],
			Status:      row[4],
		})
	}
	return out, nil
}

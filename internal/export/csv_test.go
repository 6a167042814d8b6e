package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"absengo/internal/attendance"
)

var wib = time.FixedZone("WIB", 7*3600)

func sampleRows() []attendance.Record {
	return []attendance.Record{
		{StudentID: "1001", StudentName: "Budi Santoso", Date: "2024-03-11", Time: "08:00:00", Status: attendance.StatusPresent},
		{StudentID: "1002", StudentName: `Sari "Riri" Dewi`, Date: "2024-03-11", Time: "08:05:30", Status: attendance.StatusPresent},
		{StudentID: "1003", StudentName: "Agus, Jr.", Date: "2024-03-12", Time: "07:58:12", Status: attendance.StatusPresent},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	rows := sampleRows()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("write: %v", err)
	}

	parsed, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed) != len(rows) {
		t.Fatalf("parsed %d rows, want %d", len(parsed), len(rows))
	}
	for i, want := range rows {
		got := parsed[i]
		if got.StudentName != want.StudentName || got.Date != want.Date || got.Time != want.Time || got.Status != want.Status {
			t.Errorf("row %d = %+v, want name/date/time/status of %+v", i, got, want)
		}
	}
}

func TestCSVHeaderAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRows()[:1]); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != CSVHeader {
		t.Errorf("header = %q, want %q", lines[0], CSVHeader)
	}
	if lines[1] != `1,"Budi Santoso","2024-03-11","08:00:00","present"` {
		t.Errorf("row = %q", lines[1])
	}
}

func TestCSVEmptyListHasHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.TrimSpace(buf.String()) != CSVHeader {
		t.Errorf("empty export = %q", buf.String())
	}
	parsed, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if len(parsed) != 0 {
		t.Errorf("parsed %d rows from empty export", len(parsed))
	}
}

func TestParseCSVRejectsForeignHeader(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("a,b,c,d,e\n")); err == nil {
		t.Fatal("expected header error")
	}
}

func TestFilenamesEmbedDate(t *testing.T) {
	now := time.Date(2024, 3, 11, 23, 0, 0, 0, time.UTC) // already 03-12 in WIB
	if got := CSVFilename(now, wib); got != "data_absensi_2024-03-12.csv" {
		t.Errorf("csv filename = %q", got)
	}
	if got := XLSXFilename(now, wib); got != "data_absensi_2024-03-12.xlsx" {
		t.Errorf("xlsx filename = %q", got)
	}
}

func TestWriteXLSX(t *testing.T) {
	buf, err := WriteXLSX(sampleRows())
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	file, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("reopen xlsx: %v", err)
	}
	sheet := file.GetSheetName(file.GetActiveSheetIndex())
	name, err := file.GetCellValue(sheet, "C2")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if name != "Budi Santoso" {
		t.Errorf("C2 = %q, want first student name", name)
	}
}

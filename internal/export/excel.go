package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"absengo/internal/attendance"
)

// XLSXFilename embeds the current date in the download name.
func XLSXFilename(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return fmt.Sprintf("data_absensi_%s.xlsx", now.In(loc).Format("2006-01-02"))
}

// WriteXLSX builds a spreadsheet of the attendance rows.
func WriteXLSX(rows []attendance.Record) (*bytes.Buffer, error) {
	file := excelize.NewFile()
	sheet := file.GetSheetName(file.GetActiveSheetIndex())

	headers := []string{"No", "StudentID", "StudentName", "Date", "Time", "Status"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = file.SetCellValue(sheet, cell, header)
	}

	for index, r := range rows {
		row := index + 2
		_ = file.SetCellValue(sheet, fmt.Sprintf("A%d", row), index+1)
		_ = file.SetCellValue(sheet, fmt.Sprintf("B%d", row), r.StudentID)
		_ = file.SetCellValue(sheet, fmt.Sprintf("C%d", row), r.StudentName)
		_ = file.SetCellValue(sheet, fmt.Sprintf("D%d", row), r.Date)
		_ = file.SetCellValue(sheet, fmt.Sprintf("E%d", row), r.Time)
		_ = file.SetCellValue(sheet, fmt.Sprintf("F%d", row), r.Status)
	}

	return file.WriteToBuffer()
}

// Package report renders a course as a per-student attendance and grade
// table, and reads student rosters from spreadsheets.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/xuri/excelize/v2"

	"github.com/seguraabc/asistencia25/internal/dates"
	"github.com/seguraabc/asistencia25/internal/model"
	"github.com/seguraabc/asistencia25/internal/stats"
)

var logger = loggo.GetLogger("rollbook.report")

const (
	ExtCSV  = "csv"
	ExtXLSX = "xlsx"
)

// Rows returns the header followed by one row per student: name, attendance
// percentage, average grade and the raw status code for every class date.
func Rows(course model.Course) [][]string {
	header := []string{"Student", "Attendance%", "Average"}
	for _, date := range course.Dates {
		header = append(header, dates.Display(date))
	}
	rows := [][]string{header}
	for _, student := range course.Students {
		row := []string{
			student.Name,
			strconv.Itoa(stats.AttendancePercentage(student, course.Dates)) + "%",
			strconv.FormatFloat(stats.AverageGrade(student), 'f', -1, 64),
		}
		for _, date := range course.Dates {
			row = append(row, string(student.Attendances[date]))
		}
		rows = append(rows, row)
	}
	return rows
}

func WriteCSV(w io.Writer, course model.Course) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(course)); err != nil {
		return errors.Annotate(err, "writing csv report")
	}
	return nil
}

func WriteXLSX(w io.Writer, course model.Course) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warningf("closing workbook: %v", err)
		}
	}()
	sheet := f.GetSheetName(0)
	for i, row := range Rows(course) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Trace(err)
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return errors.Annotatef(err, "writing row %d", i+1)
		}
	}
	if err := f.Write(w); err != nil {
		return errors.Annotate(err, "writing xlsx report")
	}
	return nil
}

// FileName is the download name for a report generated on day.
func FileName(course model.Course, day time.Time, ext string) string {
	return fmt.Sprintf("reporte_%s_%s.%s", course.Name, dates.Format(day), ext)
}

// ReadRoster returns the student names in column A of the first sheet,
// skipping the header row and blank cells.
func ReadRoster(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Annotate(err, "opening roster")
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warningf("closing roster: %v", err)
		}
	}()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.NotValidf("roster without sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Annotatef(err, "reading sheet %s", sheet)
	}
	var names []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		if name := strings.TrimSpace(row[0]); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

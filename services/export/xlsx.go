// Package exportsvc renders report cards as files: class grade sheets (XLSX, CSV) and single report cards (PDF).
package exportsvc

import (
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/rapor/core/report"
)

const GradeSheetName = "Grades"

var attendanceHeader = []string{"Present", "Late", "Sick", "Excused", "Absent"}

// subjectColumns lists the subjects found on the reports, ordered by name.
func subjectColumns(reports []report.Report) []report.Subject {
	seen := make(map[string]bool)
	subjects := make([]report.Subject, 0)
	for _, rep := range reports {
		for _, g := range rep.Grades {
			if seen[g.SubjectID] {
				continue
			}
			seen[g.SubjectID] = true
			subjects = append(subjects, report.Subject{ID: g.SubjectID, Name: g.SubjectName})
		}
	}
	sort.SliceStable(subjects, func(i, j int) bool {
		if subjects[i].Name != subjects[j].Name {
			return subjects[i].Name < subjects[j].Name
		}
		return subjects[i].ID < subjects[j].ID
	})
	return subjects
}

// WriteGradeSheet writes an XLSX workbook with one row per student and one column per subject,
// followed by the attendance tally. A subject missing from a card leaves its cell empty.
func WriteGradeSheet(w io.Writer, class report.Class, reports []report.Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), GradeSheetName); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	subjects := subjectColumns(reports)

	header := []interface{}{"No", "Student", "Class"}
	for _, sub := range subjects {
		header = append(header, sub.Name)
	}
	header = append(header, "Published")
	for _, h := range attendanceHeader {
		header = append(header, h)
	}
	if err := f.SetSheetRow(GradeSheetName, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return errors.Wrap(err, "writing header")
	}
	if err = f.SetCellStyle(GradeSheetName, "A1", lastCol+"1", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}
	if err = f.SetColWidth(GradeSheetName, "B", "B", 30); err != nil {
		return errors.Wrap(err, "sizing columns")
	}

	for i, rep := range reports {
		values := make(map[string]float64, len(rep.Grades))
		for _, g := range rep.Grades {
			values[g.SubjectID] = g.Value.InexactFloat64()
		}

		row := []interface{}{i + 1, rep.StudentName, class.Name}
		for _, sub := range subjects {
			if v, ok := values[sub.ID]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		published := "no"
		if rep.Published {
			published = "yes"
		}
		att := rep.Attendance
		row = append(row, published, att.Present, att.Late, att.Sick, att.Excused, att.Absent)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "writing row")
		}
		if err = f.SetSheetRow(GradeSheetName, cell, &row); err != nil {
			return errors.Wrapf(err, "writing row of student %s", rep.StudentID)
		}
	}

	return errors.Wrap(f.Write(w), "writing workbook")
}

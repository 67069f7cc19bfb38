package exportsvc

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core/report"
)

const pdfDateLayout = "2 January 2006"

// WriteReportPDF renders a single report card on an A4 page. Unpublished cards are marked as drafts.
func WriteReportPDF(w io.Writer, schoolName string, rep report.Report) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Report card - %s - %s", rep.StudentName, rep.SemesterName), true)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 8, tr(schoolName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 8, "REPORT CARD", "", 1, "C", false, 0, "")
	if !rep.Published {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(200, 0, 0)
		pdf.CellFormat(0, 6, "DRAFT - not published", "", 1, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.SetDrawColor(40, 145, 108)
	pdf.SetLineWidth(0.5)
	pdf.Line(20, pdf.GetY()+2, 190, pdf.GetY()+2)
	pdf.Ln(8)

	// Student information
	info := [][2]string{
		{"Student:", rep.StudentName},
		{"Class:", rep.ClassName},
		{"Semester:", rep.SemesterName},
	}
	if rep.PublishedAt != nil {
		info = append(info, [2]string{"Published on:", rep.PublishedAt.Format(pdfDateLayout)})
	}
	for _, line := range info {
		pdf.SetFont("Arial", "", 10)
		pdf.Cell(35, 6, line[0])
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, tr(line[1]))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	// Grades
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 240, 235)
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(0.3)
	pdf.CellFormat(10, 7, "No", "1", 0, "C", true, 0, "")
	pdf.CellFormat(110, 7, "Subject", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 7, "Grade", "1", 0, "C", true, 0, "")
	pdf.CellFormat(20, 7, "", "1", 1, "C", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	for i, g := range rep.Grades {
		mark := ""
		if g.Overridden {
			mark = "*"
		}
		pdf.CellFormat(10, 7, strconv.Itoa(i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(110, 7, tr(g.SubjectName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, g.Value.StringFixed(report.GradePlaces), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 7, mark, "1", 1, "C", false, 0, "")
	}
	if len(rep.Grades) == 0 {
		pdf.CellFormat(170, 7, "No grades", "1", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, "* set by the homeroom teacher", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	// Attendance
	att := rep.Attendance
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "Attendance")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	for _, line := range []struct {
		label string
		count int
	}{
		{"Present", att.Present},
		{"Late", att.Late},
		{"Sick", att.Sick},
		{"Excused", att.Excused},
		{"Absent", att.Absent},
	} {
		pdf.CellFormat(60, 6, line.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d day(s)", line.count), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	// Remarks
	if rep.Remarks != nil && *rep.Remarks != "" {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, "Homeroom teacher's remarks")
		pdf.Ln(7)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(170, 5, tr(*rep.Remarks), "1", "L", false)
	}

	return errors.Wrap(pdf.Output(w), "writing report card PDF")
}

package exportsvc

import (
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core/report"
)

// GradeRecord is one line of the class grade CSV: a single subject grade of a single student.
type GradeRecord struct {
	StudentID   string `csv:"student_id"`
	StudentName string `csv:"student_name"`
	ClassName   string `csv:"class"`
	Semester    string `csv:"semester"`
	SubjectID   string `csv:"subject_id"`
	SubjectName string `csv:"subject"`
	Grade       string `csv:"grade"`
	Overridden  bool   `csv:"manually_overridden"`
	Published   bool   `csv:"published"`
}

func gradeRecords(reports []report.Report) []*GradeRecord {
	records := make([]*GradeRecord, 0, len(reports)*4)
	for _, rep := range reports {
		for _, g := range rep.Grades {
			records = append(records, &GradeRecord{
				StudentID:   rep.StudentID,
				StudentName: rep.StudentName,
				ClassName:   rep.ClassName,
				Semester:    rep.SemesterName,
				SubjectID:   g.SubjectID,
				SubjectName: g.SubjectName,
				Grade:       g.Value.StringFixed(report.GradePlaces),
				Overridden:  g.Overridden,
				Published:   rep.Published,
			})
		}
	}
	return records
}

// WriteGradesCSV writes the grades of the given reports in long format, one line per (student, subject).
func WriteGradesCSV(w io.Writer, reports []report.Report) error {
	records := gradeRecords(reports)
	return errors.Wrap(gocsv.Marshal(&records, w), "writing grades CSV")
}

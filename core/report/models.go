package report

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/rapor/core"
)

// Category is the kind of assessment a task belongs to.
type Category string

const (
	CategoryAssignment Category = "tugas" // daily assignment
	CategoryQuiz       Category = "kuis"
	CategoryMidterm    Category = "uts"
	CategoryFinal      Category = "uas"
)

var Categories = []Category{CategoryAssignment, CategoryQuiz, CategoryMidterm, CategoryFinal}

func (c Category) IsValid() bool {
	for _, cat := range Categories {
		if c == cat {
			return true
		}
	}
	return false
}

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "hadir"
	StatusLate    AttendanceStatus = "terlambat"
	StatusSick    AttendanceStatus = "sakit"
	StatusExcused AttendanceStatus = "izin"
	StatusAbsent  AttendanceStatus = "alfa" // absent without excuse
)

var (
	MinGrade = decimal.Zero
	MaxGrade = decimal.NewFromInt(100)
)

// Directory records, owned by other services and read-only here.
type (
	Semester struct {
		ID             string    `json:"id"`
		AcademicYearID string    `json:"academic_year_id"`
		Name           string    `json:"name"`
		StartDate      time.Time `json:"start_date"`
		EndDate        time.Time `json:"end_date"`
	}

	Class struct {
		ID                string `json:"id"`
		AcademicYearID    string `json:"academic_year_id"`
		Name              string `json:"name"`
		HomeroomTeacherID string `json:"homeroom_teacher_id"`
	}

	Student struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	Subject struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Task is an assessment task (assignment, quiz, exam) given to a class for a subject.
	Task struct {
		ID         string   `json:"id"`
		SemesterID string   `json:"semester_id"`
		ClassID    string   `json:"class_id"`
		SubjectID  string   `json:"subject_id"`
		Category   Category `json:"category"`
		Title      string   `json:"title"`
	}

	// Score is the raw score a student got on a task.
	Score struct {
		TaskID    string          `json:"task_id"`
		StudentID string          `json:"student_id"`
		Value     decimal.Decimal `json:"value"`
	}
)

// Card is a student's report card for one semester.
type Card struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	SemesterID  string     `json:"semester_id"`
	ClassID     string     `json:"class_id"`
	Remarks     *string    `json:"homeroom_remarks"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at"` // UTC
	PublishedBy *string    `json:"published_by"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
}

// Grade is the final grade of a subject on a report card.
type Grade struct {
	ID         string          `json:"id"`
	CardID     string          `json:"card_id"`
	SubjectID  string          `json:"subject_id"`
	Value      decimal.Decimal `json:"value"`
	Overridden bool            `json:"manually_overridden"`
	Note       *string         `json:"note"`
}

type AttendanceSummary struct {
	Present int `json:"present"`
	Late    int `json:"late"`
	Sick    int `json:"sick"`
	Excused int `json:"excused"`
	Absent  int `json:"absent"`
}

func (s AttendanceSummary) Total() int {
	return s.Present + s.Late + s.Sick + s.Excused + s.Absent
}

// Views

type GradeView struct {
	Grade
	SubjectName string `json:"subject_name"`
}

// Report is the assembled read view of a card.
type Report struct {
	Card
	StudentName  string            `json:"student_name"`
	ClassName    string            `json:"class_name"`
	SemesterName string            `json:"semester_name"`
	Grades       []GradeView       `json:"grades"`
	Attendance   AttendanceSummary `json:"attendance"`
}

type ListItem struct {
	ReportID    string     `json:"report_id"`
	StudentID   string     `json:"student_id"`
	StudentName string     `json:"student_name"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at"`
}

type GenerateResult struct {
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type PublishAllResult struct {
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Inputs

type GenerateRequest struct {
	ClassID    string `json:"class_id" validate:"required"`
	SemesterID string `json:"semester_id" validate:"required"`
}

func (gr *GenerateRequest) Validate(validate *validator.Validate) error {
	gr.ClassID = core.CleanString(gr.ClassID)
	gr.SemesterID = core.CleanString(gr.SemesterID)
	return validate.Struct(gr)
}

// UpdateCard defines what information may be provided to modify an existing Card.
type UpdateCard struct {
	Remarks *string `json:"homeroom_remarks"`
}

func (uc *UpdateCard) Validate() error {
	if uc.Remarks == nil {
		return core.NewValidationError(errors.New("no fields to update"))
	}
	remarks := core.CleanString(*uc.Remarks)
	uc.Remarks = &remarks
	return nil
}

// OverrideGrade contains the value a teacher sets by hand on a subject grade.
type OverrideGrade struct {
	Value *decimal.Decimal `json:"value" validate:"required"`
	Note  *string          `json:"note" validate:"omitempty,max=500"`
}

func (og *OverrideGrade) Validate(validate *validator.Validate) error {
	if og.Note != nil {
		note := core.CleanString(*og.Note)
		og.Note = &note
	}
	if err := validate.Struct(og); err != nil {
		return err
	}
	if og.Value.LessThan(MinGrade) || og.Value.GreaterThan(MaxGrade) {
		return core.NewValidationError(
			errors.New("invalid grade"),
			core.FieldError{Field: "value", Error: "value must be between 0 and 100"},
		)
	}
	return nil
}

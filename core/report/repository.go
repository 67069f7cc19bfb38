package report

import (
	"context"
	"time"
)

type (
	Calendar interface {
		GetSemester(ctx context.Context, id string) (Semester, error)
	}

	Enrollment interface {
		GetClass(ctx context.Context, id string) (Class, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		// ClassStudents returns the students enrolled in a class, ordered by name.
		ClassStudents(ctx context.Context, classID string) ([]Student, error)
		// ClassSubjects returns the distinct subjects taught in a class during an academic year.
		ClassSubjects(ctx context.Context, classID, academicYearID string) ([]Subject, error)
		// SubjectNames maps subject IDs to display names; unknown IDs are left out.
		SubjectNames(ctx context.Context, ids ...string) (map[string]string, error)
	}

	Scoring interface {
		Tasks(ctx context.Context, classID, subjectID, semesterID string) ([]Task, error)
		StudentScores(ctx context.Context, studentID string, taskIDs ...string) ([]Score, error)
		CategoryWeights(ctx context.Context, subjectID, classID, semesterID string) (map[Category]int, error)
	}

	Attendance interface {
		// AttendanceCounts counts a student's attendance records per status, from and to inclusive.
		AttendanceCounts(ctx context.Context, studentID string, from, to time.Time) (map[AttendanceStatus]int, error)
	}

	// Directory is everything read from the school's records.
	Directory interface {
		Calendar
		Enrollment
		Scoring
		Attendance
	}

	// Repository stores report cards and their subject grades.
	// Reads run outside of any unit of work; writes go through Begin.
	Repository interface {
		GetCard(ctx context.Context, id string) (Card, error)
		FindCard(ctx context.Context, studentID, semesterID string) (Card, error)
		CardExists(ctx context.Context, studentID, semesterID string) (bool, error)
		ListCards(ctx context.Context, classID, semesterID string) ([]Card, error)
		GetGrade(ctx context.Context, id string) (Grade, error)
		CardGrades(ctx context.Context, cardID string) ([]Grade, error)
		// GradesByCards returns the grades of many cards at once, keyed by card ID.
		GradesByCards(ctx context.Context, cardIDs ...string) (map[string][]Grade, error)
		Begin(ctx context.Context) (UnitOfWork, error)
	}

	// UnitOfWork is a single transaction. It must end with exactly one Commit or Rollback.
	UnitOfWork interface {
		// InsertCard returns created=false, without error, when a card already exists
		// for the same (student, semester).
		InsertCard(ctx context.Context, card Card) (c Card, created bool, err error)
		InsertGrade(ctx context.Context, grade Grade) (Grade, error)
		UpdateGrade(ctx context.Context, grade Grade) error
		UpdateRemarks(ctx context.Context, cardID string, remarks *string) error
		// PublishCard returns false when the card was already published.
		PublishCard(ctx context.Context, cardID string, at time.Time, by string) (bool, error)
		CardGrades(ctx context.Context, cardID string) ([]Grade, error)
		Commit() error
		Rollback() error
	}
)

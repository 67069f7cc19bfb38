package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// School holds the IDs of the records inserted by SeedSchool.
type School struct {
	AcademicYearID string
	SemesterID     string
	ClassID        string
	HomeroomID     string
	MathID         string
	ScienceID      string
	AyuID          string
	BudiID         string
	QuizID         string
	FinalID        string
}

// SeedSchool inserts a class of two students (Ayu, Budi) taking Mathematics and Science.
// Ayu's Mathematics scores aggregate to 74.50 with weights kuis 30 / uas 70; Budi has no score.
func SeedSchool(t *testing.T, db *sql.DB) School {
	t.Helper()

	s := School{
		AcademicYearID: uuid.New().String(),
		SemesterID:     uuid.New().String(),
		ClassID:        uuid.New().String(),
		HomeroomID:     uuid.New().String(),
		MathID:         uuid.New().String(),
		ScienceID:      uuid.New().String(),
		AyuID:          uuid.New().String(),
		BudiID:         uuid.New().String(),
		QuizID:         uuid.New().String(),
		FinalID:        uuid.New().String(),
	}
	quiz2ID := uuid.New().String()

	stmts := []struct {
		q    string
		args []interface{}
	}{
		{"INSERT INTO academic_years (id, name) VALUES ($1, $2)", []interface{}{s.AcademicYearID, "2024/2025 " + s.AcademicYearID[:8]}},
		{
			"INSERT INTO semesters (id, academic_year_id, name, start_date, end_date) VALUES ($1, $2, $3, $4, $5)",
			[]interface{}{s.SemesterID, s.AcademicYearID, "Ganjil 2024/2025", "2024-07-15", "2024-12-20"},
		},
		{"INSERT INTO users (id, name, email, roles) VALUES ($1, $2, $3, $4)", []interface{}{s.HomeroomID, "Bu Sari", "sari@school.test", pq.Array([]string{"teacher:"})}},
		{"INSERT INTO users (id, name, email, roles) VALUES ($1, $2, $3, $4)", []interface{}{s.AyuID, "Ayu", "ayu@school.test", pq.Array([]string{"student:"})}},
		{"INSERT INTO users (id, name, roles) VALUES ($1, $2, $3)", []interface{}{s.BudiID, "Budi", pq.Array([]string{"student:"})}},
		{
			"INSERT INTO classes (id, academic_year_id, name, homeroom_teacher_id) VALUES ($1, $2, $3, $4)",
			[]interface{}{s.ClassID, s.AcademicYearID, "X-A", s.HomeroomID},
		},
		{"INSERT INTO subjects (id, name) VALUES ($1, $2), ($3, $4)", []interface{}{s.MathID, "Mathematics", s.ScienceID, "Science"}},
		{
			"INSERT INTO class_subjects (id, class_id, subject_id, academic_year_id) VALUES ($1, $2, $3, $4), ($5, $2, $6, $4), ($7, $2, $6, $4)",
			[]interface{}{uuid.New().String(), s.ClassID, s.MathID, s.AcademicYearID, uuid.New().String(), s.ScienceID, uuid.New().String()},
		},
		{"INSERT INTO enrollments (class_id, student_id) VALUES ($1, $2), ($1, $3)", []interface{}{s.ClassID, s.AyuID, s.BudiID}},
		{
			`INSERT INTO tasks (id, semester_id, class_id, subject_id, category, title) VALUES
			($1, $4, $5, $6, 'kuis', 'Quiz 1'), ($2, $4, $5, $6, 'kuis', 'Quiz 2'), ($3, $4, $5, $6, 'uas', 'Final')`,
			[]interface{}{s.QuizID, quiz2ID, s.FinalID, s.SemesterID, s.ClassID, s.MathID},
		},
		{
			"INSERT INTO scores (id, task_id, student_id, value) VALUES ($1, $2, $7, 80), ($3, $4, $7, 90), ($5, $6, $7, 70)",
			[]interface{}{uuid.New().String(), s.QuizID, uuid.New().String(), quiz2ID, uuid.New().String(), s.FinalID, s.AyuID},
		},
		{
			`INSERT INTO category_weights (id, subject_id, class_id, semester_id, category, weight) VALUES
			($1, $3, $4, $5, 'kuis', 30), ($2, $3, $4, $5, 'uas', 70)`,
			[]interface{}{uuid.New().String(), uuid.New().String(), s.MathID, s.ClassID, s.SemesterID},
		},
		{
			`INSERT INTO attendance (id, student_id, date, status) VALUES
			($1, $4, '2024-08-01', 'hadir'), ($2, $4, '2024-08-02', 'sakit'), ($3, $4, '2025-01-06', 'hadir')`,
			[]interface{}{uuid.New().String(), uuid.New().String(), uuid.New().String(), s.AyuID},
		},
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt.q, stmt.args...); err != nil {
			t.Fatalf("SeedSchool() failed: %v\n%s", err, stmt.q)
		}
	}
	return s
}

// SemesterBounds are the dates of the seeded semester.
func SemesterBounds() (time.Time, time.Time) {
	return Date(2024, time.July, 15), Date(2024, time.December, 20)
}

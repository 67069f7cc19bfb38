package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/report"
)

const dateLayout = "2006-01-02"

// directory reads the school records (calendar, enrollments, scores and attendance) maintained by
// the rest of the school system. Rows map onto the report types through their json tags.
type directory struct {
	db *sqlx.DB
}

var _ report.Directory = (*directory)(nil) // interface compliance check

func NewDirectory(db *sql.DB) report.Directory {
	dbx := sqlx.NewDb(db, core.EnginePostgres)
	dbx.Mapper = reflectx.NewMapperFunc("json", strings.ToLower)
	return &directory{db: dbx}
}

func isValidID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isValidID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

func (dir *directory) get(ctx context.Context, dest interface{}, notFound string, query string, args ...interface{}) error {
	err := dir.db.GetContext(ctx, dest, query, args...)
	if err == sql.ErrNoRows {
		return core.NewNotFoundError(notFound)
	}
	return errors.Wrap(err, "querying "+strings.TrimSuffix(notFound, " not found"))
}

func (dir *directory) GetSemester(ctx context.Context, id string) (report.Semester, error) {
	var sem report.Semester
	if !isValidID(id) {
		return sem, core.NewNotFoundError("semester not found")
	}
	err := dir.get(ctx, &sem, "semester not found",
		"SELECT id, academic_year_id, name, start_date, end_date FROM semesters WHERE id = $1", id)
	return sem, err
}

func (dir *directory) GetClass(ctx context.Context, id string) (report.Class, error) {
	var class report.Class
	if !isValidID(id) {
		return class, core.NewNotFoundError("class not found")
	}
	err := dir.get(ctx, &class, "class not found",
		`SELECT id, academic_year_id, name, COALESCE(homeroom_teacher_id::text, '') AS homeroom_teacher_id
		FROM classes WHERE id = $1`, id)
	return class, err
}

func (dir *directory) GetStudent(ctx context.Context, id string) (report.Student, error) {
	var st report.Student
	if !isValidID(id) {
		return st, core.NewNotFoundError("student not found")
	}
	err := dir.get(ctx, &st, "student not found",
		"SELECT id, name, COALESCE(email, '') AS email FROM users WHERE id = $1", id)
	return st, err
}

func (dir *directory) ClassStudents(ctx context.Context, classID string) ([]report.Student, error) {
	students := make([]report.Student, 0)
	if !isValidID(classID) {
		return students, nil
	}
	err := dir.db.SelectContext(ctx, &students,
		`SELECT u.id, u.name, COALESCE(u.email, '') AS email
		FROM users u JOIN enrollments e ON e.student_id = u.id
		WHERE e.class_id = $1
		ORDER BY u.name, u.id`, classID)
	return students, errors.Wrap(err, "querying class students")
}

func (dir *directory) ClassSubjects(ctx context.Context, classID, academicYearID string) ([]report.Subject, error) {
	subjects := make([]report.Subject, 0)
	if !isValidID(classID, academicYearID) {
		return subjects, nil
	}
	err := dir.db.SelectContext(ctx, &subjects,
		`SELECT DISTINCT s.id, s.name
		FROM subjects s JOIN class_subjects cs ON cs.subject_id = s.id
		WHERE cs.class_id = $1 AND cs.academic_year_id = $2
		ORDER BY s.name, s.id`, classID, academicYearID)
	return subjects, errors.Wrap(err, "querying class subjects")
}

func (dir *directory) SubjectNames(ctx context.Context, ids ...string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if ids = validIDs(ids); len(ids) == 0 {
		return names, nil
	}

	q, args, err := sqlx.In("SELECT id, name FROM subjects WHERE id IN (?)", ids)
	if err != nil {
		return nil, errors.Wrap(err, "building subjects query")
	}
	var subjects []report.Subject
	if err = dir.db.SelectContext(ctx, &subjects, dir.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	for _, sub := range subjects {
		names[sub.ID] = sub.Name
	}
	return names, nil
}

func (dir *directory) Tasks(ctx context.Context, classID, subjectID, semesterID string) ([]report.Task, error) {
	tasks := make([]report.Task, 0)
	if !isValidID(classID, subjectID, semesterID) {
		return tasks, nil
	}
	err := dir.db.SelectContext(ctx, &tasks,
		`SELECT id, semester_id, class_id, subject_id, category, title FROM tasks
		WHERE class_id = $1 AND subject_id = $2 AND semester_id = $3
		ORDER BY id`, classID, subjectID, semesterID)
	return tasks, errors.Wrap(err, "querying tasks")
}

func (dir *directory) StudentScores(ctx context.Context, studentID string, taskIDs ...string) ([]report.Score, error) {
	scores := make([]report.Score, 0)
	taskIDs = validIDs(taskIDs)
	if !isValidID(studentID) || len(taskIDs) == 0 {
		return scores, nil
	}

	q, args, err := sqlx.In("SELECT task_id, student_id, value FROM scores WHERE student_id = ? AND task_id IN (?)", studentID, taskIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building scores query")
	}
	err = dir.db.SelectContext(ctx, &scores, dir.db.Rebind(q), args...)
	return scores, errors.Wrap(err, "querying scores")
}

func (dir *directory) CategoryWeights(ctx context.Context, subjectID, classID, semesterID string) (map[report.Category]int, error) {
	weights := make(map[report.Category]int)
	if !isValidID(subjectID, classID, semesterID) {
		return weights, nil
	}

	var rows []struct {
		Category report.Category `json:"category"`
		Weight   int             `json:"weight"`
	}
	err := dir.db.SelectContext(ctx, &rows,
		`SELECT category, weight FROM category_weights
		WHERE subject_id = $1 AND class_id = $2 AND semester_id = $3`, subjectID, classID, semesterID)
	if err != nil {
		return nil, errors.Wrap(err, "querying category weights")
	}
	for _, row := range rows {
		weights[row.Category] = row.Weight
	}
	return weights, nil
}

func (dir *directory) AttendanceCounts(ctx context.Context, studentID string, from, to time.Time) (map[report.AttendanceStatus]int, error) {
	counts := make(map[report.AttendanceStatus]int)
	if !isValidID(studentID) {
		return counts, nil
	}

	var rows []struct {
		Status report.AttendanceStatus `json:"status"`
		Count  int                     `json:"count"`
	}
	err := dir.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM attendance
		WHERE student_id = $1 AND date BETWEEN $2::date AND $3::date
		GROUP BY status`, studentID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, errors.Wrap(err, "counting attendance")
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/report"
)

type directory struct {
	db *DB
}

var _ report.Directory = (*directory)(nil) // interface compliance check

func NewDirectory(db *DB) report.Directory {
	return &directory{db: db}
}

func (dir *directory) GetSemester(ctx context.Context, id string) (report.Semester, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	if sem, ok := dir.db.semesters[id]; ok {
		return sem, nil
	}
	return report.Semester{}, core.NewNotFoundError("semester not found")
}

func (dir *directory) GetClass(ctx context.Context, id string) (report.Class, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	if class, ok := dir.db.classes[id]; ok {
		return class, nil
	}
	return report.Class{}, core.NewNotFoundError("class not found")
}

func (dir *directory) GetStudent(ctx context.Context, id string) (report.Student, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	if st, ok := dir.db.students[id]; ok {
		return st, nil
	}
	return report.Student{}, core.NewNotFoundError("student not found")
}

func (dir *directory) ClassStudents(ctx context.Context, classID string) ([]report.Student, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	students := make([]report.Student, 0, len(dir.db.enrollments[classID]))
	for id := range dir.db.enrollments[classID] {
		if st, ok := dir.db.students[id]; ok {
			students = append(students, st)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].Name != students[j].Name {
			return students[i].Name < students[j].Name
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func (dir *directory) ClassSubjects(ctx context.Context, classID, academicYearID string) ([]report.Subject, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	seen := make(map[string]bool)
	subjects := make([]report.Subject, 0)
	for _, cs := range dir.db.classSubjects {
		if cs.classID != classID || cs.academicYearID != academicYearID || seen[cs.subjectID] {
			continue
		}
		if sub, ok := dir.db.subjects[cs.subjectID]; ok {
			seen[sub.ID] = true
			subjects = append(subjects, sub)
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

func (dir *directory) SubjectNames(ctx context.Context, ids ...string) (map[string]string, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if sub, ok := dir.db.subjects[id]; ok {
			names[id] = sub.Name
		}
	}
	return names, nil
}

func (dir *directory) Tasks(ctx context.Context, classID, subjectID, semesterID string) ([]report.Task, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	tasks := make([]report.Task, 0)
	for _, task := range dir.db.tasks {
		if task.ClassID == classID && task.SubjectID == subjectID && task.SemesterID == semesterID {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (dir *directory) StudentScores(ctx context.Context, studentID string, taskIDs ...string) ([]report.Score, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	scores := make([]report.Score, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		if score, ok := dir.db.scores[scoreKey{taskID: taskID, studentID: studentID}]; ok {
			scores = append(scores, score)
		}
	}
	return scores, nil
}

func (dir *directory) CategoryWeights(ctx context.Context, subjectID, classID, semesterID string) (map[report.Category]int, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	weights := make(map[report.Category]int)
	for key, w := range dir.db.weights {
		if key.subjectID == subjectID && key.classID == classID && key.semesterID == semesterID {
			weights[key.category] = w
		}
	}
	return weights, nil
}

func (dir *directory) AttendanceCounts(ctx context.Context, studentID string, from, to time.Time) (map[report.AttendanceStatus]int, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	start, end := from.Format(dateLayout), to.Format(dateLayout)
	counts := make(map[report.AttendanceStatus]int)
	for key, status := range dir.db.attendance {
		if key.studentID == studentID && key.date >= start && key.date <= end {
			counts[status]++
		}
	}
	return counts, nil
}

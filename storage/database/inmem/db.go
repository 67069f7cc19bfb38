// Package inmemdb is a map-backed store for the school directory and report cards.
// It emulates the unique constraints of the SQL schema and serializes units of work.
package inmemdb

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/rapor/core/report"
)

const dateLayout = "2006-01-02"

type (
	classSubject struct {
		classID        string
		subjectID      string
		academicYearID string
	}

	scoreKey struct {
		taskID    string
		studentID string
	}

	weightKey struct {
		subjectID  string
		classID    string
		semesterID string
		category   report.Category
	}

	attendanceKey struct {
		studentID string
		date      string // YYYY-MM-DD
	}
)

type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex // held by the open unit of work, if any

	semesters     map[string]report.Semester
	classes       map[string]report.Class
	students      map[string]report.Student
	enrollments   map[string]map[string]bool // {classID: {studentID}}
	subjects      map[string]report.Subject
	classSubjects []classSubject
	tasks         map[string]report.Task
	scores        map[scoreKey]report.Score
	weights       map[weightKey]int
	attendance    map[attendanceKey]report.AttendanceStatus

	cards  map[string]report.Card
	grades map[string]report.Grade

	// BeforeInsertGrade, when set, runs before every grade insert; an error aborts the insert.
	BeforeInsertGrade func(report.Grade) error
}

func NewDB() *DB {
	return &DB{
		semesters:   make(map[string]report.Semester),
		classes:     make(map[string]report.Class),
		students:    make(map[string]report.Student),
		enrollments: make(map[string]map[string]bool),
		subjects:    make(map[string]report.Subject),
		tasks:       make(map[string]report.Task),
		scores:      make(map[scoreKey]report.Score),
		weights:     make(map[weightKey]int),
		attendance:  make(map[attendanceKey]report.AttendanceStatus),
		cards:       make(map[string]report.Card),
		grades:      make(map[string]report.Grade),
	}
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

// Seeding. Records without an ID get a new UUID.

func (db *DB) AddSemester(sem report.Semester) report.Semester {
	db.mu.Lock()
	defer db.mu.Unlock()
	sem.ID = newID(sem.ID)
	db.semesters[sem.ID] = sem
	return sem
}

func (db *DB) AddClass(class report.Class) report.Class {
	db.mu.Lock()
	defer db.mu.Unlock()
	class.ID = newID(class.ID)
	db.classes[class.ID] = class
	return class
}

// AddStudent saves a student and enrolls them in the given classes.
func (db *DB) AddStudent(st report.Student, classIDs ...string) report.Student {
	db.mu.Lock()
	defer db.mu.Unlock()
	st.ID = newID(st.ID)
	db.students[st.ID] = st
	for _, classID := range classIDs {
		if db.enrollments[classID] == nil {
			db.enrollments[classID] = make(map[string]bool)
		}
		db.enrollments[classID][st.ID] = true
	}
	return st
}

func (db *DB) AddSubject(sub report.Subject) report.Subject {
	db.mu.Lock()
	defer db.mu.Unlock()
	sub.ID = newID(sub.ID)
	db.subjects[sub.ID] = sub
	return sub
}

// AssignSubject records that a subject is taught in a class during an academic year.
func (db *DB) AssignSubject(classID, subjectID, academicYearID string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.classSubjects = append(db.classSubjects, classSubject{classID: classID, subjectID: subjectID, academicYearID: academicYearID})
}

func (db *DB) AddTask(task report.Task) report.Task {
	db.mu.Lock()
	defer db.mu.Unlock()
	task.ID = newID(task.ID)
	db.tasks[task.ID] = task
	return task
}

// SetScore saves a student's score on a task, replacing any previous one.
func (db *DB) SetScore(score report.Score) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.scores[scoreKey{taskID: score.TaskID, studentID: score.StudentID}] = score
}

func (db *DB) SetWeight(subjectID, classID, semesterID string, cat report.Category, weight int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.weights[weightKey{subjectID: subjectID, classID: classID, semesterID: semesterID, category: cat}] = weight
}

func (db *DB) SetAttendance(studentID string, date time.Time, status report.AttendanceStatus) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.attendance[attendanceKey{studentID: studentID, date: date.Format(dateLayout)}] = status
}

package testutil

import (
	"database/sql"
	"io"
	"net/mail"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/report"
	"github.com/trezcool/rapor/core/user"
	"github.com/trezcool/rapor/services/logger"
	"github.com/trezcool/rapor/storage/database"
	"github.com/trezcool/rapor/storage/database/inmem"
)

// Config is the configuration used across tests.
func Config() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Rapor",
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://school.test",
		DefaultFromEmail: mail.Address{Name: "Rapor", Address: "noreply@school.test"},
		Server: core.ServerConfig{
			JWTExpirationDelta: time.Hour,
			ShutdownTimeout:    time.Second,
		},
		Database: core.DatabaseConfig{Engine: core.EngineMemory},
	}
}

// Logger discards everything and never reaches Rollbar.
func Logger() core.Logger {
	logger := logsvc.NewRollbarLogger(io.Discard, "TEST", Config())
	logger.Enable(false)
	return logger
}

func NewValidator() *validator.Validate {
	validate, _ := NewValidation()
	return validate
}

// NewValidation returns a validator along with the translator its messages are registered on.
func NewValidation() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func Dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Fixture is a small school: one class of three students taking two subjects.
//
//	Mathematics: quizzes (30%) & final exam (70%)
//	  Ayu:   quiz 80, 90 - final 70 => 74.50
//	  Budi:  quiz 100    - final 50 => 65.00
//	  Citra: nothing                => 0.00
//	Science: assignments only, no weights
//	  Ayu: 88 => 88.00, Budi: 60, 70 => 65.00, Citra: nothing => 0.00
type Fixture struct {
	DB   *inmemdb.DB
	Dir  report.Directory
	Repo report.Repository

	AcademicYearID string
	Semester       report.Semester
	Class          report.Class
	OtherClass     report.Class // no students, no subjects
	Mathematics    report.Subject
	Science        report.Subject
	History        report.Subject // taught in the class, but in another academic year
	Ayu            report.Student
	Budi           report.Student
	Citra          report.Student

	Admin    user.User
	Homeroom user.User // homeroom teacher of Class
	Teacher  user.User // any other teacher
}

func (fx *Fixture) Students() []report.Student {
	return []report.Student{fx.Ayu, fx.Budi, fx.Citra}
}

// StudentUser is the actor behind a student's own session.
func (fx *Fixture) StudentUser(st report.Student) user.User {
	return user.User{ID: st.ID, Name: st.Name, Email: st.Email, Roles: []string{user.RoleStudent}}
}

func NewFixture(t *testing.T) *Fixture {
	t.Helper()

	db := inmemdb.NewDB()
	fx := &Fixture{
		DB:             db,
		Dir:            inmemdb.NewDirectory(db),
		Repo:           inmemdb.NewReportRepository(db),
		AcademicYearID: "ay-2024",
		Admin:          user.User{ID: "admin-1", Name: "Pak Kepala", Email: "kepala@school.test", Roles: []string{user.RoleAdminPrincipal}},
		Homeroom:       user.User{ID: "teacher-1", Name: "Bu Sari", Email: "sari@school.test", Roles: []string{user.RoleTeacher}},
		Teacher:        user.User{ID: "teacher-2", Name: "Pak Dodi", Email: "dodi@school.test", Roles: []string{user.RoleTeacher}},
	}

	fx.Semester = db.AddSemester(report.Semester{
		ID:             "sem-1",
		AcademicYearID: fx.AcademicYearID,
		Name:           "Ganjil 2024/2025",
		StartDate:      Date(2024, time.July, 15),
		EndDate:        Date(2024, time.December, 20),
	})
	fx.Class = db.AddClass(report.Class{ID: "class-xa", AcademicYearID: fx.AcademicYearID, Name: "X-A", HomeroomTeacherID: fx.Homeroom.ID})
	fx.OtherClass = db.AddClass(report.Class{ID: "class-xb", AcademicYearID: fx.AcademicYearID, Name: "X-B", HomeroomTeacherID: fx.Teacher.ID})

	fx.Ayu = db.AddStudent(report.Student{ID: "st-ayu", Name: "Ayu", Email: "ayu@school.test"}, fx.Class.ID)
	fx.Budi = db.AddStudent(report.Student{ID: "st-budi", Name: "Budi", Email: "budi@school.test"}, fx.Class.ID)
	fx.Citra = db.AddStudent(report.Student{ID: "st-citra", Name: "Citra"}, fx.Class.ID)

	fx.Mathematics = db.AddSubject(report.Subject{ID: "sub-math", Name: "Mathematics"})
	fx.Science = db.AddSubject(report.Subject{ID: "sub-sci", Name: "Science"})
	fx.History = db.AddSubject(report.Subject{ID: "sub-hist", Name: "History"})
	db.AssignSubject(fx.Class.ID, fx.Mathematics.ID, fx.AcademicYearID)
	db.AssignSubject(fx.Class.ID, fx.Science.ID, fx.AcademicYearID)
	db.AssignSubject(fx.Class.ID, fx.Science.ID, fx.AcademicYearID) // taught by two teachers
	db.AssignSubject(fx.Class.ID, fx.History.ID, "ay-2023")

	newTask := func(id string, sub report.Subject, cat report.Category) report.Task {
		return db.AddTask(report.Task{
			ID: id, SemesterID: fx.Semester.ID, ClassID: fx.Class.ID, SubjectID: sub.ID, Category: cat, Title: id,
		})
	}
	quiz1 := newTask("task-quiz-1", fx.Mathematics, report.CategoryQuiz)
	quiz2 := newTask("task-quiz-2", fx.Mathematics, report.CategoryQuiz)
	final := newTask("task-final", fx.Mathematics, report.CategoryFinal)
	hw1 := newTask("task-hw-1", fx.Science, report.CategoryAssignment)
	hw2 := newTask("task-hw-2", fx.Science, report.CategoryAssignment)

	score := func(task report.Task, st report.Student, value string) {
		db.SetScore(report.Score{TaskID: task.ID, StudentID: st.ID, Value: Dec(value)})
	}
	score(quiz1, fx.Ayu, "80")
	score(quiz2, fx.Ayu, "90")
	score(final, fx.Ayu, "70")
	score(hw1, fx.Ayu, "88")
	score(quiz1, fx.Budi, "100")
	score(final, fx.Budi, "50")
	score(hw1, fx.Budi, "60")
	score(hw2, fx.Budi, "70")

	db.SetWeight(fx.Mathematics.ID, fx.Class.ID, fx.Semester.ID, report.CategoryQuiz, 30)
	db.SetWeight(fx.Mathematics.ID, fx.Class.ID, fx.Semester.ID, report.CategoryFinal, 70)

	// Ayu: 3 present, 1 late, 1 sick, 1 absent; the last record is outside the semester
	db.SetAttendance(fx.Ayu.ID, Date(2024, time.August, 1), report.StatusPresent)
	db.SetAttendance(fx.Ayu.ID, Date(2024, time.August, 2), report.StatusPresent)
	db.SetAttendance(fx.Ayu.ID, Date(2024, time.December, 20), report.StatusPresent)
	db.SetAttendance(fx.Ayu.ID, Date(2024, time.August, 5), report.StatusLate)
	db.SetAttendance(fx.Ayu.ID, Date(2024, time.August, 6), report.StatusSick)
	db.SetAttendance(fx.Ayu.ID, Date(2024, time.August, 7), report.StatusAbsent)
	db.SetAttendance(fx.Ayu.ID, Date(2025, time.January, 6), report.StatusPresent)

	return fx
}

// NewService wires a report service on top of the fixture. mailSvc may be nil.
func (fx *Fixture) NewService(mailSvc core.EmailService) *report.Service {
	return report.NewService(report.ServiceDeps{
		Directory: fx.Dir,
		Repo:      fx.Repo,
		MailSvc:   mailSvc,
		Logger:    Logger(),
		Validate:  NewValidator(),
	})
}

// OpenDB connects to the Postgres database in TEST_DATABASE_URL and migrates it.
// The test is skipped when the variable is not set. Tables are not emptied: packages
// run concurrently against the same database, so each test seeds records of its own.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open(core.EnginePostgres, dsn)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

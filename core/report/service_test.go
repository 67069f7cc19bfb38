package report_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/report"
	"github.com/trezcool/rapor/core/user"
	"github.com/trezcool/rapor/services/email"
	"github.com/trezcool/rapor/tests"
)

var ctx = context.Background()

func generated(t *testing.T, fx *testutil.Fixture, svc *report.Service) {
	t.Helper()
	res, err := svc.Generate(ctx, report.GenerateRequest{ClassID: fx.Class.ID, SemesterID: fx.Semester.ID}, fx.Admin)
	require.NoError(t, err)
	require.Equal(t, report.GenerateResult{Generated: 3}, res)
}

func cardOf(t *testing.T, fx *testutil.Fixture, st report.Student) report.Card {
	t.Helper()
	card, err := fx.Repo.FindCard(ctx, st.ID, fx.Semester.ID)
	require.NoError(t, err)
	return card
}

func gradeOf(t *testing.T, fx *testutil.Fixture, card report.Card, sub report.Subject) report.Grade {
	t.Helper()
	grades, err := fx.Repo.CardGrades(ctx, card.ID)
	require.NoError(t, err)
	for _, g := range grades {
		if g.SubjectID == sub.ID {
			return g
		}
	}
	t.Fatalf("no %s grade on card %s", sub.Name, card.ID)
	return report.Grade{}
}

// emptyCard saves a card that has no subject grades.
func emptyCard(t *testing.T, fx *testutil.Fixture, st report.Student) report.Card {
	t.Helper()
	uow, err := fx.Repo.Begin(ctx)
	require.NoError(t, err)
	card, created, err := uow.InsertCard(ctx, report.Card{StudentID: st.ID, SemesterID: fx.Semester.ID, ClassID: fx.Class.ID})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, uow.Commit())
	return card
}

func freezeTime(t *testing.T) time.Time {
	now := time.Date(2024, time.December, 21, 8, 30, 0, 0, time.UTC)
	report.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { report.NowFunc = time.Now })
	return now
}

func TestService_Generate(t *testing.T) {
	fx := testutil.NewFixture(t)
	svc := fx.NewService(nil)

	generated(t, fx, svc)

	wantGrades := map[string]map[string]string{
		fx.Ayu.ID:   {fx.Mathematics.ID: "74.5", fx.Science.ID: "88"},
		fx.Budi.ID:  {fx.Mathematics.ID: "65", fx.Science.ID: "65"},
		fx.Citra.ID: {fx.Mathematics.ID: "0", fx.Science.ID: "0"},
	}
	for _, st := range fx.Students() {
		t.Run(st.Name, func(t *testing.T) {
			card := cardOf(t, fx, st)
			assert.Equal(t, fx.Class.ID, card.ClassID)
			assert.False(t, card.Published)
			assert.Nil(t, card.PublishedAt)
			assert.Nil(t, card.Remarks)

			grades, err := fx.Repo.CardGrades(ctx, card.ID)
			require.NoError(t, err)
			require.Len(t, grades, 2) // History belongs to another academic year
			for _, g := range grades {
				want := testutil.Dec(wantGrades[st.ID][g.SubjectID])
				assert.Truef(t, g.Value.Equal(want), "%s grade = %s; want %s", g.SubjectID, g.Value, want)
				assert.False(t, g.Overridden)
			}
		})
	}

	t.Run("again", func(t *testing.T) {
		res, err := svc.Generate(ctx, report.GenerateRequest{ClassID: fx.Class.ID, SemesterID: fx.Semester.ID}, fx.Homeroom)
		require.NoError(t, err)
		assert.Equal(t, report.GenerateResult{Skipped: 3}, res)
	})
}

func TestService_Generate_partialFailure(t *testing.T) {
	fx := testutil.NewFixture(t)
	svc := fx.NewService(nil)

	var calls int
	fx.DB.BeforeInsertGrade = func(report.Grade) error {
		calls++
		if calls == 1 { // Ayu's first grade
			return errors.New("disk full")
		}
		return nil
	}

	res, err := svc.Generate(ctx, report.GenerateRequest{ClassID: fx.Class.ID, SemesterID: fx.Semester.ID}, fx.Admin)
	require.NoError(t, err)
	assert.Equal(t, report.GenerateResult{Generated: 2, Failed: 1}, res)

	_, err = fx.Repo.FindCard(ctx, fx.Ayu.ID, fx.Semester.ID)
	assert.True(t, core.IsNotFound(err), "a failed card must be rolled back")

	fx.DB.BeforeInsertGrade = nil
	res, err = svc.Generate(ctx, report.GenerateRequest{ClassID: fx.Class.ID, SemesterID: fx.Semester.ID}, fx.Admin)
	require.NoError(t, err)
	assert.Equal(t, report.GenerateResult{Generated: 1, Skipped: 2}, res)
}

func TestService_Generate_errors(t *testing.T) {
	fx := testutil.NewFixture(t)
	svc := fx.NewService(nil)

	noSubjects := fx.DB.AddClass(report.Class{ID: "class-xc", AcademicYearID: fx.AcademicYearID, Name: "X-C", HomeroomTeacherID: fx.Teacher.ID})
	dewi := fx.DB.AddStudent(report.Student{ID: "st-dewi", Name: "Dewi"}, noSubjects.ID)

	tests := []struct {
		name    string
		req     report.GenerateRequest
		actor   user.User
		checkFn func(error) bool
	}{
		{
			name:    "missing fields",
			actor:   fx.Admin,
			checkFn: func(err error) bool { _, ok := errors.Cause(err).(validator.ValidationErrors); return ok },
		},
		{
			name:    "unknown semester",
			req:     report.GenerateRequest{ClassID: fx.Class.ID, SemesterID: "nope"},
			actor:   fx.Admin,
			checkFn: core.IsNotFound,
		},
		{
			name:    "unknown class",
			req:     report.GenerateRequest{ClassID: "nope", SemesterID: fx.Semester.ID},
			actor:   fx.Admin,
			checkFn: core.IsNotFound,
		},
		{
			name:    "not the homeroom teacher",
			req:     report.GenerateRequest{ClassID: fx.Class.ID, SemesterID: fx.Semester.ID},
			actor:   fx.Teacher,
			checkFn: core.IsForbidden,
		},
		{
			name:    "student",
			req:     report.GenerateRequest{ClassID: fx.Class.ID, SemesterID: fx.Semester.ID},
			actor:   fx.StudentUser(fx.Ayu),
			checkFn: core.IsForbidden,
		},
		{
			name:  "empty class",
			req:   report.GenerateRequest{ClassID: fx.OtherClass.ID, SemesterID: fx.Semester.ID},
			actor: fx.Teacher,
			checkFn: func(err error) bool {
				_, ok := errors.Cause(err).(*core.ValidationError)
				return ok && err.Error() == "no students are enrolled in this class"
			},
		},
		{
			name:  "no subjects taught",
			req:   report.GenerateRequest{ClassID: noSubjects.ID, SemesterID: fx.Semester.ID},
			actor: fx.Teacher,
			checkFn: func(err error) bool {
				_, ok := errors.Cause(err).(*core.ValidationError)
				return ok && err.Error() == "no subjects are taught in this class"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Generate(ctx, tt.req, tt.actor)
			require.Error(t, err)
			assert.Truef(t, tt.checkFn(err), "unexpected error: %v", err)
		})
	}

	for _, st := range []report.Student{fx.Ayu, dewi} {
		_, err := fx.Repo.FindCard(ctx, st.ID, fx.Semester.ID)
		assert.True(t, core.IsNotFound(err), st.Name)
	}
}

// staleRepository never sees existing cards, leaving duplicates to the unique (student, semester) constraint.
type staleRepository struct {
	report.Repository
}

func (staleRepository) CardExists(context.Context, string, string) (bool, error) { return false, nil }

func staleService(fx *testutil.Fixture) *report.Service {
	return report.NewService(report.ServiceDeps{
		Directory: fx.Dir,
		Repo:      staleRepository{fx.Repo},
		Logger:    testutil.Logger(),
		Validate:  testutil.NewValidator(),
	})
}

func requireOneCardEach(t *testing.T, fx *testutil.Fixture) {
	t.Helper()
	cards, err := fx.Repo.ListCards(ctx, fx.Class.ID, fx.Semester.ID)
	require.NoError(t, err)
	require.Len(t, cards, len(fx.Students()))

	seen := make(map[string]bool)
	for _, card := range cards {
		assert.False(t, seen[card.StudentID], "duplicate card for %s", card.StudentID)
		seen[card.StudentID] = true

		grades, err := fx.Repo.CardGrades(ctx, card.ID)
		require.NoError(t, err)
		assert.Len(t, grades, 2)
	}
}

func TestService_Generate_duplicateInsert(t *testing.T) {
	fx := testutil.NewFixture(t)
	generated(t, fx, fx.NewService(nil))

	res, err := staleService(fx).Generate(ctx, report.GenerateRequest{ClassID: fx.Class.ID, SemesterID: fx.Semester.ID}, fx.Admin)
	require.NoError(t, err)
	assert.Equal(t, report.GenerateResult{Skipped: 3}, res)
	requireOneCardEach(t, fx)
}

func TestService_Generate_concurrent(t *testing.T) {
	fx := testutil.NewFixture(t)
	svc := staleService(fx)

	const runs = 8
	results := make([]report.GenerateResult, runs)
	errs := make([]error, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Generate(ctx, report.GenerateRequest{ClassID: fx.Class.ID, SemesterID: fx.Semester.ID}, fx.Homeroom)
		}(i)
	}
	wg.Wait()

	var total report.GenerateResult
	for i := range results {
		require.NoError(t, errs[i])
		total.Generated += results[i].Generated
		total.Skipped += results[i].Skipped
		total.Failed += results[i].Failed
	}
	assert.Equal(t, report.GenerateResult{Generated: 3, Skipped: 3 * (runs - 1)}, total)
	requireOneCardEach(t, fx)
}

func TestService_OverrideAndRecalculate(t *testing.T) {
	fx := testutil.NewFixture(t)
	svc := fx.NewService(nil)
	generated(t, fx, svc)

	card := cardOf(t, fx, fx.Ayu)
	math := gradeOf(t, fx, card, fx.Mathematics)
	note := "  remedial exam  "
	value := testutil.Dec("95.456")

	t.Run("errors", func(t *testing.T) {
		tooHigh := testutil.Dec("100.01")
		negative := testutil.Dec("-1")

		tests := []struct {
			name    string
			gradeID string
			data    report.OverrideGrade
			actor   user.User
			checkFn func(error) bool
		}{
			{name: "unknown grade", gradeID: "nope", data: report.OverrideGrade{Value: &value}, actor: fx.Admin, checkFn: core.IsNotFound},
			{name: "forbidden", gradeID: math.ID, data: report.OverrideGrade{Value: &value}, actor: fx.Teacher, checkFn: core.IsForbidden},
			{
				name:    "missing value",
				gradeID: math.ID,
				actor:   fx.Homeroom,
				checkFn: func(err error) bool { _, ok := errors.Cause(err).(validator.ValidationErrors); return ok },
			},
			{
				name:    "above 100",
				gradeID: math.ID,
				data:    report.OverrideGrade{Value: &tooHigh},
				actor:   fx.Homeroom,
				checkFn: func(err error) bool { _, ok := errors.Cause(err).(*core.ValidationError); return ok },
			},
			{
				name:    "negative",
				gradeID: math.ID,
				data:    report.OverrideGrade{Value: &negative},
				actor:   fx.Homeroom,
				checkFn: func(err error) bool { _, ok := errors.Cause(err).(*core.ValidationError); return ok },
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.Override(ctx, tt.gradeID, tt.data, tt.actor)
				require.Error(t, err)
				assert.Truef(t, tt.checkFn(err), "unexpected error: %v", err)
			})
		}
	})

	got, err := svc.Override(ctx, math.ID, report.OverrideGrade{Value: &value, Note: &note}, fx.Homeroom)
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(testutil.Dec("95.46")))
	assert.True(t, got.Overridden)
	require.NotNil(t, got.Note)
	assert.Equal(t, "remedial exam", *got.Note)

	stored := gradeOf(t, fx, card, fx.Mathematics)
	assert.True(t, stored.Value.Equal(testutil.Dec("95.46")))
	assert.True(t, stored.Overridden)

	// new scores do not touch an overridden grade until recalculated
	fx.DB.SetScore(report.Score{TaskID: "task-final", StudentID: fx.Ayu.ID, Value: testutil.Dec("90")})
	assert.True(t, gradeOf(t, fx, card, fx.Mathematics).Value.Equal(testutil.Dec("95.46")))

	t.Run("recalculating another card", func(t *testing.T) {
		budi := cardOf(t, fx, fx.Budi)
		_, err := svc.Recalculate(ctx, budi.ID, fx.Homeroom)
		require.NoError(t, err)

		g := gradeOf(t, fx, card, fx.Mathematics)
		assert.True(t, g.Overridden)
		assert.True(t, g.Value.Equal(testutil.Dec("95.46")), "got %s", g.Value)
		require.NotNil(t, g.Note)
		assert.Equal(t, "remedial exam", *g.Note)
	})

	rep, err := svc.Recalculate(ctx, card.ID, fx.Homeroom)
	require.NoError(t, err)
	require.Len(t, rep.Grades, 2)
	assert.Equal(t, "Mathematics", rep.Grades[0].SubjectName)
	assert.True(t, rep.Grades[0].Value.Equal(testutil.Dec("88.5")), "30%% of 85 + 70%% of 90, got %s", rep.Grades[0].Value)
	assert.False(t, rep.Grades[0].Overridden)
	require.NotNil(t, rep.Grades[0].Note)
	assert.Equal(t, "remedial exam", *rep.Grades[0].Note)

	_, err = svc.Recalculate(ctx, card.ID, fx.Teacher)
	assert.True(t, core.IsForbidden(err))
	_, err = svc.Recalculate(ctx, "nope", fx.Admin)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Publish(t *testing.T) {
	fx := testutil.NewFixture(t)
	emailsvc.ResetSentMessages()
	svc := fx.NewService(emailsvc.NewConsoleServiceMock(testutil.Config(), testutil.Logger()))
	generated(t, fx, svc)
	now := freezeTime(t)

	card := cardOf(t, fx, fx.Ayu)

	_, err := svc.Publish(ctx, card.ID, fx.Teacher)
	assert.True(t, core.IsForbidden(err))
	_, err = svc.Publish(ctx, "nope", fx.Homeroom)
	assert.True(t, core.IsNotFound(err))

	rep, err := svc.Publish(ctx, card.ID, fx.Homeroom)
	require.NoError(t, err)
	assert.True(t, rep.Published)
	require.NotNil(t, rep.PublishedAt)
	assert.True(t, rep.PublishedAt.Equal(now))
	require.NotNil(t, rep.PublishedBy)
	assert.Equal(t, fx.Homeroom.ID, *rep.PublishedBy)
	assert.Equal(t, "Ayu", rep.StudentName)
	assert.Equal(t, "X-A", rep.ClassName)
	assert.Equal(t, "Ganjil 2024/2025", rep.SemesterName)

	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, fx.Ayu.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Ganjil 2024/2025 (X-A)")

	t.Run("already published", func(t *testing.T) {
		_, err := svc.Publish(ctx, card.ID, fx.Admin)
		require.Error(t, err)
		assert.True(t, core.IsConflict(err))
		assert.Equal(t, "report card is already published", err.Error())

		stored := cardOf(t, fx, fx.Ayu)
		assert.Equal(t, fx.Homeroom.ID, *stored.PublishedBy)
	})

	t.Run("without grades", func(t *testing.T) {
		dewi := fx.DB.AddStudent(report.Student{ID: "st-dewi", Name: "Dewi"})
		empty := emptyCard(t, fx, dewi)

		_, err := svc.Publish(ctx, empty.ID, fx.Admin)
		require.Error(t, err)
		assert.True(t, core.IsConflict(err))
		assert.False(t, cardOf(t, fx, dewi).Published)
	})
}

func TestService_PublishAll(t *testing.T) {
	fx := testutil.NewFixture(t)
	svc := fx.NewService(emailsvc.NewConsoleServiceMock(testutil.Config(), testutil.Logger()))
	generated(t, fx, svc)
	freezeTime(t)

	_, err := svc.Publish(ctx, cardOf(t, fx, fx.Ayu).ID, fx.Homeroom)
	require.NoError(t, err)
	dewi := fx.DB.AddStudent(report.Student{ID: "st-dewi", Name: "Dewi", Email: "dewi@school.test"})
	emptyCard(t, fx, dewi)

	_, err = svc.PublishAll(ctx, fx.Class.ID, " ", fx.Homeroom)
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.Truef(t, ok, "unexpected error: %v", err)
	_, err = svc.PublishAll(ctx, fx.Class.ID, fx.Semester.ID, fx.Teacher)
	assert.True(t, core.IsForbidden(err))

	emailsvc.ResetSentMessages()
	res, err := svc.PublishAll(ctx, fx.Class.ID, fx.Semester.ID, fx.Homeroom)
	require.NoError(t, err)
	assert.Equal(t, report.PublishAllResult{Published: 2, Skipped: 1}, res)

	for _, st := range fx.Students() {
		assert.Truef(t, cardOf(t, fx, st).Published, "%s's card is not published", st.Name)
	}
	assert.False(t, cardOf(t, fx, dewi).Published)

	// Citra has no email address
	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, fx.Budi.Email, sent[0].To[0].Address)

	res, err = svc.PublishAll(ctx, fx.Class.ID, fx.Semester.ID, fx.Admin)
	require.NoError(t, err)
	assert.Equal(t, report.PublishAllResult{Skipped: 1}, res)
}

func TestService_StudentView(t *testing.T) {
	fx := testutil.NewFixture(t)
	svc := fx.NewService(nil)
	generated(t, fx, svc)

	_, missingErr := svc.StudentView(ctx, fx.Ayu.ID, "sem-unknown")
	require.Error(t, missingErr)
	_, draftErr := svc.StudentView(ctx, fx.Ayu.ID, fx.Semester.ID)
	require.Error(t, draftErr)
	assert.True(t, core.IsNotFound(draftErr))
	assert.Equal(t, missingErr.Error(), draftErr.Error(), "a draft must look like a missing card")

	_, err := svc.Publish(ctx, cardOf(t, fx, fx.Ayu).ID, fx.Admin)
	require.NoError(t, err)

	rep, err := svc.StudentView(ctx, fx.Ayu.ID, fx.Semester.ID)
	require.NoError(t, err)
	assert.True(t, rep.Published)
	require.Len(t, rep.Grades, 2)
	assert.Equal(t, []string{"Mathematics", "Science"}, []string{rep.Grades[0].SubjectName, rep.Grades[1].SubjectName})
	assert.True(t, rep.Grades[0].Value.Equal(decimal.RequireFromString("74.50")))
	assert.Equal(t, report.AttendanceSummary{Present: 3, Late: 1, Sick: 1, Absent: 1}, rep.Attendance)
	assert.Equal(t, 6, rep.Attendance.Total())

	_, err = svc.StudentView(ctx, fx.Budi.ID, fx.Semester.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_GetAndUpdateRemarks(t *testing.T) {
	fx := testutil.NewFixture(t)
	svc := fx.NewService(nil)
	generated(t, fx, svc)
	card := cardOf(t, fx, fx.Budi)

	rep, err := svc.Get(ctx, card.ID, fx.Homeroom)
	require.NoError(t, err)
	assert.Equal(t, "Budi", rep.StudentName)
	assert.Equal(t, report.AttendanceSummary{}, rep.Attendance)

	_, err = svc.Get(ctx, card.ID, fx.Teacher)
	assert.True(t, core.IsForbidden(err))

	_, err = svc.UpdateRemarks(ctx, card.ID, report.UpdateCard{}, fx.Homeroom)
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.Truef(t, ok, "unexpected error: %v", err)

	remarks := "  Keep up the good work  "
	rep, err = svc.UpdateRemarks(ctx, card.ID, report.UpdateCard{Remarks: &remarks}, fx.Homeroom)
	require.NoError(t, err)
	require.NotNil(t, rep.Remarks)
	assert.Equal(t, "Keep up the good work", *rep.Remarks)
	assert.Equal(t, "Keep up the good work", *cardOf(t, fx, fx.Budi).Remarks)
}

func TestService_ListByClass(t *testing.T) {
	fx := testutil.NewFixture(t)
	svc := fx.NewService(nil)
	generated(t, fx, svc)

	_, err := svc.Publish(ctx, cardOf(t, fx, fx.Budi).ID, fx.Admin)
	require.NoError(t, err)

	tests := []struct {
		name     string
		ordering []core.Ordering
		want     []string
	}{
		{name: "default", want: []string{"Ayu", "Budi", "Citra"}},
		{name: "name desc", ordering: []core.Ordering{{Field: "student_name"}}, want: []string{"Citra", "Budi", "Ayu"}},
		{name: "published first", ordering: []core.Ordering{{Field: "published"}}, want: []string{"Budi", "Ayu", "Citra"}},
		{name: "unknown field", ordering: []core.Ordering{{Field: "grade", Ascending: true}}, want: []string{"Ayu", "Budi", "Citra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := svc.ListByClass(ctx, fx.Class.ID, fx.Semester.ID, tt.ordering, fx.Homeroom)
			require.NoError(t, err)
			names := make([]string, 0, len(items))
			for _, it := range items {
				names = append(names, it.StudentName)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	items, err := svc.ListByClass(ctx, fx.Class.ID, "sem-unknown", nil, fx.Admin)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = svc.ListByClass(ctx, fx.Class.ID, fx.Semester.ID, nil, fx.StudentUser(fx.Ayu))
	assert.True(t, core.IsForbidden(err))
}

func TestService_ClassReports(t *testing.T) {
	fx := testutil.NewFixture(t)
	svc := fx.NewService(nil)
	generated(t, fx, svc)

	class, reports, err := svc.ClassReports(ctx, fx.Class.ID, fx.Semester.ID, fx.Admin)
	require.NoError(t, err)
	assert.Equal(t, fx.Class, class)
	require.Len(t, reports, 3)
	for i, name := range []string{"Ayu", "Budi", "Citra"} {
		assert.Equal(t, name, reports[i].StudentName)
		assert.Len(t, reports[i].Grades, 2)
	}
}

package report

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core"
)

// Assembler builds the read view of report cards: grades with subject names plus attendance.
type Assembler struct {
	repo       Repository
	dir        Directory
	attendance *AttendanceSummarizer
}

func NewAssembler(repo Repository, dir Directory, attendance *AttendanceSummarizer) *Assembler {
	return &Assembler{repo: repo, dir: dir, attendance: attendance}
}

func (a *Assembler) Assemble(ctx context.Context, card Card) (Report, error) {
	grades, err := a.repo.CardGrades(ctx, card.ID)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying card grades")
	}
	return a.assemble(ctx, newLookup(a.dir), card, grades)
}

// AssembleMany assembles several cards, fetching their grades in one go.
func (a *Assembler) AssembleMany(ctx context.Context, cards []Card) ([]Report, error) {
	ids := make([]string, 0, len(cards))
	for _, card := range cards {
		ids = append(ids, card.ID)
	}
	grades, err := a.repo.GradesByCards(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "querying card grades")
	}

	lk := newLookup(a.dir)
	reports := make([]Report, 0, len(cards))
	for _, card := range cards {
		rep, err := a.assemble(ctx, lk, card, grades[card.ID])
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (a *Assembler) assemble(ctx context.Context, lk *lookup, card Card, grades []Grade) (Report, error) {
	rep := Report{Card: card, Grades: make([]GradeView, 0, len(grades))}

	subjectIDs := make([]string, 0, len(grades))
	for _, g := range grades {
		subjectIDs = append(subjectIDs, g.SubjectID)
	}
	names, err := lk.subjectNames(ctx, subjectIDs)
	if err != nil {
		return Report{}, err
	}
	for _, g := range grades {
		rep.Grades = append(rep.Grades, GradeView{Grade: g, SubjectName: names[g.SubjectID]})
	}
	sort.SliceStable(rep.Grades, func(i, j int) bool {
		if rep.Grades[i].SubjectName != rep.Grades[j].SubjectName {
			return rep.Grades[i].SubjectName < rep.Grades[j].SubjectName
		}
		return rep.Grades[i].SubjectID < rep.Grades[j].SubjectID
	})

	if rep.StudentName, err = lk.studentName(ctx, card.StudentID); err != nil {
		return Report{}, err
	}
	if rep.ClassName, err = lk.className(ctx, card.ClassID); err != nil {
		return Report{}, err
	}
	if rep.SemesterName, err = lk.semesterName(ctx, card.SemesterID); err != nil {
		return Report{}, err
	}

	rep.Attendance, err = a.attendance.Summarize(ctx, card.StudentID, card.SemesterID)
	if err != nil {
		return Report{}, errors.Wrap(err, "summarizing attendance")
	}
	return rep, nil
}

// lookup memoizes directory names while assembling. Missing records resolve to an empty name.
type lookup struct {
	dir       Directory
	subjects  map[string]string
	students  map[string]string
	classes   map[string]string
	semesters map[string]string
}

func newLookup(dir Directory) *lookup {
	return &lookup{
		dir:       dir,
		subjects:  make(map[string]string),
		students:  make(map[string]string),
		classes:   make(map[string]string),
		semesters: make(map[string]string),
	}
}

func (lk *lookup) subjectNames(ctx context.Context, ids []string) (map[string]string, error) {
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := lk.subjects[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		names, err := lk.dir.SubjectNames(ctx, missing...)
		if err != nil {
			return nil, errors.Wrap(err, "querying subject names")
		}
		for _, id := range missing {
			lk.subjects[id] = names[id]
		}
	}
	return lk.subjects, nil
}

func (lk *lookup) studentName(ctx context.Context, id string) (string, error) {
	if name, ok := lk.students[id]; ok {
		return name, nil
	}
	st, err := lk.dir.GetStudent(ctx, id)
	if err != nil && !core.IsNotFound(err) {
		return "", errors.Wrap(err, "finding student")
	}
	lk.students[id] = st.Name
	return st.Name, nil
}

func (lk *lookup) className(ctx context.Context, id string) (string, error) {
	if name, ok := lk.classes[id]; ok {
		return name, nil
	}
	class, err := lk.dir.GetClass(ctx, id)
	if err != nil && !core.IsNotFound(err) {
		return "", errors.Wrap(err, "finding class")
	}
	lk.classes[id] = class.Name
	return class.Name, nil
}

func (lk *lookup) semesterName(ctx context.Context, id string) (string, error) {
	if name, ok := lk.semesters[id]; ok {
		return name, nil
	}
	sem, err := lk.dir.GetSemester(ctx, id)
	if err != nil && !core.IsNotFound(err) {
		return "", errors.Wrap(err, "finding semester")
	}
	lk.semesters[id] = sem.Name
	return sem.Name, nil
}

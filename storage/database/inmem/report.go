package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/report"
)

var errTxDone = errors.New("unit of work has already been committed or rolled back")

type reportRepository struct {
	db *DB
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *DB) report.Repository {
	return &reportRepository{db: db}
}

func (repo *reportRepository) GetCard(ctx context.Context, id string) (report.Card, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if card, ok := repo.db.cards[id]; ok {
		return card, nil
	}
	return report.Card{}, core.NewNotFoundError("report card not found")
}

func (repo *reportRepository) FindCard(ctx context.Context, studentID, semesterID string) (report.Card, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if card, ok := findCard(repo.db.cards, studentID, semesterID); ok {
		return card, nil
	}
	return report.Card{}, core.NewNotFoundError("report card not found")
}

func (repo *reportRepository) CardExists(ctx context.Context, studentID, semesterID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	_, ok := findCard(repo.db.cards, studentID, semesterID)
	return ok, nil
}

func (repo *reportRepository) ListCards(ctx context.Context, classID, semesterID string) ([]report.Card, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	cards := make([]report.Card, 0)
	for _, card := range repo.db.cards {
		if card.ClassID == classID && card.SemesterID == semesterID {
			cards = append(cards, card)
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		}
		return cards[i].ID < cards[j].ID
	})
	return cards, nil
}

func (repo *reportRepository) GetGrade(ctx context.Context, id string) (report.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if grade, ok := repo.db.grades[id]; ok {
		return grade, nil
	}
	return report.Grade{}, core.NewNotFoundError("subject grade not found")
}

func (repo *reportRepository) CardGrades(ctx context.Context, cardID string) ([]report.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return cardGrades(repo.db.grades, cardID), nil
}

func (repo *reportRepository) GradesByCards(ctx context.Context, cardIDs ...string) (map[string][]report.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	grades := make(map[string][]report.Grade, len(cardIDs))
	for _, id := range cardIDs {
		grades[id] = cardGrades(repo.db.grades, id)
	}
	return grades, nil
}

// Begin blocks until any other open unit of work ends.
func (repo *reportRepository) Begin(ctx context.Context) (report.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	repo.db.txMu.Lock()

	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	uow := &unitOfWork{
		db:     repo.db,
		cards:  make(map[string]report.Card, len(repo.db.cards)),
		grades: make(map[string]report.Grade, len(repo.db.grades)),
	}
	for id, card := range repo.db.cards {
		uow.cards[id] = card
	}
	for id, grade := range repo.db.grades {
		uow.grades[id] = grade
	}
	return uow, nil
}

func findCard(cards map[string]report.Card, studentID, semesterID string) (report.Card, bool) {
	for _, card := range cards {
		if card.StudentID == studentID && card.SemesterID == semesterID {
			return card, true
		}
	}
	return report.Card{}, false
}

func cardGrades(grades map[string]report.Grade, cardID string) []report.Grade {
	res := make([]report.Grade, 0)
	for _, g := range grades {
		if g.CardID == cardID {
			res = append(res, g)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SubjectID < res[j].SubjectID })
	return res
}

// unitOfWork stages writes on a copy of the report tables and swaps it in on Commit.
type unitOfWork struct {
	db     *DB
	cards  map[string]report.Card
	grades map[string]report.Grade
	done   bool
}

var _ report.UnitOfWork = (*unitOfWork)(nil)

func (uow *unitOfWork) InsertCard(ctx context.Context, card report.Card) (report.Card, bool, error) {
	if uow.done {
		return report.Card{}, false, errTxDone
	}
	if _, ok := findCard(uow.cards, card.StudentID, card.SemesterID); ok {
		return report.Card{}, false, nil
	}
	card.ID = newID(card.ID)
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now().UTC()
	}
	uow.cards[card.ID] = card
	return card, true, nil
}

func (uow *unitOfWork) InsertGrade(ctx context.Context, grade report.Grade) (report.Grade, error) {
	if uow.done {
		return report.Grade{}, errTxDone
	}
	if _, ok := uow.cards[grade.CardID]; !ok {
		return report.Grade{}, errors.Errorf("report card %q does not exist", grade.CardID)
	}
	for _, g := range uow.grades {
		if g.CardID == grade.CardID && g.SubjectID == grade.SubjectID {
			return report.Grade{}, core.NewConflictError("subject grade already exists for this report card")
		}
	}
	if hook := uow.db.BeforeInsertGrade; hook != nil {
		if err := hook(grade); err != nil {
			return report.Grade{}, err
		}
	}
	grade.ID = newID(grade.ID)
	uow.grades[grade.ID] = grade
	return grade, nil
}

func (uow *unitOfWork) UpdateGrade(ctx context.Context, grade report.Grade) error {
	if uow.done {
		return errTxDone
	}
	orig, ok := uow.grades[grade.ID]
	if !ok {
		return core.NewNotFoundError("subject grade not found")
	}
	orig.Value = grade.Value
	orig.Overridden = grade.Overridden
	orig.Note = grade.Note
	uow.grades[orig.ID] = orig
	return nil
}

func (uow *unitOfWork) UpdateRemarks(ctx context.Context, cardID string, remarks *string) error {
	if uow.done {
		return errTxDone
	}
	card, ok := uow.cards[cardID]
	if !ok {
		return core.NewNotFoundError("report card not found")
	}
	card.Remarks = remarks
	uow.cards[cardID] = card
	return nil
}

func (uow *unitOfWork) PublishCard(ctx context.Context, cardID string, at time.Time, by string) (bool, error) {
	if uow.done {
		return false, errTxDone
	}
	card, ok := uow.cards[cardID]
	if !ok {
		return false, core.NewNotFoundError("report card not found")
	}
	if card.Published {
		return false, nil
	}
	at = at.UTC()
	card.Published = true
	card.PublishedAt = &at
	card.PublishedBy = &by
	uow.cards[cardID] = card
	return true, nil
}

func (uow *unitOfWork) CardGrades(ctx context.Context, cardID string) ([]report.Grade, error) {
	if uow.done {
		return nil, errTxDone
	}
	return cardGrades(uow.grades, cardID), nil
}

func (uow *unitOfWork) Commit() error {
	if uow.done {
		return errTxDone
	}
	uow.db.mu.Lock()
	uow.db.cards = uow.cards
	uow.db.grades = uow.grades
	uow.db.mu.Unlock()

	uow.done = true
	uow.db.txMu.Unlock()
	return nil
}

func (uow *unitOfWork) Rollback() error {
	if uow.done {
		return errTxDone
	}
	uow.done = true
	uow.db.txMu.Unlock()
	return nil
}

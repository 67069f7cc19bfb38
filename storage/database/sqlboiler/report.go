package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/report"
)

const (
	cardColumns  = "id, student_id, semester_id, class_id, homeroom_remarks, published, published_at, published_by, created_at"
	gradeColumns = "id, card_id, subject_id, value, overridden, note"

	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

var (
	errCardNotFound  = core.NewNotFoundError("report card not found")
	errGradeNotFound = core.NewNotFoundError("subject grade not found")
)

type cardRow struct {
	ID          string      `boil:"id"`
	StudentID   string      `boil:"student_id"`
	SemesterID  string      `boil:"semester_id"`
	ClassID     string      `boil:"class_id"`
	Remarks     null.String `boil:"homeroom_remarks"`
	Published   bool        `boil:"published"`
	PublishedAt null.Time   `boil:"published_at"`
	PublishedBy null.String `boil:"published_by"`
	CreatedAt   time.Time   `boil:"created_at"`
}

func (row cardRow) unboil() report.Card {
	card := report.Card{
		ID:          row.ID,
		StudentID:   row.StudentID,
		SemesterID:  row.SemesterID,
		ClassID:     row.ClassID,
		Remarks:     row.Remarks.Ptr(),
		Published:   row.Published,
		PublishedBy: row.PublishedBy.Ptr(),
		CreatedAt:   row.CreatedAt.UTC(),
	}
	if row.PublishedAt.Valid {
		at := row.PublishedAt.Time.UTC()
		card.PublishedAt = &at
	}
	return card
}

type gradeRow struct {
	ID         string          `boil:"id"`
	CardID     string          `boil:"card_id"`
	SubjectID  string          `boil:"subject_id"`
	Value      decimal.Decimal `boil:"value"`
	Overridden bool            `boil:"overridden"`
	Note       null.String     `boil:"note"`
}

func (row gradeRow) unboil() report.Grade {
	return report.Grade{
		ID:         row.ID,
		CardID:     row.CardID,
		SubjectID:  row.SubjectID,
		Value:      row.Value,
		Overridden: row.Overridden,
		Note:       row.Note.Ptr(),
	}
}

func unboilGrades(rows []*gradeRow) []report.Grade {
	grades := make([]report.Grade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, row.unboil())
	}
	return grades
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
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

func toInterfaces(ids []string) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func getCard(ctx context.Context, exec core.DBExecutor, id string) (report.Card, error) {
	if !isValidID(id) {
		return report.Card{}, errCardNotFound
	}
	var row cardRow
	err := queries.Raw("SELECT "+cardColumns+" FROM report_cards WHERE id = $1", id).Bind(ctx, exec, &row)
	if err != nil {
		return report.Card{}, trapNoRowsErr(err, errCardNotFound, "finding report card")
	}
	return row.unboil(), nil
}

func cardGrades(ctx context.Context, exec core.DBExecutor, cardIDs ...string) ([]report.Grade, error) {
	cardIDs = validIDs(cardIDs)
	if len(cardIDs) == 0 {
		return []report.Grade{}, nil
	}
	q := "SELECT " + gradeColumns + " FROM report_subject_grades WHERE card_id IN (" +
		strmangle.Placeholders(true, len(cardIDs), 1, 1) + ") ORDER BY subject_id"

	var rows []*gradeRow
	if err := queries.Raw(q, toInterfaces(cardIDs)...).Bind(ctx, exec, &rows); err != nil {
		return nil, errors.Wrap(err, "querying subject grades")
	}
	return unboilGrades(rows), nil
}

type reportRepository struct {
	db core.DB
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db core.DB) report.Repository {
	return &reportRepository{db: db}
}

func (repo *reportRepository) GetCard(ctx context.Context, id string) (report.Card, error) {
	return getCard(ctx, repo.db, id)
}

func (repo *reportRepository) FindCard(ctx context.Context, studentID, semesterID string) (report.Card, error) {
	if !isValidID(studentID, semesterID) {
		return report.Card{}, errCardNotFound
	}
	var row cardRow
	err := queries.Raw(
		"SELECT "+cardColumns+" FROM report_cards WHERE student_id = $1 AND semester_id = $2",
		studentID, semesterID,
	).Bind(ctx, repo.db, &row)
	if err != nil {
		return report.Card{}, trapNoRowsErr(err, errCardNotFound, "finding report card")
	}
	return row.unboil(), nil
}

func (repo *reportRepository) CardExists(ctx context.Context, studentID, semesterID string) (bool, error) {
	if !isValidID(studentID, semesterID) {
		return false, nil
	}
	var exists bool
	err := repo.db.QueryRowContext(
		ctx,
		"SELECT EXISTS (SELECT 1 FROM report_cards WHERE student_id = $1 AND semester_id = $2)",
		studentID, semesterID,
	).Scan(&exists)
	return exists, errors.Wrap(err, "checking report card")
}

func (repo *reportRepository) ListCards(ctx context.Context, classID, semesterID string) ([]report.Card, error) {
	if !isValidID(classID, semesterID) {
		return []report.Card{}, nil
	}
	var rows []*cardRow
	err := queries.Raw(
		"SELECT "+cardColumns+" FROM report_cards WHERE class_id = $1 AND semester_id = $2 ORDER BY created_at, id",
		classID, semesterID,
	).Bind(ctx, repo.db, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying report cards")
	}

	cards := make([]report.Card, 0, len(rows))
	for _, row := range rows {
		cards = append(cards, row.unboil())
	}
	return cards, nil
}

func (repo *reportRepository) GetGrade(ctx context.Context, id string) (report.Grade, error) {
	if !isValidID(id) {
		return report.Grade{}, errGradeNotFound
	}
	var row gradeRow
	err := queries.Raw("SELECT "+gradeColumns+" FROM report_subject_grades WHERE id = $1", id).Bind(ctx, repo.db, &row)
	if err != nil {
		return report.Grade{}, trapNoRowsErr(err, errGradeNotFound, "finding subject grade")
	}
	return row.unboil(), nil
}

func (repo *reportRepository) CardGrades(ctx context.Context, cardID string) ([]report.Grade, error) {
	return cardGrades(ctx, repo.db, cardID)
}

func (repo *reportRepository) GradesByCards(ctx context.Context, cardIDs ...string) (map[string][]report.Grade, error) {
	grades, err := cardGrades(ctx, repo.db, cardIDs...)
	if err != nil {
		return nil, err
	}
	byCard := make(map[string][]report.Grade, len(cardIDs))
	for _, id := range cardIDs {
		byCard[id] = make([]report.Grade, 0)
	}
	for _, g := range grades {
		byCard[g.CardID] = append(byCard[g.CardID], g)
	}
	return byCard, nil
}

func (repo *reportRepository) Begin(ctx context.Context) (report.UnitOfWork, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return &unitOfWork{tx: tx}, nil
}

type unitOfWork struct {
	tx *sql.Tx
}

var _ report.UnitOfWork = (*unitOfWork)(nil)

func (uow *unitOfWork) InsertCard(ctx context.Context, card report.Card) (report.Card, bool, error) {
	if card.ID == "" {
		card.ID = uuid.New().String()
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now()
	}

	var row cardRow
	err := queries.Raw(
		`INSERT INTO report_cards (id, student_id, semester_id, class_id, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT report_cards_student_semester_key DO NOTHING
		RETURNING `+cardColumns,
		card.ID, card.StudentID, card.SemesterID, card.ClassID, card.CreatedAt.UTC(),
	).Bind(ctx, uow.tx, &row)
	if errors.Cause(err) == sql.ErrNoRows {
		return report.Card{}, false, nil
	}
	if err != nil {
		return report.Card{}, false, errors.Wrap(err, "inserting report card")
	}
	return row.unboil(), true, nil
}

func (uow *unitOfWork) InsertGrade(ctx context.Context, grade report.Grade) (report.Grade, error) {
	if grade.ID == "" {
		grade.ID = uuid.New().String()
	}
	_, err := uow.tx.ExecContext(
		ctx,
		"INSERT INTO report_subject_grades ("+gradeColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		grade.ID, grade.CardID, grade.SubjectID, grade.Value, grade.Overridden, null.StringFromPtr(grade.Note),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case pqUniqueViolation:
				return report.Grade{}, core.NewConflictError("subject grade already exists for this report card")
			case pqForeignKeyViolation:
				return report.Grade{}, errors.Wrapf(err, "report card %q or subject %q does not exist", grade.CardID, grade.SubjectID)
			}
		}
		return report.Grade{}, errors.Wrap(err, "inserting subject grade")
	}
	return grade, nil
}

func (uow *unitOfWork) UpdateGrade(ctx context.Context, grade report.Grade) error {
	if !isValidID(grade.ID) {
		return errGradeNotFound
	}
	res, err := uow.tx.ExecContext(
		ctx,
		"UPDATE report_subject_grades SET value = $2, overridden = $3, note = $4 WHERE id = $1",
		grade.ID, grade.Value, grade.Overridden, null.StringFromPtr(grade.Note),
	)
	return mustAffect(res, err, errGradeNotFound, "updating subject grade")
}

func (uow *unitOfWork) UpdateRemarks(ctx context.Context, cardID string, remarks *string) error {
	if !isValidID(cardID) {
		return errCardNotFound
	}
	res, err := uow.tx.ExecContext(
		ctx,
		"UPDATE report_cards SET homeroom_remarks = $2 WHERE id = $1",
		cardID, null.StringFromPtr(remarks),
	)
	return mustAffect(res, err, errCardNotFound, "updating remarks")
}

// PublishCard relies on the row lock taken by UPDATE: a concurrent publication of the same card
// waits for this one to end, then matches no row.
func (uow *unitOfWork) PublishCard(ctx context.Context, cardID string, at time.Time, by string) (bool, error) {
	if !isValidID(cardID) {
		return false, errCardNotFound
	}
	res, err := uow.tx.ExecContext(
		ctx,
		"UPDATE report_cards SET published = TRUE, published_at = $2, published_by = $3 WHERE id = $1 AND NOT published",
		cardID, at.UTC(), by,
	)
	if err != nil {
		return false, errors.Wrap(err, "publishing report card")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "publishing report card")
	}
	if n > 0 {
		return true, nil
	}
	if _, err = getCard(ctx, uow.tx, cardID); err != nil {
		return false, err
	}
	return false, nil
}

func (uow *unitOfWork) CardGrades(ctx context.Context, cardID string) ([]report.Grade, error) {
	return cardGrades(ctx, uow.tx, cardID)
}

func (uow *unitOfWork) Commit() error {
	return errors.Wrap(uow.tx.Commit(), "committing transaction")
}

func (uow *unitOfWork) Rollback() error {
	return errors.Wrap(uow.tx.Rollback(), "rolling back transaction")
}

func mustAffect(res sql.Result, err error, notFound error, msg string) error {
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

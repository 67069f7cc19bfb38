package report

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/user"
)

var (
	NowFunc = time.Now // mockable

	msgCardNotFound = "report card not found"
	msgForbidden    = "only an admin or the homeroom teacher of this class may manage its report cards"

	errCardExists       = errors.New("report card already exists")
	errNoGrades         = core.NewConflictError("cannot publish a report card without grades")
	errAlreadyPublished = core.NewConflictError("report card is already published")
)

type ServiceDeps struct {
	Directory  Directory
	Repo       Repository
	Authorizer Authorizer        // defaults to HomeroomAuthorizer
	MailSvc    core.EmailService // optional; students are notified on publication
	Logger     core.Logger
	Validate   *validator.Validate
}

// Service manages the report card lifecycle: generation, manual overrides,
// recalculation and publication.
type Service struct {
	dir       Directory
	repo      Repository
	authz     Authorizer
	calc      *Calculator
	assembler *Assembler
	mailSvc   core.EmailService
	logger    core.Logger
	validate  *validator.Validate
}

func NewService(deps ServiceDeps) *Service {
	authz := deps.Authorizer
	if authz == nil {
		authz = HomeroomAuthorizer{}
	}
	return &Service{
		dir:       deps.Directory,
		repo:      deps.Repo,
		authz:     authz,
		calc:      NewCalculator(deps.Directory),
		assembler: NewAssembler(deps.Repo, deps.Directory, NewAttendanceSummarizer(deps.Directory, deps.Directory)),
		mailSvc:   deps.MailSvc,
		logger:    deps.Logger,
		validate:  deps.Validate,
	}
}

// atomic runs fn in its own unit of work: committed when fn succeeds, rolled back otherwise.
func (svc *Service) atomic(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow, err := svc.repo.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning unit of work")
	}
	if err = fn(uow); err != nil {
		if rbErr := uow.Rollback(); rbErr != nil {
			svc.logger.Error(fmt.Sprintf("rolling back unit of work: %v", rbErr), rbErr)
		}
		return err
	}
	return errors.Wrap(uow.Commit(), "committing unit of work")
}

func (svc *Service) authorizedClass(ctx context.Context, classID string, actor user.User) (Class, error) {
	class, err := svc.dir.GetClass(ctx, classID)
	if err != nil {
		return Class{}, errors.Wrap(err, "finding class")
	}
	if !svc.authz.CanManage(actor, class) {
		return Class{}, core.NewForbiddenError(msgForbidden)
	}
	return class, nil
}

func (svc *Service) authorizedCard(ctx context.Context, cardID string, actor user.User) (Card, Class, error) {
	card, err := svc.repo.GetCard(ctx, cardID)
	if err != nil {
		return Card{}, Class{}, errors.Wrap(err, "finding report card")
	}
	class, err := svc.authorizedClass(ctx, card.ClassID, actor)
	if err != nil {
		return Card{}, Class{}, err
	}
	return card, class, nil
}

// Generate creates a draft report card, with one computed grade per subject taught in the class,
// for every enrolled student who has none yet for the semester.
// Each student is handled in its own unit of work; a failure only affects that student.
func (svc *Service) Generate(ctx context.Context, req GenerateRequest, actor user.User) (GenerateResult, error) {
	if err := req.Validate(svc.validate); err != nil {
		return GenerateResult{}, err
	}

	sem, err := svc.dir.GetSemester(ctx, req.SemesterID)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "finding semester")
	}
	class, err := svc.authorizedClass(ctx, req.ClassID, actor)
	if err != nil {
		return GenerateResult{}, err
	}

	students, err := svc.dir.ClassStudents(ctx, class.ID)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "querying class students")
	}
	if len(students) == 0 {
		return GenerateResult{}, core.NewValidationError(errors.New("no students are enrolled in this class"))
	}
	subjects, err := svc.dir.ClassSubjects(ctx, class.ID, sem.AcademicYearID)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "querying class subjects")
	}
	if len(subjects) == 0 {
		return GenerateResult{}, core.NewValidationError(errors.New("no subjects are taught in this class"))
	}

	var res GenerateResult
	for _, st := range students {
		created, err := svc.generateCard(ctx, st, class, sem, subjects)
		switch {
		case err != nil:
			res.Failed++
			svc.logger.Error(fmt.Sprintf("generating report card for student %s: %v", st.ID, err), err, actor)
		case created:
			res.Generated++
		default:
			res.Skipped++
		}
	}

	cardsGenerated.WithLabelValues("generated").Add(float64(res.Generated))
	cardsGenerated.WithLabelValues("skipped").Add(float64(res.Skipped))
	cardsGenerated.WithLabelValues("failed").Add(float64(res.Failed))
	svc.logger.Info(
		fmt.Sprintf("report cards generated: class %s, semester %s", class.ID, sem.ID),
		map[string]interface{}{"generated": res.Generated, "skipped": res.Skipped, "failed": res.Failed},
		actor,
	)
	return res, nil
}

func (svc *Service) generateCard(ctx context.Context, st Student, class Class, sem Semester, subjects []Subject) (bool, error) {
	// the unique (student, semester) constraint still catches concurrent generations
	exists, err := svc.repo.CardExists(ctx, st.ID, sem.ID)
	if err != nil {
		return false, errors.Wrap(err, "checking existing report card")
	}
	if exists {
		return false, nil
	}

	grades := make([]Grade, 0, len(subjects))
	for _, sub := range subjects {
		agg, err := svc.calc.Compute(ctx, st.ID, sub.ID, class.ID, sem.ID)
		if err != nil {
			return false, errors.Wrapf(err, "computing grade of subject %s", sub.ID)
		}
		gradesComputed.WithLabelValues(string(agg.Method)).Inc()
		grades = append(grades, Grade{SubjectID: sub.ID, Value: agg.Value})
	}

	err = svc.atomic(ctx, func(uow UnitOfWork) error {
		card, created, err := uow.InsertCard(ctx, Card{
			StudentID:  st.ID,
			SemesterID: sem.ID,
			ClassID:    class.ID,
			CreatedAt:  NowFunc().UTC(),
		})
		if err != nil {
			return errors.Wrap(err, "inserting report card")
		}
		if !created {
			return errCardExists
		}
		for _, g := range grades {
			g.CardID = card.ID
			if _, err = uow.InsertGrade(ctx, g); err != nil {
				return errors.Wrap(err, "inserting subject grade")
			}
		}
		return nil
	})
	if errors.Cause(err) == errCardExists {
		return false, nil
	}
	return err == nil, err
}

// Override sets a subject grade by hand. The grade keeps its value until an explicit Recalculate.
func (svc *Service) Override(ctx context.Context, gradeID string, data OverrideGrade, actor user.User) (Grade, error) {
	grade, err := svc.repo.GetGrade(ctx, gradeID)
	if err != nil {
		return Grade{}, errors.Wrap(err, "finding subject grade")
	}
	if _, _, err = svc.authorizedCard(ctx, grade.CardID, actor); err != nil {
		return Grade{}, err
	}
	if err = data.Validate(svc.validate); err != nil {
		return Grade{}, err
	}

	grade.Value = data.Value.Round(GradePlaces)
	grade.Overridden = true
	if data.Note != nil {
		grade.Note = data.Note
	}
	err = svc.atomic(ctx, func(uow UnitOfWork) error {
		return errors.Wrap(uow.UpdateGrade(ctx, grade), "updating subject grade")
	})
	if err != nil {
		return Grade{}, err
	}

	gradesOverridden.Inc()
	svc.logger.Info(fmt.Sprintf("subject grade %s overridden", grade.ID), actor)
	return grade, nil
}

// Recalculate recomputes every grade of a card from raw scores, dropping manual overrides.
// Subjects added to the class after generation are not picked up.
func (svc *Service) Recalculate(ctx context.Context, cardID string, actor user.User) (Report, error) {
	card, _, err := svc.authorizedCard(ctx, cardID, actor)
	if err != nil {
		return Report{}, err
	}
	grades, err := svc.repo.CardGrades(ctx, card.ID)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying card grades")
	}

	for i, g := range grades {
		agg, err := svc.calc.Compute(ctx, card.StudentID, g.SubjectID, card.ClassID, card.SemesterID)
		if err != nil {
			return Report{}, errors.Wrapf(err, "computing grade of subject %s", g.SubjectID)
		}
		gradesComputed.WithLabelValues(string(agg.Method)).Inc()
		grades[i].Value = agg.Value
		grades[i].Overridden = false
	}

	err = svc.atomic(ctx, func(uow UnitOfWork) error {
		for _, g := range grades {
			if err := uow.UpdateGrade(ctx, g); err != nil {
				return errors.Wrap(err, "updating subject grade")
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return svc.assembler.Assemble(ctx, card)
}

func (svc *Service) publishCard(ctx context.Context, cardID string, actor user.User) error {
	now := NowFunc().UTC()
	return svc.atomic(ctx, func(uow UnitOfWork) error {
		grades, err := uow.CardGrades(ctx, cardID)
		if err != nil {
			return errors.Wrap(err, "querying card grades")
		}
		if len(grades) == 0 {
			return errNoGrades
		}
		ok, err := uow.PublishCard(ctx, cardID, now, actor.ID)
		if err != nil {
			return errors.Wrap(err, "publishing report card")
		}
		if !ok {
			return errAlreadyPublished
		}
		return nil
	})
}

// Publish makes a card visible to its student. Publication is final.
func (svc *Service) Publish(ctx context.Context, cardID string, actor user.User) (Report, error) {
	card, class, err := svc.authorizedCard(ctx, cardID, actor)
	if err != nil {
		return Report{}, err
	}
	if card.Published {
		return Report{}, errAlreadyPublished
	}
	if err = svc.publishCard(ctx, card.ID, actor); err != nil {
		return Report{}, err
	}

	if card, err = svc.repo.GetCard(ctx, card.ID); err != nil {
		return Report{}, errors.Wrap(err, "refreshing report card")
	}
	cardsPublished.WithLabelValues("published").Inc()
	svc.logger.Info(fmt.Sprintf("report card %s published", card.ID), actor)
	svc.notifyPublished(ctx, class, card)
	return svc.assembler.Assemble(ctx, card)
}

// PublishAll publishes every unpublished card of a class for a semester.
// Cards without grades are skipped; each card is published in its own unit of work.
func (svc *Service) PublishAll(ctx context.Context, classID, semesterID string, actor user.User) (PublishAllResult, error) {
	semesterID = core.CleanString(semesterID)
	if semesterID == "" {
		return PublishAllResult{}, core.NewValidationError(
			errors.New("semester_id is required"),
			core.FieldError{Field: "semester_id", Error: "this field is required"},
		)
	}
	class, err := svc.authorizedClass(ctx, classID, actor)
	if err != nil {
		return PublishAllResult{}, err
	}
	cards, err := svc.repo.ListCards(ctx, class.ID, semesterID)
	if err != nil {
		return PublishAllResult{}, errors.Wrap(err, "querying report cards")
	}

	var res PublishAllResult
	published := make([]Card, 0, len(cards))
	for _, card := range cards {
		if card.Published {
			continue
		}
		err := svc.publishCard(ctx, card.ID, actor)
		switch cause := errors.Cause(err); {
		case err == nil:
			res.Published++
			published = append(published, card)
		case cause == errNoGrades, cause == errAlreadyPublished:
			res.Skipped++
		default:
			res.Failed++
			svc.logger.Error(fmt.Sprintf("publishing report card %s: %v", card.ID, err), err, actor)
		}
	}

	cardsPublished.WithLabelValues("published").Add(float64(res.Published))
	cardsPublished.WithLabelValues("skipped").Add(float64(res.Skipped))
	cardsPublished.WithLabelValues("failed").Add(float64(res.Failed))
	svc.logger.Info(
		fmt.Sprintf("report cards published: class %s, semester %s", class.ID, semesterID),
		map[string]interface{}{"published": res.Published, "skipped": res.Skipped, "failed": res.Failed},
		actor,
	)
	svc.notifyPublished(ctx, class, published...)
	return res, nil
}

// StudentView returns a student's own report card. Unpublished cards look exactly like missing ones.
func (svc *Service) StudentView(ctx context.Context, studentID, semesterID string) (Report, error) {
	card, err := svc.repo.FindCard(ctx, studentID, core.CleanString(semesterID))
	if err != nil {
		if core.IsNotFound(err) {
			return Report{}, core.NewNotFoundError(msgCardNotFound)
		}
		return Report{}, errors.Wrap(err, "finding report card")
	}
	if !card.Published {
		return Report{}, core.NewNotFoundError(msgCardNotFound)
	}
	return svc.assembler.Assemble(ctx, card)
}

// Get returns the assembled report card for staff.
func (svc *Service) Get(ctx context.Context, cardID string, actor user.User) (Report, error) {
	card, _, err := svc.authorizedCard(ctx, cardID, actor)
	if err != nil {
		return Report{}, err
	}
	return svc.assembler.Assemble(ctx, card)
}

// UpdateRemarks sets the homeroom teacher's remarks on a card.
func (svc *Service) UpdateRemarks(ctx context.Context, cardID string, data UpdateCard, actor user.User) (Report, error) {
	card, _, err := svc.authorizedCard(ctx, cardID, actor)
	if err != nil {
		return Report{}, err
	}
	if err = data.Validate(); err != nil {
		return Report{}, err
	}

	err = svc.atomic(ctx, func(uow UnitOfWork) error {
		return errors.Wrap(uow.UpdateRemarks(ctx, card.ID, data.Remarks), "updating remarks")
	})
	if err != nil {
		return Report{}, err
	}
	card.Remarks = data.Remarks
	return svc.assembler.Assemble(ctx, card)
}

// ListByClass lists the report cards of a class for a semester, ordered by student name by default.
func (svc *Service) ListByClass(ctx context.Context, classID, semesterID string, ordering []core.Ordering, actor user.User) ([]ListItem, error) {
	class, err := svc.authorizedClass(ctx, classID, actor)
	if err != nil {
		return nil, err
	}
	cards, err := svc.repo.ListCards(ctx, class.ID, core.CleanString(semesterID))
	if err != nil {
		return nil, errors.Wrap(err, "querying report cards")
	}
	students, err := svc.dir.ClassStudents(ctx, class.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying class students")
	}
	names := make(map[string]string, len(students))
	for _, st := range students {
		names[st.ID] = st.Name
	}

	items := make([]ListItem, 0, len(cards))
	for _, card := range cards {
		name, ok := names[card.StudentID]
		if !ok { // no longer enrolled
			st, err := svc.dir.GetStudent(ctx, card.StudentID)
			if err != nil && !core.IsNotFound(err) {
				return nil, errors.Wrap(err, "finding student")
			}
			name = st.Name
		}
		items = append(items, ListItem{
			ReportID:    card.ID,
			StudentID:   card.StudentID,
			StudentName: name,
			Published:   card.Published,
			PublishedAt: card.PublishedAt,
		})
	}
	SortListItems(items, ordering)
	return items, nil
}

// ClassReports assembles every report card of a class for a semester, ordered by student name.
func (svc *Service) ClassReports(ctx context.Context, classID, semesterID string, actor user.User) (Class, []Report, error) {
	class, err := svc.authorizedClass(ctx, classID, actor)
	if err != nil {
		return Class{}, nil, err
	}
	cards, err := svc.repo.ListCards(ctx, class.ID, core.CleanString(semesterID))
	if err != nil {
		return Class{}, nil, errors.Wrap(err, "querying report cards")
	}
	reports, err := svc.assembler.AssembleMany(ctx, cards)
	if err != nil {
		return Class{}, nil, err
	}
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].StudentName < reports[j].StudentName })
	return class, reports, nil
}

type publishedNotice struct {
	StudentName  string
	ClassName    string
	SemesterID   string
	SemesterName string
}

func (svc *Service) notifyPublished(ctx context.Context, class Class, cards ...Card) {
	if svc.mailSvc == nil || len(cards) == 0 {
		return
	}

	semNames := make(map[string]string)
	messages := make([]*core.EmailMessage, 0, len(cards))
	for _, card := range cards {
		st, err := svc.dir.GetStudent(ctx, card.StudentID)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("notifying student %s: %v", card.StudentID, err), err)
			continue
		}
		if st.Email == "" {
			continue
		}
		semName, ok := semNames[card.SemesterID]
		if !ok {
			if sem, err := svc.dir.GetSemester(ctx, card.SemesterID); err == nil {
				semName = sem.Name
			}
			semNames[card.SemesterID] = semName
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: st.Name, Address: st.Email}},
			Subject:      "Your report card is available",
			TemplateName: "report_published",
			TemplateData: publishedNotice{
				StudentName:  st.Name,
				ClassName:    class.Name,
				SemesterID:   card.SemesterID,
				SemesterName: semName,
			},
		})
	}
	svc.mailSvc.SendMessages(messages...)
}

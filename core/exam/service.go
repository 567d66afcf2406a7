package exam

import (
	"context"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrExamInactive     = errors.New("exam is not active")
	ErrAlreadyAttempted = errors.New("exam already attempted")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrForbidden        = errors.New("attempt belongs to another trainee")
)

type (
	Repository interface {
		CreateExam(ctx context.Context, ex Exam) (Exam, error)
		GetExamByID(ctx context.Context, id int) (Exam, error)
		ListSessionExams(ctx context.Context, sessionID int) ([]Exam, error)
		SetExamActive(ctx context.Context, id int, active bool) error

		CreateQuestion(ctx context.Context, q Question) (Question, error)
		ListExamQuestions(ctx context.Context, examID int) ([]Question, error)
		DeleteQuestion(ctx context.Context, id int) error

		CreateBankQuestion(ctx context.Context, q BankQuestion) (BankQuestion, error)
		GetBankQuestionByID(ctx context.Context, id int) (BankQuestion, error)
		FilterBankQuestions(ctx context.Context, filter BankFilter) ([]BankQuestion, error)
		UpdateBankQuestion(ctx context.Context, q BankQuestion) (BankQuestion, error)
		DeleteBankQuestion(ctx context.Context, id int) error

		// CreateAttempt enforces at most one attempt per (trainee, exam) in
		// store; a duplicate returns ErrAlreadyAttempted.
		CreateAttempt(ctx context.Context, at Attempt) (Attempt, error)
		GetAttemptByID(ctx context.Context, id int) (Attempt, error)
		GetAttempt(ctx context.Context, traineeID, examID int) (Attempt, error)
		ListTraineeAttempts(ctx context.Context, traineeID int) ([]Attempt, error)
		// SubmitAttempt persists the graded attempt and its answers in one
		// transaction.
		SubmitAttempt(ctx context.Context, at Attempt, answers []Answer) (Attempt, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var nowFunc = time.Now // mockable

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) Create(ctx context.Context, createdBy int, ne NewExam) (Exam, error) {
	if err := ne.Validate(svc.validate); err != nil {
		return Exam{}, err
	}
	ex := Exam{
		SessionID:    ne.SessionID,
		Title:        ne.Title,
		Description:  ne.Description,
		PassingScore: ne.PassingScore,
		DurationMins: ne.DurationMins,
		IsActive:     true,
		CreatedBy:    createdBy,
		CreatedAt:    nowFunc(),
	}
	ex, err := svc.repo.CreateExam(ctx, ex)
	return ex, errors.Wrap(err, "creating exam")
}

func (svc *Service) GetByID(ctx context.Context, id int) (Exam, error) {
	return svc.repo.GetExamByID(ctx, id)
}

func (svc *Service) SessionExams(ctx context.Context, sessionID int) ([]Exam, error) {
	return svc.repo.ListSessionExams(ctx, sessionID)
}

func (svc *Service) SetActive(ctx context.Context, id int, active bool) error {
	if _, err := svc.repo.GetExamByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.SetExamActive(ctx, id, active)
}

func (svc *Service) AddQuestion(ctx context.Context, examID int, nq NewQuestion) (Question, error) {
	if err := nq.Validate(svc.validate); err != nil {
		return Question{}, err
	}
	if _, err := svc.repo.GetExamByID(ctx, examID); err != nil {
		return Question{}, err
	}
	q := Question{
		ExamID:        examID,
		Text:          nq.Text,
		OptionA:       nq.OptionA,
		OptionB:       nq.OptionB,
		OptionC:       nq.OptionC,
		OptionD:       nq.OptionD,
		CorrectOption: nq.CorrectOption,
		Points:        nq.Points,
		CreatedAt:     nowFunc(),
	}
	q, err := svc.repo.CreateQuestion(ctx, q)
	return q, errors.Wrap(err, "creating question")
}

// Questions returns an exam's question bank with grading information; for
// staff use.
func (svc *Service) Questions(ctx context.Context, examID int) ([]Question, error) {
	return svc.repo.ListExamQuestions(ctx, examID)
}

func (svc *Service) RemoveQuestion(ctx context.Context, id int) error {
	return svc.repo.DeleteQuestion(ctx, id)
}

// Question bank

// AddBankQuestion stores a reusable question in the bank. The skill level
// defaults to beginner.
func (svc *Service) AddBankQuestion(ctx context.Context, createdBy int, nq NewBankQuestion) (BankQuestion, error) {
	if err := nq.Validate(svc.validate); err != nil {
		return BankQuestion{}, err
	}
	if nq.SkillLevel == "" {
		nq.SkillLevel = SkillBeginner
	}
	now := nowFunc()
	q := BankQuestion{
		Text:          nq.Text,
		Category:      nq.Category,
		SkillLevel:    nq.SkillLevel,
		OptionA:       nq.OptionA,
		OptionB:       nq.OptionB,
		OptionC:       nq.OptionC,
		OptionD:       nq.OptionD,
		CorrectOption: nq.CorrectOption,
		Points:        nq.Points,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	q, err := svc.repo.CreateBankQuestion(ctx, q)
	return q, errors.Wrap(err, "creating bank question")
}

func (svc *Service) BankQuestion(ctx context.Context, id int) (BankQuestion, error) {
	return svc.repo.GetBankQuestionByID(ctx, id)
}

func (svc *Service) BankQuestions(ctx context.Context, filter BankFilter) ([]BankQuestion, error) {
	return svc.repo.FilterBankQuestions(ctx, filter)
}

// ReplaceBankQuestion overwrites a bank question in full. Copies already
// imported into exams keep their old content.
func (svc *Service) ReplaceBankQuestion(ctx context.Context, id int, nq NewBankQuestion) (BankQuestion, error) {
	if err := nq.Validate(svc.validate); err != nil {
		return BankQuestion{}, err
	}
	q, err := svc.repo.GetBankQuestionByID(ctx, id)
	if err != nil {
		return BankQuestion{}, err
	}
	if nq.SkillLevel == "" {
		nq.SkillLevel = SkillBeginner
	}
	q.Text = nq.Text
	q.Category = nq.Category
	q.SkillLevel = nq.SkillLevel
	q.OptionA = nq.OptionA
	q.OptionB = nq.OptionB
	q.OptionC = nq.OptionC
	q.OptionD = nq.OptionD
	q.CorrectOption = nq.CorrectOption
	q.Points = nq.Points
	q.UpdatedAt = nowFunc()
	q, err = svc.repo.UpdateBankQuestion(ctx, q)
	return q, errors.Wrap(err, "updating bank question")
}

func (svc *Service) RemoveBankQuestion(ctx context.Context, id int) error {
	return svc.repo.DeleteBankQuestion(ctx, id)
}

// Import copies the named bank questions into an exam's question list.
func (svc *Service) Import(ctx context.Context, examID int, iq ImportQuestions) ([]Question, error) {
	if err := iq.Validate(svc.validate); err != nil {
		return nil, err
	}
	if _, err := svc.repo.GetExamByID(ctx, examID); err != nil {
		return nil, err
	}
	now := nowFunc()
	imported := make([]Question, 0, len(iq.QuestionIDs))
	for _, id := range iq.QuestionIDs {
		bq, err := svc.repo.GetBankQuestionByID(ctx, id)
		if err != nil {
			return nil, err
		}
		q := Question{
			ExamID:        examID,
			Text:          bq.Text,
			OptionA:       bq.OptionA,
			OptionB:       bq.OptionB,
			OptionC:       bq.OptionC,
			OptionD:       bq.OptionD,
			CorrectOption: bq.CorrectOption,
			Points:        bq.Points,
			CreatedAt:     now,
		}
		if q, err = svc.repo.CreateQuestion(ctx, q); err != nil {
			return nil, errors.Wrap(err, "importing bank question")
		}
		imported = append(imported, q)
	}
	return imported, nil
}

// Start opens an attempt for a trainee and returns the attempt along with
// the questions stripped of correct options.
func (svc *Service) Start(ctx context.Context, traineeID, examID int) (Attempt, []Question, error) {
	ex, err := svc.repo.GetExamByID(ctx, examID)
	if err != nil {
		return Attempt{}, nil, err
	}
	if !ex.IsActive {
		return Attempt{}, nil, ErrExamInactive
	}
	at := Attempt{
		ExamID:    examID,
		TraineeID: traineeID,
		Status:    AttemptInProgress,
		StartedAt: nowFunc(),
	}
	if at, err = svc.repo.CreateAttempt(ctx, at); err != nil {
		return Attempt{}, nil, err
	}
	questions, err := svc.repo.ListExamQuestions(ctx, examID)
	if err != nil {
		return Attempt{}, nil, errors.Wrap(err, "listing questions")
	}
	for i, q := range questions {
		questions[i] = q.forTrainee()
	}
	return at, questions, nil
}

// Submit grades an answer sheet against the exam's question bank. Unanswered
// questions earn nothing; the percentage is earned over attainable points and
// decides the pass mark.
func (svc *Service) Submit(ctx context.Context, traineeID, attemptID int, sub Submission) (Attempt, error) {
	if err := sub.Validate(svc.validate); err != nil {
		return Attempt{}, err
	}
	at, err := svc.repo.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if at.TraineeID != traineeID {
		return Attempt{}, ErrForbidden
	}
	if at.Status == AttemptSubmitted {
		return Attempt{}, ErrAlreadySubmitted
	}
	ex, err := svc.repo.GetExamByID(ctx, at.ExamID)
	if err != nil {
		return Attempt{}, err
	}
	questions, err := svc.repo.ListExamQuestions(ctx, at.ExamID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "listing questions")
	}

	selected := make(map[int]string, len(sub.Answers))
	for _, a := range sub.Answers {
		selected[a.QuestionID] = a.SelectedOption
	}

	var earned, attainable float64
	answers := make([]Answer, 0, len(questions))
	for _, q := range questions {
		attainable += q.Points
		opt, ok := selected[q.ID]
		if !ok {
			continue
		}
		ans := Answer{
			QuestionID:     q.ID,
			SelectedOption: opt,
		}
		if opt == q.CorrectOption {
			ans.IsCorrect = true
			ans.PointsEarned = q.Points
			earned += q.Points
		}
		answers = append(answers, ans)
	}

	var pct float64
	if attainable > 0 {
		pct = math.Round(earned/attainable*10000) / 100
	}
	now := nowFunc()
	at.Status = AttemptSubmitted
	at.Score = earned
	at.Percentage = pct
	at.Passed = pct >= ex.PassingScore
	at.SubmittedAt = &now

	at, err = svc.repo.SubmitAttempt(ctx, at, answers)
	return at, errors.Wrap(err, "submitting attempt")
}

func (svc *Service) Attempt(ctx context.Context, traineeID, examID int) (Attempt, error) {
	return svc.repo.GetAttempt(ctx, traineeID, examID)
}

func (svc *Service) History(ctx context.Context, traineeID int) ([]Attempt, error) {
	return svc.repo.ListTraineeAttempts(ctx, traineeID)
}

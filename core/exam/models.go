package exam

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Attempt statuses.
const (
	AttemptInProgress = "in_progress"
	AttemptSubmitted  = "submitted"
)

// Exam is an examination attached to a training session. Attainable points
// are the sum of its question points.
type Exam struct {
	ID           int       `json:"id" db:"id"`
	SessionID    int       `json:"session_id" db:"session_id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description,omitempty" db:"description"`
	PassingScore float64   `json:"passing_score" db:"passing_score"`
	DurationMins int       `json:"duration_minutes" db:"duration_minutes"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedBy    int       `json:"created_by" db:"created_by"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	QuestionCount int     `json:"question_count,omitempty" db:"question_count"`
	TotalPoints   float64 `json:"total_points,omitempty" db:"total_points"`
}

// Question is a multiple-choice question. CorrectOption is never exposed to
// trainees taking the exam.
type Question struct {
	ID            int       `json:"id" db:"id"`
	ExamID        int       `json:"exam_id" db:"exam_id"`
	Text          string    `json:"question_text" db:"question_text"`
	OptionA       string    `json:"option_a" db:"option_a"`
	OptionB       string    `json:"option_b" db:"option_b"`
	OptionC       string    `json:"option_c" db:"option_c"`
	OptionD       string    `json:"option_d" db:"option_d"`
	CorrectOption string    `json:"correct_option,omitempty" db:"correct_option"`
	Points        float64   `json:"points" db:"points"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// forTrainee strips grading information before handing the question to an
// exam taker.
func (q Question) forTrainee() Question {
	q.CorrectOption = ""
	return q
}

// Attempt is a trainee's single try at an exam. At most one attempt exists
// per (trainee, exam).
type Attempt struct {
	ID          int        `json:"id" db:"id"`
	ExamID      int        `json:"exam_id" db:"exam_id"`
	TraineeID   int        `json:"trainee_id" db:"trainee_id"`
	Status      string     `json:"status" db:"status"`
	Score       float64    `json:"score" db:"score"`
	Percentage  float64    `json:"percentage" db:"percentage"`
	Passed      bool       `json:"passed" db:"passed"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty" db:"submitted_at"`

	ExamTitle string `json:"exam_title,omitempty" db:"exam_title"`
}

// Answer records the selected option of one question within an attempt.
type Answer struct {
	ID             int     `json:"id" db:"id"`
	AttemptID      int     `json:"attempt_id" db:"attempt_id"`
	QuestionID     int     `json:"question_id" db:"question_id"`
	SelectedOption string  `json:"selected_option" db:"selected_option"`
	IsCorrect      bool    `json:"is_correct" db:"is_correct"`
	PointsEarned   float64 `json:"points_earned" db:"points_earned"`
}

// Question bank skill levels.
const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
)

// BankQuestion is a reusable question curated outside any exam. Importing it
// into an exam copies it; later bank edits leave existing exams untouched.
type BankQuestion struct {
	ID            int       `json:"id" db:"id"`
	Text          string    `json:"question_text" db:"question_text"`
	Category      string    `json:"category,omitempty" db:"category"`
	SkillLevel    string    `json:"skill_level" db:"skill_level"`
	OptionA       string    `json:"option_a" db:"option_a"`
	OptionB       string    `json:"option_b" db:"option_b"`
	OptionC       string    `json:"option_c" db:"option_c"`
	OptionD       string    `json:"option_d" db:"option_d"`
	CorrectOption string    `json:"correct_option" db:"correct_option"`
	Points        float64   `json:"points" db:"points"`
	CreatedBy     int       `json:"created_by" db:"created_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// NewBankQuestion contains information needed to create or replace a bank
// question.
type NewBankQuestion struct {
	Text          string  `json:"question_text" validate:"required"`
	Category      string  `json:"category"`
	SkillLevel    string  `json:"skill_level" validate:"omitempty,oneof=beginner intermediate advanced"`
	OptionA       string  `json:"option_a" validate:"required"`
	OptionB       string  `json:"option_b" validate:"required"`
	OptionC       string  `json:"option_c" validate:"required"`
	OptionD       string  `json:"option_d" validate:"required"`
	CorrectOption string  `json:"correct_option" validate:"required,oneof=a b c d"`
	Points        float64 `json:"points" validate:"required,gt=0"`
}

func (nq *NewBankQuestion) Validate(validate *validator.Validate) error {
	return validate.Struct(nq)
}

// BankFilter narrows question bank listings.
type BankFilter struct {
	Category   string `query:"category"`
	SkillLevel string `query:"skill_level"`
	Search     string `query:"search"`
}

// ImportQuestions names the bank questions to copy into an exam.
type ImportQuestions struct {
	QuestionIDs []int `json:"question_ids" validate:"required,min=1"`
}

func (iq *ImportQuestions) Validate(validate *validator.Validate) error {
	return validate.Struct(iq)
}

// NewExam contains information needed to create an examination.
type NewExam struct {
	SessionID    int     `json:"session_id" validate:"required"`
	Title        string  `json:"title" validate:"required"`
	Description  string  `json:"description"`
	PassingScore float64 `json:"passing_score" validate:"min=0,max=100"`
	DurationMins int     `json:"duration_minutes" validate:"required,min=1"`
}

func (ne *NewExam) Validate(validate *validator.Validate) error {
	return validate.Struct(ne)
}

// NewQuestion contains information needed to add a question to an exam.
type NewQuestion struct {
	Text          string  `json:"question_text" validate:"required"`
	OptionA       string  `json:"option_a" validate:"required"`
	OptionB       string  `json:"option_b" validate:"required"`
	OptionC       string  `json:"option_c" validate:"required"`
	OptionD       string  `json:"option_d" validate:"required"`
	CorrectOption string  `json:"correct_option" validate:"required,oneof=a b c d"`
	Points        float64 `json:"points" validate:"required,gt=0"`
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	return validate.Struct(nq)
}

// SubmittedAnswer is one question/option pair of an exam submission.
type SubmittedAnswer struct {
	QuestionID     int    `json:"question_id" validate:"required"`
	SelectedOption string `json:"selected_option" validate:"required,oneof=a b c d"`
}

// Submission is the full answer sheet handed in by a trainee.
type Submission struct {
	Answers []SubmittedAnswer `json:"answers" validate:"required,min=1,dive"`
}

func (s *Submission) Validate(validate *validator.Validate) error {
	return validate.Struct(s)
}

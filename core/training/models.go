package training

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kahawa/core"
)

// Session statuses
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Enrollment statuses
const (
	EnrollmentRegistered = "registered"
	EnrollmentAttended   = "attended"
	EnrollmentAbsent     = "absent"
	EnrollmentCancelled  = "cancelled"
)

// Session is a scheduled training event (not to be confused with a login session).
type Session struct {
	ID          int       `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description,omitempty" db:"description"`
	SessionDate time.Time `json:"session_date" db:"session_date"`
	Location    string    `json:"location,omitempty" db:"location"`
	Capacity    int       `json:"capacity" db:"capacity"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

func (s *Session) IsOpenForEnrollment() bool { return s.Status == StatusScheduled }

type Enrollment struct {
	ID           int       `json:"id" db:"id"`
	SessionID    int       `json:"session_id" db:"session_id"`
	TraineeID    int       `json:"trainee_id" db:"trainee_id"`
	Status       string    `json:"status" db:"status"`
	EnrolledAt   time.Time `json:"enrolled_at" db:"enrolled_at"`
	SessionTitle string    `json:"session_title,omitempty" db:"session_title"`
}

// NewSession contains information needed to schedule a training session.
type NewSession struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	SessionDate time.Time `json:"session_date" validate:"required"`
	Location    string    `json:"location"`
	Capacity    int       `json:"capacity" validate:"required,min=1"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	ns.Location = core.CleanString(ns.Location)
	return validate.Struct(ns)
}

// UpdateSession defines the mutable fields of a Session.
type UpdateSession struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	SessionDate *time.Time `json:"session_date"`
	Location    *string    `json:"location"`
	Capacity    *int       `json:"capacity" validate:"omitempty,min=1"`
	Status      string     `json:"status" validate:"omitempty,oneof=scheduled in_progress completed cancelled"`
}

func (us *UpdateSession) Validate(validate *validator.Validate) error {
	us.Title = core.CleanString(us.Title)
	return validate.Struct(us)
}

type QueryFilter struct {
	Status   string `query:"status"`
	Upcoming bool   `query:"upcoming"`
}

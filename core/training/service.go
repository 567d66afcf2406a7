package training

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound           = errors.New("training session not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAlreadyEnrolled    = errors.New("already enrolled in this session")
	ErrSessionFull        = errors.New("session is at full capacity")
	ErrSessionClosed      = errors.New("session is not open for enrollment")
)

type (
	Repository interface {
		CreateSession(ctx context.Context, sess Session) (Session, error)
		GetSessionByID(ctx context.Context, id int) (Session, error)
		FilterSessions(ctx context.Context, filter QueryFilter) ([]Session, error)
		UpdateSession(ctx context.Context, sess Session) (Session, error)

		// CreateEnrollment inserts an enrollment while atomically re-checking
		// uniqueness and session capacity in-store.
		CreateEnrollment(ctx context.Context, sessionID, traineeID int) (Enrollment, error)
		GetEnrollment(ctx context.Context, sessionID, traineeID int) (Enrollment, error)
		ListSessionEnrollments(ctx context.Context, sessionID int) ([]Enrollment, error)
		ListTraineeEnrollments(ctx context.Context, traineeID int) ([]Enrollment, error)
		SetEnrollmentStatus(ctx context.Context, enrollmentID int, status string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, ns NewSession) (Session, error) {
	now := time.Now().UTC()
	return svc.repo.CreateSession(ctx, Session{
		Title:       ns.Title,
		Description: ns.Description,
		SessionDate: ns.SessionDate,
		Location:    ns.Location,
		Capacity:    ns.Capacity,
		Status:      StatusScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) GetByID(ctx context.Context, id int) (Session, error) {
	return svc.repo.GetSessionByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Session, error) {
	return svc.repo.FilterSessions(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, id int, us UpdateSession) (Session, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if us.Title != "" {
		sess.Title = us.Title
	}
	if us.Description != nil {
		sess.Description = *us.Description
	}
	if us.SessionDate != nil {
		sess.SessionDate = *us.SessionDate
	}
	if us.Location != nil {
		sess.Location = *us.Location
	}
	if us.Capacity != nil {
		sess.Capacity = *us.Capacity
	}
	if us.Status != "" {
		sess.Status = us.Status
	}
	sess.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSession(ctx, sess)
}

// Enroll registers a trainee in a scheduled session. Duplicate and capacity
// checks are enforced in-store so concurrent enrollments cannot oversubscribe.
func (svc *Service) Enroll(ctx context.Context, sessionID, traineeID int) (Enrollment, error) {
	sess, err := svc.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return Enrollment{}, err
	}
	if !sess.IsOpenForEnrollment() {
		return Enrollment{}, ErrSessionClosed
	}
	return svc.repo.CreateEnrollment(ctx, sessionID, traineeID)
}

// CancelEnrollment cancels the caller's own enrollment.
func (svc *Service) CancelEnrollment(ctx context.Context, sessionID, traineeID int) error {
	enr, err := svc.repo.GetEnrollment(ctx, sessionID, traineeID)
	if err != nil {
		return err
	}
	return svc.repo.SetEnrollmentStatus(ctx, enr.ID, EnrollmentCancelled)
}

// MarkAttendance transitions an enrollment to attended/absent; staff only.
func (svc *Service) MarkAttendance(ctx context.Context, sessionID, traineeID int, attended bool) error {
	enr, err := svc.repo.GetEnrollment(ctx, sessionID, traineeID)
	if err != nil {
		return err
	}
	status := EnrollmentAbsent
	if attended {
		status = EnrollmentAttended
	}
	return svc.repo.SetEnrollmentStatus(ctx, enr.ID, status)
}

func (svc *Service) SessionEnrollments(ctx context.Context, sessionID int) ([]Enrollment, error) {
	return svc.repo.ListSessionEnrollments(ctx, sessionID)
}

func (svc *Service) TraineeEnrollments(ctx context.Context, traineeID int) ([]Enrollment, error) {
	return svc.repo.ListTraineeEnrollments(ctx, traineeID)
}

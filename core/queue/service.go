package queue

import (
	"context"
	"errors"
)

var (
	// errors
	ErrNotFound      = errors.New("queue entry not found")
	ErrForbidden     = errors.New("queue entry belongs to another trainee")
	ErrAlreadyQueued = errors.New("already in queue for this session")
	ErrEmptyQueue    = errors.New("no one in queue")
)

type (
	Repository interface {
		// JoinQueue atomically assigns the next position for the session and
		// inserts a waiting entry. Position assignment and the duplicate check
		// must be serialized in-store; returns ErrAlreadyQueued when a waiting
		// entry already exists for the pair.
		JoinQueue(ctx context.Context, sessionID, traineeID int) (Entry, error)
		GetEntryByID(ctx context.Context, id int) (Entry, error)
		ListWaiting(ctx context.Context, sessionID int) ([]Entry, error)
		ListTraineeWaiting(ctx context.Context, traineeID int) ([]Entry, error)
		SetEntryCancelled(ctx context.Context, id int) error
		// NextWaiting returns the waiting entry with the lowest position.
		NextWaiting(ctx context.Context, sessionID int) (Entry, error)
		SetEntryProcessing(ctx context.Context, id int) (Entry, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Join adds the trainee to the session's waiting list at the next position.
func (svc *Service) Join(ctx context.Context, sessionID, traineeID int) (Entry, error) {
	return svc.repo.JoinQueue(ctx, sessionID, traineeID)
}

// Leave cancels the caller's own waiting entry. Other entries keep their
// positions; the resulting gap is expected.
func (svc *Service) Leave(ctx context.Context, entryID, traineeID int) error {
	entry, err := svc.repo.GetEntryByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.TraineeID != traineeID {
		return ErrForbidden
	}
	if entry.Status != StatusWaiting {
		return ErrNotFound
	}
	return svc.repo.SetEntryCancelled(ctx, entryID)
}

// ListForSession returns the waiting entries ordered by position.
func (svc *Service) ListForSession(ctx context.Context, sessionID int) ([]Entry, error) {
	return svc.repo.ListWaiting(ctx, sessionID)
}

// MyQueues returns the trainee's waiting entries across sessions.
func (svc *Service) MyQueues(ctx context.Context, traineeID int) ([]Entry, error) {
	return svc.repo.ListTraineeWaiting(ctx, traineeID)
}

// ProcessNext advances the queue: the lowest-position waiting entry moves to
// processing. This is a manual staff action, not automatic.
func (svc *Service) ProcessNext(ctx context.Context, sessionID int) (Entry, error) {
	entry, err := svc.repo.NextWaiting(ctx, sessionID)
	if err != nil {
		if err == ErrNotFound {
			return Entry{}, ErrEmptyQueue
		}
		return Entry{}, err
	}
	return svc.repo.SetEntryProcessing(ctx, entry.ID)
}

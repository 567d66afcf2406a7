package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/queue"
)

const queueColumns = `
	q.id, q.session_id, q.trainee_id, q.queue_position, q.status, q.joined_at,
	COALESCE(q.processed_at, '0001-01-01 00:00:00+00') AS processed_at,
	s.title AS session_title`

type queueRepository struct {
	db core.DB
}

var _ queue.Repository = (*queueRepository)(nil)

func NewQueueRepository(db core.DB) *queueRepository {
	return &queueRepository{db: db}
}

// maxJoinRetries bounds retrying when two joins race for the same position.
const maxJoinRetries = 3

func (repo queueRepository) JoinQueue(ctx context.Context, sessionID, traineeID int) (queue.Entry, error) {
	// Position assignment happens in the INSERT itself so no window exists
	// between reading the max and writing the row. A concurrent join may
	// still claim the same position first; the position constraint flags it
	// and the insert is retried with a fresh max.
	query := `
	INSERT INTO queue_entries (session_id, trainee_id, queue_position, status)
	SELECT $1, $2, COALESCE(MAX(queue_position), 0) + 1, 'waiting'
	FROM queue_entries WHERE session_id = $1
	RETURNING id, session_id, trainee_id, queue_position, status, joined_at`

	var entry queue.Entry
	var err error
	for i := 0; i < maxJoinRetries; i++ {
		err = repo.db.QueryRowxContext(ctx, query, sessionID, traineeID).StructScan(&entry)
		if err == nil {
			return entry, nil
		}
		if isUniqueViolation(err, "queue_entries_waiting_key") {
			return queue.Entry{}, queue.ErrAlreadyQueued
		}
		if !isUniqueViolation(err, "queue_entries_session_position_key") {
			break
		}
	}
	return queue.Entry{}, errors.Wrap(err, "joining queue")
}

func (repo queueRepository) GetEntryByID(ctx context.Context, id int) (queue.Entry, error) {
	var entry queue.Entry
	query := `
	SELECT ` + queueColumns + `
	FROM queue_entries q
	JOIN training_sessions s ON s.id = q.session_id
	WHERE q.id = $1`
	if err := repo.db.GetContext(ctx, &entry, query, id); err != nil {
		if err == sql.ErrNoRows {
			return queue.Entry{}, queue.ErrNotFound
		}
		return queue.Entry{}, errors.Wrap(err, "getting queue entry")
	}
	return entry, nil
}

func (repo queueRepository) ListWaiting(ctx context.Context, sessionID int) ([]queue.Entry, error) {
	var entries []queue.Entry
	query := `
	SELECT ` + queueColumns + `
	FROM queue_entries q
	JOIN training_sessions s ON s.id = q.session_id
	WHERE q.session_id = $1 AND q.status = 'waiting'
	ORDER BY q.queue_position ASC`
	err := repo.db.SelectContext(ctx, &entries, query, sessionID)
	return entries, errors.Wrap(err, "listing waiting entries")
}

func (repo queueRepository) ListTraineeWaiting(ctx context.Context, traineeID int) ([]queue.Entry, error) {
	var entries []queue.Entry
	query := `
	SELECT ` + queueColumns + `
	FROM queue_entries q
	JOIN training_sessions s ON s.id = q.session_id
	WHERE q.trainee_id = $1 AND q.status = 'waiting'
	ORDER BY q.joined_at ASC`
	err := repo.db.SelectContext(ctx, &entries, query, traineeID)
	return entries, errors.Wrap(err, "listing trainee entries")
}

func (repo queueRepository) SetEntryCancelled(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE queue_entries SET status = 'cancelled' WHERE id = $1 AND status = 'waiting'`, id)
	if err != nil {
		return errors.Wrap(err, "cancelling queue entry")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func (repo queueRepository) NextWaiting(ctx context.Context, sessionID int) (queue.Entry, error) {
	var entry queue.Entry
	query := `
	SELECT ` + queueColumns + `
	FROM queue_entries q
	JOIN training_sessions s ON s.id = q.session_id
	WHERE q.session_id = $1 AND q.status = 'waiting'
	ORDER BY q.queue_position ASC
	LIMIT 1`
	if err := repo.db.GetContext(ctx, &entry, query, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return queue.Entry{}, queue.ErrNotFound
		}
		return queue.Entry{}, errors.Wrap(err, "getting next waiting entry")
	}
	return entry, nil
}

func (repo queueRepository) SetEntryProcessing(ctx context.Context, id int) (queue.Entry, error) {
	query := `
	UPDATE queue_entries SET status = 'processing', processed_at = NOW()
	WHERE id = $1 AND status = 'waiting'
	RETURNING id, session_id, trainee_id, queue_position, status, joined_at, processed_at`
	var entry queue.Entry
	if err := repo.db.QueryRowxContext(ctx, query, id).StructScan(&entry); err != nil {
		if err == sql.ErrNoRows {
			return queue.Entry{}, queue.ErrNotFound
		}
		return queue.Entry{}, errors.Wrap(err, "processing queue entry")
	}
	return entry, nil
}

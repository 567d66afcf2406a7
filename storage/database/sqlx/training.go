package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/training"
)

const sessionColumns = `id, title, description, session_date, location, capacity, status, created_at, updated_at`

type trainingRepository struct {
	db core.DB
}

var _ training.Repository = (*trainingRepository)(nil)

func NewTrainingRepository(db core.DB) *trainingRepository {
	return &trainingRepository{db: db}
}

func (repo trainingRepository) CreateSession(ctx context.Context, sess training.Session) (training.Session, error) {
	query := `
	INSERT INTO training_sessions (title, description, session_date, location, capacity, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		sess.Title, sess.Description, sess.SessionDate, sess.Location,
		sess.Capacity, sess.Status, sess.CreatedAt, sess.UpdatedAt,
	).Scan(&sess.ID)
	if err != nil {
		return training.Session{}, errors.Wrap(err, "creating session")
	}
	return sess, nil
}

func (repo trainingRepository) GetSessionByID(ctx context.Context, id int) (training.Session, error) {
	var sess training.Session
	err := repo.db.GetContext(ctx, &sess,
		`SELECT `+sessionColumns+` FROM training_sessions WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return training.Session{}, training.ErrNotFound
		}
		return training.Session{}, errors.Wrap(err, "getting session")
	}
	return sess, nil
}

func (repo trainingRepository) FilterSessions(ctx context.Context, filter training.QueryFilter) ([]training.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM training_sessions WHERE 1=1`
	var args []interface{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = ` + placeholder(len(args))
	}
	if filter.Upcoming {
		query += ` AND session_date > NOW()`
	}
	query += ` ORDER BY session_date ASC`

	var sessions []training.Session
	err := repo.db.SelectContext(ctx, &sessions, query, args...)
	return sessions, errors.Wrap(err, "filtering sessions")
}

func (repo trainingRepository) UpdateSession(ctx context.Context, sess training.Session) (training.Session, error) {
	query := `
	UPDATE training_sessions SET
		title = $1, description = $2, session_date = $3, location = $4,
		capacity = $5, status = $6, updated_at = $7
	WHERE id = $8`
	res, err := repo.db.ExecContext(ctx, query,
		sess.Title, sess.Description, sess.SessionDate, sess.Location,
		sess.Capacity, sess.Status, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return training.Session{}, errors.Wrap(err, "updating session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return training.Session{}, training.ErrNotFound
	}
	return sess, nil
}

func (repo trainingRepository) CreateEnrollment(ctx context.Context, sessionID, traineeID int) (training.Enrollment, error) {
	// The session row lock serializes concurrent enrollments so the capacity
	// count cannot go stale; the unique constraint rejects duplicates.
	var enr training.Enrollment
	err := core.Atomic(ctx, repo.db, func(tx core.DBExecutor) error {
		var capacity int
		err := tx.GetContext(ctx, &capacity,
			`SELECT capacity FROM training_sessions WHERE id = $1 FOR UPDATE`, sessionID)
		if err != nil {
			if err == sql.ErrNoRows {
				return training.ErrNotFound
			}
			return errors.Wrap(err, "locking session")
		}

		var count int
		err = tx.GetContext(ctx, &count,
			`SELECT COUNT(*) FROM enrollments WHERE session_id = $1 AND status != 'cancelled'`, sessionID)
		if err != nil {
			return errors.Wrap(err, "counting enrollments")
		}
		if count >= capacity {
			return training.ErrSessionFull
		}

		query := `
		INSERT INTO enrollments (session_id, trainee_id, status)
		VALUES ($1, $2, 'registered')
		RETURNING id, session_id, trainee_id, status, enrolled_at`
		if err = tx.QueryRowxContext(ctx, query, sessionID, traineeID).StructScan(&enr); err != nil {
			if isUniqueViolation(err, "enrollments_session_trainee_key") {
				return training.ErrAlreadyEnrolled
			}
			return errors.Wrap(err, "creating enrollment")
		}
		return nil
	})
	if err != nil {
		return training.Enrollment{}, err
	}
	return enr, nil
}

func (repo trainingRepository) GetEnrollment(ctx context.Context, sessionID, traineeID int) (training.Enrollment, error) {
	var enr training.Enrollment
	query := `
	SELECT id, session_id, trainee_id, status, enrolled_at
	FROM enrollments
	WHERE session_id = $1 AND trainee_id = $2 AND status != 'cancelled'`
	if err := repo.db.GetContext(ctx, &enr, query, sessionID, traineeID); err != nil {
		if err == sql.ErrNoRows {
			return training.Enrollment{}, training.ErrEnrollmentNotFound
		}
		return training.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return enr, nil
}

func (repo trainingRepository) ListSessionEnrollments(ctx context.Context, sessionID int) ([]training.Enrollment, error) {
	var enrollments []training.Enrollment
	query := `
	SELECT e.id, e.session_id, e.trainee_id, e.status, e.enrolled_at, s.title AS session_title
	FROM enrollments e
	JOIN training_sessions s ON s.id = e.session_id
	WHERE e.session_id = $1
	ORDER BY e.enrolled_at ASC`
	err := repo.db.SelectContext(ctx, &enrollments, query, sessionID)
	return enrollments, errors.Wrap(err, "listing session enrollments")
}

func (repo trainingRepository) ListTraineeEnrollments(ctx context.Context, traineeID int) ([]training.Enrollment, error) {
	var enrollments []training.Enrollment
	query := `
	SELECT e.id, e.session_id, e.trainee_id, e.status, e.enrolled_at, s.title AS session_title
	FROM enrollments e
	JOIN training_sessions s ON s.id = e.session_id
	WHERE e.trainee_id = $1
	ORDER BY e.enrolled_at DESC`
	err := repo.db.SelectContext(ctx, &enrollments, query, traineeID)
	return enrollments, errors.Wrap(err, "listing trainee enrollments")
}

func (repo trainingRepository) SetEnrollmentStatus(ctx context.Context, enrollmentID int, status string) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE enrollments SET status = $1 WHERE id = $2`, status, enrollmentID)
	if err != nil {
		return errors.Wrap(err, "setting enrollment status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return training.ErrEnrollmentNotFound
	}
	return nil
}

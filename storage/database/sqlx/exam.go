package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/exam"
)

const examColumns = `
	e.id, e.session_id, e.title, e.description, e.passing_score, e.duration_minutes,
	e.is_active, e.created_by, e.created_at,
	(SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id) AS question_count,
	(SELECT COALESCE(SUM(q.points), 0) FROM questions q WHERE q.exam_id = e.id) AS total_points`

const bankColumns = `
	id, question_text, category, skill_level, option_a, option_b, option_c, option_d,
	correct_option, points, created_by, created_at, updated_at`

const attemptColumns = `
	a.id, a.exam_id, a.trainee_id, a.status, a.score, a.percentage, a.passed,
	a.started_at, a.submitted_at, e.title AS exam_title`

type examRepository struct {
	db core.DB
}

var _ exam.Repository = (*examRepository)(nil)

func NewExamRepository(db core.DB) *examRepository {
	return &examRepository{db: db}
}

func (repo examRepository) CreateExam(ctx context.Context, ex exam.Exam) (exam.Exam, error) {
	query := `
	INSERT INTO exams (session_id, title, description, passing_score, duration_minutes, is_active, created_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		ex.SessionID, ex.Title, ex.Description, ex.PassingScore, ex.DurationMins,
		ex.IsActive, ex.CreatedBy, ex.CreatedAt,
	).Scan(&ex.ID)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "creating exam")
	}
	return ex, nil
}

func (repo examRepository) GetExamByID(ctx context.Context, id int) (exam.Exam, error) {
	var ex exam.Exam
	err := repo.db.GetContext(ctx, &ex, `SELECT `+examColumns+` FROM exams e WHERE e.id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return exam.Exam{}, exam.ErrNotFound
		}
		return exam.Exam{}, errors.Wrap(err, "getting exam")
	}
	return ex, nil
}

func (repo examRepository) ListSessionExams(ctx context.Context, sessionID int) ([]exam.Exam, error) {
	var exams []exam.Exam
	query := `SELECT ` + examColumns + ` FROM exams e WHERE e.session_id = $1 ORDER BY e.created_at DESC`
	err := repo.db.SelectContext(ctx, &exams, query, sessionID)
	return exams, errors.Wrap(err, "listing session exams")
}

func (repo examRepository) SetExamActive(ctx context.Context, id int, active bool) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE exams SET is_active = $1 WHERE id = $2`, active, id)
	return errors.Wrap(err, "setting exam active")
}

func (repo examRepository) CreateQuestion(ctx context.Context, q exam.Question) (exam.Question, error) {
	query := `
	INSERT INTO questions (exam_id, question_text, option_a, option_b, option_c, option_d, correct_option, points, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		q.ExamID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectOption, q.Points, q.CreatedAt,
	).Scan(&q.ID)
	if err != nil {
		return exam.Question{}, errors.Wrap(err, "creating question")
	}
	return q, nil
}

func (repo examRepository) ListExamQuestions(ctx context.Context, examID int) ([]exam.Question, error) {
	var questions []exam.Question
	query := `
	SELECT id, exam_id, question_text, option_a, option_b, option_c, option_d, correct_option, points, created_at
	FROM questions
	WHERE exam_id = $1
	ORDER BY id ASC`
	err := repo.db.SelectContext(ctx, &questions, query, examID)
	return questions, errors.Wrap(err, "listing questions")
}

func (repo examRepository) DeleteQuestion(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting question")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exam.ErrNotFound
	}
	return nil
}

func (repo examRepository) CreateBankQuestion(ctx context.Context, q exam.BankQuestion) (exam.BankQuestion, error) {
	query := `
	INSERT INTO question_bank (question_text, category, skill_level, option_a, option_b, option_c, option_d, correct_option, points, created_by, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		q.Text, q.Category, q.SkillLevel, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectOption, q.Points, q.CreatedBy, q.CreatedAt, q.UpdatedAt,
	).Scan(&q.ID)
	if err != nil {
		return exam.BankQuestion{}, errors.Wrap(err, "creating bank question")
	}
	return q, nil
}

func (repo examRepository) GetBankQuestionByID(ctx context.Context, id int) (exam.BankQuestion, error) {
	var q exam.BankQuestion
	err := repo.db.GetContext(ctx, &q, `SELECT `+bankColumns+` FROM question_bank WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return exam.BankQuestion{}, exam.ErrQuestionNotFound
		}
		return exam.BankQuestion{}, errors.Wrap(err, "getting bank question")
	}
	return q, nil
}

func (repo examRepository) FilterBankQuestions(ctx context.Context, filter exam.BankFilter) ([]exam.BankQuestion, error) {
	query := `SELECT ` + bankColumns + ` FROM question_bank WHERE 1=1`
	var args []interface{}

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += ` AND category = ` + placeholder(len(args))
	}
	if filter.SkillLevel != "" {
		args = append(args, filter.SkillLevel)
		query += ` AND skill_level = ` + placeholder(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += ` AND question_text ILIKE ` + placeholder(len(args))
	}
	query += ` ORDER BY created_at DESC`

	var questions []exam.BankQuestion
	err := repo.db.SelectContext(ctx, &questions, query, args...)
	return questions, errors.Wrap(err, "filtering bank questions")
}

func (repo examRepository) UpdateBankQuestion(ctx context.Context, q exam.BankQuestion) (exam.BankQuestion, error) {
	query := `
	UPDATE question_bank SET
		question_text = $1, category = $2, skill_level = $3,
		option_a = $4, option_b = $5, option_c = $6, option_d = $7,
		correct_option = $8, points = $9, updated_at = $10
	WHERE id = $11`
	res, err := repo.db.ExecContext(ctx, query,
		q.Text, q.Category, q.SkillLevel, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectOption, q.Points, q.UpdatedAt, q.ID,
	)
	if err != nil {
		return exam.BankQuestion{}, errors.Wrap(err, "updating bank question")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exam.BankQuestion{}, exam.ErrQuestionNotFound
	}
	return q, nil
}

func (repo examRepository) DeleteBankQuestion(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM question_bank WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting bank question")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exam.ErrQuestionNotFound
	}
	return nil
}

func (repo examRepository) CreateAttempt(ctx context.Context, at exam.Attempt) (exam.Attempt, error) {
	query := `
	INSERT INTO exam_attempts (exam_id, trainee_id, status, started_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		at.ExamID, at.TraineeID, at.Status, at.StartedAt,
	).Scan(&at.ID)
	if err != nil {
		if isUniqueViolation(err, "exam_attempts_exam_trainee_key") {
			return exam.Attempt{}, exam.ErrAlreadyAttempted
		}
		return exam.Attempt{}, errors.Wrap(err, "creating attempt")
	}
	return at, nil
}

func (repo examRepository) GetAttemptByID(ctx context.Context, id int) (exam.Attempt, error) {
	var at exam.Attempt
	query := `SELECT ` + attemptColumns + ` FROM exam_attempts a JOIN exams e ON e.id = a.exam_id WHERE a.id = $1`
	if err := repo.db.GetContext(ctx, &at, query, id); err != nil {
		if err == sql.ErrNoRows {
			return exam.Attempt{}, exam.ErrAttemptNotFound
		}
		return exam.Attempt{}, errors.Wrap(err, "getting attempt")
	}
	return at, nil
}

func (repo examRepository) GetAttempt(ctx context.Context, traineeID, examID int) (exam.Attempt, error) {
	var at exam.Attempt
	query := `
	SELECT ` + attemptColumns + `
	FROM exam_attempts a
	JOIN exams e ON e.id = a.exam_id
	WHERE a.trainee_id = $1 AND a.exam_id = $2`
	if err := repo.db.GetContext(ctx, &at, query, traineeID, examID); err != nil {
		if err == sql.ErrNoRows {
			return exam.Attempt{}, exam.ErrAttemptNotFound
		}
		return exam.Attempt{}, errors.Wrap(err, "getting attempt")
	}
	return at, nil
}

func (repo examRepository) ListTraineeAttempts(ctx context.Context, traineeID int) ([]exam.Attempt, error) {
	var attempts []exam.Attempt
	query := `
	SELECT ` + attemptColumns + `
	FROM exam_attempts a
	JOIN exams e ON e.id = a.exam_id
	WHERE a.trainee_id = $1
	ORDER BY a.started_at DESC`
	err := repo.db.SelectContext(ctx, &attempts, query, traineeID)
	return attempts, errors.Wrap(err, "listing trainee attempts")
}

func (repo examRepository) SubmitAttempt(ctx context.Context, at exam.Attempt, answers []exam.Answer) (exam.Attempt, error) {
	err := core.Atomic(ctx, repo.db, func(tx core.DBExecutor) error {
		query := `
		UPDATE exam_attempts SET status = $1, score = $2, percentage = $3, passed = $4, submitted_at = $5
		WHERE id = $6 AND status = 'in_progress'`
		res, err := tx.ExecContext(ctx, query,
			at.Status, at.Score, at.Percentage, at.Passed, at.SubmittedAt, at.ID)
		if err != nil {
			return errors.Wrap(err, "updating attempt")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return exam.ErrAlreadySubmitted
		}

		for _, ans := range answers {
			_, err = tx.ExecContext(ctx, `
			INSERT INTO exam_answers (attempt_id, question_id, selected_option, is_correct, points_earned)
			VALUES ($1, $2, $3, $4, $5)`,
				at.ID, ans.QuestionID, ans.SelectedOption, ans.IsCorrect, ans.PointsEarned)
			if err != nil {
				return errors.Wrap(err, "saving answer")
			}
		}
		return nil
	})
	if err != nil {
		return exam.Attempt{}, err
	}
	return at, nil
}

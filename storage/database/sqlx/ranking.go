package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/ranking"
)

type rankingRepository struct {
	db core.DB
}

var _ ranking.Repository = (*rankingRepository)(nil)

func NewRankingRepository(db core.DB) *rankingRepository {
	return &rankingRepository{db: db}
}

func (repo rankingRepository) GetExamAggregate(ctx context.Context, traineeID, sessionID int) (ranking.ExamAggregate, error) {
	var agg struct {
		Earned     float64 `db:"earned"`
		Attainable float64 `db:"attainable"`
	}
	// attainable counts the full question banks of the exams attempted
	query := `
	SELECT
		COALESCE(SUM(a.score), 0) AS earned,
		COALESCE(SUM(t.total_points), 0) AS attainable
	FROM exam_attempts a
	JOIN exams e ON e.id = a.exam_id
	JOIN (
		SELECT exam_id, SUM(points) AS total_points FROM questions GROUP BY exam_id
	) t ON t.exam_id = a.exam_id
	WHERE a.trainee_id = $1 AND e.session_id = $2 AND a.status = 'submitted'`
	if err := repo.db.GetContext(ctx, &agg, query, traineeID, sessionID); err != nil {
		return ranking.ExamAggregate{}, errors.Wrap(err, "aggregating exam results")
	}
	return ranking.ExamAggregate{EarnedPoints: agg.Earned, AttainablePoints: agg.Attainable}, nil
}

func (repo rankingRepository) GetAttendanceAggregate(ctx context.Context, traineeID, sessionID int) (ranking.AttendanceAggregate, error) {
	var agg struct {
		Attended int `db:"attended"`
		Total    int `db:"total"`
	}
	query := `
	SELECT
		COUNT(*) FILTER (WHERE status = 'attended') AS attended,
		COUNT(*) FILTER (WHERE status != 'cancelled') AS total
	FROM enrollments
	WHERE trainee_id = $1 AND session_id = $2`
	if err := repo.db.GetContext(ctx, &agg, query, traineeID, sessionID); err != nil {
		return ranking.AttendanceAggregate{}, errors.Wrap(err, "aggregating attendance")
	}
	return ranking.AttendanceAggregate{Attended: agg.Attended, Total: agg.Total}, nil
}

func (repo rankingRepository) GetPracticalAggregate(ctx context.Context, traineeID, sessionID int) (ranking.PracticalAggregate, error) {
	var agg struct {
		Average float64 `db:"average"`
		Count   int     `db:"count"`
	}
	query := `
	SELECT COALESCE(AVG(score), 0) AS average, COUNT(*) AS count
	FROM trainer_assessments
	WHERE trainee_id = $1 AND session_id = $2`
	if err := repo.db.GetContext(ctx, &agg, query, traineeID, sessionID); err != nil {
		return ranking.PracticalAggregate{}, errors.Wrap(err, "aggregating assessments")
	}
	return ranking.PracticalAggregate{Average: agg.Average, Count: agg.Count}, nil
}

func (repo rankingRepository) UpsertRanking(ctx context.Context, rk ranking.Ranking) (ranking.Ranking, error) {
	query := `
	INSERT INTO trainee_rankings (
		trainee_id, session_id, total_score, exam_score, attendance_score,
		practical_score, performance_level, calculated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT ON CONSTRAINT trainee_rankings_trainee_session_key DO UPDATE SET
		total_score = EXCLUDED.total_score,
		exam_score = EXCLUDED.exam_score,
		attendance_score = EXCLUDED.attendance_score,
		practical_score = EXCLUDED.practical_score,
		performance_level = EXCLUDED.performance_level,
		calculated_at = EXCLUDED.calculated_at
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		rk.TraineeID, rk.SessionID, rk.TotalScore, rk.ExamScore, rk.AttendanceScore,
		rk.PracticalScore, rk.Level, rk.CalculatedAt,
	).Scan(&rk.ID)
	if err != nil {
		return ranking.Ranking{}, errors.Wrap(err, "upserting ranking")
	}
	return rk, nil
}

const rankingColumns = `
	r.id, r.trainee_id, r.session_id, r.total_score, r.exam_score,
	r.attendance_score, r.practical_score, r.performance_level, r.calculated_at`

func (repo rankingRepository) GetRanking(ctx context.Context, traineeID, sessionID int) (ranking.Ranking, error) {
	var rk ranking.Ranking
	query := `
	SELECT ` + rankingColumns + `, COALESCE(l.rank_position, 0) AS leaderboard_rank
	FROM trainee_rankings r
	LEFT JOIN leaderboard l ON l.session_id = r.session_id AND l.trainee_id = r.trainee_id
	WHERE r.trainee_id = $1 AND r.session_id = $2`
	if err := repo.db.GetContext(ctx, &rk, query, traineeID, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return ranking.Ranking{}, ranking.ErrNotFound
		}
		return ranking.Ranking{}, errors.Wrap(err, "getting ranking")
	}
	return rk, nil
}

func (repo rankingRepository) GetSessionRankings(ctx context.Context, sessionID int) ([]ranking.Ranking, error) {
	var rankings []ranking.Ranking
	query := `
	SELECT ` + rankingColumns + `, COALESCE(l.rank_position, 0) AS leaderboard_rank
	FROM trainee_rankings r
	LEFT JOIN leaderboard l ON l.session_id = r.session_id AND l.trainee_id = r.trainee_id
	WHERE r.session_id = $1
	ORDER BY r.total_score DESC, r.trainee_id ASC`
	err := repo.db.SelectContext(ctx, &rankings, query, sessionID)
	return rankings, errors.Wrap(err, "listing session rankings")
}

func (repo rankingRepository) ReplaceLeaderboard(ctx context.Context, sessionID int) error {
	return core.Atomic(ctx, repo.db, func(tx core.DBExecutor) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM leaderboard WHERE session_id = $1`, sessionID); err != nil {
			return errors.Wrap(err, "clearing leaderboard")
		}
		query := `
		INSERT INTO leaderboard (session_id, trainee_id, rank_position, total_score, performance_level)
		SELECT session_id, trainee_id,
			ROW_NUMBER() OVER (ORDER BY total_score DESC, trainee_id ASC),
			total_score, performance_level
		FROM trainee_rankings
		WHERE session_id = $1`
		_, err := tx.ExecContext(ctx, query, sessionID)
		return errors.Wrap(err, "rebuilding leaderboard")
	})
}

func (repo rankingRepository) GetLeaderboard(ctx context.Context, sessionID, limit int) ([]ranking.LeaderboardEntry, error) {
	var entries []ranking.LeaderboardEntry
	query := `
	SELECT l.id, l.session_id, l.trainee_id, l.rank_position, l.total_score, l.performance_level,
		u.first_name || ' ' || u.last_name AS trainee_name
	FROM leaderboard l
	JOIN users u ON u.id = l.trainee_id
	WHERE l.session_id = $1
	ORDER BY l.rank_position ASC
	LIMIT $2`
	err := repo.db.SelectContext(ctx, &entries, query, sessionID, limit)
	return entries, errors.Wrap(err, "getting leaderboard")
}

func (repo rankingRepository) GetEnrolledTraineeIDs(ctx context.Context, sessionID int) ([]int, error) {
	var ids []int
	query := `
	SELECT trainee_id FROM enrollments
	WHERE session_id = $1 AND status != 'cancelled'
	ORDER BY trainee_id ASC`
	err := repo.db.SelectContext(ctx, &ids, query, sessionID)
	return ids, errors.Wrap(err, "listing enrolled trainees")
}

func (repo rankingRepository) CreateAssessment(ctx context.Context, as ranking.Assessment) (ranking.Assessment, error) {
	query := `
	INSERT INTO trainer_assessments (trainee_id, session_id, trainer_id, score, notes, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		as.TraineeID, as.SessionID, as.TrainerID, as.Score, as.Notes, as.CreatedAt,
	).Scan(&as.ID)
	if err != nil {
		return ranking.Assessment{}, errors.Wrap(err, "creating assessment")
	}
	return as, nil
}

func (repo rankingRepository) GetTraineeAssessments(ctx context.Context, traineeID, sessionID int) ([]ranking.Assessment, error) {
	var assessments []ranking.Assessment
	query := `
	SELECT id, trainee_id, session_id, trainer_id, score, notes, created_at
	FROM trainer_assessments
	WHERE trainee_id = $1 AND session_id = $2
	ORDER BY created_at DESC`
	err := repo.db.SelectContext(ctx, &assessments, query, traineeID, sessionID)
	return assessments, errors.Wrap(err, "listing assessments")
}

package ranking

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
)

var (
	ErrNotFound        = errors.New("ranking not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrTraineeNotFound = errors.New("trainee not found")
)

type (
	// ExamAggregate sums a trainee's submitted attempts within a session.
	ExamAggregate struct {
		EarnedPoints     float64
		AttainablePoints float64
	}

	// AttendanceAggregate counts a trainee's enrollments within a session.
	AttendanceAggregate struct {
		Attended int
		Total    int
	}

	// PracticalAggregate averages a trainee's practical assessments.
	PracticalAggregate struct {
		Average float64
		Count   int
	}

	Repository interface {
		GetExamAggregate(ctx context.Context, traineeID, sessionID int) (ExamAggregate, error)
		GetAttendanceAggregate(ctx context.Context, traineeID, sessionID int) (AttendanceAggregate, error)
		GetPracticalAggregate(ctx context.Context, traineeID, sessionID int) (PracticalAggregate, error)

		// UpsertRanking inserts or replaces the (trainee, session) ranking row.
		UpsertRanking(ctx context.Context, rk Ranking) (Ranking, error)
		GetRanking(ctx context.Context, traineeID, sessionID int) (Ranking, error)
		GetSessionRankings(ctx context.Context, sessionID int) ([]Ranking, error)

		// ReplaceLeaderboard atomically regenerates the session's leaderboard
		// from its rankings: dense ranks 1..N by total score descending,
		// ties broken by trainee id ascending. Readers see either the old
		// rows or the new rows, never a mix.
		ReplaceLeaderboard(ctx context.Context, sessionID int) error
		GetLeaderboard(ctx context.Context, sessionID, limit int) ([]LeaderboardEntry, error)

		GetEnrolledTraineeIDs(ctx context.Context, sessionID int) ([]int, error)

		CreateAssessment(ctx context.Context, as Assessment) (Assessment, error)
		GetTraineeAssessments(ctx context.Context, traineeID, sessionID int) ([]Assessment, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
		logger   core.Logger

		// per-session recalculation guard
		mu    sync.Mutex
		locks map[int]*sync.Mutex
	}
)

var nowFunc = time.Now // mockable

func NewService(repo Repository, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: validate,
		logger:   logger,
		locks:    make(map[int]*sync.Mutex),
	}
}

func (svc *Service) sessionLock(sessionID int) *sync.Mutex {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	l, ok := svc.locks[sessionID]
	if !ok {
		l = new(sync.Mutex)
		svc.locks[sessionID] = l
	}
	return l
}

// Calculate recomputes a trainee's composite score for a session and
// persists it. A component with no underlying data contributes zero.
func (svc *Service) Calculate(ctx context.Context, traineeID, sessionID int) (Ranking, error) {
	l := svc.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	rk, err := svc.calculate(ctx, traineeID, sessionID)
	if err != nil {
		return Ranking{}, err
	}
	if err = svc.repo.ReplaceLeaderboard(ctx, sessionID); err != nil {
		return Ranking{}, errors.Wrap(err, "refreshing leaderboard")
	}
	return rk, nil
}

func (svc *Service) calculate(ctx context.Context, traineeID, sessionID int) (Ranking, error) {
	exam, err := svc.repo.GetExamAggregate(ctx, traineeID, sessionID)
	if err != nil {
		return Ranking{}, errors.Wrap(err, "aggregating exam results")
	}
	att, err := svc.repo.GetAttendanceAggregate(ctx, traineeID, sessionID)
	if err != nil {
		return Ranking{}, errors.Wrap(err, "aggregating attendance")
	}
	prac, err := svc.repo.GetPracticalAggregate(ctx, traineeID, sessionID)
	if err != nil {
		return Ranking{}, errors.Wrap(err, "aggregating assessments")
	}

	var examScore float64
	if exam.AttainablePoints > 0 {
		examScore = exam.EarnedPoints / exam.AttainablePoints * 100
	}
	var attScore float64
	if att.Total > 0 {
		attScore = float64(att.Attended) / float64(att.Total) * 100
	}
	var pracScore float64
	if prac.Count > 0 {
		pracScore = prac.Average
	}

	total := ExamWeight*examScore + AttendanceWeight*attScore + PracticalWeight*pracScore

	rk := Ranking{
		TraineeID:       traineeID,
		SessionID:       sessionID,
		TotalScore:      round2(total),
		ExamScore:       round2(examScore),
		AttendanceScore: round2(attScore),
		PracticalScore:  round2(pracScore),
		Level:           LevelFor(total),
		CalculatedAt:    nowFunc(),
	}
	if rk, err = svc.repo.UpsertRanking(ctx, rk); err != nil {
		return Ranking{}, errors.Wrap(err, "upserting ranking")
	}
	return rk, nil
}

// RecalculateAll recomputes every enrolled trainee of a session and
// refreshes the leaderboard once at the end. A failing trainee aborts the
// loop but already-persisted rankings remain.
func (svc *Service) RecalculateAll(ctx context.Context, sessionID int) (int, error) {
	l := svc.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	ids, err := svc.repo.GetEnrolledTraineeIDs(ctx, sessionID)
	if err != nil {
		return 0, errors.Wrap(err, "listing enrolled trainees")
	}
	var n int
	for _, id := range ids {
		if _, err = svc.calculate(ctx, id, sessionID); err != nil {
			return n, errors.Wrapf(err, "recalculating trainee %d", id)
		}
		n++
	}
	if err = svc.repo.ReplaceLeaderboard(ctx, sessionID); err != nil {
		return n, errors.Wrap(err, "refreshing leaderboard")
	}
	return n, nil
}

func (svc *Service) GetRanking(ctx context.Context, traineeID, sessionID int) (Ranking, error) {
	return svc.repo.GetRanking(ctx, traineeID, sessionID)
}

func (svc *Service) SessionRankings(ctx context.Context, sessionID int) ([]Ranking, error) {
	return svc.repo.GetSessionRankings(ctx, sessionID)
}

func (svc *Service) Leaderboard(ctx context.Context, sessionID, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return svc.repo.GetLeaderboard(ctx, sessionID, limit)
}

// Assess records a trainer's practical score and recalculates the trainee.
func (svc *Service) Assess(ctx context.Context, trainerID, sessionID int, na NewAssessment) (Assessment, error) {
	if err := na.Validate(svc.validate); err != nil {
		return Assessment{}, err
	}
	as := Assessment{
		TraineeID: na.TraineeID,
		SessionID: sessionID,
		TrainerID: trainerID,
		Score:     na.Score,
		Notes:     na.Notes,
		CreatedAt: nowFunc(),
	}
	as, err := svc.repo.CreateAssessment(ctx, as)
	if err != nil {
		return Assessment{}, errors.Wrap(err, "creating assessment")
	}
	if _, err = svc.Calculate(ctx, na.TraineeID, sessionID); err != nil {
		// the assessment is recorded; surface the recalculation failure
		return as, err
	}
	return as, nil
}

func (svc *Service) TraineeAssessments(ctx context.Context, traineeID, sessionID int) ([]Assessment, error) {
	return svc.repo.GetTraineeAssessments(ctx, traineeID, sessionID)
}

// LevelFor maps a composite score to a performance level.
func LevelFor(total float64) string {
	switch {
	case total >= advancedThreshold:
		return LevelAdvanced
	case total >= intermediateThreshold:
		return LevelIntermediate
	default:
		return LevelBeginner
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

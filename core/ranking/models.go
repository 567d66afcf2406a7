package ranking

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Component weights of the composite score.
const (
	ExamWeight       = 0.4
	AttendanceWeight = 0.3
	PracticalWeight  = 0.3
)

// Performance levels; thresholds are inclusive at the lower bound.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"

	advancedThreshold     = 80
	intermediateThreshold = 60
)

// Ranking is the persisted composite score of a trainee for a session,
// recalculated idempotently from exam/attendance/assessment aggregates.
type Ranking struct {
	ID              int       `json:"id" db:"id"`
	TraineeID       int       `json:"trainee_id" db:"trainee_id"`
	SessionID       int       `json:"session_id" db:"session_id"`
	TotalScore      float64   `json:"total_score" db:"total_score"`
	ExamScore       float64   `json:"exam_score" db:"exam_score"`
	AttendanceScore float64   `json:"attendance_score" db:"attendance_score"`
	PracticalScore  float64   `json:"practical_score" db:"practical_score"`
	Level           string    `json:"performance_level" db:"performance_level"`
	CalculatedAt    time.Time `json:"calculated_at" db:"calculated_at"`

	LeaderboardRank int `json:"leaderboard_rank,omitempty" db:"leaderboard_rank"`
}

// LeaderboardEntry is a derived row, fully regenerated from the session's
// rankings. Rank positions form a dense 1..N sequence by total score
// descending; ties are broken by trainee id ascending.
type LeaderboardEntry struct {
	ID          int     `json:"id" db:"id"`
	SessionID   int     `json:"session_id" db:"session_id"`
	TraineeID   int     `json:"trainee_id" db:"trainee_id"`
	Rank        int     `json:"rank_position" db:"rank_position"`
	TotalScore  float64 `json:"total_score" db:"total_score"`
	Level       string  `json:"performance_level" db:"performance_level"`
	TraineeName string  `json:"trainee_name,omitempty" db:"trainee_name"`
}

// Assessment is a trainer's practical score for a trainee, feeding the
// practical component of the composite.
type Assessment struct {
	ID        int       `json:"id" db:"id"`
	TraineeID int       `json:"trainee_id" db:"trainee_id"`
	SessionID int       `json:"session_id" db:"session_id"`
	TrainerID int       `json:"trainer_id" db:"trainer_id"`
	Score     float64   `json:"score" db:"score"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewAssessment contains information needed to record a practical assessment.
type NewAssessment struct {
	TraineeID int     `json:"trainee_id" validate:"required"`
	Score     float64 `json:"score" validate:"min=0,max=100"`
	Notes     string  `json:"notes"`
}

func (na *NewAssessment) Validate(validate *validator.Validate) error {
	return validate.Struct(na)
}

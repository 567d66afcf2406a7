package queue

import "time"

// Entry statuses. An entry only ever moves waiting -> processing or
// waiting -> cancelled; both are terminal for the queue.
const (
	StatusWaiting    = "waiting"
	StatusProcessing = "processing"
	StatusCancelled  = "cancelled"
)

// Entry is a trainee's place in a session's waiting list. Positions are
// assigned monotonically per session at join time and never reused; leaving
// does not renumber the remaining entries.
type Entry struct {
	ID          int       `json:"id" db:"id"`
	SessionID   int       `json:"session_id" db:"session_id"`
	TraineeID   int       `json:"trainee_id" db:"trainee_id"`
	Position    int       `json:"queue_position" db:"queue_position"`
	Status      string    `json:"status" db:"status"`
	JoinedAt    time.Time `json:"joined_at" db:"joined_at"`
	ProcessedAt time.Time `json:"processed_at,omitempty" db:"processed_at"`

	SessionTitle string `json:"session_title,omitempty" db:"session_title"`
}

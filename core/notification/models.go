package notification

import "time"

// Delivery channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Delivery statuses. Sending is asynchronous, so "sent" means handed to the
// delivery backend, not confirmed receipt.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is a logged outbound message.
type Notification struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Channel   string    `json:"channel" db:"channel"`
	Recipient string    `json:"recipient" db:"recipient"`
	Subject   string    `json:"subject,omitempty" db:"subject"`
	Body      string    `json:"body" db:"body"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// QueryFilter narrows notification listings.
type QueryFilter struct {
	UserID  int
	Channel string
	Limit   int
}

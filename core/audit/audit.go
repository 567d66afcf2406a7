// Package audit records who did what. Writes are best-effort: a failing
// audit insert never fails the business operation it trails.
package audit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
)

var ErrNotFound = errors.New("audit entry not found")

// Entry is one recorded action.
type Entry struct {
	ID         int       `json:"id" db:"id"`
	UserID     int       `json:"user_id" db:"user_id"`
	Action     string    `json:"action" db:"action"`
	EntityType string    `json:"entity_type,omitempty" db:"entity_type"`
	EntityID   int       `json:"entity_id,omitempty" db:"entity_id"`
	Details    string    `json:"details,omitempty" db:"details"`
	IPAddress  string    `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`

	UserEmail string `json:"user_email,omitempty" db:"user_email"`
}

// QueryFilter narrows audit listings.
type QueryFilter struct {
	UserID     int
	Action     string
	EntityType string
	From       time.Time
	To         time.Time
	Limit      int
}

type (
	Repository interface {
		CreateEntry(ctx context.Context, e Entry) (Entry, error)
		FilterEntries(ctx context.Context, filter QueryFilter) ([]Entry, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

var nowFunc = time.Now // mockable

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Log records an action. Failures are logged and swallowed.
func (svc *Service) Log(ctx context.Context, userID int, action, entityType string, entityID int, details, ip string) {
	e := Entry{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		IPAddress:  ip,
		CreatedAt:  nowFunc(),
	}
	if _, err := svc.repo.CreateEntry(ctx, e); err != nil {
		svc.logger.Error("audit: failed to record "+action, err)
	}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return svc.repo.FilterEntries(ctx, filter)
}

package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/notification"
)

type notificationRepository struct {
	db core.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db core.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	query := `
	INSERT INTO notifications (user_id, channel, recipient, subject, body, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		n.UserID, n.Channel, n.Recipient, n.Subject, n.Body, n.Status, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "creating notification")
	}
	return n, nil
}

func (repo notificationRepository) FilterNotifications(ctx context.Context, filter notification.QueryFilter) ([]notification.Notification, error) {
	query := `
	SELECT id, user_id, channel, recipient, subject, body, status, created_at
	FROM notifications
	WHERE 1=1`
	var args []interface{}

	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		query += ` AND user_id = ` + placeholder(len(args))
	}
	if filter.Channel != "" {
		args = append(args, filter.Channel)
		query += ` AND channel = ` + placeholder(len(args))
	}
	args = append(args, filter.Limit)
	query += ` ORDER BY created_at DESC LIMIT ` + placeholder(len(args))

	var notifs []notification.Notification
	err := repo.db.SelectContext(ctx, &notifs, query, args...)
	return notifs, errors.Wrap(err, "filtering notifications")
}

package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/audit"
)

type auditRepository struct {
	db core.DB
}

var _ audit.Repository = (*auditRepository)(nil)

func NewAuditRepository(db core.DB) *auditRepository {
	return &auditRepository{db: db}
}

func (repo auditRepository) CreateEntry(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	query := `
	INSERT INTO audit_logs (user_id, action, entity_type, entity_id, details, ip_address, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		e.UserID, e.Action, e.EntityType, e.EntityID, e.Details, e.IPAddress, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "creating audit entry")
	}
	return e, nil
}

func (repo auditRepository) FilterEntries(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	query := `
	SELECT a.id, a.user_id, a.action, a.entity_type, a.entity_id, a.details, a.ip_address, a.created_at,
		COALESCE(u.email, '') AS user_email
	FROM audit_logs a
	LEFT JOIN users u ON u.id = a.user_id
	WHERE 1=1`
	var args []interface{}

	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		query += ` AND a.user_id = ` + placeholder(len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += ` AND a.action = ` + placeholder(len(args))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		query += ` AND a.entity_type = ` + placeholder(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND a.created_at >= ` + placeholder(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND a.created_at <= ` + placeholder(len(args))
	}
	args = append(args, filter.Limit)
	query += ` ORDER BY a.created_at DESC LIMIT ` + placeholder(len(args))

	var entries []audit.Entry
	err := repo.db.SelectContext(ctx, &entries, query, args...)
	return entries, errors.Wrap(err, "filtering audit entries")
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/user"
)

// selectable user columns; last_login_at is nullable in the table but not in
// the model.
const userColumns = `
	id, email, first_name, last_name, phone, role, status,
	session_timeout_minutes, two_factor_enabled, two_factor_secret,
	password_hash, created_at, updated_at,
	COALESCE(last_login_at, '0001-01-01 00:00:00+00') AS last_login_at`

type userRepository struct {
	db core.DB
}

var (
	_ user.Repository              = (*userRepository)(nil)
	_ user.PasswordResetRepository = (*userRepository)(nil)
	_ user.SessionRepository       = (*userRepository)(nil)
)

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	query := `SELECT COUNT(*) FROM users WHERE email = $1`
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			args = append(args, usr.ID)
			ids = append(ids, placeholder(len(args)))
		}
		query += ` AND id NOT IN (` + strings.Join(ids, ",") + `)`
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, query, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	query := `
	INSERT INTO users (
		email, first_name, last_name, phone, role, status,
		session_timeout_minutes, two_factor_enabled, two_factor_secret,
		password_hash, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		usr.Email, usr.FirstName, usr.LastName, usr.Phone, usr.Role, usr.Status,
		usr.SessionTimeoutMinutes, usr.TwoFactorEnabled, usr.TwoFactorSecret,
		usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	).Scan(&usr.ID)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user by email")
	}
	return usr, nil
}

func (repo userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var users []user.User
	err := repo.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	return users, errors.Wrap(err, "querying users")
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		p := placeholder(len(args))
		query += ` AND (first_name ILIKE ` + p + ` OR last_name ILIKE ` + p + ` OR email ILIKE ` + p + `)`
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		query += ` AND role = ` + placeholder(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = ` + placeholder(len(args))
	}
	if !filter.CreatedFrom.IsZero() {
		args = append(args, filter.CreatedFrom)
		query += ` AND created_at >= ` + placeholder(len(args))
	}
	if !filter.CreatedTo.IsZero() {
		args = append(args, filter.CreatedTo)
		query += ` AND created_at <= ` + placeholder(len(args))
	}
	if len(filter.Orderings) > 0 {
		clauses := make([]string, 0, len(filter.Orderings))
		for _, ord := range filter.Orderings {
			clauses = append(clauses, ord.String())
		}
		query += ` ORDER BY ` + strings.Join(clauses, ", ")
	} else {
		query += ` ORDER BY created_at DESC`
	}

	var users []user.User
	err := repo.db.SelectContext(ctx, &users, query, args...)
	return users, errors.Wrap(err, "filtering users")
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	query := `
	UPDATE users SET
		first_name = $1, last_name = $2, phone = $3, status = $4,
		session_timeout_minutes = $5, updated_at = $6
	WHERE id = $7`
	res, err := repo.db.ExecContext(ctx, query,
		usr.FirstName, usr.LastName, usr.Phone, usr.Status,
		usr.SessionTimeoutMinutes, usr.UpdatedAt, usr.ID,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, usr user.User) (user.User, error) {
	now := time.Now().UTC()
	_, err := repo.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, now, usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	usr.LastLoginAt = now
	return usr, nil
}

func (repo userRepository) SetPassword(ctx context.Context, userID int, hash []byte) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, userID)
	return errors.Wrap(err, "setting password")
}

func (repo userRepository) SetTwoFactorSecret(ctx context.Context, userID int, secret string) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE users SET two_factor_secret = $1, updated_at = NOW() WHERE id = $2`, secret, userID)
	return errors.Wrap(err, "setting two-factor secret")
}

func (repo userRepository) SetTwoFactorEnabled(ctx context.Context, userID int, enabled bool) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = $1, updated_at = NOW() WHERE id = $2`, enabled, userID)
	return errors.Wrap(err, "setting two-factor enabled")
}

// password reset tokens

func (repo userRepository) ReplaceResetToken(ctx context.Context, userID int, token string, expiresAt time.Time) error {
	return core.Atomic(ctx, repo.db, func(tx core.DBExecutor) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reset_tokens WHERE user_id = $1`, userID); err != nil {
			return errors.Wrap(err, "deleting reset tokens")
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO reset_tokens (user_id, token, expires_at) VALUES ($1, $2, $3)`,
			userID, token, expiresAt)
		return errors.Wrap(err, "creating reset token")
	})
}

func (repo userRepository) GetResetToken(ctx context.Context, token string) (user.ResetToken, error) {
	var rt user.ResetToken
	query := `
	SELECT id, user_id, token, expires_at, COALESCE(used_at, '0001-01-01 00:00:00+00') AS used_at
	FROM reset_tokens
	WHERE token = $1 AND used_at IS NULL AND expires_at > NOW()`
	if err := repo.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return user.ResetToken{}, user.ErrInvalidResetToken
		}
		return user.ResetToken{}, errors.Wrap(err, "getting reset token")
	}
	return rt, nil
}

func (repo userRepository) MarkResetTokenUsed(ctx context.Context, tokenID int) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE reset_tokens SET used_at = NOW() WHERE id = $1`, tokenID)
	return errors.Wrap(err, "marking reset token used")
}

// login sessions

func (repo userRepository) CreateSession(ctx context.Context, rec user.SessionRecord) (user.SessionRecord, error) {
	query := `
	INSERT INTO user_sessions (user_id, token_hash, ip_address, user_agent, last_activity, expires_at, is_active)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		rec.UserID, rec.TokenHash, rec.IPAddress, rec.UserAgent,
		rec.LastActivity, rec.ExpiresAt, rec.IsActive,
	).Scan(&rec.ID)
	if err != nil {
		return user.SessionRecord{}, errors.Wrap(err, "creating session")
	}
	return rec, nil
}

func (repo userRepository) GetActiveSession(ctx context.Context, tokenHash string) (user.SessionRecord, error) {
	var rec user.SessionRecord
	query := `
	SELECT id, user_id, token_hash, ip_address, user_agent, last_activity, expires_at, is_active
	FROM user_sessions
	WHERE token_hash = $1 AND is_active AND expires_at > NOW()`
	if err := repo.db.GetContext(ctx, &rec, query, tokenHash); err != nil {
		if err == sql.ErrNoRows {
			return user.SessionRecord{}, user.ErrSessionNotFound
		}
		return user.SessionRecord{}, errors.Wrap(err, "getting session")
	}
	return rec, nil
}

func (repo userRepository) TouchSession(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE user_sessions SET last_activity = $1 WHERE token_hash = $2 AND is_active`, at, tokenHash)
	return errors.Wrap(err, "touching session")
}

func (repo userRepository) DeactivateSession(ctx context.Context, tokenHash string) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = FALSE WHERE token_hash = $1`, tokenHash)
	return errors.Wrap(err, "deactivating session")
}

func (repo userRepository) DeactivateUserSessions(ctx context.Context, userID int) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = FALSE WHERE user_id = $1`, userID)
	return errors.Wrap(err, "deactivating user sessions")
}

package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/kahawa/core"
)

var (
	// errors
	ErrNotFound             = errors.New("user not found")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountInactive      = errors.New("account is not active")
	ErrTwoFactorRequired    = errors.New("two-factor authentication required")
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor authentication code")
	ErrTwoFactorNotSetUp    = errors.New("two-factor authentication not set up")
	ErrTwoFactorNotEnabled  = errors.New("two-factor authentication is not enabled")
	ErrInvalidResetToken    = errors.New("invalid or expired reset token")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id int) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.FirstName,
		// User.LastName or User.Email.
		FilterUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetPassword(ctx context.Context, userID int, hash []byte) error
		SetTwoFactorSecret(ctx context.Context, userID int, secret string) error
		SetTwoFactorEnabled(ctx context.Context, userID int, enabled bool) error
	}

	PasswordResetRepository interface {
		// ReplaceResetToken deletes any existing tokens for the user and stores a new one.
		ReplaceResetToken(ctx context.Context, userID int, token string, expiresAt time.Time) error
		// GetResetToken returns an unexpired, unused token.
		GetResetToken(ctx context.Context, token string) (ResetToken, error)
		MarkResetTokenUsed(ctx context.Context, tokenID int) error
	}

	Service struct {
		repo      Repository
		resetRepo PasswordResetRepository
		sessions  *SessionManager
		conf      *core.Config
	}
)

func NewService(repo Repository, resetRepo PasswordResetRepository, sessions *SessionManager, conf *core.Config) *Service {
	return &Service{
		repo:      repo,
		resetRepo: resetRepo,
		sessions:  sessions,
		conf:      conf,
	}
}

// Register creates a new active trainee account.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.repo.CheckEmailUniqueness(ctx, nu.Email); err != nil {
		return User{}, err
	}

	now := nowFunc().UTC()
	usr := User{
		Email:     nu.Email,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Phone:     nu.Phone,
		Role:      RoleTrainee,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

// CreateStaff creates a trainer or admin account with a generated temporary
// password, returned so it can be mailed to the new user.
func (svc *Service) CreateStaff(ctx context.Context, nu NewStaffUser) (User, string, error) {
	if err := svc.repo.CheckEmailUniqueness(ctx, nu.Email); err != nil {
		return User{}, "", err
	}

	tempPwd := generateTempPassword()
	now := nowFunc().UTC()
	usr := User{
		Email:     nu.Email,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Phone:     nu.Phone,
		Role:      nu.Role,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(tempPwd); err != nil {
		return User{}, "", err
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, tempPwd, err
}

// Authenticate checks the user's credentials and, for staff accounts with
// two-factor authentication enabled, their TOTP code.
func (svc *Service) Authenticate(ctx context.Context, email, pwd, otpCode string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if err == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !usr.IsActive() {
		return usr, ErrAccountInactive
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return usr, ErrInvalidCredentials
	}

	if usr.TwoFactorEnabled && usr.IsStaff() {
		if otpCode == "" {
			return usr, ErrTwoFactorRequired
		}
		if !VerifyTwoFactorCode(usr.TwoFactorSecret, otpCode) {
			return usr, ErrInvalidTwoFactorCode
		}
	}
	return svc.repo.SetLastLogin(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, id int, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.FirstName = uu.FirstName
	usr.LastName = uu.LastName
	if uu.Phone != "" {
		usr.Phone = uu.Phone
	}
	if uu.Status != "" {
		usr.Status = uu.Status
	}
	if uu.SessionTimeoutMinutes != nil {
		usr.SessionTimeoutMinutes = *uu.SessionTimeoutMinutes
	}
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// RequestPasswordReset issues a single-use reset token valid for the
// configured timeout. ErrNotFound is returned for unknown emails; callers must
// not reveal it to the requester.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) (User, string, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return User{}, "", err
	}

	token := uuid.New().String()
	expiresAt := nowFunc().UTC().Add(svc.conf.PasswordResetTimeout)
	if err = svc.resetRepo.ReplaceResetToken(ctx, usr.ID, token, expiresAt); err != nil {
		return User{}, "", err
	}
	return usr, token, nil
}

// VerifyResetToken checks that a reset token exists, is unused and unexpired.
func (svc *Service) VerifyResetToken(ctx context.Context, token string) (ResetToken, User, error) {
	rt, err := svc.resetRepo.GetResetToken(ctx, token)
	if err != nil {
		return ResetToken{}, User{}, err
	}
	usr, err := svc.repo.GetUserByID(ctx, rt.UserID)
	if err != nil {
		return ResetToken{}, User{}, err
	}
	return rt, usr, nil
}

// ResetPassword sets a new password from a valid reset token, marks the token
// used and invalidates every login session of the user.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) (User, error) {
	rt, usr, err := svc.VerifyResetToken(ctx, rp.Token)
	if err != nil {
		return User{}, err
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return User{}, err
	}
	if err = svc.repo.SetPassword(ctx, usr.ID, usr.PasswordHash); err != nil {
		return User{}, err
	}
	if err = svc.resetRepo.MarkResetTokenUsed(ctx, rt.ID); err != nil {
		return User{}, err
	}
	if svc.sessions != nil {
		svc.sessions.DestroyAllForUser(ctx, usr.ID)
	}
	return usr, nil
}

// SetupTwoFactor generates and stores a new TOTP secret for the user. The
// secret only becomes effective once verified via EnableTwoFactor.
func (svc *Service) SetupTwoFactor(ctx context.Context, usr User) (secret, url string, err error) {
	secret, url, err = GenerateTwoFactorSecret(svc.conf.AppName, usr.Email)
	if err != nil {
		return "", "", err
	}
	if err = svc.repo.SetTwoFactorSecret(ctx, usr.ID, secret); err != nil {
		return "", "", err
	}
	return secret, url, nil
}

// EnableTwoFactor turns on 2FA after the user proves possession of the secret.
func (svc *Service) EnableTwoFactor(ctx context.Context, usr User, code string) error {
	if usr.TwoFactorSecret == "" {
		return ErrTwoFactorNotSetUp
	}
	if !VerifyTwoFactorCode(usr.TwoFactorSecret, code) {
		return ErrInvalidTwoFactorCode
	}
	return svc.repo.SetTwoFactorEnabled(ctx, usr.ID, true)
}

// DisableTwoFactor turns off 2FA; a valid code is required.
func (svc *Service) DisableTwoFactor(ctx context.Context, usr User, code string) error {
	if !usr.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if !VerifyTwoFactorCode(usr.TwoFactorSecret, code) {
		return ErrInvalidTwoFactorCode
	}
	if err := svc.repo.SetTwoFactorEnabled(ctx, usr.ID, false); err != nil {
		return err
	}
	return svc.repo.SetTwoFactorSecret(ctx, usr.ID, "")
}

func generateTempPassword() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
}

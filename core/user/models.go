package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kahawa/core"
)

// Roles
const (
	RoleTrainee = "trainee"
	RoleTrainer = "trainer"
	RoleAdmin   = "admin"
)

// Statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var AllRoles = []string{RoleTrainee, RoleTrainer, RoleAdmin}

type User struct {
	ID                    int       `json:"id" db:"id"`
	Email                 string    `json:"email" db:"email"`
	FirstName             string    `json:"first_name" db:"first_name"`
	LastName              string    `json:"last_name" db:"last_name"`
	Phone                 string    `json:"phone,omitempty" db:"phone"`
	Role                  string    `json:"role" db:"role"`
	Status                string    `json:"status" db:"status"`
	SessionTimeoutMinutes int       `json:"session_timeout_minutes,omitempty" db:"session_timeout_minutes"` // 0 -> server default
	TwoFactorEnabled      bool      `json:"two_factor_enabled" db:"two_factor_enabled"`
	TwoFactorSecret       string    `json:"-" db:"two_factor_secret"`
	PasswordHash          []byte    `json:"-" db:"password_hash"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"` // UTC
	LastLoginAt           time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) FullName() string { return u.FirstName + " " + u.LastName }

func (u *User) IsActive() bool  { return u.Status == StatusActive }
func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTrainer() bool { return u.Role == RoleTrainer }
func (u *User) IsTrainee() bool { return u.Role == RoleTrainee }

// IsStaff reports whether the user holds a role that manages trainees.
func (u *User) IsStaff() bool { return u.IsAdmin() || u.IsTrainer() }

// NewUser contains information needed to register a new trainee.
type NewUser struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone" validate:"omitempty,phone"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Phone = core.CleanString(nu.Phone)
	return validate.Struct(nu)
}

// NewStaffUser contains information needed for an admin to invite a trainer or
// another admin. A temporary password is generated and mailed on creation.
type NewStaffUser struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone" validate:"omitempty,phone"`
	Role      string `json:"role" validate:"required,oneof=trainer admin"`
}

func (nu *NewStaffUser) Validate(validate *validator.Validate) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Phone = core.CleanString(nu.Phone)
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	Phone                 string `json:"phone" validate:"omitempty,phone"`
	Status                string `json:"status" validate:"omitempty,oneof=active inactive"`
	SessionTimeoutMinutes *int   `json:"session_timeout_minutes" validate:"omitempty,min=1,max=1440"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	if fname := core.CleanString(uu.FirstName); fname != "" {
		uu.FirstName = fname
	} else {
		uu.FirstName = origUsr.FirstName
	}
	if lname := core.CleanString(uu.LastName); lname != "" {
		uu.LastName = lname
	} else {
		uu.LastName = origUsr.LastName
	}
	uu.Phone = core.CleanString(uu.Phone)
	return validate.Struct(uu)
}

// ResetUserPassword carries a password-reset confirmation.
type ResetUserPassword struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

// ResetToken is a single-use password-reset token persisted in the store.
type ResetToken struct {
	ID        int       `db:"id"`
	UserID    int       `db:"user_id"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
	UsedAt    time.Time `db:"used_at"` // zero until used
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        string    `query:"role"`
	Status      string    `query:"status"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`

	// Orderings must hold vetted column names only; set by the API layer.
	Orderings []core.DBOrdering `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.Status == "" &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero() && len(qf.Orderings) == 0
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

package user

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func newTestService(repo *fakeRepo) *Service {
	sessions := NewSessionManager(repo, repo, testConfig(), nopLogger{})
	return NewService(repo, repo, sessions, testConfig())
}

func createUser(t *testing.T, repo *fakeRepo, email, pwd, role string, active bool) User {
	t.Helper()
	status := StatusActive
	if !active {
		status = StatusInactive
	}
	usr := User{
		Email:     email,
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
		Status:    status,
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period: totpPeriod,
		Skew:   totpSkew,
		Digits: otp.DigitsSix,
	})
	if err != nil {
		t.Fatalf("generating TOTP code failed: %v", err)
	}
	return code
}

func TestService_Register(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	usr, err := svc.Register(ctx, NewUser{
		Email:     "jo@test.cd",
		Password:  "s3cr3t!",
		FirstName: "Jo",
		LastName:  "Kal",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if usr.Role != RoleTrainee {
		t.Errorf("Role = %q, want %q", usr.Role, RoleTrainee)
	}
	if !usr.IsActive() {
		t.Error("registered user is not active")
	}
	if usr.CheckPassword("s3cr3t!") != nil {
		t.Error("password does not verify")
	}

	// duplicate email
	if _, err = svc.Register(ctx, NewUser{
		Email:     "jo@test.cd",
		Password:  "other",
		FirstName: "Jo",
		LastName:  "Two",
	}); err != ErrEmailExists {
		t.Errorf("Register() duplicate error = %v, want ErrEmailExists", err)
	}
}

func TestService_CreateStaff(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	usr, tempPwd, err := svc.CreateStaff(context.Background(), NewStaffUser{
		Email:     "trainer@test.cd",
		FirstName: "Tra",
		LastName:  "Iner",
		Role:      RoleTrainer,
	})
	if err != nil {
		t.Fatalf("CreateStaff() failed: %v", err)
	}
	if tempPwd == "" {
		t.Fatal("no temporary password generated")
	}
	if usr.CheckPassword(tempPwd) != nil {
		t.Error("temporary password does not verify")
	}
	if !usr.IsStaff() {
		t.Error("created user is not staff")
	}
}

func TestService_Authenticate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	createUser(t, repo, "jo@test.cd", "s3cr3t!", RoleTrainee, true)
	createUser(t, repo, "off@test.cd", "s3cr3t!", RoleTrainee, false)

	tests := []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{name: "ok", email: "jo@test.cd", pwd: "s3cr3t!"},
		{name: "email case-insensitive", email: "JO@Test.CD", pwd: "s3cr3t!"},
		{name: "unknown email", email: "who@test.cd", pwd: "s3cr3t!", wantErr: ErrInvalidCredentials},
		{name: "wrong password", email: "jo@test.cd", pwd: "nope", wantErr: ErrInvalidCredentials},
		{name: "inactive account", email: "off@test.cd", pwd: "s3cr3t!", wantErr: ErrAccountInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := svc.Authenticate(ctx, tt.email, tt.pwd, "")
			if err != tt.wantErr {
				t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && usr.LastLoginAt.IsZero() {
				t.Error("LastLoginAt not updated")
			}
		})
	}
}

func TestService_Authenticate_twoFactor(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	trainer := createUser(t, repo, "trainer@test.cd", "s3cr3t!", RoleTrainer, true)

	secret, url, err := svc.SetupTwoFactor(ctx, trainer)
	if err != nil {
		t.Fatalf("SetupTwoFactor() failed: %v", err)
	}
	if url == "" {
		t.Error("no provisioning URL returned")
	}

	// not yet enabled: login works without a code
	if _, err = svc.Authenticate(ctx, trainer.Email, "s3cr3t!", ""); err != nil {
		t.Fatalf("Authenticate() before enabling 2FA failed: %v", err)
	}

	trainer, _ = repo.GetUserByID(ctx, trainer.ID)
	if err = svc.EnableTwoFactor(ctx, trainer, "000000"); err != ErrInvalidTwoFactorCode {
		t.Errorf("EnableTwoFactor() bad code error = %v, want ErrInvalidTwoFactorCode", err)
	}
	if err = svc.EnableTwoFactor(ctx, trainer, totpCode(t, secret)); err != nil {
		t.Fatalf("EnableTwoFactor() failed: %v", err)
	}

	// enabled: a code is now required, and checked
	if _, err = svc.Authenticate(ctx, trainer.Email, "s3cr3t!", ""); err != ErrTwoFactorRequired {
		t.Errorf("Authenticate() without code error = %v, want ErrTwoFactorRequired", err)
	}
	if _, err = svc.Authenticate(ctx, trainer.Email, "s3cr3t!", "000000"); err != ErrInvalidTwoFactorCode {
		t.Errorf("Authenticate() bad code error = %v, want ErrInvalidTwoFactorCode", err)
	}
	if _, err = svc.Authenticate(ctx, trainer.Email, "s3cr3t!", totpCode(t, secret)); err != nil {
		t.Errorf("Authenticate() with valid code failed: %v", err)
	}

	// disable requires a valid code too
	trainer, _ = repo.GetUserByID(ctx, trainer.ID)
	if err = svc.DisableTwoFactor(ctx, trainer, "000000"); err != ErrInvalidTwoFactorCode {
		t.Errorf("DisableTwoFactor() bad code error = %v, want ErrInvalidTwoFactorCode", err)
	}
	if err = svc.DisableTwoFactor(ctx, trainer, totpCode(t, secret)); err != nil {
		t.Fatalf("DisableTwoFactor() failed: %v", err)
	}
	if _, err = svc.Authenticate(ctx, trainer.Email, "s3cr3t!", ""); err != nil {
		t.Errorf("Authenticate() after disabling 2FA failed: %v", err)
	}
}

func TestService_passwordReset(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	usr := createUser(t, repo, "jo@test.cd", "0ldPassw0rd", RoleTrainee, true)

	// unknown emails are reported to the caller (the API hides them)
	if _, _, err := svc.RequestPasswordReset(ctx, "who@test.cd"); err != ErrNotFound {
		t.Errorf("RequestPasswordReset() unknown email error = %v, want ErrNotFound", err)
	}

	_, token, err := svc.RequestPasswordReset(ctx, usr.Email)
	if err != nil {
		t.Fatalf("RequestPasswordReset() failed: %v", err)
	}
	if token == "" {
		t.Fatal("no reset token issued")
	}

	// an open session dies with the reset
	rec := svc.sessions.Create(ctx, usr, "some-jwt", "", "")
	if !svc.sessions.Check(ctx, "some-jwt") {
		t.Fatalf("session %d should be valid", rec.ID)
	}

	if _, err = svc.ResetPassword(ctx, ResetUserPassword{Token: "bogus", Password: "newPassw0rd"}); err != ErrInvalidResetToken {
		t.Errorf("ResetPassword() bogus token error = %v, want ErrInvalidResetToken", err)
	}

	reset, err := svc.ResetPassword(ctx, ResetUserPassword{Token: token, Password: "newPassw0rd"})
	if err != nil {
		t.Fatalf("ResetPassword() failed: %v", err)
	}
	if reset.CheckPassword("newPassw0rd") != nil {
		t.Error("new password does not verify")
	}
	if svc.sessions.Check(ctx, "some-jwt") {
		t.Error("sessions survive a password reset")
	}

	// tokens are single-use
	if _, err = svc.ResetPassword(ctx, ResetUserPassword{Token: token, Password: "anotherOne"}); err != ErrInvalidResetToken {
		t.Errorf("ResetPassword() reused token error = %v, want ErrInvalidResetToken", err)
	}

	if _, err = svc.Authenticate(ctx, usr.Email, "0ldPassw0rd", ""); err != ErrInvalidCredentials {
		t.Errorf("Authenticate() with old password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err = svc.Authenticate(ctx, usr.Email, "newPassw0rd", ""); err != nil {
		t.Errorf("Authenticate() with new password failed: %v", err)
	}
}

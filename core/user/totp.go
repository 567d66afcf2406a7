package user

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters matching common authenticator apps. A skew of 2 accepts
// codes up to 2 time steps (60s) before/after the current one.
const (
	totpPeriod = 30
	totpSkew   = 2
	totpDigits = otp.DigitsSix
)

// GenerateTwoFactorSecret creates a new TOTP secret for the given account.
// The returned provisioning URL ("otpauth://...") is meant to be rendered as a
// QR code and scanned with an authenticator app.
func GenerateTwoFactorSecret(issuer, email string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: fmt.Sprintf("%s (%s)", issuer, email),
		SecretSize:  32,
		Period:      totpPeriod,
		Digits:      totpDigits,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// VerifyTwoFactorCode checks a 6-digit TOTP code against the stored secret.
func VerifyTwoFactorCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, nowFunc().UTC(), totp.ValidateOpts{
		Period: totpPeriod,
		Skew:   totpSkew,
		Digits: totpDigits,
	})
	return err == nil && ok
}

var nowFunc = time.Now // mockable

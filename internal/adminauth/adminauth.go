// Package adminauth gates admin-only operations (compiling a script into a
// live run, removing a running script) behind a TOTP code, the same one-time
// password scheme the teacher uses to log into the upstream broker.
package adminauth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Secret is a base32-encoded TOTP shared secret, as produced by Enroll and
// consumed by New.
type Secret string

// Enroll generates a fresh TOTP secret and enrollment key for accountName,
// the way an operator first sets up their authenticator app before any
// Gate can verify their codes. The returned otp.Key carries the
// otpauth:// URL an authenticator app scans as a QR code; the returned
// Secret is what gets stored as ADMIN_TOTP_SECRET for Gate.New to verify
// against afterward.
func Enroll(accountName string) (Secret, *otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "barlang",
		AccountName: accountName,
	})
	if err != nil {
		return "", nil, fmt.Errorf("adminauth: enroll: %w", err)
	}
	return Secret(key.Secret()), key, nil
}

// Gate verifies admin TOTP codes against a shared secret.
type Gate struct {
	secret string
	skew   uint // number of 30s periods of clock skew to tolerate on each side
}

// New creates a Gate for the given base32 TOTP secret. skew widens the
// acceptance window to tolerate clock drift between the admin's
// authenticator and this process.
func New(secret string, skew uint) *Gate {
	return &Gate{secret: secret, skew: skew}
}

// Verify reports whether code is a valid TOTP code for the current time,
// within the configured skew window.
func (g *Gate) Verify(code string) (bool, error) {
	valid, err := totp.ValidateCustom(code, g.secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      g.skew,
		Digits:    6,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("adminauth: validate: %w", err)
	}
	return valid, nil
}

// CurrentCode generates the TOTP code for now from the Gate's secret,
// mirroring how the broker login flow generates its code.
func (g *Gate) CurrentCode() (string, error) {
	code, err := totp.GenerateCode(g.secret, time.Now())
	if err != nil {
		return "", fmt.Errorf("adminauth: generate: %w", err)
	}
	return code, nil
}

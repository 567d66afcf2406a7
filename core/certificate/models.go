package certificate

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Certificate statuses.
const (
	StatusIssued  = "issued"
	StatusRevoked = "revoked"
)

// Collection statuses; the workflow only moves forward.
const (
	CollectionPending   = "pending"
	CollectionReady     = "ready"
	CollectionCollected = "collected"
)

// ValidityPeriod is how long a certificate stays valid after issuance.
const ValidityPeriod = 365 * 24 * time.Hour

// Certificate attests that a trainee completed a training session. The
// certificate number is unique across the platform.
type Certificate struct {
	ID         int        `json:"id" db:"id"`
	Number     string     `json:"certificate_number" db:"certificate_number"`
	TraineeID  int        `json:"trainee_id" db:"trainee_id"`
	SessionID  int        `json:"session_id" db:"session_id"`
	CourseName string     `json:"course_name" db:"course_name"`
	Status     string     `json:"status" db:"status"`
	IssuedBy   int        `json:"issued_by" db:"issued_by"`
	IssuedAt   time.Time  `json:"issued_at" db:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`

	TraineeName string `json:"trainee_name,omitempty" db:"trainee_name"`
}

// ValidAt reports whether the certificate is accepted at the given instant.
func (c Certificate) ValidAt(t time.Time) bool {
	return c.Status == StatusIssued && t.Before(c.ExpiresAt)
}

// Collection tracks the physical handover of a printed certificate.
type Collection struct {
	ID            int        `json:"id" db:"id"`
	CertificateID int        `json:"certificate_id" db:"certificate_id"`
	Status        string     `json:"status" db:"status"`
	ReferenceCode string     `json:"reference_code,omitempty" db:"reference_code"`
	IDDocument    string     `json:"id_document,omitempty" db:"id_document"`
	ReadyAt       *time.Time `json:"ready_at,omitempty" db:"ready_at"`
	CollectedAt   *time.Time `json:"collected_at,omitempty" db:"collected_at"`
	CollectedBy   int        `json:"collected_by,omitempty" db:"collected_by"`

	CertificateNumber string `json:"certificate_number,omitempty" db:"certificate_number"`
	TraineeID         int    `json:"trainee_id,omitempty" db:"trainee_id"`
}

// IssueCertificate contains information needed to issue a certificate.
type IssueCertificate struct {
	TraineeID  int    `json:"trainee_id" validate:"required"`
	SessionID  int    `json:"session_id" validate:"required"`
	CourseName string `json:"course_name" validate:"required"`
}

func (ic *IssueCertificate) Validate(validate *validator.Validate) error {
	return validate.Struct(ic)
}

// CollectCertificate contains information needed to hand over a certificate.
// The collector must present the pickup reference code and an identity
// document.
type CollectCertificate struct {
	ReferenceCode string `json:"reference_code" validate:"required"`
	IDDocument    string `json:"id_document" validate:"required"`
}

func (cc *CollectCertificate) Validate(validate *validator.Validate) error {
	return validate.Struct(cc)
}

// VerificationResult is the public answer to a certificate lookup. It never
// exposes more than the holder's name and validity window. The internal ID
// stays private; it only feeds the audit trail.
type VerificationResult struct {
	ID          int       `json:"-"`
	Valid       bool      `json:"valid"`
	Expired     bool      `json:"expired"`
	Number      string    `json:"certificate_number"`
	TraineeName string    `json:"trainee_name,omitempty"`
	CourseName  string    `json:"course_name,omitempty"`
	Status      string    `json:"status,omitempty"`
	IssuedAt    time.Time `json:"issued_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

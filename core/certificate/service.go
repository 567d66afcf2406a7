package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotFound           = errors.New("certificate not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrAlreadyIssued      = errors.New("certificate already issued for this session")
	ErrAlreadyRevoked     = errors.New("certificate already revoked")
	ErrNotReady           = errors.New("certificate not ready for collection")
	ErrAlreadyCollected   = errors.New("certificate already collected")

	// ErrNumberConflict is returned by stores when a generated certificate
	// number or reference code collides with an existing one.
	ErrNumberConflict = errors.New("certificate number conflict")
)

// maxNumberRetries bounds regeneration on number collisions.
const maxNumberRetries = 3

type (
	Repository interface {
		// CreateCertificate relies on store uniqueness constraints: a
		// certificate number collision returns ErrNumberConflict, an existing
		// live certificate for the (trainee, session) pair ErrAlreadyIssued.
		CreateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
		GetCertificateByID(ctx context.Context, id int) (Certificate, error)
		GetCertificateByNumber(ctx context.Context, number string) (Certificate, error)
		ListTraineeCertificates(ctx context.Context, traineeID int) ([]Certificate, error)
		SetCertificateRevoked(ctx context.Context, id int, at time.Time) error

		CreateCollection(ctx context.Context, col Collection) (Collection, error)
		GetCollectionByID(ctx context.Context, id int) (Collection, error)
		GetCollectionByCertificate(ctx context.Context, certID int) (Collection, error)
		ListPendingCollections(ctx context.Context) ([]Collection, error)
		ListTraineeReadyCollections(ctx context.Context, traineeID int) ([]Collection, error)
		// UpdateCollection relies on a store uniqueness constraint over the
		// reference code and returns ErrNumberConflict on collision.
		UpdateCollection(ctx context.Context, col Collection) (Collection, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var nowFunc = time.Now // mockable

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

// newNumber generates a certificate number of the form
// CTC-<unix-millis>-<8 uppercase hex chars>.
func newNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("CTC-%d-%s", now.UnixNano()/int64(time.Millisecond), suffix)
}

// newReferenceCode generates a short collection reference code.
func newReferenceCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
}

// Issue creates a certificate valid for a year and opens its pending
// collection record. Number collisions are retried with a fresh number.
func (svc *Service) Issue(ctx context.Context, issuedBy int, ic IssueCertificate) (Certificate, error) {
	if err := ic.Validate(svc.validate); err != nil {
		return Certificate{}, err
	}
	now := nowFunc()
	cert := Certificate{
		TraineeID:  ic.TraineeID,
		SessionID:  ic.SessionID,
		CourseName: ic.CourseName,
		Status:     StatusIssued,
		IssuedBy:   issuedBy,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ValidityPeriod),
	}

	var err error
	for i := 0; i < maxNumberRetries; i++ {
		cert.Number = newNumber(now)
		var created Certificate
		if created, err = svc.repo.CreateCertificate(ctx, cert); err == nil {
			cert = created
			break
		}
		if cause := errors.Cause(err); cause != ErrNumberConflict {
			if cause == ErrAlreadyIssued {
				return Certificate{}, ErrAlreadyIssued
			}
			return Certificate{}, errors.Wrap(err, "creating certificate")
		}
	}
	if err != nil {
		return Certificate{}, errors.Wrap(err, "creating certificate")
	}

	col := Collection{
		CertificateID: cert.ID,
		Status:        CollectionPending,
	}
	if _, err = svc.repo.CreateCollection(ctx, col); err != nil {
		return Certificate{}, errors.Wrap(err, "creating collection record")
	}
	return cert, nil
}

// Verify answers a public lookup by certificate number. An unknown number
// yields a negative result, not an error.
func (svc *Service) Verify(ctx context.Context, number string) (VerificationResult, error) {
	cert, err := svc.repo.GetCertificateByNumber(ctx, number)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return VerificationResult{Number: number}, nil
		}
		return VerificationResult{}, err
	}
	now := nowFunc()
	return VerificationResult{
		ID:          cert.ID,
		Valid:       cert.ValidAt(now),
		Expired:     !now.Before(cert.ExpiresAt),
		Number:      cert.Number,
		TraineeName: cert.TraineeName,
		CourseName:  cert.CourseName,
		Status:      cert.Status,
		IssuedAt:    cert.IssuedAt,
		ExpiresAt:   cert.ExpiresAt,
	}, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (Certificate, error) {
	return svc.repo.GetCertificateByID(ctx, id)
}

func (svc *Service) GetByNumber(ctx context.Context, number string) (Certificate, error) {
	return svc.repo.GetCertificateByNumber(ctx, number)
}

func (svc *Service) TraineeCertificates(ctx context.Context, traineeID int) ([]Certificate, error) {
	return svc.repo.ListTraineeCertificates(ctx, traineeID)
}

// Revoke invalidates a certificate permanently.
func (svc *Service) Revoke(ctx context.Context, id int) (Certificate, error) {
	cert, err := svc.repo.GetCertificateByID(ctx, id)
	if err != nil {
		return Certificate{}, err
	}
	if cert.Status == StatusRevoked {
		return Certificate{}, ErrAlreadyRevoked
	}
	now := nowFunc()
	if err = svc.repo.SetCertificateRevoked(ctx, id, now); err != nil {
		return Certificate{}, errors.Wrap(err, "revoking certificate")
	}
	cert.Status = StatusRevoked
	cert.RevokedAt = &now
	return cert, nil
}

// MarkReady moves a pending collection to ready and assigns its pickup
// reference code. Code collisions are retried with a fresh code.
func (svc *Service) MarkReady(ctx context.Context, collectionID int) (Collection, error) {
	col, err := svc.repo.GetCollectionByID(ctx, collectionID)
	if err != nil {
		return Collection{}, err
	}
	if col.Status == CollectionCollected {
		return Collection{}, ErrAlreadyCollected
	}
	now := nowFunc()
	col.Status = CollectionReady
	col.ReadyAt = &now
	for i := 0; i < maxNumberRetries; i++ {
		col.ReferenceCode = newReferenceCode()
		var updated Collection
		if updated, err = svc.repo.UpdateCollection(ctx, col); err == nil {
			return updated, nil
		}
		if errors.Cause(err) != ErrNumberConflict {
			break
		}
	}
	return Collection{}, errors.Wrap(err, "marking collection ready")
}

// Collect completes a ready collection. The presented reference code must
// match the one assigned at MarkReady, and the recorded identity document is
// required.
func (svc *Service) Collect(ctx context.Context, collectionID, collectedBy int, cc CollectCertificate) (Collection, error) {
	if err := cc.Validate(svc.validate); err != nil {
		return Collection{}, err
	}
	col, err := svc.repo.GetCollectionByID(ctx, collectionID)
	if err != nil {
		return Collection{}, err
	}
	switch col.Status {
	case CollectionCollected:
		return Collection{}, ErrAlreadyCollected
	case CollectionPending:
		return Collection{}, ErrNotReady
	}
	if cc.ReferenceCode != col.ReferenceCode {
		return Collection{}, ErrCollectionNotFound
	}
	now := nowFunc()
	col.Status = CollectionCollected
	col.IDDocument = cc.IDDocument
	col.CollectedAt = &now
	col.CollectedBy = collectedBy
	col, err = svc.repo.UpdateCollection(ctx, col)
	return col, errors.Wrap(err, "completing collection")
}

func (svc *Service) CollectionStatus(ctx context.Context, certID int) (Collection, error) {
	return svc.repo.GetCollectionByCertificate(ctx, certID)
}

func (svc *Service) PendingCollections(ctx context.Context) ([]Collection, error) {
	return svc.repo.ListPendingCollections(ctx)
}

func (svc *Service) MyReadyCollections(ctx context.Context, traineeID int) ([]Collection, error) {
	return svc.repo.ListTraineeReadyCollections(ctx, traineeID)
}

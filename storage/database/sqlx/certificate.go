package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/certificate"
)

const certColumns = `
	c.id, c.certificate_number, c.trainee_id, c.session_id, c.course_name,
	c.status, c.issued_by, c.issued_at, c.expires_at, c.revoked_at,
	u.first_name || ' ' || u.last_name AS trainee_name`

const collectionColumns = `
	cc.id, cc.certificate_id, cc.status, cc.reference_code, cc.id_document,
	cc.ready_at, cc.collected_at, cc.collected_by,
	c.certificate_number, c.trainee_id`

type certificateRepository struct {
	db core.DB
}

var _ certificate.Repository = (*certificateRepository)(nil)

func NewCertificateRepository(db core.DB) *certificateRepository {
	return &certificateRepository{db: db}
}

func (repo certificateRepository) CreateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	query := `
	INSERT INTO certificates (certificate_number, trainee_id, session_id, course_name, status, issued_by, issued_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		cert.Number, cert.TraineeID, cert.SessionID, cert.CourseName,
		cert.Status, cert.IssuedBy, cert.IssuedAt, cert.ExpiresAt,
	).Scan(&cert.ID)
	if err != nil {
		if isUniqueViolation(err, "certificates_certificate_number_key") {
			return certificate.Certificate{}, certificate.ErrNumberConflict
		}
		if isUniqueViolation(err, "certificates_trainee_session_key") {
			return certificate.Certificate{}, certificate.ErrAlreadyIssued
		}
		return certificate.Certificate{}, errors.Wrap(err, "creating certificate")
	}
	return cert, nil
}

func (repo certificateRepository) GetCertificateByID(ctx context.Context, id int) (certificate.Certificate, error) {
	var cert certificate.Certificate
	query := `SELECT ` + certColumns + ` FROM certificates c JOIN users u ON u.id = c.trainee_id WHERE c.id = $1`
	if err := repo.db.GetContext(ctx, &cert, query, id); err != nil {
		if err == sql.ErrNoRows {
			return certificate.Certificate{}, certificate.ErrNotFound
		}
		return certificate.Certificate{}, errors.Wrap(err, "getting certificate")
	}
	return cert, nil
}

func (repo certificateRepository) GetCertificateByNumber(ctx context.Context, number string) (certificate.Certificate, error) {
	var cert certificate.Certificate
	query := `SELECT ` + certColumns + ` FROM certificates c JOIN users u ON u.id = c.trainee_id WHERE c.certificate_number = $1`
	if err := repo.db.GetContext(ctx, &cert, query, number); err != nil {
		if err == sql.ErrNoRows {
			return certificate.Certificate{}, certificate.ErrNotFound
		}
		return certificate.Certificate{}, errors.Wrap(err, "getting certificate by number")
	}
	return cert, nil
}

func (repo certificateRepository) ListTraineeCertificates(ctx context.Context, traineeID int) ([]certificate.Certificate, error) {
	var certs []certificate.Certificate
	query := `
	SELECT ` + certColumns + `
	FROM certificates c
	JOIN users u ON u.id = c.trainee_id
	WHERE c.trainee_id = $1
	ORDER BY c.issued_at DESC`
	err := repo.db.SelectContext(ctx, &certs, query, traineeID)
	return certs, errors.Wrap(err, "listing trainee certificates")
}

func (repo certificateRepository) SetCertificateRevoked(ctx context.Context, id int, at time.Time) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE certificates SET status = 'revoked', revoked_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return errors.Wrap(err, "revoking certificate")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return certificate.ErrNotFound
	}
	return nil
}

func (repo certificateRepository) CreateCollection(ctx context.Context, col certificate.Collection) (certificate.Collection, error) {
	query := `
	INSERT INTO certificate_collections (certificate_id, status)
	VALUES ($1, $2)
	RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query, col.CertificateID, col.Status).Scan(&col.ID)
	if err != nil {
		return certificate.Collection{}, errors.Wrap(err, "creating collection")
	}
	return col, nil
}

func (repo certificateRepository) GetCollectionByID(ctx context.Context, id int) (certificate.Collection, error) {
	var col certificate.Collection
	query := `
	SELECT ` + collectionColumns + `
	FROM certificate_collections cc
	JOIN certificates c ON c.id = cc.certificate_id
	WHERE cc.id = $1`
	if err := repo.db.GetContext(ctx, &col, query, id); err != nil {
		if err == sql.ErrNoRows {
			return certificate.Collection{}, certificate.ErrCollectionNotFound
		}
		return certificate.Collection{}, errors.Wrap(err, "getting collection")
	}
	return col, nil
}

func (repo certificateRepository) GetCollectionByCertificate(ctx context.Context, certID int) (certificate.Collection, error) {
	var col certificate.Collection
	query := `
	SELECT ` + collectionColumns + `
	FROM certificate_collections cc
	JOIN certificates c ON c.id = cc.certificate_id
	WHERE cc.certificate_id = $1`
	if err := repo.db.GetContext(ctx, &col, query, certID); err != nil {
		if err == sql.ErrNoRows {
			return certificate.Collection{}, certificate.ErrCollectionNotFound
		}
		return certificate.Collection{}, errors.Wrap(err, "getting collection")
	}
	return col, nil
}

func (repo certificateRepository) ListPendingCollections(ctx context.Context) ([]certificate.Collection, error) {
	var cols []certificate.Collection
	query := `
	SELECT ` + collectionColumns + `
	FROM certificate_collections cc
	JOIN certificates c ON c.id = cc.certificate_id
	WHERE cc.status = 'pending'
	ORDER BY cc.id ASC`
	err := repo.db.SelectContext(ctx, &cols, query)
	return cols, errors.Wrap(err, "listing pending collections")
}

func (repo certificateRepository) ListTraineeReadyCollections(ctx context.Context, traineeID int) ([]certificate.Collection, error) {
	var cols []certificate.Collection
	query := `
	SELECT ` + collectionColumns + `
	FROM certificate_collections cc
	JOIN certificates c ON c.id = cc.certificate_id
	WHERE c.trainee_id = $1 AND cc.status = 'ready'
	ORDER BY cc.ready_at DESC`
	err := repo.db.SelectContext(ctx, &cols, query, traineeID)
	return cols, errors.Wrap(err, "listing ready collections")
}

func (repo certificateRepository) UpdateCollection(ctx context.Context, col certificate.Collection) (certificate.Collection, error) {
	query := `
	UPDATE certificate_collections SET
		status = $1, reference_code = $2, id_document = $3,
		ready_at = $4, collected_at = $5, collected_by = $6
	WHERE id = $7`
	res, err := repo.db.ExecContext(ctx, query,
		col.Status, col.ReferenceCode, col.IDDocument,
		col.ReadyAt, col.CollectedAt, col.CollectedBy, col.ID,
	)
	if err != nil {
		if isUniqueViolation(err, "certificate_collections_reference_code_key") {
			return certificate.Collection{}, certificate.ErrNumberConflict
		}
		return certificate.Collection{}, errors.Wrap(err, "updating collection")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return certificate.Collection{}, certificate.ErrCollectionNotFound
	}
	return col, nil
}

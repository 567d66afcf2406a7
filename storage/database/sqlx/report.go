package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/report"
)

type reportRepository struct {
	db core.DB
}

var _ report.Repository = (*reportRepository)(nil)

func NewReportRepository(db core.DB) *reportRepository {
	return &reportRepository{db: db}
}

func (repo reportRepository) GetStaffDashboard(ctx context.Context, now time.Time) (report.StaffDashboard, error) {
	var d report.StaffDashboard
	query := `
	SELECT
		(SELECT COUNT(*) FROM users WHERE role = 'trainee' AND status = 'active') AS total_trainees,
		(SELECT COUNT(*) FROM training_sessions WHERE status = 'in_progress') AS active_sessions,
		(SELECT COUNT(*) FROM training_sessions WHERE status = 'scheduled' AND session_date > $1) AS upcoming_sessions,
		(SELECT COUNT(*) FROM certificates WHERE status = 'issued') AS certificates_issued,
		(SELECT COUNT(*) FROM certificate_collections WHERE status = 'pending') AS pending_collections,
		(SELECT COUNT(*) FROM queue_entries WHERE status = 'waiting') AS waiting_in_queues,
		(SELECT COALESCE(ROUND(AVG(CASE WHEN passed THEN 100.0 ELSE 0 END), 2), 0)
			FROM exam_attempts WHERE status = 'submitted') AS avg_exam_pass_rate`
	err := repo.db.GetContext(ctx, &d, query, now)
	return d, errors.Wrap(err, "building staff dashboard")
}

func (repo reportRepository) GetTraineeDashboard(ctx context.Context, traineeID int) (report.TraineeDashboard, error) {
	var d report.TraineeDashboard
	query := `
	SELECT
		(SELECT COUNT(*) FROM enrollments WHERE trainee_id = $1 AND status != 'cancelled') AS enrolled_sessions,
		(SELECT COUNT(*) FROM enrollments e JOIN training_sessions s ON s.id = e.session_id
			WHERE e.trainee_id = $1 AND s.status = 'completed' AND e.status != 'cancelled') AS completed_sessions,
		(SELECT COALESCE(ROUND(
			COUNT(*) FILTER (WHERE status = 'attended') * 100.0 / NULLIF(COUNT(*) FILTER (WHERE status != 'cancelled'), 0), 2), 0)
			FROM enrollments WHERE trainee_id = $1) AS attendance_rate,
		(SELECT COUNT(*) FROM exam_attempts WHERE trainee_id = $1 AND status = 'submitted' AND passed) AS exams_passed,
		(SELECT COUNT(*) FROM exam_attempts WHERE trainee_id = $1 AND status = 'submitted') AS exams_taken,
		(SELECT COUNT(*) FROM certificates WHERE trainee_id = $1 AND status = 'issued') AS certificates,
		(SELECT COUNT(*) FROM queue_entries WHERE trainee_id = $1 AND status = 'waiting') AS queue_positions`
	err := repo.db.GetContext(ctx, &d, query, traineeID)
	return d, errors.Wrap(err, "building trainee dashboard")
}

func (repo reportRepository) GetSessionAttendance(ctx context.Context, sessionID int) ([]report.AttendanceRow, error) {
	var rows []report.AttendanceRow
	query := `
	SELECT e.trainee_id,
		u.first_name || ' ' || u.last_name AS trainee_name,
		COUNT(*) FILTER (WHERE e.status = 'attended') AS attended,
		COUNT(*) FILTER (WHERE e.status != 'cancelled') AS total,
		COALESCE(ROUND(
			COUNT(*) FILTER (WHERE e.status = 'attended') * 100.0 /
			NULLIF(COUNT(*) FILTER (WHERE e.status != 'cancelled'), 0), 2), 0) AS rate
	FROM enrollments e
	JOIN users u ON u.id = e.trainee_id
	WHERE e.session_id = $1
	GROUP BY e.trainee_id, u.first_name, u.last_name
	ORDER BY trainee_name ASC`
	err := repo.db.SelectContext(ctx, &rows, query, sessionID)
	return rows, errors.Wrap(err, "building attendance report")
}

func (repo reportRepository) GetSessionPerformance(ctx context.Context, sessionID int) ([]report.PerformanceRow, error) {
	var rows []report.PerformanceRow
	query := `
	SELECT r.trainee_id,
		u.first_name || ' ' || u.last_name AS trainee_name,
		r.total_score, r.exam_score, r.performance_level
	FROM trainee_rankings r
	JOIN users u ON u.id = r.trainee_id
	WHERE r.session_id = $1
	ORDER BY r.total_score DESC, r.trainee_id ASC`
	err := repo.db.SelectContext(ctx, &rows, query, sessionID)
	return rows, errors.Wrap(err, "building performance report")
}

func (repo reportRepository) GetEnrollmentTrends(ctx context.Context, from, to time.Time) ([]report.EnrollmentTrendPoint, error) {
	var points []report.EnrollmentTrendPoint
	query := `
	SELECT TO_CHAR(DATE_TRUNC('month', enrolled_at), 'YYYY-MM') AS month, COUNT(*) AS count
	FROM enrollments
	WHERE enrolled_at >= $1 AND enrolled_at <= $2
	GROUP BY 1
	ORDER BY 1 ASC`
	err := repo.db.SelectContext(ctx, &points, query, from, to)
	return points, errors.Wrap(err, "building enrollment trends")
}

func (repo reportRepository) GetCertificateStats(ctx context.Context, now time.Time) (report.CertificateStats, error) {
	var stats report.CertificateStats
	query := `
	SELECT
		(SELECT COUNT(*) FROM certificates WHERE status = 'issued') AS issued,
		(SELECT COUNT(*) FROM certificates WHERE status = 'revoked') AS revoked,
		(SELECT COUNT(*) FROM certificates WHERE status = 'issued' AND expires_at <= $1) AS expired,
		(SELECT COUNT(*) FROM certificate_collections WHERE status = 'collected') AS collected,
		(SELECT COUNT(*) FROM certificate_collections WHERE status = 'pending') AS pending`
	err := repo.db.GetContext(ctx, &stats, query, now)
	return stats, errors.Wrap(err, "building certificate stats")
}

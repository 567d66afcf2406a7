// Package report serves read-only aggregates for dashboards and staff
// reporting. All numbers are computed in the store; the service only shapes
// them.
package report

import (
	"context"
	"time"
)

// StaffDashboard is the admin/trainer landing view.
type StaffDashboard struct {
	TotalTrainees      int     `json:"total_trainees" db:"total_trainees"`
	ActiveSessions     int     `json:"active_sessions" db:"active_sessions"`
	UpcomingSessions   int     `json:"upcoming_sessions" db:"upcoming_sessions"`
	CertificatesIssued int     `json:"certificates_issued" db:"certificates_issued"`
	PendingCollections int     `json:"pending_collections" db:"pending_collections"`
	WaitingInQueues    int     `json:"waiting_in_queues" db:"waiting_in_queues"`
	AvgExamPassRate    float64 `json:"avg_exam_pass_rate" db:"avg_exam_pass_rate"`
}

// TraineeDashboard is the trainee landing view.
type TraineeDashboard struct {
	EnrolledSessions  int     `json:"enrolled_sessions" db:"enrolled_sessions"`
	CompletedSessions int     `json:"completed_sessions" db:"completed_sessions"`
	AttendanceRate    float64 `json:"attendance_rate" db:"attendance_rate"`
	ExamsPassed       int     `json:"exams_passed" db:"exams_passed"`
	ExamsTaken        int     `json:"exams_taken" db:"exams_taken"`
	Certificates      int     `json:"certificates" db:"certificates"`
	QueuePositions    int     `json:"queue_positions" db:"queue_positions"`
}

// AttendanceRow is one trainee's attendance within a session.
type AttendanceRow struct {
	TraineeID   int     `json:"trainee_id" db:"trainee_id"`
	TraineeName string  `json:"trainee_name" db:"trainee_name"`
	Attended    int     `json:"attended" db:"attended"`
	Total       int     `json:"total" db:"total"`
	Rate        float64 `json:"rate" db:"rate"`
}

// PerformanceRow is one trainee's composite standing within a session.
type PerformanceRow struct {
	TraineeID   int     `json:"trainee_id" db:"trainee_id"`
	TraineeName string  `json:"trainee_name" db:"trainee_name"`
	TotalScore  float64 `json:"total_score" db:"total_score"`
	ExamScore   float64 `json:"exam_score" db:"exam_score"`
	Level       string  `json:"performance_level" db:"performance_level"`
}

// EnrollmentTrendPoint is a month bucket of new enrollments.
type EnrollmentTrendPoint struct {
	Month string `json:"month" db:"month"`
	Count int    `json:"count" db:"count"`
}

// CertificateStats summarizes certificate issuance and collection.
type CertificateStats struct {
	Issued    int `json:"issued" db:"issued"`
	Revoked   int `json:"revoked" db:"revoked"`
	Expired   int `json:"expired" db:"expired"`
	Collected int `json:"collected" db:"collected"`
	Pending   int `json:"pending" db:"pending"`
}

type (
	Repository interface {
		GetStaffDashboard(ctx context.Context, now time.Time) (StaffDashboard, error)
		GetTraineeDashboard(ctx context.Context, traineeID int) (TraineeDashboard, error)
		GetSessionAttendance(ctx context.Context, sessionID int) ([]AttendanceRow, error)
		GetSessionPerformance(ctx context.Context, sessionID int) ([]PerformanceRow, error)
		GetEnrollmentTrends(ctx context.Context, from, to time.Time) ([]EnrollmentTrendPoint, error)
		GetCertificateStats(ctx context.Context, now time.Time) (CertificateStats, error)
	}

	Service struct {
		repo Repository
	}
)

var nowFunc = time.Now // mockable

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) StaffDashboard(ctx context.Context) (StaffDashboard, error) {
	return svc.repo.GetStaffDashboard(ctx, nowFunc())
}

func (svc *Service) TraineeDashboard(ctx context.Context, traineeID int) (TraineeDashboard, error) {
	return svc.repo.GetTraineeDashboard(ctx, traineeID)
}

func (svc *Service) SessionAttendance(ctx context.Context, sessionID int) ([]AttendanceRow, error) {
	return svc.repo.GetSessionAttendance(ctx, sessionID)
}

func (svc *Service) SessionPerformance(ctx context.Context, sessionID int) ([]PerformanceRow, error) {
	return svc.repo.GetSessionPerformance(ctx, sessionID)
}

// EnrollmentTrends defaults to the trailing six months.
func (svc *Service) EnrollmentTrends(ctx context.Context, from, to time.Time) ([]EnrollmentTrendPoint, error) {
	if to.IsZero() {
		to = nowFunc()
	}
	if from.IsZero() {
		from = to.AddDate(0, -6, 0)
	}
	return svc.repo.GetEnrollmentTrends(ctx, from, to)
}

func (svc *Service) CertificateStats(ctx context.Context) (CertificateStats, error) {
	return svc.repo.GetCertificateStats(ctx, nowFunc())
}

// Package notification composes and dispatches outbound email and SMS, and
// keeps a log of everything sent. Delivery failures never fail the business
// operation that triggered them.
package notification

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/user"
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		FilterNotifications(ctx context.Context, filter QueryFilter) ([]Notification, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		smsSvc  core.SMSService
		conf    *core.Config
		logger  core.Logger
	}
)

var nowFunc = time.Now // mockable

func NewService(repo Repository, mailSvc core.EmailService, smsSvc core.SMSService, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		smsSvc:  smsSvc,
		conf:    conf,
		logger:  logger,
	}
}

func (svc *Service) sendEmail(ctx context.Context, usr user.User, msg *core.EmailMessage) {
	status := StatusSent
	if usr.Email == "" {
		status = StatusFailed
	}
	// render now so the log captures the final text content
	if err := msg.Render(svc.conf); err != nil {
		svc.logger.Error("notification: rendering message", err)
		status = StatusFailed
	}
	if status == StatusSent {
		svc.mailSvc.SendMessages(msg)
	}
	svc.record(ctx, Notification{
		UserID:    usr.ID,
		Channel:   ChannelEmail,
		Recipient: usr.Email,
		Subject:   msg.Subject,
		Body:      msg.TextContent,
		Status:    status,
	})
}

func (svc *Service) sendSMS(ctx context.Context, usr user.User, body string) {
	if usr.Phone == "" {
		return
	}
	svc.smsSvc.SendMessages(&core.SMSMessage{To: usr.Phone, Body: body})
	svc.record(ctx, Notification{
		UserID:    usr.ID,
		Channel:   ChannelSMS,
		Recipient: usr.Phone,
		Body:      body,
		Status:    StatusSent,
	})
}

func (svc *Service) record(ctx context.Context, n Notification) {
	n.CreatedAt = nowFunc()
	if _, err := svc.repo.CreateNotification(ctx, n); err != nil {
		svc.logger.Error("notification: failed to log message", err)
	}
}

// SendWelcome greets a freshly registered trainee.
func (svc *Service) SendWelcome(ctx context.Context, usr user.User) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      fmt.Sprintf("Welcome to %s!", svc.conf.AppName),
		TemplateName: "welcome",
		TemplateData: struct{ Name string }{usr.FirstName},
	}
	svc.sendEmail(ctx, usr, msg)
}

// SendStaffInvitation mails a new staff member their temporary password.
func (svc *Service) SendStaffInvitation(ctx context.Context, usr user.User, tempPassword string) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      fmt.Sprintf("Your %s staff account", svc.conf.AppName),
		TemplateName: "staff_invitation",
		TemplateData: struct {
			Name         string
			Role         string
			TempPassword string
		}{usr.FirstName, usr.Role, tempPassword},
	}
	svc.sendEmail(ctx, usr, msg)
}

// SendPasswordReset mails the reset link built from the frontend base URL.
func (svc *Service) SendPasswordReset(ctx context.Context, usr user.User, token string) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Password reset request",
		TemplateName: "password_reset",
		TemplateData: struct {
			Name string
			Link string
		}{usr.FirstName, fmt.Sprintf("%s/reset-password?token=%s", svc.conf.FrontendBaseURL, token)},
	}
	svc.sendEmail(ctx, usr, msg)
}

// SendEnrollmentConfirmation confirms a session enrollment by email and SMS.
func (svc *Service) SendEnrollmentConfirmation(ctx context.Context, usr user.User, sessionTitle string, startsAt time.Time) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Enrollment confirmed",
		TemplateName: "enrollment_confirmation",
		TemplateData: struct {
			Name     string
			Session  string
			StartsAt string
		}{usr.FirstName, sessionTitle, startsAt.Format("Mon, 02 Jan 2006 15:04")},
	}
	svc.sendEmail(ctx, usr, msg)
	svc.sendSMS(ctx, usr, fmt.Sprintf("You are enrolled in %q starting %s.", sessionTitle, startsAt.Format("02 Jan 15:04")))
}

// SendSessionReminder nudges an enrolled trainee ahead of a session.
func (svc *Service) SendSessionReminder(ctx context.Context, usr user.User, sessionTitle string, startsAt time.Time) {
	svc.sendSMS(ctx, usr, fmt.Sprintf("Reminder: %q starts %s.", sessionTitle, startsAt.Format("Mon 02 Jan at 15:04")))
}

// SendCertificateIssued congratulates a trainee on a freshly issued
// certificate.
func (svc *Service) SendCertificateIssued(ctx context.Context, usr user.User, certNumber, courseName string) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Your certificate has been issued",
		TemplateName: "certificate_issued",
		TemplateData: struct {
			Name   string
			Number string
			Course string
		}{usr.FirstName, certNumber, courseName},
	}
	svc.sendEmail(ctx, usr, msg)
	svc.sendSMS(ctx, usr, fmt.Sprintf("Congratulations! Certificate %s for %q has been issued.", certNumber, courseName))
}

// SendCertificateReady tells a trainee their certificate can be collected.
func (svc *Service) SendCertificateReady(ctx context.Context, usr user.User, certNumber, referenceCode string) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Your certificate is ready for collection",
		TemplateName: "certificate_ready",
		TemplateData: struct {
			Name          string
			Number        string
			ReferenceCode string
		}{usr.FirstName, certNumber, referenceCode},
	}
	svc.sendEmail(ctx, usr, msg)
	svc.sendSMS(ctx, usr, fmt.Sprintf("Certificate %s is ready. Pickup reference: %s", certNumber, referenceCode))
}

// Broadcast mails every given user the same announcement.
func (svc *Service) Broadcast(ctx context.Context, users []user.User, subject, body string) int {
	var n int
	for _, usr := range users {
		if !usr.IsActive() {
			continue
		}
		msg := &core.EmailMessage{
			To:      []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
			Subject: subject,
			BodyStr: body,
		}
		svc.sendEmail(ctx, usr, msg)
		n++
	}
	return n
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Notification, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return svc.repo.FilterNotifications(ctx, filter)
}

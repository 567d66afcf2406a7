package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/kahawa/apps/api/echo"
	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/audit"
	"github.com/trezcool/kahawa/core/certificate"
	"github.com/trezcool/kahawa/core/exam"
	"github.com/trezcool/kahawa/core/notification"
	"github.com/trezcool/kahawa/core/queue"
	"github.com/trezcool/kahawa/core/ranking"
	"github.com/trezcool/kahawa/core/report"
	"github.com/trezcool/kahawa/core/training"
	"github.com/trezcool/kahawa/core/user"
	emailsvc "github.com/trezcool/kahawa/services/email"
	logsvc "github.com/trezcool/kahawa/services/logger"
	qrsvc "github.com/trezcool/kahawa/services/qr"
	smssvc "github.com/trezcool/kahawa/services/sms"
	"github.com/trezcool/kahawa/storage/database"
	sqlxrepos "github.com/trezcool/kahawa/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	var logger core.Logger
	if conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		rb := logsvc.NewRollbarLogger(std, conf)
		rb.Enable(true)
		logger = rb
	}

	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("failed to close database", err)
		}
	}()

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	var mailSvc core.EmailService
	var smsSvc core.SMSService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
		smsSvc = smssvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
		smsSvc = smssvc.NewTwilioService(conf, logger)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	sessions := user.NewSessionManager(usrRepo, usrRepo, conf, logger)
	sessions.StartReaper()
	defer sessions.Stop()

	usrSvc := user.NewService(usrRepo, usrRepo, sessions, conf)
	trainingSvc := training.NewService(sqlxrepos.NewTrainingRepository(db))
	queueSvc := queue.NewService(sqlxrepos.NewQueueRepository(db))
	rankingSvc := ranking.NewService(sqlxrepos.NewRankingRepository(db), validate, logger)
	examSvc := exam.NewService(sqlxrepos.NewExamRepository(db), validate)
	certSvc := certificate.NewService(sqlxrepos.NewCertificateRepository(db), validate)
	auditSvc := audit.NewService(sqlxrepos.NewAuditRepository(db), logger)
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(db), mailSvc, smsSvc, conf, logger)
	reportSvc := report.NewService(sqlxrepos.NewReportRepository(db))
	qrSvc := qrsvc.NewService(conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	server := echoapi.NewServer(
		&echoapi.Options{
			Address:     conf.Server.Address(),
			Conf:        conf,
			Logger:      logger,
			Validate:    validate,
			Translator:  translator,
			UserSvc:     usrSvc,
			Sessions:    sessions,
			TrainingSvc: trainingSvc,
			QueueSvc:    queueSvc,
			RankingSvc:  rankingSvc,
			ExamSvc:     examSvc,
			CertSvc:     certSvc,
			AuditSvc:    auditSvc,
			NotifSvc:    notifSvc,
			ReportSvc:   reportSvc,
			QRSvc:       qrSvc,
			SignalShutdown: func() {
				shutdown <- syscall.SIGTERM
			},
		},
	)

	go server.Start()

	// =========================================================================
	// Shutdown

	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	if err = server.Stop(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, conf); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

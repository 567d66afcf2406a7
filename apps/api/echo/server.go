package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

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
	qrsvc "github.com/trezcool/kahawa/services/qr"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool

		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc     *user.Service
		Sessions    *user.SessionManager
		TrainingSvc *training.Service
		QueueSvc    *queue.Service
		RankingSvc  *ranking.Service
		ExamSvc     *exam.Service
		CertSvc     *certificate.Service
		AuditSvc    *audit.Service
		NotifSvc    *notification.Service
		ReportSvc   *report.Service
		QRSvc       *qrsvc.Service

		// SignalShutdown triggers a graceful server shutdown on fatal errors.
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	initAuth(opts.Conf)
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	if s.opts.SignalShutdown == nil {
		s.opts.SignalShutdown = func() {}
	}
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)
	session := sessionMiddleware(s.opts.Sessions)

	registerUserAPI(v1, jwt, session, s.opts)
	registerTrainingAPI(v1, jwt, session, s.opts)
	registerQueueAPI(v1, jwt, session, s.opts)
	registerExamAPI(v1, jwt, session, s.opts)
	registerRankingAPI(v1, jwt, session, s.opts)
	registerCertificateAPI(v1, jwt, session, s.opts)
	registerReportAPI(v1, jwt, session, s.opts)
	registerCommunicationAPI(v1, jwt, session, s.opts)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Kahawa API!")
}

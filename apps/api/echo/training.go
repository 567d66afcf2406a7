package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core/training"
	"github.com/trezcool/kahawa/core/user"
)

type trainingApi struct {
	opts *Options
}

func registerTrainingAPI(g *echo.Group, jwt, session echo.MiddlewareFunc, opts *Options) {
	api := trainingApi{opts: opts}

	sg := g.Group("/sessions", jwt, session)
	sg.GET("", api.query)
	sg.POST("", api.create, roleMiddleware(user.RoleTrainer, user.RoleAdmin))
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, roleMiddleware(user.RoleTrainer, user.RoleAdmin))

	sg.POST("/:id/enroll", api.enroll, roleMiddleware(user.RoleTrainee))
	sg.DELETE("/:id/enroll", api.cancelEnrollment, roleMiddleware(user.RoleTrainee))
	sg.GET("/:id/enrollments", api.enrollments, roleMiddleware(user.RoleTrainer, user.RoleAdmin))
	sg.POST("/:id/attendance", api.markAttendance, roleMiddleware(user.RoleTrainer, user.RoleAdmin))

	eg := g.Group("/enrollments", jwt, session)
	eg.GET("/me", api.myEnrollments, roleMiddleware(user.RoleTrainee))
}

func (api *trainingApi) create(ctx echo.Context) error {
	var data training.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	sess, err := api.opts.TrainingSvc.Create(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "session.create", "session", sess.ID, sess.Title, ctx.RealIP())
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *trainingApi) query(ctx echo.Context) error {
	filter := new(training.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []training.Session{})
	}

	sessions, err := api.opts.TrainingSvc.Filter(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []training.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *trainingApi) retrieve(ctx echo.Context) error {
	sess, err := api.opts.TrainingSvc.GetByID(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *trainingApi) update(ctx echo.Context) error {
	var data training.UpdateSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSession")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	sess, err := api.opts.TrainingSvc.Update(reqCtx, intParam(ctx, "id"), data)
	if err != nil {
		return err
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "session.update", "session", sess.ID, "", ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *trainingApi) enroll(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	sessionID := intParam(ctx, "id")
	enr, err := api.opts.TrainingSvc.Enroll(reqCtx, sessionID, ctxUsr.ID)
	if err != nil {
		return err
	}

	if sess, err := api.opts.TrainingSvc.GetByID(reqCtx, sessionID); err == nil {
		api.opts.NotifSvc.SendEnrollmentConfirmation(reqCtx, ctxUsr, sess.Title, sess.SessionDate)
	}
	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "session.enroll", "enrollment", enr.ID, "", ctx.RealIP())

	return ctx.JSON(http.StatusCreated, enr)
}

func (api *trainingApi) cancelEnrollment(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	sessionID := intParam(ctx, "id")
	if err = api.opts.TrainingSvc.CancelEnrollment(reqCtx, sessionID, ctxUsr.ID); err != nil {
		return err
	}

	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "session.cancel_enrollment", "session", sessionID, "", ctx.RealIP())
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trainingApi) enrollments(ctx echo.Context) error {
	enrollments, err := api.opts.TrainingSvc.SessionEnrollments(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	if enrollments == nil {
		enrollments = []training.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *trainingApi) myEnrollments(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	enrollments, err := api.opts.TrainingSvc.TraineeEnrollments(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	if enrollments == nil {
		enrollments = []training.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *trainingApi) markAttendance(ctx echo.Context) error {
	var data AttendanceRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceRequest")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	sessionID := intParam(ctx, "id")
	if err := api.opts.TrainingSvc.MarkAttendance(reqCtx, sessionID, data.TraineeID, data.Attended); err != nil {
		return err
	}

	// attendance feeds the composite score
	if _, err := api.opts.RankingSvc.Calculate(reqCtx, data.TraineeID, sessionID); err != nil {
		return errors.Wrap(err, "recalculating ranking")
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "session.mark_attendance", "session", sessionID, "", ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Attendance recorded."})
}

type AttendanceRequest struct {
	TraineeID int  `json:"trainee_id" validate:"required"`
	Attended  bool `json:"attended"`
}

func (ar *AttendanceRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(ar)
}

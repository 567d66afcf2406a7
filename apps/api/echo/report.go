package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core/report"
	"github.com/trezcool/kahawa/core/user"
)

type reportApi struct {
	opts *Options
}

func registerReportAPI(g *echo.Group, jwt, session echo.MiddlewareFunc, opts *Options) {
	api := reportApi{opts: opts}
	staff := roleMiddleware(user.RoleTrainer, user.RoleAdmin)

	rg := g.Group("/reports", jwt, session)
	rg.GET("/dashboard", api.dashboard)
	rg.GET("/sessions/:id/attendance", api.sessionAttendance, staff)
	rg.GET("/sessions/:id/performance", api.sessionPerformance, staff)
	rg.GET("/enrollment-trends", api.enrollmentTrends, staff)
	rg.GET("/certificates", api.certificateStats, staff)
}

// dashboard serves the staff overview to trainers and admins, and a personal
// progress summary to trainees.
func (api *reportApi) dashboard(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	if ctxUsr.IsStaff() {
		dash, err := api.opts.ReportSvc.StaffDashboard(reqCtx)
		if err != nil {
			return errors.Wrap(err, "getting staff dashboard")
		}
		return ctx.JSON(http.StatusOK, dash)
	}

	dash, err := api.opts.ReportSvc.TraineeDashboard(reqCtx, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "getting trainee dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *reportApi) sessionAttendance(ctx echo.Context) error {
	rows, err := api.opts.ReportSvc.SessionAttendance(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return errors.Wrap(err, "getting session attendance")
	}
	if rows == nil {
		rows = []report.AttendanceRow{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *reportApi) sessionPerformance(ctx echo.Context) error {
	rows, err := api.opts.ReportSvc.SessionPerformance(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return errors.Wrap(err, "getting session performance")
	}
	if rows == nil {
		rows = []report.PerformanceRow{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *reportApi) enrollmentTrends(ctx echo.Context) error {
	var from, to time.Time
	if v := ctx.QueryParam("from"); v != "" {
		t, err := time.Parse("2006-01", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "from must be formatted as YYYY-MM"})
		}
		from = t
	}
	if v := ctx.QueryParam("to"); v != "" {
		t, err := time.Parse("2006-01", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "to must be formatted as YYYY-MM"})
		}
		to = t
	}

	points, err := api.opts.ReportSvc.EnrollmentTrends(ctx.Request().Context(), from, to)
	if err != nil {
		return errors.Wrap(err, "getting enrollment trends")
	}
	if points == nil {
		points = []report.EnrollmentTrendPoint{}
	}
	return ctx.JSON(http.StatusOK, points)
}

func (api *reportApi) certificateStats(ctx echo.Context) error {
	stats, err := api.opts.ReportSvc.CertificateStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting certificate stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

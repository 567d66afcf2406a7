package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core/ranking"
	"github.com/trezcool/kahawa/core/user"
)

type rankingApi struct {
	opts *Options
}

func registerRankingAPI(g *echo.Group, jwt, session echo.MiddlewareFunc, opts *Options) {
	api := rankingApi{opts: opts}
	staff := roleMiddleware(user.RoleTrainer, user.RoleAdmin)

	// middleware is attached per-route: a middleware-bearing Group registers a
	// catch-all route on its prefix, which would overwrite the GET/PUT
	// /sessions/:id handlers registered by the training API.
	sg := g.Group("/sessions/:id")
	sg.GET("/leaderboard", api.leaderboard, jwt, session)
	sg.GET("/rankings", api.sessionRankings, jwt, session, staff)
	sg.GET("/rankings/me", api.myRanking, jwt, session, roleMiddleware(user.RoleTrainee))
	sg.POST("/rankings/recalculate", api.recalculate, jwt, session, staff)
	sg.POST("/assessments", api.assess, jwt, session, staff)
	sg.GET("/assessments/:trainee_id", api.traineeAssessments, jwt, session, staff)
}

func (api *rankingApi) leaderboard(ctx echo.Context) error {
	limit := intQuery(ctx, "limit")
	entries, err := api.opts.RankingSvc.Leaderboard(ctx.Request().Context(), intParam(ctx, "id"), limit)
	if err != nil {
		return errors.Wrap(err, "getting leaderboard")
	}
	if entries == nil {
		entries = []ranking.LeaderboardEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *rankingApi) sessionRankings(ctx echo.Context) error {
	rankings, err := api.opts.RankingSvc.SessionRankings(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return errors.Wrap(err, "listing rankings")
	}
	if rankings == nil {
		rankings = []ranking.Ranking{}
	}
	return ctx.JSON(http.StatusOK, rankings)
}

func (api *rankingApi) myRanking(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rk, err := api.opts.RankingSvc.GetRanking(ctx.Request().Context(), ctxUsr.ID, intParam(ctx, "id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rk)
}

type recalculateResponse struct {
	Recalculated int `json:"recalculated"`
}

func (api *rankingApi) recalculate(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	sessionID := intParam(ctx, "id")
	n, err := api.opts.RankingSvc.RecalculateAll(reqCtx, sessionID)
	if err != nil {
		return err
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "ranking.recalculate", "training_session", sessionID, "", ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, recalculateResponse{Recalculated: n})
}

func (api *rankingApi) assess(ctx echo.Context) error {
	var na ranking.NewAssessment
	if err := ctx.Bind(&na); err != nil {
		return errors.Wrap(err, "binding NewAssessment")
	}
	if err := na.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	asmt, err := api.opts.RankingSvc.Assess(reqCtx, ctxUsr.ID, intParam(ctx, "id"), na)
	if err != nil {
		return err
	}

	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "ranking.assess", "assessment", asmt.ID, "", ctx.RealIP())
	return ctx.JSON(http.StatusCreated, asmt)
}

func (api *rankingApi) traineeAssessments(ctx echo.Context) error {
	asmts, err := api.opts.RankingSvc.TraineeAssessments(
		ctx.Request().Context(), intParam(ctx, "trainee_id"), intParam(ctx, "id"))
	if err != nil {
		return errors.Wrap(err, "listing assessments")
	}
	if asmts == nil {
		asmts = []ranking.Assessment{}
	}
	return ctx.JSON(http.StatusOK, asmts)
}

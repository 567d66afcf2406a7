package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core/queue"
	"github.com/trezcool/kahawa/core/user"
)

type queueApi struct {
	opts *Options
}

func registerQueueAPI(g *echo.Group, jwt, session echo.MiddlewareFunc, opts *Options) {
	api := queueApi{opts: opts}

	sg := g.Group("/sessions/:id/queue", jwt, session)
	sg.POST("", api.join, roleMiddleware(user.RoleTrainee))
	sg.GET("", api.list, roleMiddleware(user.RoleTrainer, user.RoleAdmin))
	sg.POST("/process", api.processNext, roleMiddleware(user.RoleTrainer, user.RoleAdmin))

	qg := g.Group("/queue", jwt, session)
	qg.GET("/me", api.myQueues, roleMiddleware(user.RoleTrainee))
	qg.DELETE("/:id", api.leave, roleMiddleware(user.RoleTrainee))
}

func (api *queueApi) join(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	sessionID := intParam(ctx, "id")
	// the session must exist and be known before queueing for it
	if _, err = api.opts.TrainingSvc.GetByID(reqCtx, sessionID); err != nil {
		return err
	}

	entry, err := api.opts.QueueSvc.Join(reqCtx, sessionID, ctxUsr.ID)
	if err != nil {
		return err
	}

	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "queue.join", "queue_entry", entry.ID, "", ctx.RealIP())
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *queueApi) leave(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	entryID := intParam(ctx, "id")
	if err = api.opts.QueueSvc.Leave(reqCtx, entryID, ctxUsr.ID); err != nil {
		return err
	}

	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "queue.leave", "queue_entry", entryID, "", ctx.RealIP())
	return ctx.NoContent(http.StatusNoContent)
}

func (api *queueApi) list(ctx echo.Context) error {
	entries, err := api.opts.QueueSvc.ListForSession(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return errors.Wrap(err, "listing queue")
	}
	if entries == nil {
		entries = []queue.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *queueApi) myQueues(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	entries, err := api.opts.QueueSvc.MyQueues(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "listing queues")
	}
	if entries == nil {
		entries = []queue.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *queueApi) processNext(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	entry, err := api.opts.QueueSvc.ProcessNext(reqCtx, intParam(ctx, "id"))
	if err != nil {
		return err
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "queue.process", "queue_entry", entry.ID, "", ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, entry)
}

package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/audit"
	"github.com/trezcool/kahawa/core/notification"
	"github.com/trezcool/kahawa/core/user"
)

type communicationApi struct {
	opts *Options
}

func registerCommunicationAPI(g *echo.Group, jwt, session echo.MiddlewareFunc, opts *Options) {
	api := communicationApi{opts: opts}
	admin := roleMiddleware(user.RoleAdmin)

	g.GET("/audit", api.queryAudit, jwt, session, admin)
	g.GET("/notifications", api.queryNotifications, jwt, session, admin)
	g.POST("/broadcast", api.broadcast, jwt, session, admin)
}

func (api *communicationApi) queryAudit(ctx echo.Context) error {
	filter := audit.QueryFilter{
		UserID:     intQuery(ctx, "user_id"),
		Action:     ctx.QueryParam("action"),
		EntityType: ctx.QueryParam("entity_type"),
		Limit:      intQuery(ctx, "limit"),
	}
	if v := ctx.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "from must be an RFC 3339 timestamp"})
		}
		filter.From = t
	}
	if v := ctx.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "to must be an RFC 3339 timestamp"})
		}
		filter.To = t
	}

	entries, err := api.opts.AuditSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying audit log")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *communicationApi) queryNotifications(ctx echo.Context) error {
	filter := notification.QueryFilter{
		UserID:  intQuery(ctx, "user_id"),
		Channel: ctx.QueryParam("channel"),
		Limit:   intQuery(ctx, "limit"),
	}

	notifs, err := api.opts.NotifSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}

type BroadcastRequest struct {
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

func (br *BroadcastRequest) Validate(validate *validator.Validate) error {
	br.Subject = core.CleanString(br.Subject)
	br.Body = core.CleanString(br.Body)
	return validate.Struct(br)
}

type broadcastResponse struct {
	Recipients int `json:"recipients"`
}

func (api *communicationApi) broadcast(ctx echo.Context) error {
	var req BroadcastRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding BroadcastRequest")
	}
	if err := req.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	users, err := api.opts.UserSvc.QueryAll(reqCtx)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}

	n := api.opts.NotifSvc.Broadcast(reqCtx, users, req.Subject, req.Body)

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "broadcast.send", "broadcast", 0, req.Subject, ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, broadcastResponse{Recipients: n})
}

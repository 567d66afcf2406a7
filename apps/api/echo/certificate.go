package echoapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/certificate"
	"github.com/trezcool/kahawa/core/user"
)

type certificateApi struct {
	opts *Options
}

func registerCertificateAPI(g *echo.Group, jwt, session echo.MiddlewareFunc, opts *Options) {
	api := certificateApi{opts: opts}
	staff := roleMiddleware(user.RoleTrainer, user.RoleAdmin)
	trainee := roleMiddleware(user.RoleTrainee)

	// anyone holding a certificate number or its QR payload may verify it,
	// no account needed
	g.GET("/certificates/verify", api.verify)
	g.GET("/certificates/verify-qr", api.verifyQR)

	cg := g.Group("/certificates", jwt, session)
	cg.POST("", api.issue, staff)
	cg.GET("/me", api.mine, trainee)
	cg.GET("/collections/pending", api.pendingCollections, staff)
	cg.GET("/collections/me", api.myReadyCollections, trainee)
	cg.POST("/collections/:id/ready", api.markReady, staff)
	cg.POST("/collections/:id/collect", api.collect, staff)
	cg.GET("/:id", api.retrieve)
	cg.GET("/:id/collection", api.collectionStatus)
	cg.POST("/:id/revoke", api.revoke, roleMiddleware(user.RoleAdmin))
}

func (api *certificateApi) issue(ctx echo.Context) error {
	var ic certificate.IssueCertificate
	if err := ctx.Bind(&ic); err != nil {
		return errors.Wrap(err, "binding IssueCertificate")
	}
	if err := ic.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	cert, err := api.opts.CertSvc.Issue(reqCtx, ctxUsr.ID, ic)
	if err != nil {
		return err
	}

	if holder, err := api.opts.UserSvc.GetByID(reqCtx, cert.TraineeID); err == nil {
		api.opts.NotifSvc.SendCertificateIssued(reqCtx, holder, cert.Number, cert.CourseName)
	} else {
		api.opts.Logger.Error("looking up certificate holder", err)
	}

	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "certificate.issue", "certificate", cert.ID, cert.Number, ctx.RealIP())
	return ctx.JSON(http.StatusCreated, cert)
}

func (api *certificateApi) verify(ctx echo.Context) error {
	number := ctx.QueryParam("number")
	if number == "" {
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "number query parameter is required"})
	}
	return api.verifyNumber(ctx, number)
}

// verifyQR answers a verification request carrying the scanned QR payload:
// a JSON object with a certificate_number field, possibly base64-encoded.
func (api *certificateApi) verifyQR(ctx echo.Context) error {
	payload := ctx.QueryParam("payload")
	if payload == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "payload", Error: "this field is required"})
	}
	if decoded, err := base64.StdEncoding.DecodeString(payload); err == nil {
		payload = string(decoded)
	}
	var qr struct {
		Number string `json:"certificate_number"`
	}
	if err := json.Unmarshal([]byte(payload), &qr); err != nil || qr.Number == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "payload", Error: "invalid qr payload"})
	}
	return api.verifyNumber(ctx, qr.Number)
}

func (api *certificateApi) verifyNumber(ctx echo.Context, number string) error {
	reqCtx := ctx.Request().Context()
	res, err := api.opts.CertSvc.Verify(reqCtx, number)
	if err != nil {
		return errors.Wrap(err, "verifying certificate")
	}

	action := "certificate.verify"
	if !res.Valid {
		action = "certificate.verify_failed"
	}
	api.opts.AuditSvc.Log(reqCtx, 0, action, "certificate", res.ID, number, ctx.RealIP())
	return ctx.JSON(http.StatusOK, res)
}

type certificateResponse struct {
	certificate.Certificate
	QRCode string `json:"qr_code,omitempty"`
}

func (api *certificateApi) retrieve(ctx echo.Context) error {
	cert, err := api.opts.CertSvc.GetByID(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return err
	}

	resp := certificateResponse{Certificate: cert}
	if qr, err := api.opts.QRSvc.CertificateQR(cert.Number); err == nil {
		resp.QRCode = qr
	} else {
		api.opts.Logger.Error("generating certificate QR code", err)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *certificateApi) mine(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	certs, err := api.opts.CertSvc.TraineeCertificates(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "listing certificates")
	}
	if certs == nil {
		certs = []certificate.Certificate{}
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *certificateApi) revoke(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	cert, err := api.opts.CertSvc.Revoke(reqCtx, intParam(ctx, "id"))
	if err != nil {
		return err
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "certificate.revoke", "certificate", cert.ID, cert.Number, ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) markReady(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	coll, err := api.opts.CertSvc.MarkReady(reqCtx, intParam(ctx, "id"))
	if err != nil {
		return err
	}

	if holder, err := api.opts.UserSvc.GetByID(reqCtx, coll.TraineeID); err == nil {
		api.opts.NotifSvc.SendCertificateReady(reqCtx, holder, coll.CertificateNumber, coll.ReferenceCode)
	} else {
		api.opts.Logger.Error("looking up certificate holder", err)
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "certificate.ready", "certificate_collection", coll.ID, coll.CertificateNumber, ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, coll)
}

func (api *certificateApi) collect(ctx echo.Context) error {
	var cc certificate.CollectCertificate
	if err := ctx.Bind(&cc); err != nil {
		return errors.Wrap(err, "binding CollectCertificate")
	}
	if err := cc.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	coll, err := api.opts.CertSvc.Collect(reqCtx, intParam(ctx, "id"), ctxUsr.ID, cc)
	if err != nil {
		return err
	}

	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "certificate.collect", "certificate_collection", coll.ID, coll.CertificateNumber, ctx.RealIP())
	return ctx.JSON(http.StatusOK, coll)
}

func (api *certificateApi) collectionStatus(ctx echo.Context) error {
	coll, err := api.opts.CertSvc.CollectionStatus(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, coll)
}

func (api *certificateApi) pendingCollections(ctx echo.Context) error {
	colls, err := api.opts.CertSvc.PendingCollections(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing pending collections")
	}
	if colls == nil {
		colls = []certificate.Collection{}
	}
	return ctx.JSON(http.StatusOK, colls)
}

func (api *certificateApi) myReadyCollections(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	colls, err := api.opts.CertSvc.MyReadyCollections(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "listing ready collections")
	}
	if colls == nil {
		colls = []certificate.Collection{}
	}
	return ctx.JSON(http.StatusOK, colls)
}

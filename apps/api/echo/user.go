package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/user"
)

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

type userApi struct {
	opts *Options
}

func registerUserAPI(g *echo.Group, jwt, session echo.MiddlewareFunc, opts *Options) {
	api := userApi{opts: opts}

	ug := g.Group("/users")

	// un-authed endpoints
	// TODO: rate limit `/login`, `/password-reset` & `/password-reset-confirm`
	ug.POST("/register", api.register)
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", jwt, session)
	ag.POST("/logout", api.logout)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
	ag.PUT("/me", api.updateMe)

	ag.GET("/2fa/status", api.twoFactorStatus, roleMiddleware(user.RoleTrainer, user.RoleAdmin))
	ag.POST("/2fa/setup", api.setupTwoFactor, roleMiddleware(user.RoleTrainer, user.RoleAdmin))
	ag.POST("/2fa/enable", api.enableTwoFactor, roleMiddleware(user.RoleTrainer, user.RoleAdmin))
	ag.POST("/2fa/disable", api.disableTwoFactor, roleMiddleware(user.RoleTrainer, user.RoleAdmin))

	ag.GET("", api.query, roleMiddleware(user.RoleTrainer, user.RoleAdmin))
	ag.POST("/staff", api.createStaff, roleMiddleware(user.RoleAdmin))
	ag.GET("/roles", api.queryRoles, roleMiddleware(user.RoleAdmin))

	// detail endpoints
	dg := ag.Group("/:id", ctxUserOrAdminMiddleware(api.opts.UserSvc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, roleMiddleware(user.RoleAdmin))
}

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.opts.UserSvc.Register(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}

	api.opts.NotifSvc.SendWelcome(reqCtx, usr)
	api.opts.AuditSvc.Log(reqCtx, usr.ID, "user.register", "user", usr.ID, "", ctx.RealIP())

	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.opts.UserSvc.Authenticate(reqCtx, data.Email, data.Password, data.TwoFactorCode)
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrInvalidCredentials:
			return errAuthenticationFailed
		case user.ErrTwoFactorRequired:
			return ctx.JSON(http.StatusUnauthorized, echo.Map{
				"error":               user.ErrTwoFactorRequired.Error(),
				"two_factor_required": true,
			})
		}
		return errors.Wrap(err, "authenticating")
	}

	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	api.opts.Sessions.Create(reqCtx, usr, token, ctx.RealIP(), ctx.Request().UserAgent())
	api.opts.AuditSvc.Log(reqCtx, usr.ID, "user.login", "user", usr.ID, "", ctx.RealIP())

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) logout(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	api.opts.Sessions.Destroy(reqCtx, rawToken(ctx))
	if claims, err := getContextClaims(ctx); err == nil {
		api.opts.AuditSvc.Log(reqCtx, claims.UserID, "user.logout", "user", claims.UserID, "", ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Logged out."})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	oldToken := rawToken(ctx)
	token, err := refreshToken(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}

	// carry the login session over to the new token
	reqCtx := ctx.Request().Context()
	if usr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.Sessions.Destroy(reqCtx, oldToken)
		api.opts.Sessions.Create(reqCtx, usr, token, ctx.RealIP(), ctx.Request().UserAgent())
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	// `Status` can only be changed by admin
	if data.Status != "" {
		return errHttpForbidden
	}
	if err = data.Validate(usr, api.opts.Validate); err != nil {
		return err
	}

	usr, err = api.opts.UserSvc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, token, err := api.opts.UserSvc.RequestPasswordReset(reqCtx, data.Email)
	if err == nil {
		api.opts.NotifSvc.SendPasswordReset(reqCtx, usr, token)
	} else if errors.Cause(err) != user.ErrNotFound {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.opts.UserSvc.ResetPassword(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "resetting password")
	}
	api.opts.AuditSvc.Log(reqCtx, usr.ID, "user.password_reset", "user", usr.ID, "", ctx.RealIP())
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) createStaff(ctx echo.Context) error {
	var data user.NewStaffUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStaffUser")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, tempPwd, err := api.opts.UserSvc.CreateStaff(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "creating staff user")
	}

	api.opts.NotifSvc.SendStaffInvitation(reqCtx, usr, tempPwd)
	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "user.create_staff", "user", usr.ID, usr.Role, ctx.RealIP())
	}
	return ctx.JSON(http.StatusCreated, usr)
}

// columns user listings may be ordered by
var userOrderFields = map[string]bool{
	"email":         true,
	"first_name":    true,
	"last_name":     true,
	"role":          true,
	"created_at":    true,
	"last_login_at": true,
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()

	var ord Ordering
	ord.Bind(ctx)
	for _, o := range ord.Orderings {
		if userOrderFields[o.Field] {
			filter.Orderings = append(filter.Orderings, o)
		}
	}

	var users []user.User
	var err error
	reqCtx := ctx.Request().Context()
	if filter.IsEmpty() {
		users, err = api.opts.UserSvc.QueryAll(reqCtx)
	} else {
		users, err = api.opts.UserSvc.Filter(reqCtx, *filter)
	}
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err := data.Validate(usr, api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.opts.UserSvc.Update(reqCtx, usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "user.update", "user", usr.ID, "", ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.AllRoles)
}

// 2FA

func (api *userApi) twoFactorStatus(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"enabled": usr.TwoFactorEnabled})
}

func (api *userApi) setupTwoFactor(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	secret, url, err := api.opts.UserSvc.SetupTwoFactor(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "setting up two-factor authentication")
	}

	qr, err := api.opts.QRSvc.OTPAuthQR(url)
	if err != nil {
		return errors.Wrap(err, "rendering qr code")
	}
	return ctx.JSON(http.StatusOK, TwoFactorSetupResponse{Secret: secret, OTPAuthURL: url, QRCode: qr})
}

func (api *userApi) enableTwoFactor(ctx echo.Context) error {
	return api.toggleTwoFactor(ctx, true)
}

func (api *userApi) disableTwoFactor(ctx echo.Context) error {
	return api.toggleTwoFactor(ctx, false)
}

func (api *userApi) toggleTwoFactor(ctx echo.Context, enable bool) error {
	usr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data TwoFactorCodeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TwoFactorCodeRequest")
	}
	if err = data.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	action := "user.2fa_enable"
	if enable {
		err = api.opts.UserSvc.EnableTwoFactor(reqCtx, usr, data.Code)
	} else {
		action = "user.2fa_disable"
		err = api.opts.UserSvc.DisableTwoFactor(reqCtx, usr, data.Code)
	}
	if err != nil {
		return err
	}

	api.opts.AuditSvc.Log(reqCtx, usr.ID, action, "user", usr.ID, "", ctx.RealIP())
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Two-factor authentication updated."})
}

func ctxUserOrAdminMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			id := intParam(ctx, "id")
			if id == ctxUsr.ID || ctxUsr.IsStaff() {
				if usr, err := svc.GetByID(ctx.Request().Context(), id); err == nil {
					ctx.Set("object", usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

type (
	LoginRequest struct {
		Email         string `json:"email" validate:"required,email"`
		Password      string `json:"password" validate:"required"`
		TwoFactorCode string `json:"two_factor_code"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	TwoFactorCodeRequest struct {
		Code string `json:"code" validate:"required"`
	}

	TwoFactorSetupResponse struct {
		Secret     string `json:"secret"`
		OTPAuthURL string `json:"otpauth_url"`
		QRCode     string `json:"qr_code"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (tr *TwoFactorCodeRequest) Validate(validate *validator.Validate) error {
	tr.Code = core.CleanString(tr.Code)
	return validate.Struct(tr)
}

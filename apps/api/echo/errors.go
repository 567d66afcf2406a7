package echoapi

import (
	"net/http"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/certificate"
	"github.com/trezcool/kahawa/core/exam"
	"github.com/trezcool/kahawa/core/queue"
	"github.com/trezcool/kahawa/core/ranking"
	"github.com/trezcool/kahawa/core/training"
	"github.com/trezcool/kahawa/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errSessionExpired       = echo.NewHTTPError(http.StatusUnauthorized, "session expired")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// domainErrStatuses maps domain sentinel errors to HTTP statuses. Anything
// not listed here (and not a validation error) is a server error.
var domainErrStatuses = map[error]int{
	user.ErrNotFound:             http.StatusNotFound,
	user.ErrEmailExists:          http.StatusConflict,
	user.ErrInvalidCredentials:   http.StatusBadRequest,
	user.ErrAccountInactive:      http.StatusForbidden,
	user.ErrInvalidTwoFactorCode: http.StatusBadRequest,
	user.ErrTwoFactorNotSetUp:    http.StatusBadRequest,
	user.ErrTwoFactorNotEnabled:  http.StatusBadRequest,
	user.ErrInvalidResetToken:    http.StatusBadRequest,

	training.ErrNotFound:           http.StatusNotFound,
	training.ErrEnrollmentNotFound: http.StatusNotFound,
	training.ErrAlreadyEnrolled:    http.StatusConflict,
	training.ErrSessionFull:        http.StatusConflict,
	training.ErrSessionClosed:      http.StatusBadRequest,

	queue.ErrNotFound:      http.StatusNotFound,
	queue.ErrForbidden:     http.StatusForbidden,
	queue.ErrAlreadyQueued: http.StatusConflict,
	queue.ErrEmptyQueue:    http.StatusNotFound,

	ranking.ErrNotFound: http.StatusNotFound,

	exam.ErrNotFound:         http.StatusNotFound,
	exam.ErrQuestionNotFound: http.StatusNotFound,
	exam.ErrAttemptNotFound:  http.StatusNotFound,
	exam.ErrExamInactive:     http.StatusBadRequest,
	exam.ErrAlreadyAttempted: http.StatusConflict,
	exam.ErrAlreadySubmitted: http.StatusConflict,
	exam.ErrForbidden:        http.StatusForbidden,

	certificate.ErrNotFound:           http.StatusNotFound,
	certificate.ErrCollectionNotFound: http.StatusNotFound,
	certificate.ErrAlreadyIssued:      http.StatusConflict,
	certificate.ErrAlreadyRevoked:     http.StatusConflict,
	certificate.ErrAlreadyCollected:   http.StatusConflict,
	certificate.ErrNotReady:           http.StatusConflict,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		// errors with unhashable dynamic types (e.g. validator.ValidationErrors,
		// a slice) cannot be used as map keys; they are handled by the switch below.
		var status int
		var known bool
		if t := reflect.TypeOf(cause); t != nil && t.Comparable() {
			status, known = domainErrStatuses[cause]
		}
		if known {
			code = status
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.UserID
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

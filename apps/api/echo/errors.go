package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/gateway"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/tenant"
	"github.com/trezcool/feeledger/core/user"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired     = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
)

const alreadyProcessed = "already_processed"

// errorStatuses maps domain errors to their HTTP status; the error text is the response message.
var errorStatuses = map[error]int{
	tenant.ErrUnauthenticated:      http.StatusUnauthorized,
	tenant.ErrUnresolvedRole:       http.StatusForbidden,
	tenant.ErrForbidden:            http.StatusForbidden,
	user.ErrInvalidCredential:      http.StatusBadRequest,
	user.ErrAccountDisabled:        http.StatusForbidden,
	user.ErrNotFound:               http.StatusNotFound,
	fee.ErrNotFound:                http.StatusNotFound,
	fee.ErrCategoryNotFound:        http.StatusNotFound,
	fee.ErrStudentNotFound:         http.StatusNotFound,
	fee.ErrAcademicYearNotFound:    http.StatusNotFound,
	fee.ErrDuplicateFee:            http.StatusConflict,
	payment.ErrNotFound:            http.StatusNotFound,
	payment.ErrAlreadyPaid:         http.StatusBadRequest,
	payment.ErrOverpayment:         http.StatusBadRequest,
	payment.ErrInvalidAmount:       http.StatusBadRequest,
	payment.ErrTransactionConflict: http.StatusConflict,
	gateway.ErrTransactionNotFound: http.StatusNotFound,
	gateway.ErrPaymentRejected:     http.StatusBadGateway,
	gateway.ErrGatewayUnavailable:  http.StatusServiceUnavailable,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
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
		case *payment.RecordingFailedError:
			logger.Error("recording payment", err, getTenantContext(ctx))
			code = http.StatusServiceUnavailable
			message = echo.Map{"error": "payment could not be recorded, please retry", "retry": true}
		default:
			if cause == payment.ErrDuplicateTransaction {
				code = http.StatusOK
				message = echo.Map{"status": alreadyProcessed}
				break
			}
			if status, ok := errorStatuses[cause]; ok {
				code = status
				message = cause.Error()
				if status == http.StatusServiceUnavailable {
					message = echo.Map{"error": cause.Error(), "retry": true}
				}
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), getTenantContext(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
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

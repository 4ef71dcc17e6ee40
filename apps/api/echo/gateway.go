package echoapi

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/gateway"
)

const paymentResultPath = "/payments/result"

type gatewayApi struct {
	reconciler      *gateway.Reconciler
	frontendBaseURL string
	logger          core.Logger
}

// registerGatewayAPI mounts the provider callbacks. They carry no user token:
// the transaction id is the only input and every outcome is re-checked with the provider.
func registerGatewayAPI(g *echo.Group, reconciler *gateway.Reconciler, frontendBaseURL string, logger core.Logger) {
	api := gatewayApi{
		reconciler:      reconciler,
		frontendBaseURL: frontendBaseURL,
		logger:          logger,
	}

	gg := g.Group("/gateway")
	gg.GET("/callback/:txnId", api.redirectCallback)
	gg.POST("/callback/:txnId", api.serverCallback)
}

// redirectCallback is hit by the payer's browser; it always ends on the frontend result page.
func (api *gatewayApi) redirectCallback(ctx echo.Context) error {
	txnID := ctx.Param("txnId")
	status := string(gateway.StatusPending)

	res, err := api.reconciler.VerifyAndApply(ctx.Request().Context(), txnID)
	switch {
	case err == nil:
		status = string(res.Status)
	case errors.Is(err, gateway.ErrTransactionNotFound):
		status = "NOT_FOUND"
	default:
		api.logger.Warn("verifying transaction on redirect", err, map[string]interface{}{"transaction_id": txnID})
		if res.Status != "" {
			status = string(res.Status)
		}
	}

	q := url.Values{}
	q.Set("transaction_id", txnID)
	q.Set("status", status)
	return ctx.Redirect(http.StatusFound, api.frontendBaseURL+paymentResultPath+"?"+q.Encode())
}

// callbackAck is all an unauthenticated caller learns about a transaction.
type callbackAck struct {
	TransactionID string         `json:"transaction_id"`
	Success       bool           `json:"success"`
	Status        gateway.Status `json:"status"`
	State         gateway.State  `json:"state"`
}

// serverCallback is the provider's server-to-server notification.
func (api *gatewayApi) serverCallback(ctx echo.Context) error {
	res, err := api.reconciler.VerifyAndApply(ctx.Request().Context(), ctx.Param("txnId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, callbackAck{
		TransactionID: res.TransactionID,
		Success:       res.Success,
		Status:        res.Status,
		State:         res.State,
	})
}

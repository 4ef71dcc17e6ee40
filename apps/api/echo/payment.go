package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeledger/core/gateway"
)

type paymentApi struct {
	reconciler *gateway.Reconciler
}

func registerPaymentAPI(g *echo.Group, jwt, tenantScope echo.MiddlewareFunc, reconciler *gateway.Reconciler) {
	api := paymentApi{reconciler: reconciler}

	pg := g.Group("/payments", jwt, tenantScope)
	pg.GET("/transactions/:txnId", api.transactionStatus)
}

// transactionStatus is polled by the client after checkout; it never calls the provider.
func (api *paymentApi) transactionStatus(ctx echo.Context) error {
	res, err := api.reconciler.Status(ctx.Request().Context(), getTenantContext(ctx), ctx.Param("txnId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/report"
	"github.com/trezcool/feeledger/core/tenant"
)

type reportApi struct {
	fees *fee.Service
	svc  *report.Service
}

func registerReportAPI(g *echo.Group, jwt, tenantScope echo.MiddlewareFunc, fees *fee.Service, svc *report.Service) {
	api := reportApi{fees: fees, svc: svc}

	rg := g.Group("/reports", jwt, tenantScope)
	rg.GET("/monthly", api.monthly)
	rg.GET("/categories", api.categories)
	rg.GET("/summary", api.summary)
}

func (api *reportApi) yearParam(ctx echo.Context) (tenant.Context, string, error) {
	tc := getTenantContext(ctx)
	if err := tc.Require(tenant.CapViewReports); err != nil {
		return tc, "", err
	}
	yearID, err := academicYearParam(ctx, api.fees, tc)
	return tc, yearID, err
}

// Handlers

func (api *reportApi) monthly(ctx echo.Context) error {
	tc, yearID, err := api.yearParam(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.MonthlyCollections(ctx.Request().Context(), tc, yearID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *reportApi) categories(ctx echo.Context) error {
	tc, yearID, err := api.yearParam(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.CategoryDistribution(ctx.Request().Context(), tc, yearID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *reportApi) summary(ctx echo.Context) error {
	tc, yearID, err := api.yearParam(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.OrganizationSummary(ctx.Request().Context(), tc, yearID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/gateway"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/tenant"
)

const idempotencyKeyHeader = "Idempotency-Key"

type feeApi struct {
	svc        *fee.Service
	recorder   *payment.Recorder
	reconciler *gateway.Reconciler
	validate   *validator.Validate
}

func registerFeeAPI(
	g *echo.Group,
	jwt, tenantScope echo.MiddlewareFunc,
	svc *fee.Service,
	recorder *payment.Recorder,
	reconciler *gateway.Reconciler,
	validate *validator.Validate,
) {
	api := feeApi{
		svc:        svc,
		recorder:   recorder,
		reconciler: reconciler,
		validate:   validate,
	}

	fg := g.Group("/fees", jwt, tenantScope)
	fg.GET("", api.query)
	fg.POST("", api.create)
	fg.GET("/summary", api.summary)
	fg.POST("/reminders", api.sendReminders)
	fg.GET("/:id", api.retrieve)
	fg.GET("/:id/payments", api.listPayments)
	fg.POST("/:id/payments", api.recordPayment)
	fg.POST("/:id/checkout", api.checkout)

	cg := g.Group("/fee-categories", jwt, tenantScope)
	cg.GET("", api.queryCategories)
	cg.POST("", api.createCategory)

	sg := g.Group("/students", jwt, tenantScope)
	sg.POST("", api.createStudent)

	yg := g.Group("/academic-years", jwt, tenantScope)
	yg.POST("", api.createAcademicYear)
	yg.GET("/current", api.currentAcademicYear)
}

// academicYearParam falls back to the organization's current academic year.
func academicYearParam(ctx echo.Context, svc *fee.Service, tc tenant.Context) (string, error) {
	if id := ctx.QueryParam("academic_year_id"); id != "" {
		return id, nil
	}
	year, err := svc.CurrentAcademicYear(ctx.Request().Context(), tc)
	if err != nil {
		return "", err
	}
	return year.ID, nil
}

// Handlers

func (api *feeApi) query(ctx echo.Context) error {
	var filter fee.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to fee.QueryFilter")
	}
	var ord Ordering
	if err := ord.Bind(ctx, fee.OrderingFields); err != nil {
		return err
	}

	fees, err := api.svc.Query(ctx.Request().Context(), getTenantContext(ctx), filter, ord.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *feeApi) create(ctx echo.Context) error {
	var data fee.NewFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to fee.NewFee")
	}

	f, err := api.svc.CreateFee(ctx.Request().Context(), getTenantContext(ctx), data, api.validate)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *feeApi) retrieve(ctx echo.Context) error {
	f, err := api.svc.Get(ctx.Request().Context(), getTenantContext(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *feeApi) summary(ctx echo.Context) error {
	tc := getTenantContext(ctx)
	if err := tc.Require(tenant.CapViewReports); err != nil {
		return err
	}
	yearID, err := academicYearParam(ctx, api.svc, tc)
	if err != nil {
		return err
	}

	s, err := api.svc.GetFeeSummary(ctx.Request().Context(), tc, tc.OrganizationID, yearID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *feeApi) sendReminders(ctx echo.Context) error {
	tc := getTenantContext(ctx)
	if err := tc.Require(tenant.CapManageFees); err != nil {
		return err
	}
	yearID, err := academicYearParam(ctx, api.svc, tc)
	if err != nil {
		return err
	}

	res, err := api.svc.SendReminders(ctx.Request().Context(), tc, yearID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *feeApi) listPayments(ctx echo.Context) error {
	payments, err := api.recorder.ListForFee(ctx.Request().Context(), getTenantContext(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

// recordPayment answers a replayed Idempotency-Key with the payment recorded the first time.
func (api *feeApi) recordPayment(ctx echo.Context) error {
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to payment.NewPayment")
	}
	data.CorrelationKey = ctx.Request().Header.Get(idempotencyKeyHeader)

	p, err := api.recorder.RecordOffline(ctx.Request().Context(), getTenantContext(ctx), ctx.Param("id"), data, api.validate)
	if errors.Is(err, payment.ErrDuplicateTransaction) {
		return ctx.JSON(http.StatusOK, AlreadyProcessedResponse{Status: alreadyProcessed, Payment: &p})
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *feeApi) checkout(ctx echo.Context) error {
	res, err := api.reconciler.Initiate(ctx.Request().Context(), getTenantContext(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *feeApi) queryCategories(ctx echo.Context) error {
	cats, err := api.svc.QueryCategories(ctx.Request().Context(), getTenantContext(ctx))
	if err != nil {
		return err
	}
	if cats == nil {
		cats = []fee.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *feeApi) createCategory(ctx echo.Context) error {
	var data fee.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to fee.NewCategory")
	}

	cat, err := api.svc.CreateCategory(ctx.Request().Context(), getTenantContext(ctx), data, api.validate)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *feeApi) createStudent(ctx echo.Context) error {
	var data fee.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to fee.NewStudent")
	}

	s, err := api.svc.CreateStudent(ctx.Request().Context(), getTenantContext(ctx), data, api.validate)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *feeApi) createAcademicYear(ctx echo.Context) error {
	var data fee.NewAcademicYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to fee.NewAcademicYear")
	}

	year, err := api.svc.CreateAcademicYear(ctx.Request().Context(), getTenantContext(ctx), data, api.validate)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, year)
}

func (api *feeApi) currentAcademicYear(ctx echo.Context) error {
	year, err := api.svc.CurrentAcademicYear(ctx.Request().Context(), getTenantContext(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, year)
}

type AlreadyProcessedResponse struct {
	Status  string           `json:"status"`
	Payment *payment.Payment `json:"payment,omitempty"`
}

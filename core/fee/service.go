package fee

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/tenant"
)

var (
	// errors
	ErrNotFound              = errors.New("fee not found")
	ErrDuplicateFee          = errors.New("a fee already exists for this student, category and academic year")
	ErrCategoryNotFound      = errors.New("fee category not found")
	ErrDuplicateCategory     = errors.New("a fee category with this name already exists")
	ErrStudentNotFound       = errors.New("student not found")
	ErrAcademicYearNotFound  = errors.New("academic year not found")
	ErrDuplicateAcademicYear = errors.New("an academic year with this name already exists")
)

type (
	Repository interface {
		CreateFee(ctx context.Context, f Fee, exec ...core.DBExecutor) (Fee, error)
		GetFee(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (Fee, error)
		// GetFeeForUpdate reads the fee and locks it until the surrounding transaction ends.
		GetFeeForUpdate(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (Fee, error)
		UpdateFeeBalances(ctx context.Context, f Fee, exec ...core.DBExecutor) error
		QueryFees(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Fee, error)

		CreateCategory(ctx context.Context, c Category, exec ...core.DBExecutor) (Category, error)
		GetCategory(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (Category, error)
		QueryCategories(ctx context.Context, organizationID string, exec ...core.DBExecutor) ([]Category, error)

		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		GetStudent(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (Student, error)

		CreateAcademicYear(ctx context.Context, y AcademicYear, exec ...core.DBExecutor) (AcademicYear, error)
		GetAcademicYear(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (AcademicYear, error)
		GetCurrentAcademicYear(ctx context.Context, organizationID string, exec ...core.DBExecutor) (AcademicYear, error)
		// SetCurrentAcademicYear makes id the only current academic year of the organization.
		SetCurrentAcademicYear(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo   Repository
		events core.EventPublisher
		mail   core.EmailService
		logger core.Logger
	}
)

func NewService(repo Repository, events core.EventPublisher, mail core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		mail:   mail,
		logger: logger,
	}
}

// CreateFee assigns a fee category to a student for an academic year.
func (svc *Service) CreateFee(ctx context.Context, tc tenant.Context, nf NewFee, validate *validator.Validate) (Fee, error) {
	if err := tc.Require(tenant.CapManageFees); err != nil {
		return Fee{}, err
	}
	nf.Clean()
	if err := validate.Struct(nf); err != nil {
		return Fee{}, err
	}

	org := tc.OrganizationID
	if _, err := svc.repo.GetStudent(ctx, org, nf.StudentID); err != nil {
		return Fee{}, svc.fieldErr(err, ErrStudentNotFound, "student_id")
	}
	if _, err := svc.repo.GetCategory(ctx, org, nf.CategoryID); err != nil {
		return Fee{}, svc.fieldErr(err, ErrCategoryNotFound, "fee_category_id")
	}
	if _, err := svc.repo.GetAcademicYear(ctx, org, nf.AcademicYearID); err != nil {
		return Fee{}, svc.fieldErr(err, ErrAcademicYearNotFound, "academic_year_id")
	}

	now := core.NowFunc().UTC()
	f := Fee{
		ID:             uuid.New().String(),
		OrganizationID: org,
		StudentID:      nf.StudentID,
		CategoryID:     nf.CategoryID,
		AcademicYearID: nf.AcademicYearID,
		TotalFee:       nf.TotalFee,
		PaidAmount:     decimal.Zero,
		PendingAmount:  nf.TotalFee,
		Status:         StatusUnpaid,
		DueDate:        nf.DueDate.UTC(),
		Description:    null.NewString(nf.Description, nf.Description != ""),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	f, err := svc.repo.CreateFee(ctx, f)
	if err != nil {
		if errors.Cause(err) == ErrDuplicateFee {
			return Fee{}, ErrDuplicateFee
		}
		return Fee{}, errors.Wrap(err, "creating fee")
	}

	svc.events.Publish(ctx, core.LedgerEvent{
		Type:           core.EventFeeCreated,
		OrganizationID: f.OrganizationID,
		AcademicYearID: f.AcademicYearID,
		FeeID:          f.ID,
		Amount:         f.TotalFee,
		OccurredAt:     now,
	})
	return f.withEffectiveStatus(now), nil
}

func (svc *Service) fieldErr(err, notFound error, field string) error {
	if errors.Cause(err) == notFound {
		return core.NewFieldError(field, notFound.Error())
	}
	return errors.Wrap(err, "checking "+field)
}

// Get returns a fee visible to the context; fees outside the caller's scope are reported as not found.
func (svc *Service) Get(ctx context.Context, tc tenant.Context, id string) (Fee, error) {
	if err := tc.Require(tenant.CapViewFees); err != nil {
		return Fee{}, err
	}
	f, err := svc.repo.GetFee(ctx, tc.OrganizationID, id)
	if err != nil {
		return Fee{}, err
	}
	if !tc.CanAccessStudent(f.StudentID) {
		return Fee{}, ErrNotFound
	}
	return f.withEffectiveStatus(core.NowFunc()), nil
}

// Query lists the fees visible to the context.
func (svc *Service) Query(ctx context.Context, tc tenant.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Fee, error) {
	if err := tc.Require(tenant.CapViewFees); err != nil {
		return nil, err
	}
	filter.Clean()
	filter.OrganizationID = tc.OrganizationID

	if ids, all := tc.StudentScope(); !all {
		if len(filter.StudentIDs) > 0 {
			allowed := make([]string, 0, len(filter.StudentIDs))
			for _, id := range filter.StudentIDs {
				if core.ContainsString(ids, id) {
					allowed = append(allowed, id)
				}
			}
			ids = allowed
		}
		filter.StudentIDs = ids
		filter.scoped = true
	}

	// OVERDUE is derived: fetch stored UNPAID rows and split them here
	wantStatus := filter.Status
	switch wantStatus {
	case StatusOverdue, StatusUnpaid:
		filter.Status = StatusUnpaid
	case StatusPaid, "":
	default:
		return []Fee{}, nil
	}

	fees, err := svc.repo.QueryFees(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying fees")
	}

	now := core.NowFunc()
	res := make([]Fee, 0, len(fees))
	for _, f := range fees {
		f = f.withEffectiveStatus(now)
		if wantStatus != "" && f.Status != wantStatus {
			continue
		}
		res = append(res, f)
	}
	return res, nil
}

// GetFeeSummary aggregates all fees of an organization's academic year; it never writes.
func (svc *Service) GetFeeSummary(ctx context.Context, tc tenant.Context, organizationID, academicYearID string) (Summary, error) {
	if err := tc.Require(tenant.CapViewReports); err != nil {
		return Summary{}, err
	}
	if organizationID != tc.OrganizationID {
		return Summary{}, tenant.ErrForbidden
	}
	if academicYearID == "" {
		return Summary{}, core.NewFieldError("academic_year_id", "this field is required")
	}

	fees, err := svc.repo.QueryFees(ctx, QueryFilter{OrganizationID: organizationID, AcademicYearID: academicYearID}, nil)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying fees")
	}
	return Summarize(organizationID, academicYearID, fees, core.NowFunc()), nil
}

func (svc *Service) CreateCategory(ctx context.Context, tc tenant.Context, nc NewCategory, validate *validator.Validate) (Category, error) {
	if err := tc.Require(tenant.CapManageFees); err != nil {
		return Category{}, err
	}
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	if err := validate.Struct(nc); err != nil {
		return Category{}, err
	}

	c, err := svc.repo.CreateCategory(ctx, Category{
		ID:             uuid.New().String(),
		OrganizationID: tc.OrganizationID,
		Name:           nc.Name,
		Description:    null.NewString(nc.Description, nc.Description != ""),
		CreatedAt:      core.NowFunc().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrDuplicateCategory {
			return Category{}, core.NewFieldError("name", ErrDuplicateCategory.Error())
		}
		return Category{}, errors.Wrap(err, "creating fee category")
	}
	return c, nil
}

func (svc *Service) QueryCategories(ctx context.Context, tc tenant.Context) ([]Category, error) {
	if err := tc.Require(tenant.CapViewFees); err != nil {
		return nil, err
	}
	return svc.repo.QueryCategories(ctx, tc.OrganizationID)
}

func (svc *Service) CreateStudent(ctx context.Context, tc tenant.Context, ns NewStudent, validate *validator.Validate) (Student, error) {
	if err := tc.Require(tenant.CapManageFees); err != nil {
		return Student{}, err
	}
	ns.Clean()
	if err := validate.Struct(ns); err != nil {
		return Student{}, err
	}

	st, err := svc.repo.CreateStudent(ctx, Student{
		ID:             uuid.New().String(),
		OrganizationID: tc.OrganizationID,
		Name:           ns.Name,
		Email:          null.NewString(ns.Email, ns.Email != ""),
		GuardianEmail:  null.NewString(ns.GuardianEmail, ns.GuardianEmail != ""),
		CreatedAt:      core.NowFunc().UTC(),
	})
	if err != nil {
		return Student{}, errors.Wrap(err, "creating student")
	}
	return st, nil
}

func (svc *Service) CreateAcademicYear(ctx context.Context, tc tenant.Context, ny NewAcademicYear, validate *validator.Validate) (AcademicYear, error) {
	if err := tc.Require(tenant.CapManageFees); err != nil {
		return AcademicYear{}, err
	}
	ny.Name = core.CleanString(ny.Name)
	if err := validate.Struct(ny); err != nil {
		return AcademicYear{}, err
	}

	year, err := svc.repo.CreateAcademicYear(ctx, AcademicYear{
		ID:             uuid.New().String(),
		OrganizationID: tc.OrganizationID,
		Name:           ny.Name,
		StartDate:      ny.StartDate.UTC(),
		EndDate:        ny.EndDate.UTC(),
		CreatedAt:      core.NowFunc().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrDuplicateAcademicYear {
			return AcademicYear{}, core.NewFieldError("name", ErrDuplicateAcademicYear.Error())
		}
		return AcademicYear{}, errors.Wrap(err, "creating academic year")
	}

	if ny.IsCurrent {
		if err = svc.repo.SetCurrentAcademicYear(ctx, tc.OrganizationID, year.ID); err != nil {
			return AcademicYear{}, errors.Wrap(err, "setting current academic year")
		}
		year.IsCurrent = true
	}
	return year, nil
}

// CurrentAcademicYear is used when callers omit the academic year.
func (svc *Service) CurrentAcademicYear(ctx context.Context, tc tenant.Context) (AcademicYear, error) {
	if err := tc.Require(tenant.CapViewFees); err != nil {
		return AcademicYear{}, err
	}
	return svc.repo.GetCurrentAcademicYear(ctx, tc.OrganizationID)
}

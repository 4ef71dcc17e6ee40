package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

const feeColumns = `id, organization_id, student_id, fee_category_id, academic_year_id, total_fee, paid_amount,
	pending_amount, status, due_date, description, created_at, updated_at`

type feeRepository struct {
	db *sqlx.DB
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *sqlx.DB) *feeRepository {
	return &feeRepository{db: db}
}

func (repo *feeRepository) CreateFee(ctx context.Context, f fee.Fee, exec ...core.DBExecutor) (fee.Fee, error) {
	const q = `INSERT INTO fees (` + feeColumns + `)
		VALUES (:id, :organization_id, :student_id, :fee_category_id, :academic_year_id, :total_fee, :paid_amount,
			:pending_amount, :status, :due_date, :description, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, f); err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "fees_student_category_year_key" {
			return fee.Fee{}, fee.ErrDuplicateFee
		}
		return fee.Fee{}, errors.Wrap(err, "inserting fee")
	}
	return f, nil
}

func (repo *feeRepository) getFee(ctx context.Context, q, organizationID, id string, exec []core.DBExecutor) (fee.Fee, error) {
	var f fee.Fee
	if err := sqlx.GetContext(ctx, conn(repo.db, exec), &f, q, organizationID, id); err != nil {
		if isNotFound(err) {
			return fee.Fee{}, fee.ErrNotFound
		}
		return fee.Fee{}, errors.Wrap(err, "selecting fee")
	}
	return f, nil
}

func (repo *feeRepository) GetFee(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.Fee, error) {
	const q = `SELECT ` + feeColumns + ` FROM fees WHERE organization_id = $1 AND id = $2`
	return repo.getFee(ctx, q, organizationID, id, exec)
}

func (repo *feeRepository) GetFeeForUpdate(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.Fee, error) {
	const q = `SELECT ` + feeColumns + ` FROM fees WHERE organization_id = $1 AND id = $2 FOR UPDATE`
	return repo.getFee(ctx, q, organizationID, id, exec)
}

func (repo *feeRepository) UpdateFeeBalances(ctx context.Context, f fee.Fee, exec ...core.DBExecutor) error {
	const q = `UPDATE fees SET paid_amount = :paid_amount, pending_amount = :pending_amount, status = :status,
			updated_at = :updated_at
		WHERE organization_id = :organization_id AND id = :id`

	res, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, f)
	if err != nil {
		return errors.Wrap(err, "updating fee balances")
	}
	return expectAffected(res, fee.ErrNotFound)
}

func (repo *feeRepository) QueryFees(ctx context.Context, filter fee.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]fee.Fee, error) {
	var (
		where = []string{"organization_id = $1"}
		args  = []interface{}{filter.OrganizationID}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.AcademicYearID != "" {
		where = append(where, "academic_year_id = "+arg(filter.AcademicYearID))
	}
	if filter.CategoryID != "" {
		where = append(where, "fee_category_id = "+arg(filter.CategoryID))
	}
	if filter.Scoped() || len(filter.StudentIDs) > 0 {
		where = append(where, "student_id = ANY("+arg(pq.Array(filter.StudentIDs))+"::uuid[])")
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}

	q := `SELECT ` + feeColumns + ` FROM fees WHERE ` + strings.Join(where, " AND ") + orderBy(ordering)
	fees := make([]fee.Fee, 0)
	if err := sqlx.SelectContext(ctx, conn(repo.db, exec), &fees, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting fees")
	}
	return fees, nil
}

// orderBy only lets known columns through.
func orderBy(ordering []core.DBOrdering) string {
	clauses := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if core.ContainsString(fee.OrderingFields, ord.Field) {
			clauses = append(clauses, ord.String())
		}
	}
	if len(clauses) == 0 {
		clauses = append(clauses, "due_date ASC")
	}
	clauses = append(clauses, "id ASC")
	return " ORDER BY " + strings.Join(clauses, ", ")
}

func (repo *feeRepository) CreateCategory(ctx context.Context, c fee.Category, exec ...core.DBExecutor) (fee.Category, error) {
	const q = `INSERT INTO fee_categories (id, organization_id, name, description, created_at)
		VALUES (:id, :organization_id, :name, :description, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, c); err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "fee_categories_org_name_key" {
			return fee.Category{}, fee.ErrDuplicateCategory
		}
		return fee.Category{}, errors.Wrap(err, "inserting fee category")
	}
	return c, nil
}

func (repo *feeRepository) GetCategory(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.Category, error) {
	const q = `SELECT id, organization_id, name, description, created_at FROM fee_categories
		WHERE organization_id = $1 AND id = $2`

	var c fee.Category
	if err := sqlx.GetContext(ctx, conn(repo.db, exec), &c, q, organizationID, id); err != nil {
		if isNotFound(err) {
			return fee.Category{}, fee.ErrCategoryNotFound
		}
		return fee.Category{}, errors.Wrap(err, "selecting fee category")
	}
	return c, nil
}

func (repo *feeRepository) QueryCategories(ctx context.Context, organizationID string, exec ...core.DBExecutor) ([]fee.Category, error) {
	const q = `SELECT id, organization_id, name, description, created_at FROM fee_categories
		WHERE organization_id = $1 ORDER BY name`

	categories := make([]fee.Category, 0)
	if err := sqlx.SelectContext(ctx, conn(repo.db, exec), &categories, q, organizationID); err != nil {
		return nil, errors.Wrap(err, "selecting fee categories")
	}
	return categories, nil
}

func (repo *feeRepository) CreateStudent(ctx context.Context, s fee.Student, exec ...core.DBExecutor) (fee.Student, error) {
	const q = `INSERT INTO students (id, organization_id, name, email, guardian_email, created_at)
		VALUES (:id, :organization_id, :name, :email, :guardian_email, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, s); err != nil {
		return fee.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo *feeRepository) GetStudent(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.Student, error) {
	const q = `SELECT id, organization_id, name, email, guardian_email, created_at FROM students
		WHERE organization_id = $1 AND id = $2`

	var s fee.Student
	if err := sqlx.GetContext(ctx, conn(repo.db, exec), &s, q, organizationID, id); err != nil {
		if isNotFound(err) {
			return fee.Student{}, fee.ErrStudentNotFound
		}
		return fee.Student{}, errors.Wrap(err, "selecting student")
	}
	return s, nil
}

const yearColumns = `id, organization_id, name, start_date, end_date, is_current, created_at`

func (repo *feeRepository) CreateAcademicYear(ctx context.Context, y fee.AcademicYear, exec ...core.DBExecutor) (fee.AcademicYear, error) {
	const q = `INSERT INTO academic_years (` + yearColumns + `)
		VALUES (:id, :organization_id, :name, :start_date, :end_date, :is_current, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, y); err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "academic_years_org_name_key" {
			return fee.AcademicYear{}, fee.ErrDuplicateAcademicYear
		}
		return fee.AcademicYear{}, errors.Wrap(err, "inserting academic year")
	}
	return y, nil
}

func (repo *feeRepository) GetAcademicYear(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.AcademicYear, error) {
	const q = `SELECT ` + yearColumns + ` FROM academic_years WHERE organization_id = $1 AND id = $2`

	var y fee.AcademicYear
	if err := sqlx.GetContext(ctx, conn(repo.db, exec), &y, q, organizationID, id); err != nil {
		if isNotFound(err) {
			return fee.AcademicYear{}, fee.ErrAcademicYearNotFound
		}
		return fee.AcademicYear{}, errors.Wrap(err, "selecting academic year")
	}
	return y, nil
}

func (repo *feeRepository) GetCurrentAcademicYear(ctx context.Context, organizationID string, exec ...core.DBExecutor) (fee.AcademicYear, error) {
	const q = `SELECT ` + yearColumns + ` FROM academic_years WHERE organization_id = $1 AND is_current
		ORDER BY start_date DESC LIMIT 1`

	var y fee.AcademicYear
	if err := sqlx.GetContext(ctx, conn(repo.db, exec), &y, q, organizationID); err != nil {
		if isNotFound(err) {
			return fee.AcademicYear{}, fee.ErrAcademicYearNotFound
		}
		return fee.AcademicYear{}, errors.Wrap(err, "selecting current academic year")
	}
	return y, nil
}

func (repo *feeRepository) SetCurrentAcademicYear(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) error {
	const q = `UPDATE academic_years SET is_current = (id = $2)
		WHERE organization_id = $1 AND EXISTS (SELECT 1 FROM academic_years WHERE organization_id = $1 AND id = $2)`

	res, err := conn(repo.db, exec).ExecContext(ctx, q, organizationID, id)
	if err != nil {
		if isNotFound(err) {
			return fee.ErrAcademicYearNotFound
		}
		return errors.Wrap(err, "setting current academic year")
	}
	return expectAffected(res, fee.ErrAcademicYearNotFound)
}

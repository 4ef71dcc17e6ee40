package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/report"
)

type reportRepository struct {
	*feeRepository
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *sqlx.DB) *reportRepository {
	return &reportRepository{feeRepository: NewFeeRepository(db)}
}

func (repo *reportRepository) CollectionsByMonth(ctx context.Context, organizationID, academicYearID string, from, to time.Time, exec ...core.DBExecutor) ([]report.MonthTotal, error) {
	const q = `SELECT to_char(date_trunc('month', p.paid_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
			COALESCE(SUM(p.amount), 0) AS amount, COUNT(*) AS count
		FROM payments p
		JOIN fees f ON f.id = p.fee_id
		WHERE p.organization_id = $1 AND f.academic_year_id = $2 AND p.status = 'COMPLETED'
			AND p.paid_at >= $3 AND p.paid_at < $4
		GROUP BY 1
		ORDER BY 1`

	totals := make([]report.MonthTotal, 0)
	if err := sqlx.SelectContext(ctx, conn(repo.db, exec), &totals, q, organizationID, academicYearID, from, to); err != nil {
		if isNotFound(err) {
			return totals, nil
		}
		return nil, errors.Wrap(err, "selecting collections by month")
	}
	return totals, nil
}

func (repo *reportRepository) CategoryTotals(ctx context.Context, organizationID, academicYearID string, exec ...core.DBExecutor) ([]report.CategoryTotal, error) {
	const q = `SELECT f.fee_category_id, c.name AS fee_category_name, COUNT(*) AS fee_count,
			SUM(f.total_fee) AS total, SUM(f.paid_amount) AS paid, SUM(f.pending_amount) AS pending
		FROM fees f
		JOIN fee_categories c ON c.id = f.fee_category_id
		WHERE f.organization_id = $1 AND f.academic_year_id = $2
		GROUP BY f.fee_category_id, c.name
		ORDER BY c.name`

	totals := make([]report.CategoryTotal, 0)
	if err := sqlx.SelectContext(ctx, conn(repo.db, exec), &totals, q, organizationID, academicYearID); err != nil {
		if isNotFound(err) {
			return totals, nil
		}
		return nil, errors.Wrap(err, "selecting category totals")
	}
	return totals, nil
}

func (repo *reportRepository) FeeTotals(ctx context.Context, organizationID, academicYearID string, now time.Time, exec ...core.DBExecutor) (report.FeeTotals, error) {
	const q = `SELECT COUNT(*) AS fee_count,
			COUNT(*) FILTER (WHERE pending_amount > 0 AND due_date < $3) AS overdue_count,
			COALESCE(SUM(total_fee), 0) AS total,
			COALESCE(SUM(paid_amount), 0) AS paid,
			COALESCE(SUM(pending_amount), 0) AS pending
		FROM fees
		WHERE organization_id = $1 AND academic_year_id = $2`

	var totals report.FeeTotals
	if err := sqlx.GetContext(ctx, conn(repo.db, exec), &totals, q, organizationID, academicYearID, now); err != nil {
		if isNotFound(err) {
			return totals, nil
		}
		return report.FeeTotals{}, errors.Wrap(err, "selecting fee totals")
	}
	return totals, nil
}

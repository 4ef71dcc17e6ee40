package report

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/tenant"
)

// Report kinds, part of the cache key
const (
	KindMonthly    = "monthly"
	KindCategories = "categories"
	KindSummary    = "summary"
)

type (
	// Repository aggregates ledger rows; every method is read-only.
	Repository interface {
		GetAcademicYear(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.AcademicYear, error)
		// CollectionsByMonth sums COMPLETED payments of the year's fees paid within [from, to).
		CollectionsByMonth(ctx context.Context, organizationID, academicYearID string, from, to time.Time, exec ...core.DBExecutor) ([]MonthTotal, error)
		CategoryTotals(ctx context.Context, organizationID, academicYearID string, exec ...core.DBExecutor) ([]CategoryTotal, error)
		FeeTotals(ctx context.Context, organizationID, academicYearID string, now time.Time, exec ...core.DBExecutor) (FeeTotals, error)
	}

	Service struct {
		repo   Repository
		cache  core.Cache // optional
		logger core.Logger
	}
)

func NewService(repo Repository, cache core.Cache, logger core.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// CacheKeyPrefix returns the prefix of every cached report of an organization.
func CacheKeyPrefix(organizationID string) string {
	return "reports:" + organizationID + ":"
}

func cacheKey(organizationID, academicYearID, kind string) string {
	return CacheKeyPrefix(organizationID) + academicYearID + ":" + kind
}

func (svc *Service) authorize(tc tenant.Context, academicYearID string) error {
	if err := tc.Require(tenant.CapViewReports); err != nil {
		return err
	}
	if academicYearID == "" {
		return core.NewFieldError("academic_year_id", "this field is required")
	}
	return nil
}

// cached fills dest from the cache, or computes it and stores it. Cache failures only cost a recomputation.
func (svc *Service) cached(ctx context.Context, key string, dest interface{}, compute func() error) error {
	if svc.cache != nil {
		found, err := svc.cache.Get(ctx, key, dest)
		if err != nil {
			svc.logger.Warn("reading report cache", err, map[string]interface{}{"key": key})
		} else if found {
			return nil
		}
	}

	if err := compute(); err != nil {
		return err
	}
	if svc.cache != nil {
		if err := svc.cache.Set(ctx, key, dest); err != nil {
			svc.logger.Warn("writing report cache", err, map[string]interface{}{"key": key})
		}
	}
	return nil
}

// MonthlyCollections returns one entry per month of the academic year, months without payments included.
func (svc *Service) MonthlyCollections(ctx context.Context, tc tenant.Context, academicYearID string) ([]MonthTotal, error) {
	if err := svc.authorize(tc, academicYearID); err != nil {
		return nil, err
	}
	var res []MonthTotal
	err := svc.cached(ctx, cacheKey(tc.OrganizationID, academicYearID, KindMonthly), &res, func() error {
		year, err := svc.repo.GetAcademicYear(ctx, tc.OrganizationID, academicYearID)
		if err != nil {
			return err
		}
		from := monthStart(year.StartDate)
		to := monthStart(year.EndDate).AddDate(0, 1, 0)

		totals, err := svc.repo.CollectionsByMonth(ctx, tc.OrganizationID, academicYearID, from, to)
		if err != nil {
			return errors.Wrap(err, "summing collections by month")
		}
		byMonth := make(map[string]MonthTotal, len(totals))
		for _, t := range totals {
			byMonth[t.Month] = t
		}

		res = make([]MonthTotal, 0, 12)
		for m := from; m.Before(to); m = m.AddDate(0, 1, 0) {
			key := m.Format("2006-01")
			t, ok := byMonth[key]
			if !ok {
				t = MonthTotal{Month: key, Amount: decimal.Zero}
			}
			res = append(res, t)
		}
		return nil
	})
	return res, err
}

// CategoryDistribution splits the year's fees by category.
func (svc *Service) CategoryDistribution(ctx context.Context, tc tenant.Context, academicYearID string) ([]CategoryTotal, error) {
	if err := svc.authorize(tc, academicYearID); err != nil {
		return nil, err
	}
	var res []CategoryTotal
	err := svc.cached(ctx, cacheKey(tc.OrganizationID, academicYearID, KindCategories), &res, func() error {
		totals, err := svc.repo.CategoryTotals(ctx, tc.OrganizationID, academicYearID)
		if err != nil {
			return errors.Wrap(err, "summing fees by category")
		}
		res = totals
		if res == nil {
			res = []CategoryTotal{}
		}
		return nil
	})
	return res, err
}

// OrganizationSummary is the dashboard headline of an academic year.
func (svc *Service) OrganizationSummary(ctx context.Context, tc tenant.Context, academicYearID string) (OrganizationSummary, error) {
	if err := svc.authorize(tc, academicYearID); err != nil {
		return OrganizationSummary{}, err
	}
	var res OrganizationSummary
	err := svc.cached(ctx, cacheKey(tc.OrganizationID, academicYearID, KindSummary), &res, func() error {
		now := core.NowFunc().UTC()
		totals, err := svc.repo.FeeTotals(ctx, tc.OrganizationID, academicYearID, now)
		if err != nil {
			return errors.Wrap(err, "summing fees")
		}

		from := monthStart(now)
		thisMonth, err := svc.repo.CollectionsByMonth(ctx, tc.OrganizationID, academicYearID, from, from.AddDate(0, 1, 0))
		if err != nil {
			return errors.Wrap(err, "summing collections of the month")
		}
		collectedThisMonth := decimal.Zero
		for _, t := range thisMonth {
			collectedThisMonth = collectedThisMonth.Add(t.Amount)
		}

		res = OrganizationSummary{
			OrganizationID:       tc.OrganizationID,
			AcademicYearID:       academicYearID,
			FeeCount:             totals.FeeCount,
			TotalFees:            totals.Total,
			Collected:            totals.Paid,
			Pending:              totals.Pending,
			CollectionPercentage: collectionPercentage(totals.Paid, totals.Total),
			OverdueCount:         totals.OverdueCount,
			CollectedThisMonth:   collectedThisMonth,
		}
		return nil
	})
	return res, err
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

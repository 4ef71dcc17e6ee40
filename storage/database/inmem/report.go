package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/report"
)

type reportRepository struct {
	*feeRepository
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *DB) *reportRepository {
	return &reportRepository{feeRepository: NewFeeRepository(db)}
}

func (repo *reportRepository) CollectionsByMonth(_ context.Context, organizationID, academicYearID string, from, to time.Time, _ ...core.DBExecutor) ([]report.MonthTotal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	byMonth := make(map[string]report.MonthTotal)
	for _, p := range repo.db.t.payments {
		if p.OrganizationID != organizationID || p.Status != payment.StatusCompleted {
			continue
		}
		if p.PaidAt.Before(from) || !p.PaidAt.Before(to) {
			continue
		}
		if f, ok := repo.db.t.fees[p.FeeID]; !ok || f.AcademicYearID != academicYearID {
			continue
		}

		month := p.PaidAt.UTC().Format("2006-01")
		t, ok := byMonth[month]
		if !ok {
			t = report.MonthTotal{Month: month, Amount: decimal.Zero}
		}
		t.Amount = t.Amount.Add(p.Amount)
		t.Count++
		byMonth[month] = t
	}

	totals := make([]report.MonthTotal, 0, len(byMonth))
	for _, t := range byMonth {
		totals = append(totals, t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Month < totals[j].Month })
	return totals, nil
}

func (repo *reportRepository) CategoryTotals(_ context.Context, organizationID, academicYearID string, _ ...core.DBExecutor) ([]report.CategoryTotal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	byCategory := make(map[string]report.CategoryTotal)
	for _, f := range repo.db.t.fees {
		if f.OrganizationID != organizationID || f.AcademicYearID != academicYearID {
			continue
		}
		t, ok := byCategory[f.CategoryID]
		if !ok {
			t = report.CategoryTotal{
				CategoryID:   f.CategoryID,
				CategoryName: repo.db.t.categories[f.CategoryID].Name,
				Total:        decimal.Zero,
				Paid:         decimal.Zero,
				Pending:      decimal.Zero,
			}
		}
		t.FeeCount++
		t.Total = t.Total.Add(f.TotalFee)
		t.Paid = t.Paid.Add(f.PaidAmount)
		t.Pending = t.Pending.Add(f.PendingAmount)
		byCategory[f.CategoryID] = t
	}

	totals := make([]report.CategoryTotal, 0, len(byCategory))
	for _, t := range byCategory {
		totals = append(totals, t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].CategoryName < totals[j].CategoryName })
	return totals, nil
}

func (repo *reportRepository) FeeTotals(_ context.Context, organizationID, academicYearID string, now time.Time, _ ...core.DBExecutor) (report.FeeTotals, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	totals := report.FeeTotals{Total: decimal.Zero, Paid: decimal.Zero, Pending: decimal.Zero}
	for _, f := range repo.db.t.fees {
		if f.OrganizationID != organizationID || f.AcademicYearID != academicYearID {
			continue
		}
		totals.FeeCount++
		totals.Total = totals.Total.Add(f.TotalFee)
		totals.Paid = totals.Paid.Add(f.PaidAmount)
		totals.Pending = totals.Pending.Add(f.PendingAmount)
		if f.EffectiveStatus(now) == fee.StatusOverdue {
			totals.OverdueCount++
		}
	}
	return totals, nil
}

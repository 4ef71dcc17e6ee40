package report

import (
	"github.com/shopspring/decimal"
)

// MonthTotal is the sum of completed payments received in a calendar month ("2006-01").
type MonthTotal struct {
	Month  string          `json:"month" db:"month"`
	Amount decimal.Decimal `json:"amount" db:"amount"`
	Count  int             `json:"count" db:"count"`
}

type CategoryTotal struct {
	CategoryID   string          `json:"fee_category_id" db:"fee_category_id"`
	CategoryName string          `json:"fee_category_name" db:"fee_category_name"`
	FeeCount     int             `json:"fee_count" db:"fee_count"`
	Total        decimal.Decimal `json:"total" db:"total"`
	Paid         decimal.Decimal `json:"paid" db:"paid"`
	Pending      decimal.Decimal `json:"pending" db:"pending"`
}

// FeeTotals are the fee table rollups of an academic year.
type FeeTotals struct {
	FeeCount     int             `db:"fee_count"`
	OverdueCount int             `db:"overdue_count"`
	Total        decimal.Decimal `db:"total"`
	Paid         decimal.Decimal `db:"paid"`
	Pending      decimal.Decimal `db:"pending"`
}

type OrganizationSummary struct {
	OrganizationID       string          `json:"organization_id"`
	AcademicYearID       string          `json:"academic_year_id"`
	FeeCount             int             `json:"fee_count"`
	TotalFees            decimal.Decimal `json:"total_fees"`
	Collected            decimal.Decimal `json:"collected"`
	Pending              decimal.Decimal `json:"pending"`
	CollectionPercentage int             `json:"collection_percentage"`
	OverdueCount         int             `json:"overdue_count"`
	CollectedThisMonth   decimal.Decimal `json:"collected_this_month"`
}

// collectionPercentage is paid/total as a rounded whole percentage; 0 when nothing is billed.
func collectionPercentage(paid, total decimal.Decimal) int {
	if !total.IsPositive() {
		return 0
	}
	return int(paid.Mul(decimal.NewFromInt(100)).Div(total).Round(0).IntPart())
}

package fee

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
)

type Status string

// Fee statuses; only UNPAID and PAID are ever stored, OVERDUE is derived at read time.
const (
	StatusUnpaid  Status = "UNPAID"
	StatusPaid    Status = "PAID"
	StatusOverdue Status = "OVERDUE"
)

type Fee struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	StudentID      string          `json:"student_id" db:"student_id"`
	CategoryID     string          `json:"fee_category_id" db:"fee_category_id"`
	AcademicYearID string          `json:"academic_year_id" db:"academic_year_id"`
	TotalFee       decimal.Decimal `json:"total_fee" db:"total_fee"`
	PaidAmount     decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	PendingAmount  decimal.Decimal `json:"pending_amount" db:"pending_amount"`
	Status         Status          `json:"status" db:"status"`
	DueDate        time.Time       `json:"due_date" db:"due_date"` // UTC
	Description    null.String     `json:"description" db:"description"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"` // UTC
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"` // UTC
}

// EffectiveStatus derives OVERDUE from the stored balances and the due date.
func (f Fee) EffectiveStatus(now time.Time) Status {
	if f.PendingAmount.IsPositive() && f.DueDate.Before(now) {
		return StatusOverdue
	}
	if f.PendingAmount.IsZero() {
		return StatusPaid
	}
	return StatusUnpaid
}

// IsPaid reports whether nothing is left to pay.
func (f Fee) IsPaid() bool {
	return f.Status == StatusPaid || !f.PendingAmount.IsPositive()
}

// withEffectiveStatus returns a copy fit for display.
func (f Fee) withEffectiveStatus(now time.Time) Fee {
	f.Status = f.EffectiveStatus(now)
	return f
}

type Category struct {
	ID             string      `json:"id" db:"id"`
	OrganizationID string      `json:"organization_id" db:"organization_id"`
	Name           string      `json:"name" db:"name"`
	Description    null.String `json:"description" db:"description"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

type Student struct {
	ID             string      `json:"id" db:"id"`
	OrganizationID string      `json:"organization_id" db:"organization_id"`
	Name           string      `json:"name" db:"name"`
	Email          null.String `json:"email" db:"email"`
	GuardianEmail  null.String `json:"guardian_email" db:"guardian_email"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

type AcademicYear struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	StartDate      time.Time `json:"start_date" db:"start_date"`
	EndDate        time.Time `json:"end_date" db:"end_date"`
	IsCurrent      bool      `json:"is_current" db:"is_current"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// NewFee contains information needed to assign a fee category to a student.
type NewFee struct {
	StudentID      string          `json:"student_id" validate:"required"`
	CategoryID     string          `json:"fee_category_id" validate:"required"`
	AcademicYearID string          `json:"academic_year_id" validate:"required"`
	TotalFee       decimal.Decimal `json:"total_fee" validate:"gt=0"`
	DueDate        time.Time       `json:"due_date" validate:"required"`
	Description    string          `json:"description"`
}

func (nf *NewFee) Clean() {
	nf.StudentID = core.CleanString(nf.StudentID)
	nf.CategoryID = core.CleanString(nf.CategoryID)
	nf.AcademicYearID = core.CleanString(nf.AcademicYearID)
	nf.Description = core.CleanString(nf.Description)
	nf.TotalFee = nf.TotalFee.Round(2)
}

type NewStudent struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
}

func (ns *NewStudent) Clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.GuardianEmail = core.CleanString(ns.GuardianEmail, true /* lower */)
}

type NewAcademicYear struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	IsCurrent bool      `json:"is_current"`
}

type NewCategory struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// QueryFilter narrows a fee query; OrganizationID is always set by the service from the tenant context.
type QueryFilter struct {
	OrganizationID string   `query:"-"`
	AcademicYearID string   `query:"academic_year_id"`
	CategoryID     string   `query:"fee_category_id"`
	StudentIDs     []string `query:"student_id"`
	Status         Status   `query:"status"`

	// set when the caller may only see some students; an empty slice matches nothing
	scoped bool
}

func (qf *QueryFilter) Clean() {
	qf.AcademicYearID = core.CleanString(qf.AcademicYearID)
	qf.CategoryID = core.CleanString(qf.CategoryID)
	qf.Status = Status(core.CleanString(string(qf.Status)))
}

// Scoped reports whether StudentIDs is an access restriction rather than an optional filter.
func (qf QueryFilter) Scoped() bool { return qf.scoped }

// OrderingFields are the fee columns a query may be ordered by.
var OrderingFields = []string{"due_date", "created_at", "total_fee", "paid_amount", "pending_amount", "status"}

// Summary aggregates fees in an organization's academic year.
type Summary struct {
	OrganizationID string          `json:"organization_id"`
	AcademicYearID string          `json:"academic_year_id"`
	FeeCount       int             `json:"fee_count"`
	PaidCount      int             `json:"paid_count"`
	UnpaidCount    int             `json:"unpaid_count"`
	OverdueCount   int             `json:"overdue_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PendingAmount  decimal.Decimal `json:"pending_amount"`
	OverdueAmount  decimal.Decimal `json:"overdue_amount"`
}

// Summarize folds fees into a Summary, deriving OVERDUE against now.
func Summarize(organizationID, academicYearID string, fees []Fee, now time.Time) Summary {
	s := Summary{
		OrganizationID: organizationID,
		AcademicYearID: academicYearID,
		TotalAmount:    decimal.Zero,
		PaidAmount:     decimal.Zero,
		PendingAmount:  decimal.Zero,
		OverdueAmount:  decimal.Zero,
	}
	for _, f := range fees {
		s.FeeCount++
		s.TotalAmount = s.TotalAmount.Add(f.TotalFee)
		s.PaidAmount = s.PaidAmount.Add(f.PaidAmount)
		s.PendingAmount = s.PendingAmount.Add(f.PendingAmount)
		switch f.EffectiveStatus(now) {
		case StatusPaid:
			s.PaidCount++
		case StatusOverdue:
			s.OverdueCount++
			s.OverdueAmount = s.OverdueAmount.Add(f.PendingAmount)
		default:
			s.UnpaidCount++
		}
	}
	return s
}

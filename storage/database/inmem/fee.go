package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

type feeRepository struct {
	db *DB
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *DB) *feeRepository {
	return &feeRepository{db: db}
}

func (repo *feeRepository) CreateFee(_ context.Context, f fee.Fee, exec ...core.DBExecutor) (fee.Fee, error) {
	defer repo.db.lockWrite(exec)()

	for _, other := range repo.db.t.fees {
		if other.StudentID == f.StudentID && other.CategoryID == f.CategoryID && other.AcademicYearID == f.AcademicYearID {
			return fee.Fee{}, fee.ErrDuplicateFee
		}
	}
	repo.db.t.fees[f.ID] = f
	return f, nil
}

func (repo *feeRepository) GetFee(_ context.Context, organizationID, id string, _ ...core.DBExecutor) (fee.Fee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if f, ok := repo.db.t.fees[id]; ok && f.OrganizationID == organizationID {
		return f, nil
	}
	return fee.Fee{}, fee.ErrNotFound
}

// GetFeeForUpdate relies on RunInTx serializing transactions.
func (repo *feeRepository) GetFeeForUpdate(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.Fee, error) {
	return repo.GetFee(ctx, organizationID, id, exec...)
}

func (repo *feeRepository) UpdateFeeBalances(_ context.Context, f fee.Fee, exec ...core.DBExecutor) error {
	defer repo.db.lockWrite(exec)()

	orig, ok := repo.db.t.fees[f.ID]
	if !ok || orig.OrganizationID != f.OrganizationID {
		return fee.ErrNotFound
	}
	orig.PaidAmount = f.PaidAmount
	orig.PendingAmount = f.PendingAmount
	orig.Status = f.Status
	orig.UpdatedAt = f.UpdatedAt
	repo.db.t.fees[f.ID] = orig
	return nil
}

func (repo *feeRepository) QueryFees(_ context.Context, filter fee.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]fee.Fee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	fees := make([]fee.Fee, 0)
	for _, f := range repo.db.t.fees {
		if f.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.AcademicYearID != "" && f.AcademicYearID != filter.AcademicYearID {
			continue
		}
		if filter.CategoryID != "" && f.CategoryID != filter.CategoryID {
			continue
		}
		if (filter.Scoped() || len(filter.StudentIDs) > 0) && !core.ContainsString(filter.StudentIDs, f.StudentID) {
			continue
		}
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		fees = append(fees, f)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "due_date", Ascending: true}}
	}
	sort.SliceStable(fees, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareFees(fees[i], fees[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return fees[i].ID < fees[j].ID
	})
	return fees, nil
}

func compareFees(a, b fee.Fee, field string) int {
	switch field {
	case "due_date":
		return a.DueDate.Compare(b.DueDate)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "total_fee":
		return a.TotalFee.Cmp(b.TotalFee)
	case "paid_amount":
		return a.PaidAmount.Cmp(b.PaidAmount)
	case "pending_amount":
		return a.PendingAmount.Cmp(b.PendingAmount)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	}
	return 0
}

func (repo *feeRepository) CreateCategory(_ context.Context, c fee.Category, exec ...core.DBExecutor) (fee.Category, error) {
	defer repo.db.lockWrite(exec)()

	for _, other := range repo.db.t.categories {
		if other.OrganizationID == c.OrganizationID && other.Name == c.Name {
			return fee.Category{}, fee.ErrDuplicateCategory
		}
	}
	repo.db.t.categories[c.ID] = c
	return c, nil
}

func (repo *feeRepository) GetCategory(_ context.Context, organizationID, id string, _ ...core.DBExecutor) (fee.Category, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.t.categories[id]; ok && c.OrganizationID == organizationID {
		return c, nil
	}
	return fee.Category{}, fee.ErrCategoryNotFound
}

func (repo *feeRepository) QueryCategories(_ context.Context, organizationID string, _ ...core.DBExecutor) ([]fee.Category, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	categories := make([]fee.Category, 0)
	for _, c := range repo.db.t.categories {
		if c.OrganizationID == organizationID {
			categories = append(categories, c)
		}
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (repo *feeRepository) CreateStudent(_ context.Context, s fee.Student, exec ...core.DBExecutor) (fee.Student, error) {
	defer repo.db.lockWrite(exec)()

	repo.db.t.students[s.ID] = s
	return s, nil
}

func (repo *feeRepository) GetStudent(_ context.Context, organizationID, id string, _ ...core.DBExecutor) (fee.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.t.students[id]; ok && s.OrganizationID == organizationID {
		return s, nil
	}
	return fee.Student{}, fee.ErrStudentNotFound
}

func (repo *feeRepository) CreateAcademicYear(_ context.Context, y fee.AcademicYear, exec ...core.DBExecutor) (fee.AcademicYear, error) {
	defer repo.db.lockWrite(exec)()

	for _, other := range repo.db.t.years {
		if other.OrganizationID == y.OrganizationID && other.Name == y.Name {
			return fee.AcademicYear{}, fee.ErrDuplicateAcademicYear
		}
	}
	repo.db.t.years[y.ID] = y
	return y, nil
}

func (repo *feeRepository) GetAcademicYear(_ context.Context, organizationID, id string, _ ...core.DBExecutor) (fee.AcademicYear, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if y, ok := repo.db.t.years[id]; ok && y.OrganizationID == organizationID {
		return y, nil
	}
	return fee.AcademicYear{}, fee.ErrAcademicYearNotFound
}

func (repo *feeRepository) GetCurrentAcademicYear(_ context.Context, organizationID string, _ ...core.DBExecutor) (fee.AcademicYear, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, y := range repo.db.t.years {
		if y.OrganizationID == organizationID && y.IsCurrent {
			return y, nil
		}
	}
	return fee.AcademicYear{}, fee.ErrAcademicYearNotFound
}

func (repo *feeRepository) SetCurrentAcademicYear(_ context.Context, organizationID, id string, exec ...core.DBExecutor) error {
	defer repo.db.lockWrite(exec)()

	if y, ok := repo.db.t.years[id]; !ok || y.OrganizationID != organizationID {
		return fee.ErrAcademicYearNotFound
	}
	for k, y := range repo.db.t.years {
		if y.OrganizationID == organizationID {
			y.IsCurrent = k == id
			repo.db.t.years[k] = y
		}
	}
	return nil
}

package inmemdb

import (
	"context"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/tenant"
)

type organizationRepository struct {
	db *DB
}

var _ tenant.OrganizationRepository = (*organizationRepository)(nil) // interface compliance check

func NewOrganizationRepository(db *DB) *organizationRepository {
	return &organizationRepository{db: db}
}

func (repo *organizationRepository) CreateOrganization(_ context.Context, org tenant.Organization, exec ...core.DBExecutor) (tenant.Organization, error) {
	defer repo.db.lockWrite(exec)()

	repo.db.t.organizations[org.ID] = org
	return org, nil
}

func (repo *organizationRepository) GetOrganization(_ context.Context, id string, _ ...core.DBExecutor) (tenant.Organization, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if org, ok := repo.db.t.organizations[id]; ok {
		return org, nil
	}
	return tenant.Organization{}, tenant.ErrOrganizationNotFound
}

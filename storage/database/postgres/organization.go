package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/tenant"
)

type organizationRepository struct {
	db *sqlx.DB
}

var _ tenant.OrganizationRepository = (*organizationRepository)(nil) // interface compliance check

func NewOrganizationRepository(db *sqlx.DB) *organizationRepository {
	return &organizationRepository{db: db}
}

func (repo *organizationRepository) CreateOrganization(ctx context.Context, org tenant.Organization, exec ...core.DBExecutor) (tenant.Organization, error) {
	const q = `INSERT INTO organizations (id, name, created_at) VALUES (:id, :name, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, org); err != nil {
		return tenant.Organization{}, errors.Wrap(err, "inserting organization")
	}
	return org, nil
}

func (repo *organizationRepository) GetOrganization(ctx context.Context, id string, exec ...core.DBExecutor) (tenant.Organization, error) {
	var org tenant.Organization
	err := sqlx.GetContext(ctx, conn(repo.db, exec), &org, `SELECT id, name, created_at FROM organizations WHERE id = $1`, id)
	if err != nil {
		if isNotFound(err) {
			return tenant.Organization{}, tenant.ErrOrganizationNotFound
		}
		return tenant.Organization{}, errors.Wrap(err, "selecting organization")
	}
	return org, nil
}

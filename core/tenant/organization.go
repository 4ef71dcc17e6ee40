package tenant

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
)

var ErrOrganizationNotFound = errors.New("organization not found")

type Organization struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type OrganizationRepository interface {
	CreateOrganization(ctx context.Context, org Organization, exec ...core.DBExecutor) (Organization, error)
	GetOrganization(ctx context.Context, id string, exec ...core.DBExecutor) (Organization, error)
}

package tenant

import (
	"context"

	"github.com/pkg/errors"
)

// MembershipSource looks up the organization membership of a principal.
// It returns ErrNoMembership when the principal is not a member of any organization.
type MembershipSource interface {
	GetMembership(ctx context.Context, principalID string) (Membership, error)
}

type Resolver struct {
	src MembershipSource
}

func NewResolver(src MembershipSource) *Resolver {
	return &Resolver{src: src}
}

// Resolve derives the caller's tenant/role Context.
// A principal without a mapped role or organization gets ErrUnresolvedRole, never a default role.
func (r *Resolver) Resolve(ctx context.Context, p *Principal) (Context, error) {
	if p == nil || p.ID == "" {
		return Context{}, ErrUnauthenticated
	}

	m, err := r.src.GetMembership(ctx, p.ID)
	if err != nil {
		if errors.Cause(err) == ErrNoMembership {
			return Context{}, ErrUnresolvedRole
		}
		return Context{}, errors.Wrap(err, "getting membership")
	}

	if m.OrganizationID == "" || !m.Role.Valid() {
		return Context{}, ErrUnresolvedRole
	}
	if m.Role != RoleAdmin && m.RoleSpecificID == "" {
		return Context{}, ErrUnresolvedRole
	}

	tc := Context{
		UserID:         p.ID,
		OrganizationID: m.OrganizationID,
		Role:           m.Role,
		RoleSpecificID: m.RoleSpecificID,
	}
	if m.Role == RoleAdmin {
		tc.RoleSpecificID = ""
	}
	if m.Role == RoleParent {
		tc.StudentIDs = append([]string{}, m.StudentIDs...)
	}
	return tc, nil
}

package user

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/tenant"
)

var (
	// errors
	ErrNotFound          = errors.New("user not found")
	ErrEmailExists       = errors.New("a user with this email already exists")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrAccountDisabled   = errors.New("account deactivated")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	}

	Service struct {
		repo Repository
	}
)

var _ tenant.MembershipSource = (*Service)(nil) // interface compliance check

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, nu NewUser, validate *validator.Validate) (User, error) {
	nu.Clean()
	if err := validate.Struct(nu); err != nil {
		return User{}, err
	}
	if nu.Role != tenant.RoleAdmin && nu.RoleSpecificID == "" {
		return User{}, core.NewFieldError("role_specific_id", "this field is required")
	}

	now := core.NowFunc().UTC()
	usr := User{
		ID:             uuid.New().String(),
		OrganizationID: nu.OrganizationID,
		Name:           nu.Name,
		Email:          nu.Email,
		Role:           nu.Role,
		RoleSpecificID: nu.RoleSpecificID,
		StudentIDs:     nu.StudentIDs,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if usr.StudentIDs == nil {
		usr.StudentIDs = []string{}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return User{}, core.NewFieldError("email", ErrEmailExists.Error())
		}
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// Authenticate checks the credentials and records the login.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredential
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredential
	}
	if !usr.IsActive {
		return User{}, ErrAccountDisabled
	}

	usr.LastLogin = core.NowFunc().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

// SetPassword replaces a user's password; the new one must satisfy the password policy.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string, validate *validator.Validate) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = validate.Struct(passwordUpdate{Name: usr.Name, Email: usr.Email, Password: pwd}); err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}

// GetMembership resolves a principal id to its organization membership.
// Inactive or unknown users have no membership.
func (svc *Service) GetMembership(ctx context.Context, principalID string) (tenant.Membership, error) {
	usr, err := svc.GetByID(ctx, principalID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return tenant.Membership{}, tenant.ErrNoMembership
		}
		return tenant.Membership{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return tenant.Membership{}, tenant.ErrNoMembership
	}
	return usr.Membership(), nil
}

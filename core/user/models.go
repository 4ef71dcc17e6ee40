package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/tenant"
)

type User struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	Role           tenant.Role `json:"role"`
	RoleSpecificID string      `json:"role_specific_id"` // student, teacher or parent record id
	StudentIDs     []string    `json:"student_ids"`      // children of a PARENT
	IsActive       bool        `json:"is_active"`
	PasswordHash   []byte      `json:"-"`
	CreatedAt      time.Time   `json:"created_at"` // UTC
	UpdatedAt      time.Time   `json:"updated_at"` // UTC
	LastLogin      time.Time   `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsAdmin() bool { return u.Role == tenant.RoleAdmin }

// Membership maps the user to its organization membership.
func (u User) Membership() tenant.Membership {
	return tenant.Membership{
		OrganizationID: u.OrganizationID,
		Role:           u.Role,
		RoleSpecificID: u.RoleSpecificID,
		StudentIDs:     u.StudentIDs,
	}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	OrganizationID  string      `json:"organization_id" validate:"required"`
	Name            string      `json:"name" validate:"required"`
	Email           string      `json:"email" validate:"required,email"`
	Role            tenant.Role `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT PARENT"`
	RoleSpecificID  string      `json:"role_specific_id"`
	StudentIDs      []string    `json:"student_ids"`
	Password        string      `json:"password" validate:"required"`
	PasswordConfirm string      `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.OrganizationID = core.CleanString(nu.OrganizationID)
	nu.RoleSpecificID = core.CleanString(nu.RoleSpecificID)
}

type GetFilter struct {
	ID    string
	Email string
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

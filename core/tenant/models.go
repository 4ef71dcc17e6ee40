package tenant

import (
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
)

// Role is the closed set of roles a member can hold within an organization.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
	RoleParent  Role = "PARENT"
)

var AllRoles = []Role{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

var (
	// errors
	ErrUnauthenticated = errors.New("not authenticated")
	ErrUnresolvedRole  = errors.New("no organization role could be resolved for this user")
	ErrForbidden       = errors.New("permission denied")
	ErrNoMembership    = errors.New("membership not found")
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

// ParseRole never falls back to a default role.
func ParseRole(s string) (Role, error) {
	r := Role(core.CleanString(s))
	if !r.Valid() {
		return "", ErrUnresolvedRole
	}
	return r, nil
}

// Capability is an operation a Role may be allowed to perform.
type Capability int

const (
	CapManageFees    Capability = iota + 1 // create fees & categories, send reminders
	CapViewFees                            // read fees within the caller's student scope
	CapRecordPayment                       // record offline payments
	CapPayOnline                           // initiate gateway payments
	CapViewReports                         // organization-wide summaries & reports
)

// Allows is the single source of truth for role permissions.
func Allows(role Role, c Capability) bool {
	switch c {
	case CapManageFees, CapRecordPayment, CapViewReports:
		return role == RoleAdmin
	case CapViewFees:
		return role == RoleAdmin || role == RoleStudent || role == RoleParent
	case CapPayOnline:
		return role == RoleStudent || role == RoleParent
	}
	return false
}

// Principal is the authenticated identity handed over by the auth layer.
type Principal struct {
	ID string
}

// Membership is what the identity store knows about a user's place in an organization.
type Membership struct {
	OrganizationID string
	Role           Role
	RoleSpecificID string   // student, teacher or parent record id
	StudentIDs     []string // students linked to a parent
}

// Context is the resolved tenant/role scope every data access is filtered by.
type Context struct {
	UserID         string   `json:"user_id"`
	OrganizationID string   `json:"organization_id"`
	Role           Role     `json:"role"`
	RoleSpecificID string   `json:"role_specific_id,omitempty"` // empty for ADMIN
	StudentIDs     []string `json:"student_ids,omitempty"`
}

func (c Context) Can(cp Capability) bool {
	return c.OrganizationID != "" && Allows(c.Role, cp)
}

// Require returns ErrForbidden unless the context holds the capability.
func (c Context) Require(cp Capability) error {
	if !c.Can(cp) {
		return ErrForbidden
	}
	return nil
}

// StudentScope returns the students visible to the context; all is true for admins.
func (c Context) StudentScope() (ids []string, all bool) {
	switch c.Role {
	case RoleAdmin:
		return nil, true
	case RoleStudent:
		return []string{c.RoleSpecificID}, false
	case RoleParent:
		return c.StudentIDs, false
	}
	return []string{}, false
}

func (c Context) CanAccessStudent(studentID string) bool {
	ids, all := c.StudentScope()
	return all || core.ContainsString(ids, studentID)
}

package tenant

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type membershipStub map[string]Membership

func (s membershipStub) GetMembership(_ context.Context, id string) (Membership, error) {
	if id == "boom" {
		return Membership{}, errors.New("db down")
	}
	m, ok := s[id]
	if !ok {
		return Membership{}, ErrNoMembership
	}
	return m, nil
}

func TestResolver_Resolve(t *testing.T) {
	src := membershipStub{
		"admin":     {OrganizationID: "org1", Role: RoleAdmin, RoleSpecificID: "ignored"},
		"student":   {OrganizationID: "org1", Role: RoleStudent, RoleSpecificID: "stu1"},
		"parent":    {OrganizationID: "org1", Role: RoleParent, RoleSpecificID: "par1", StudentIDs: []string{"stu1", "stu2"}},
		"teacher":   {OrganizationID: "org1", Role: RoleTeacher, RoleSpecificID: "tea1"},
		"no-org":    {Role: RoleStudent, RoleSpecificID: "stu9"},
		"no-role":   {OrganizationID: "org1"},
		"bad-role":  {OrganizationID: "org1", Role: Role("OWNER")},
		"no-record": {OrganizationID: "org1", Role: RoleStudent},
	}
	r := NewResolver(src)

	tests := []struct {
		name    string
		p       *Principal
		want    Context
		wantErr error
	}{
		{name: "no principal", p: nil, wantErr: ErrUnauthenticated},
		{name: "empty principal", p: &Principal{}, wantErr: ErrUnauthenticated},
		{name: "not a member", p: &Principal{ID: "ghost"}, wantErr: ErrUnresolvedRole},
		{name: "no organization", p: &Principal{ID: "no-org"}, wantErr: ErrUnresolvedRole},
		{name: "no role", p: &Principal{ID: "no-role"}, wantErr: ErrUnresolvedRole},
		{name: "unknown role", p: &Principal{ID: "bad-role"}, wantErr: ErrUnresolvedRole},
		{name: "student without record", p: &Principal{ID: "no-record"}, wantErr: ErrUnresolvedRole},
		{
			name: "admin", p: &Principal{ID: "admin"},
			want: Context{UserID: "admin", OrganizationID: "org1", Role: RoleAdmin},
		},
		{
			name: "student", p: &Principal{ID: "student"},
			want: Context{UserID: "student", OrganizationID: "org1", Role: RoleStudent, RoleSpecificID: "stu1"},
		},
		{
			name: "parent", p: &Principal{ID: "parent"},
			want: Context{UserID: "parent", OrganizationID: "org1", Role: RoleParent, RoleSpecificID: "par1", StudentIDs: []string{"stu1", "stu2"}},
		},
		{
			name: "teacher", p: &Principal{ID: "teacher"},
			want: Context{UserID: "teacher", OrganizationID: "org1", Role: RoleTeacher, RoleSpecificID: "tea1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.p)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				assert.Empty(t, got.OrganizationID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("lookup failure is not a role", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), &Principal{ID: "boom"})
		require.Error(t, err)
		assert.NotEqual(t, ErrUnresolvedRole, errors.Cause(err))
	})
}

func TestAllows(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleAdmin, CapManageFees, true},
		{RoleAdmin, CapViewFees, true},
		{RoleAdmin, CapRecordPayment, true},
		{RoleAdmin, CapPayOnline, false},
		{RoleAdmin, CapViewReports, true},
		{RoleStudent, CapViewFees, true},
		{RoleStudent, CapPayOnline, true},
		{RoleStudent, CapRecordPayment, false},
		{RoleStudent, CapViewReports, false},
		{RoleParent, CapViewFees, true},
		{RoleParent, CapPayOnline, true},
		{RoleParent, CapManageFees, false},
		{RoleTeacher, CapViewFees, false},
		{RoleTeacher, CapPayOnline, false},
		{Role(""), CapViewFees, false},
		{RoleAdmin, Capability(0), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := Allows(tt.role, tt.cap); got != tt.want {
				t.Errorf("Allows(%s, %d) = %v, want %v", tt.role, tt.cap, got, tt.want)
			}
		})
	}
}

func TestContext_CanAccessStudent(t *testing.T) {
	admin := Context{OrganizationID: "org1", Role: RoleAdmin}
	student := Context{OrganizationID: "org1", Role: RoleStudent, RoleSpecificID: "stu1"}
	parent := Context{OrganizationID: "org1", Role: RoleParent, RoleSpecificID: "par1", StudentIDs: []string{"stu1", "stu2"}}
	teacher := Context{OrganizationID: "org1", Role: RoleTeacher, RoleSpecificID: "tea1"}

	assert.True(t, admin.CanAccessStudent("anyone"))
	assert.True(t, student.CanAccessStudent("stu1"))
	assert.False(t, student.CanAccessStudent("stu2"))
	assert.True(t, parent.CanAccessStudent("stu2"))
	assert.False(t, parent.CanAccessStudent("stu3"))
	assert.False(t, teacher.CanAccessStudent("stu1"))

	assert.Equal(t, ErrForbidden, Context{Role: RoleAdmin}.Require(CapViewFees), "no organization means no access")
	assert.NoError(t, admin.Require(CapViewReports))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" PARENT ")
	require.NoError(t, err)
	assert.Equal(t, RoleParent, r)

	_, err = ParseRole("student")
	assert.Equal(t, ErrUnresolvedRole, err)
}

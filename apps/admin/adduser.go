package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/tenant"
	"github.com/trezcool/feeledger/core/user"
)

type newUserArgs struct {
	organizationID string
	email          string
	name           string
	role           string
	roleSpecificID string
	studentIDs     []string
	password       string
}

// addOrganization creates a tenant.Organization and prints its id.
func (cli *commandLine) addOrganization(name string) error {
	org, err := cli.app.Stores.Orgs.CreateOrganization(context.Background(), tenant.Organization{
		ID:        uuid.New().String(),
		Name:      core.CleanString(name),
		CreatedAt: core.NowFunc().UTC(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.stdout(), org.ID)
	return nil
}

// addUser creates a user.User in an existing organization and prints its id.
func (cli *commandLine) addUser(args newUserArgs) error {
	ctx := context.Background()
	role, err := tenant.ParseRole(args.role)
	if err != nil {
		return err
	}
	if _, err = cli.app.Stores.Orgs.GetOrganization(ctx, args.organizationID); err != nil {
		return err
	}

	name := args.name
	if name == "" {
		name = args.email
	}
	usr, err := cli.app.UserSvc.Create(ctx, user.NewUser{
		OrganizationID:  args.organizationID,
		Name:            name,
		Email:           args.email,
		Role:            role,
		RoleSpecificID:  args.roleSpecificID,
		StudentIDs:      args.studentIDs,
		Password:        args.password,
		PasswordConfirm: args.password,
	}, cli.app.Validate)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.stdout(), usr.ID)
	return nil
}

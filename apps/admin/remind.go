package main

import (
	"context"
	"fmt"

	"github.com/trezcool/feeledger/core/tenant"
)

// remind sends the fee reminders of an academic year on behalf of the organization's administration.
func (cli *commandLine) remind(organizationID, academicYearID string) error {
	ctx := context.Background()
	if _, err := cli.app.Stores.Orgs.GetOrganization(ctx, organizationID); err != nil {
		return err
	}

	tc := tenant.Context{UserID: "admin-cli", OrganizationID: organizationID, Role: tenant.RoleAdmin}
	res, err := cli.app.FeeSvc.SendReminders(ctx, tc, academicYearID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.stdout(), "sent: %d, skipped: %d\n", res.Sent, res.Skipped)
	return nil
}

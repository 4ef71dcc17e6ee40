package main

import (
	"context"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.app.UserSvc.SetPassword(context.Background(), email, pwd, cli.app.Validate)
}

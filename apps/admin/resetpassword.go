package main

import (
	"context"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/user"
)

// resetPassword sets a temporary password on the user; they must change
// it on their next login.
func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	now := user.NowFunc().UTC()
	usr.MustChangePassword = true
	usr.PasswordChangedAt = now
	usr.UpdatedAt = now
	if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}

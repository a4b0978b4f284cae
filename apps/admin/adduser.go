package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/user"
)

// addUser updates or creates an active admin user.User
func (cli *commandLine) addUser(email, firstName, lastName, pwd string) error {
	var usr user.User
	var err error
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	now := user.NowFunc().UTC()

	create := false
	if usr, err = cli.usrRepo.GetUserByEmail(ctx, email); err != nil {
		if err != user.ErrNotFound {
			return err
		}
		create = true
		usr = user.User{
			ID:        uuid.New().String(),
			Email:     email,
			CreatedAt: now,
		}
	}
	usr.FirstName = core.CleanString(firstName)
	usr.LastName = core.CleanString(lastName)
	usr.Role = user.RoleAdmin
	usr.IsActive = true
	usr.MustChangePassword = false
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.PasswordChangedAt = now

	if create {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	return err
}

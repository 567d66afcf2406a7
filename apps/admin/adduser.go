package main

import (
	"context"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/user"
)

// addUser updates or creates a user.User. The role only applies on creation;
// existing users keep theirs.
func (cli *commandLine) addUser(email, first, last, role, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	first = core.CleanString(first)
	last = core.CleanString(last)
	role = core.CleanString(role, true /* lower */)

	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Email:     email,
			FirstName: first,
			LastName:  last,
			Role:      role,
			Status:    user.StatusActive,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	}

	usr.FirstName = first
	usr.LastName = last
	usr.Status = user.StatusActive
	if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	return cli.usrRepo.SetPassword(ctx, usr.ID, usr.PasswordHash)
}

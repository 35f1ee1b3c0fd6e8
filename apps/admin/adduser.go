package main

import (
	"context"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err == user.ErrNotFound {
		usr, err = cli.usrSvc.GetByUsernameOrEmail(ctx, email)
	}
	switch err {
	case nil:
		if isAdmin {
			usr.Roles = user.AllRoles
		}
		usr.IsActive = true
		_, err = cli.usrSvc.SetPassword(ctx, usr, pwd)
		return err
	case user.ErrNotFound:
		roles := user.StudentRoles
		if isAdmin {
			roles = user.AllRoles
		}
		_, err = cli.usrSvc.Create(ctx, user.NewUser{
			Name:            uname,
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		})
		return err
	default:
		return err
	}
}

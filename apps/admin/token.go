package main

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/user"
)

// issueToken prints a signed API token. Users live in the identity service; this is meant for ops and scripts.
func (cli *commandLine) issueToken(id, name, email string, roles []string) error {
	usr := user.User{ID: id, Name: name, Email: email}
	for _, role := range roles {
		role = core.CleanString(role, true)
		if !user.IsValidRole(role) {
			return errors.Errorf("invalid role %q", role)
		}
		usr.Roles = append(usr.Roles, role)
	}

	claims := user.NewClaims(usr, cli.conf.AppName, cli.conf.Server.JWTExpirationDelta)
	token, err := user.GenerateToken(claims, []byte(cli.conf.SecretKey))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

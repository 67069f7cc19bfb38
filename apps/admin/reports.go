package main

import (
	"context"
	"fmt"

	"github.com/trezcool/rapor/core/report"
	"github.com/trezcool/rapor/core/user"
)

// admin is the actor behind CLI runs.
func admin(id string) user.User {
	return user.User{ID: id, Roles: []string{user.RoleAdmin}}
}

func (cli *commandLine) generate(classID, semesterID, userID string) error {
	req := report.GenerateRequest{ClassID: classID, SemesterID: semesterID}
	res, err := cli.reportSvc.Generate(context.Background(), req, admin(userID))
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "generated: %d, skipped: %d, failed: %d\n", res.Generated, res.Skipped, res.Failed)
	return nil
}

func (cli *commandLine) publishAll(classID, semesterID, userID string) error {
	res, err := cli.reportSvc.PublishAll(context.Background(), classID, semesterID, admin(userID))
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "published: %d, skipped: %d, failed: %d\n", res.Published, res.Skipped, res.Failed)
	return nil
}

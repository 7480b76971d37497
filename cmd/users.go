package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/urfave/cli/v3"
)

// UsersFind searches users by username.
func (r *Runner) UsersFind(ctx context.Context, cmd *cli.Command) error {
	query, err := requireArg(cmd, "query")
	if err != nil {
		return err
	}

	client, err := r.authed()
	if err != nil {
		return err
	}

	users, err := client.FindUsers(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to find users: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(users, true)
	}
	return r.writeUsers(users)
}

func (r *Runner) writeUsers(users []models.User) error {
	if len(users) == 0 {
		return r.writePlain("No users found\n")
	}
	for _, u := range users {
		r.writePlain("%4d  %s\n", u.ID, u.Username)
	}
	return nil
}

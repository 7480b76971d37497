package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/urfave/cli/v3"
)

// AuthLogin signs in with a username and password and stores the session.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	return r.authenticate(ctx, cmd, "login")
}

// AuthRegister creates an account; the server signs the new user in.
func (r *Runner) AuthRegister(ctx context.Context, cmd *cli.Command) error {
	return r.authenticate(ctx, cmd, "register")
}

func (r *Runner) authenticate(ctx context.Context, cmd *cli.Command, action string) error {
	username, err := requireArg(cmd, "username")
	if err != nil {
		return err
	}

	password := cmd.String("password")
	if password == "" {
		if password, err = r.prompt("Password"); err != nil {
			return err
		}
	}

	client, _, err := r.backend()
	if err != nil {
		return err
	}

	r.logger.Infof("%s as %v", action, username)

	var session models.Session
	if action == "register" {
		session, err = client.Register(ctx, username, password)
	} else {
		session, err = client.Login(ctx, username, password)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", action, err)
	}

	if action == "register" {
		return r.writePlain("✓ Registered and signed in as %s\n", session.Username)
	}
	return r.writePlain("✓ Signed in as %s\n", session.Username)
}

// AuthLogout clears the stored session and active list.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	s, err := r.session()
	if err != nil {
		return err
	}

	username := s.Current().Username
	if err := s.Clear(); err != nil {
		return err
	}

	if username == "" {
		return r.writePlain("Not signed in\n")
	}
	return r.writePlain("✓ Signed out %s\n", username)
}

// AuthStatus reports the signed-in user and when the access token expires.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	client, _, err := r.backend()
	if err != nil {
		return err
	}

	session := client.Session()
	if !session.Authenticated() {
		return r.writePlain("✗ Not signed in\n")
	}

	if cmd.Bool("refresh") {
		if session, err = client.Refresh(ctx); err != nil {
			return err
		}
		r.writePlain("✓ Token refreshed\n")
	}

	r.writePlain("✓ Signed in as %s (id %d)\n", session.Username, session.UserID)
	r.writePlain("API: %s\n", r.config.API.BaseURL)

	claims, err := models.ParseClaims(session.AccessToken)
	if err != nil {
		r.logger.Debug("access token is not a readable JWT", "error", err)
		return nil
	}
	if claims.Expiry.IsZero() {
		return r.writePlain("Token: no expiry\n")
	}

	remaining := time.Until(claims.Expiry).Round(time.Second)
	if remaining <= 0 {
		r.writePlain("Token: expired %s ago (refreshed on next request)\n", -remaining)
		return nil
	}
	r.writePlain("Token: expires in %s\n", remaining)
	if session.RefreshToken == "" {
		r.writePlain("Refresh: none stored, sign in again when the token expires\n")
	}
	return nil
}

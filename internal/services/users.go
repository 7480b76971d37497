package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges a username and password for a session and stores it in the client's credentials.
//
// Calls POST /api/users/login.
func (c *Client) Login(ctx context.Context, username, password string) (models.Session, error) {
	return c.authenticate(ctx, "/api/users/login", username, password)
}

// Register creates an account and signs in as it.
//
// Calls POST /api/users.
func (c *Client) Register(ctx context.Context, username, password string) (models.Session, error) {
	return c.authenticate(ctx, "/api/users", username, password)
}

func (c *Client) authenticate(ctx context.Context, endpoint, username, password string) (models.Session, error) {
	if username == "" || password == "" {
		return models.Session{}, fmt.Errorf("%w: username and password are required", shared.ErrInvalidInput)
	}

	body, err := json.Marshal(credentialsRequest{username, password})
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to encode request: %w", err)
	}

	var auth models.Session
	if err := c.send(ctx, http.MethodPost, endpoint, body, &auth, models.Session{}); err != nil {
		return models.Session{}, err
	}
	if err := c.creds.Update(auth); err != nil {
		return auth, err
	}
	return auth, nil
}

// Refresh forces a token refresh for the current session.
func (c *Client) Refresh(ctx context.Context) (models.Session, error) {
	session := c.creds.Current()
	if !session.Authenticated() {
		return models.Session{}, shared.ErrNotAuthenticated
	}
	return c.refresh(ctx, session)
}

// FindUsers searches accounts by username.
//
// Calls GET /api/users?queryString=.
func (c *Client) FindUsers(ctx context.Context, query string) ([]models.User, error) {
	var users []models.User
	endpoint := "/api/users?" + url.Values{"queryString": {query}}.Encode()
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

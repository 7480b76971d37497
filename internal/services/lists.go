package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
)

const listsPath = "/api/todo-lists"

func listPath(id int) string { return fmt.Sprintf("%s/%d", listsPath, id) }

// ListLists returns every list the viewer owns or is a member of.
func (c *Client) ListLists(ctx context.Context) ([]models.List, error) {
	var lists []models.List
	if err := c.doRequest(ctx, http.MethodGet, listsPath, nil, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// GetList returns a single list, without members or items.
func (c *Client) GetList(ctx context.Context, id int) (*models.List, error) {
	var list models.List
	if err := c.doRequest(ctx, http.MethodGet, listPath(id), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateList creates a list owned by the viewer.
func (c *Client) CreateList(ctx context.Context, in models.ListInput) (*models.List, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	var list models.List
	if err := c.doRequest(ctx, http.MethodPost, listsPath, in, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// UpdateList renames a list or changes its description. The server only allows the owner to do so.
func (c *Client) UpdateList(ctx context.Context, id int, in models.ListInput) (*models.List, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	var list models.List
	if err := c.doRequest(ctx, http.MethodPut, listPath(id), in, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteList deletes a list and everything in it.
func (c *Client) DeleteList(ctx context.Context, id int) error {
	var ok bool
	if err := c.doRequest(ctx, http.MethodDelete, listPath(id), nil, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: list %d", ErrNotFound, id)
	}
	return nil
}

// CloneList copies a list and its items into a new list owned by the viewer.
func (c *Client) CloneList(ctx context.Context, id int, name string) (*models.List, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: clone name is required", shared.ErrInvalidInput)
	}
	var list models.List
	body := map[string]string{"name": name}
	if err := c.doRequest(ctx, http.MethodPost, listPath(id)+"/clone", body, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ShareList adds users to a list with the given role.
func (c *Client) ShareList(ctx context.Context, id int, req models.ShareRequest) error {
	if len(req.UserIDs) == 0 {
		return fmt.Errorf("%w: at least one user id is required", shared.ErrInvalidInput)
	}
	var ok bool
	return c.doRequest(ctx, http.MethodPost, listPath(id)+"/share", req, &ok)
}

// ListMembers returns the members the server knows about. The author may be missing; see
// [models.EffectiveMembers].
func (c *Client) ListMembers(ctx context.Context, id int) ([]models.Member, error) {
	var members []models.Member
	if err := c.doRequest(ctx, http.MethodGet, listPath(id)+"/members", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// ListRoles returns the roles a list can be shared with.
func (c *Client) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := c.doRequest(ctx, http.MethodGet, listsPath+"/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

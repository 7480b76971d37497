package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
)

func itemsPath(listID int) string { return fmt.Sprintf("%s/todos", listPath(listID)) }

func itemPath(listID, itemID int) string { return fmt.Sprintf("%s/%d", itemsPath(listID), itemID) }

// ListItems returns every item in a list.
func (c *Client) ListItems(ctx context.Context, listID int) ([]models.Item, error) {
	var items []models.Item
	if err := c.doRequest(ctx, http.MethodGet, itemsPath(listID), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetItem returns a single item, or [ErrNotFound] when the server has no such item.
func (c *Client) GetItem(ctx context.Context, listID, itemID int) (*models.Item, error) {
	var item models.Item
	if err := c.doRequest(ctx, http.MethodGet, itemPath(listID, itemID), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateItem appends an item to a list.
func (c *Client) CreateItem(ctx context.Context, listID int, description string) (*models.Item, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", shared.ErrInvalidInput)
	}
	var item models.Item
	body := map[string]string{"description": description}
	if err := c.doRequest(ctx, http.MethodPost, itemsPath(listID), body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem applies a partial update and returns the stored item.
func (c *Client) UpdateItem(ctx context.Context, listID, itemID int, update models.ItemUpdate) (*models.Item, error) {
	if update.Completed == nil && update.Description == nil {
		return nil, fmt.Errorf("%w: empty update", shared.ErrInvalidInput)
	}
	var item models.Item
	if err := c.doRequest(ctx, http.MethodPut, itemPath(listID, itemID), update, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem removes an item. A false response from the server maps to [ErrNotFound].
func (c *Client) DeleteItem(ctx context.Context, listID, itemID int) error {
	var ok bool
	if err := c.doRequest(ctx, http.MethodDelete, itemPath(listID, itemID), nil, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}
	return nil
}

// CloneItem duplicates an item within its list.
func (c *Client) CloneItem(ctx context.Context, listID, itemID int) (*models.Item, error) {
	var item models.Item
	if err := c.doRequest(ctx, http.MethodPost, itemPath(listID, itemID)+"/clone", nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

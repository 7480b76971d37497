package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tdx/internal/models"
)

var _ list.Item = todoListItem{}

// todoListItem wraps [models.List] to implement [list.Item].
type todoListItem struct {
	list   models.List
	viewer int
}

func (i todoListItem) FilterValue() string { return i.list.Name }
func (i todoListItem) Title() string {
	if i.list.Author.ID != i.viewer && i.list.Author.Username != "" {
		return fmt.Sprintf("%s  (by %s)", i.list.Name, i.list.Author.Username)
	}
	return i.list.Name
}
func (i todoListItem) Description() string {
	desc := string(i.list.Role)
	if i.list.Description != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.list.Description)
	}
	return desc
}

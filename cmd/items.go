package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/tdx/internal/formatter"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/reconcile"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
)

// openView opens a reconciled view of the list named by --list or the active list.
//
// Commands use the same view the TUI does so edits go through the edit state machine and
// collaborators see live-typing frames.
func (r *Runner) openView(ctx context.Context, cmd *cli.Command) (*reconcile.View, error) {
	id, err := r.listID(cmd, "list")
	if err != nil {
		return nil, err
	}
	if _, err := r.authed(); err != nil {
		return nil, err
	}
	_, rec, err := r.backend()
	if err != nil {
		return nil, err
	}

	view, err := rec.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to open list %d: %w", id, err)
	}
	return view, nil
}

func itemArg(cmd *cli.Command) (int, error) {
	raw, err := requireArg(cmd, "item")
	if err != nil {
		return 0, err
	}
	return parseID("item", raw)
}

// ItemsList prints the todos of a list.
func (r *Runner) ItemsList(ctx context.Context, cmd *cli.Command) error {
	view, err := r.openView(ctx, cmd)
	if err != nil {
		return err
	}
	defer view.Close()

	list := view.Snapshot().List
	if cmd.Bool("json") {
		return r.writeJSON(list.Items, true)
	}

	r.writePlain("%s  (%s)\n\n", list.Name, list.CompletionSummary())
	return r.writeItems(list)
}

// ItemsAdd adds a todo to a list.
func (r *Runner) ItemsAdd(ctx context.Context, cmd *cli.Command) error {
	desc, err := requireArg(cmd, "description")
	if err != nil {
		return err
	}
	view, err := r.openView(ctx, cmd)
	if err != nil {
		return err
	}
	defer view.Close()

	item, err := view.Create(ctx, desc)
	if err != nil {
		return fmt.Errorf("failed to add todo: %w", err)
	}
	return r.writePlain("✓ Added #%d %s\n", item.ID, item.Description)
}

// ItemsEdit replaces a todo's description.
func (r *Runner) ItemsEdit(ctx context.Context, cmd *cli.Command) error {
	itemID, err := itemArg(cmd)
	if err != nil {
		return err
	}
	desc, err := requireArg(cmd, "description")
	if err != nil {
		return err
	}
	view, err := r.openView(ctx, cmd)
	if err != nil {
		return err
	}
	defer view.Close()

	if err := view.RequestEdit(itemID); err != nil {
		return err
	}
	if err := view.SetDraft(itemID, desc); err != nil {
		view.CancelEdit(itemID)
		return err
	}
	if err := view.SubmitEdit(ctx, itemID); err != nil {
		view.CancelEdit(itemID)
		return fmt.Errorf("failed to save todo: %w", err)
	}

	item := findItem(view, itemID)
	return r.writePlain("✓ Updated #%d %s\n", itemID, item.Description)
}

// ItemsToggle flips a todo's completed flag.
func (r *Runner) ItemsToggle(ctx context.Context, cmd *cli.Command) error {
	itemID, err := itemArg(cmd)
	if err != nil {
		return err
	}
	view, err := r.openView(ctx, cmd)
	if err != nil {
		return err
	}
	defer view.Close()

	if err := view.ToggleComplete(ctx, itemID); err != nil {
		return fmt.Errorf("failed to toggle todo: %w", err)
	}

	item := findItem(view, itemID)
	return r.writePlain("✓ %s %s\n", formatter.Checkbox(item.Completed), item.Description)
}

// ItemsDelete removes a todo.
func (r *Runner) ItemsDelete(ctx context.Context, cmd *cli.Command) error {
	itemID, err := itemArg(cmd)
	if err != nil {
		return err
	}
	view, err := r.openView(ctx, cmd)
	if err != nil {
		return err
	}
	defer view.Close()

	item := findItem(view, itemID)
	if err := view.Delete(ctx, itemID); err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	return r.writePlain("✓ Deleted #%d %s\n", itemID, item.Description)
}

// ItemsClone duplicates a todo in the same list.
func (r *Runner) ItemsClone(ctx context.Context, cmd *cli.Command) error {
	itemID, err := itemArg(cmd)
	if err != nil {
		return err
	}
	view, err := r.openView(ctx, cmd)
	if err != nil {
		return err
	}
	defer view.Close()

	item, err := view.Clone(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to clone todo: %w", err)
	}
	return r.writePlain("✓ Cloned into #%d %s\n", item.ID, item.Description)
}

func findItem(view *reconcile.View, itemID int) models.Item {
	items := view.Snapshot().List.Items
	if i := models.FindItem(items, itemID); i >= 0 {
		return items[i]
	}
	return models.Item{ID: itemID}
}

func (r *Runner) writeItems(list models.List) error {
	if len(list.Items) == 0 {
		return r.writePlain("No todos yet. Add one with 'tdx todos add --list %d <description>'\n", list.ID)
	}
	for _, it := range list.Items {
		if err := r.writePlain("%4d  %s %s  (%s)\n", it.ID, formatter.Checkbox(it.Completed), it.Description,
			formatter.AuthorName(list, it.AuthorID)); err != nil {
			return err
		}
	}
	return nil
}

// markdownStyle picks a glamour style for the Runner's output.
func (r *Runner) markdownStyle() string {
	f, ok := r.output.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return formatter.StyleNoTTY
	}
	if lipgloss.HasDarkBackground() {
		return formatter.StyleDark
	}
	return formatter.StyleLight
}

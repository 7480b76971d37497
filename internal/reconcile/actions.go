package reconcile

import (
	"context"
	"fmt"

	"github.com/desertthunder/tdx/internal/live"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
)

// lookup returns the index of itemID. Callers hold mu.
func (v *View) lookup(itemID int) (int, error) {
	if v.closed {
		return -1, shared.ErrViewClosed
	}
	i := models.FindItem(v.list.Items, itemID)
	if i < 0 {
		return -1, fmt.Errorf("%w: %d", shared.ErrItemMissing, itemID)
	}
	return i, nil
}

// RequestEdit starts a local edit seeded with the item's description. A collaborator editing the same item does
// not block it; whoever commits last wins.
func (v *View) RequestEdit(itemID int) error {
	v.mu.Lock()
	i, err := v.lookup(itemID)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	description := v.list.Items[i].Description
	v.drafts[itemID] = description
	v.overlays[itemID] = Overlay{State: LocallyEditing, Description: description}
	n := v.notifier
	v.notify()
	v.mu.Unlock()

	v.broadcast(n, live.Item(live.ActionOpenForEditing, itemID))
	return nil
}

// SetDraft replaces the local draft. Collaborators see the draft as it is typed, rate limited.
func (v *View) SetDraft(itemID int, draft string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrViewClosed
	}
	if _, ok := v.drafts[itemID]; !ok {
		v.mu.Unlock()
		return fmt.Errorf("%w: %d", shared.ErrNotEditing, itemID)
	}
	v.drafts[itemID] = draft
	v.overlays[itemID] = Overlay{State: LocallyEditing, Description: draft}
	n := v.notifier
	v.notify()
	v.mu.Unlock()

	if v.limiter.Allow() {
		v.broadcast(n, live.EditDescriptionEvent{ItemID: itemID, Description: draft})
	}
	return nil
}

// CancelEdit abandons a local edit. A collaborator's overlay on the item is left in place.
func (v *View) CancelEdit(itemID int) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrViewClosed
	}
	if _, ok := v.drafts[itemID]; !ok {
		v.mu.Unlock()
		return fmt.Errorf("%w: %d", shared.ErrNotEditing, itemID)
	}
	v.endLocalEdit(itemID)
	n := v.notifier
	v.notify()
	v.mu.Unlock()

	v.broadcast(n, live.Item(live.ActionCloseEditing, itemID))
	return nil
}

// SubmitEdit commits the local draft. On failure the edit stays open so it can be retried or cancelled.
func (v *View) SubmitEdit(ctx context.Context, itemID int) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrViewClosed
	}
	draft, ok := v.drafts[itemID]
	v.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", shared.ErrNotEditing, itemID)
	}
	description, err := trimDescription(draft)
	if err != nil {
		return err
	}

	item, err := v.store.UpdateItem(ctx, v.listID, itemID, models.ItemUpdate{Description: &description})
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrViewClosed
	}
	v.replace(*item)
	v.endLocalEdit(itemID)
	n := v.notifier
	v.notify()
	v.mu.Unlock()

	v.broadcast(n, live.Item(live.ActionUpdate, itemID))
	return nil
}

// endLocalEdit drops the draft and the local overlay. Callers hold mu.
func (v *View) endLocalEdit(itemID int) {
	delete(v.drafts, itemID)
	if v.overlays[itemID].State == LocallyEditing {
		delete(v.overlays, itemID)
	}
}

// ToggleComplete flips an item's completed flag. A failed call leaves the item unchanged.
func (v *View) ToggleComplete(ctx context.Context, itemID int) error {
	v.mu.Lock()
	i, err := v.lookup(itemID)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	completed := !v.list.Items[i].Completed
	v.mu.Unlock()

	item, err := v.store.UpdateItem(ctx, v.listID, itemID, models.ItemUpdate{Completed: &completed})
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrViewClosed
	}
	v.replace(*item)
	n := v.notifier
	v.notify()
	v.mu.Unlock()

	v.broadcast(n, live.Item(live.ActionUpdate, itemID))
	return nil
}

// Create adds an item and announces it.
func (v *View) Create(ctx context.Context, description string) (*models.Item, error) {
	description, err := trimDescription(description)
	if err != nil {
		return nil, err
	}
	if v.isClosed() {
		return nil, shared.ErrViewClosed
	}

	item, err := v.store.CreateItem(ctx, v.listID, description)
	if err != nil {
		return nil, err
	}
	return v.added(item)
}

// Clone duplicates an item and announces the copy.
func (v *View) Clone(ctx context.Context, itemID int) (*models.Item, error) {
	v.mu.Lock()
	_, err := v.lookup(itemID)
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}

	item, err := v.store.CloneItem(ctx, v.listID, itemID)
	if err != nil {
		return nil, err
	}
	return v.added(item)
}

func (v *View) added(item *models.Item) (*models.Item, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return item, shared.ErrViewClosed
	}
	v.upsert(*item)
	n := v.notifier
	v.notify()
	v.mu.Unlock()

	v.broadcast(n, live.Item(live.ActionCreate, item.ID))
	return item, nil
}

// Delete removes an item and announces it. An item the server no longer has is removed locally without error
// and without a broadcast.
func (v *View) Delete(ctx context.Context, itemID int) error {
	if v.isClosed() {
		return shared.ErrViewClosed
	}

	err := v.store.DeleteItem(ctx, v.listID, itemID)
	if err != nil && !isNotFound(err) {
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrViewClosed
	}
	v.remove(itemID)
	n := v.notifier
	v.notify()
	v.mu.Unlock()

	if err != nil {
		v.logger.Debug("item already deleted on server", "item_id", itemID)
		return nil
	}
	v.broadcast(n, live.Item(live.ActionDelete, itemID))
	return nil
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

package reconcile

import (
	"fmt"

	"github.com/desertthunder/tdx/internal/live"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
)

// Handle applies one channel notification. Create and update notifications start a fetch and return before it
// completes.
//
// Notifications about unknown items or members return [shared.ErrStaleNotification]; callers log and drop them.
func (v *View) Handle(e live.Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return shared.ErrViewClosed
	}

	var err error
	switch ev := e.(type) {
	case live.InitEvent:
		v.seedPresence(ev.Users)
	case live.PresenceEvent:
		err = v.presence(ev)
	case live.ItemEvent:
		err = v.itemEvent(ev)
	case live.EditDescriptionEvent:
		err = v.editDescription(ev)
	default:
		err = fmt.Errorf("%w: %T", shared.ErrInvalidMessage, e)
	}

	if err == nil {
		v.notify()
	}
	return err
}

// seedPresence marks exactly the members in users as active.
func (v *View) seedPresence(users map[int]models.User) {
	for i := range v.list.Members {
		_, ok := users[v.list.Members[i].User.ID]
		v.list.Members[i].Active = ok
	}
}

func (v *View) presence(ev live.PresenceEvent) error {
	if ev.Kind == live.ActionConnect && ev.User.ID == v.viewer {
		return nil
	}
	i := models.FindMember(v.list.Members, ev.User.ID)
	if i < 0 {
		return fmt.Errorf("%w: user %d is not a member", shared.ErrStaleNotification, ev.User.ID)
	}
	v.list.Members[i].Active = ev.Kind == live.ActionConnect
	return nil
}

func (v *View) itemEvent(ev live.ItemEvent) error {
	id := ev.ItemID

	switch ev.Kind {
	case live.ActionCreate:
		if v.tombstoned(id) {
			return fmt.Errorf("%w: item %d was deleted", shared.ErrStaleNotification, id)
		}
		v.fetch(id, v.applyCreate(id))
		return nil

	case live.ActionUpdate:
		delete(v.overlays, id)
		v.fetch(id, v.applyUpdate(id))
		return nil

	case live.ActionDelete:
		v.remove(id)
		return nil

	case live.ActionOpenForEditing:
		i := models.FindItem(v.list.Items, id)
		if i < 0 {
			return fmt.Errorf("%w: item %d", shared.ErrStaleNotification, id)
		}
		v.overlays[id] = Overlay{State: RemotelyEditing, Description: v.list.Items[i].Description}
		return nil

	case live.ActionCloseEditing:
		if models.FindItem(v.list.Items, id) < 0 {
			return fmt.Errorf("%w: item %d", shared.ErrStaleNotification, id)
		}
		if v.overlays[id].State != RemotelyEditing {
			return nil
		}
		if draft, ok := v.drafts[id]; ok {
			v.overlays[id] = Overlay{State: LocallyEditing, Description: draft}
		} else {
			delete(v.overlays, id)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", shared.ErrInvalidMessage, ev.Kind)
}

// editDescription updates the live preview; an item that was not being edited is opened remotely first. A local
// draft of the item is kept underneath.
func (v *View) editDescription(ev live.EditDescriptionEvent) error {
	if models.FindItem(v.list.Items, ev.ItemID) < 0 {
		return fmt.Errorf("%w: item %d", shared.ErrStaleNotification, ev.ItemID)
	}
	v.overlays[ev.ItemID] = Overlay{State: RemotelyEditing, Description: ev.Description}
	return nil
}

func (v *View) applyCreate(id int) func(*models.Item, error) {
	return func(item *models.Item, err error) {
		switch {
		case isNotFound(err):
			v.logger.Debug("created item not visible, dropping", "item_id", id)
		case err != nil:
			v.logger.Warn("failed to fetch created item", "item_id", id, "err", err)
		case v.tombstoned(id):
			v.logger.Debug("created item already deleted, dropping", "item_id", id)
		default:
			v.upsert(*item)
		}
	}
}

func (v *View) applyUpdate(id int) func(*models.Item, error) {
	return func(item *models.Item, err error) {
		switch {
		case isNotFound(err):
			v.remove(id)
		case err != nil:
			v.logger.Warn("failed to fetch updated item", "item_id", id, "err", err)
		case !v.replace(*item):
			v.logger.Debug("updated item not in view, dropping", "item_id", id)
		}
	}
}

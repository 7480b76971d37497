package live

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
)

// Action tags every frame on the channel.
type Action string

const (
	ActionInit            Action = "init"
	ActionConnect         Action = "connect"
	ActionDisconnect      Action = "disconnect"
	ActionCreate          Action = "todo_item_create"
	ActionDelete          Action = "todo_item_delete"
	ActionOpenForEditing  Action = "todo_item_open_for_editing"
	ActionCloseEditing    Action = "todo_item_close_editing"
	ActionEditDescription Action = "todo_item_edit_description"
	ActionUpdate          Action = "todo_item_update"
)

// Event is one of [InitEvent], [PresenceEvent], [ItemEvent] or [EditDescriptionEvent].
type Event interface {
	Action() Action
	isEvent()
}

// InitEvent is the presence snapshot sent right after connecting.
type InitEvent struct {
	Users map[int]models.User
}

// PresenceEvent reports a member connecting or disconnecting.
type PresenceEvent struct {
	Kind Action
	User models.User
}

// ItemEvent names an item by id only: create, delete, update, open and close.
type ItemEvent struct {
	Kind   Action
	ItemID int
}

// EditDescriptionEvent carries the live text of an in-progress edit.
type EditDescriptionEvent struct {
	ItemID      int
	Description string
}

func (InitEvent) Action() Action            { return ActionInit }
func (e PresenceEvent) Action() Action      { return e.Kind }
func (e ItemEvent) Action() Action          { return e.Kind }
func (EditDescriptionEvent) Action() Action { return ActionEditDescription }

func (InitEvent) isEvent()            {}
func (PresenceEvent) isEvent()        {}
func (ItemEvent) isEvent()            {}
func (EditDescriptionEvent) isEvent() {}

// Item builds an [ItemEvent].
func Item(kind Action, itemID int) ItemEvent { return ItemEvent{Kind: kind, ItemID: itemID} }

var itemActions = map[Action]bool{
	ActionCreate:         true,
	ActionDelete:         true,
	ActionOpenForEditing: true,
	ActionCloseEditing:   true,
	ActionUpdate:         true,
}

type userSet struct {
	Users map[string]models.User `json:"users"`
}

type frame struct {
	Action      Action                 `json:"action"`
	Data        *userSet               `json:"data,omitempty"`
	Users       map[string]models.User `json:"users,omitempty"`
	User        *models.User           `json:"user,omitempty"`
	ItemID      *int                   `json:"todo_item_id,omitempty"`
	Description *string                `json:"description,omitempty"`
}

// Parse decodes and validates one inbound frame. Anything malformed or unknown wraps [shared.ErrInvalidMessage].
//
// The presence snapshot is accepted both as data.users and as a top-level users field.
func Parse(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidMessage, err)
	}

	switch f.Action {
	case ActionInit:
		raw := f.Users
		if f.Data != nil {
			raw = f.Data.Users
		}
		users := make(map[int]models.User, len(raw))
		for key, u := range raw {
			id := u.ID
			if id == 0 {
				n, err := strconv.Atoi(key)
				if err != nil {
					return nil, fmt.Errorf("%w: init user key %q", shared.ErrInvalidMessage, key)
				}
				id = n
				u.ID = n
			}
			users[id] = u
		}
		return InitEvent{Users: users}, nil

	case ActionConnect, ActionDisconnect:
		if f.User == nil || f.User.ID == 0 {
			return nil, fmt.Errorf("%w: %s without user", shared.ErrInvalidMessage, f.Action)
		}
		return PresenceEvent{Kind: f.Action, User: *f.User}, nil

	case ActionCreate, ActionDelete, ActionOpenForEditing, ActionCloseEditing, ActionUpdate:
		if f.ItemID == nil || *f.ItemID <= 0 {
			return nil, fmt.Errorf("%w: %s without todo_item_id", shared.ErrInvalidMessage, f.Action)
		}
		return ItemEvent{Kind: f.Action, ItemID: *f.ItemID}, nil

	case ActionEditDescription:
		if f.ItemID == nil || *f.ItemID <= 0 {
			return nil, fmt.Errorf("%w: %s without todo_item_id", shared.ErrInvalidMessage, f.Action)
		}
		if f.Description == nil {
			return nil, fmt.Errorf("%w: %s without description", shared.ErrInvalidMessage, f.Action)
		}
		return EditDescriptionEvent{ItemID: *f.ItemID, Description: *f.Description}, nil

	case "":
		return nil, fmt.Errorf("%w: missing action", shared.ErrInvalidMessage)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", shared.ErrInvalidMessage, f.Action)
	}
}

// Encode renders an event in the wire format [Parse] reads. Events that [Parse] would reject are refused.
func Encode(e Event) ([]byte, error) {
	f := frame{Action: e.Action()}

	switch ev := e.(type) {
	case InitEvent:
		users := make(map[string]models.User, len(ev.Users))
		for id, u := range ev.Users {
			users[strconv.Itoa(id)] = u
		}
		f.Data = &userSet{Users: users}
	case PresenceEvent:
		if ev.Kind != ActionConnect && ev.Kind != ActionDisconnect {
			return nil, fmt.Errorf("%w: %q is not a presence action", shared.ErrInvalidMessage, ev.Kind)
		}
		f.User = &ev.User
	case ItemEvent:
		if !itemActions[ev.Kind] {
			return nil, fmt.Errorf("%w: %q is not an item action", shared.ErrInvalidMessage, ev.Kind)
		}
		if ev.ItemID <= 0 {
			return nil, fmt.Errorf("%w: item id %d", shared.ErrInvalidMessage, ev.ItemID)
		}
		f.ItemID = &ev.ItemID
	case EditDescriptionEvent:
		if ev.ItemID <= 0 {
			return nil, fmt.Errorf("%w: item id %d", shared.ErrInvalidMessage, ev.ItemID)
		}
		f.ItemID = &ev.ItemID
		f.Description = &ev.Description
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", shared.ErrInvalidMessage, e)
	}

	return json.Marshal(f)
}

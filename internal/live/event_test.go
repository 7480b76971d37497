package live

import (
	"errors"
	"testing"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/go-playground/assert/v2"
)

func TestParse(t *testing.T) {
	t.Run("init under data", func(t *testing.T) {
		e, err := Parse([]byte(`{"action":"init","data":{"users":{"1":{"id":1,"username":"ada"},"2":{"id":2,"username":"bob"}},"todo_item_edit_state":{}}}`))
		assert.Equal(t, err, nil)
		init, ok := e.(InitEvent)
		assert.Equal(t, ok, true)
		assert.Equal(t, len(init.Users), 2)
		assert.Equal(t, init.Users[2], models.User{ID: 2, Username: "bob"})
	})

	t.Run("init top level users", func(t *testing.T) {
		e, err := Parse([]byte(`{"action":"init","users":{"7":{"username":"eve"}}}`))
		assert.Equal(t, err, nil)
		assert.Equal(t, e.(InitEvent).Users[7], models.User{ID: 7, Username: "eve"})
	})

	t.Run("init bad key", func(t *testing.T) {
		_, err := Parse([]byte(`{"action":"init","users":{"x":{"username":"eve"}}}`))
		assert.Equal(t, errors.Is(err, shared.ErrInvalidMessage), true)
	})

	t.Run("presence", func(t *testing.T) {
		e, err := Parse([]byte(`{"action":"disconnect","user":{"id":3,"username":"cy"}}`))
		assert.Equal(t, err, nil)
		assert.Equal(t, e, Event(PresenceEvent{Kind: ActionDisconnect, User: models.User{ID: 3, Username: "cy"}}))
	})

	t.Run("item events", func(t *testing.T) {
		for _, action := range []Action{ActionCreate, ActionDelete, ActionOpenForEditing, ActionCloseEditing, ActionUpdate} {
			e, err := Parse([]byte(`{"action":"` + string(action) + `","todo_item_id":5}`))
			assert.Equal(t, err, nil)
			assert.Equal(t, e, Event(ItemEvent{Kind: action, ItemID: 5}))
		}
	})

	t.Run("edit description", func(t *testing.T) {
		e, err := Parse([]byte(`{"action":"todo_item_edit_description","todo_item_id":4,"description":"buy oat milk"}`))
		assert.Equal(t, err, nil)
		assert.Equal(t, e, Event(EditDescriptionEvent{ItemID: 4, Description: "buy oat milk"}))

		cleared, err := Parse([]byte(`{"action":"todo_item_edit_description","todo_item_id":4,"description":""}`))
		assert.Equal(t, err, nil)
		assert.Equal(t, cleared.(EditDescriptionEvent).Description, "")
	})

	invalid := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"action":`},
		{"missing action", `{"todo_item_id":1}`},
		{"unknown action", `{"action":"todo_item_explode","todo_item_id":1}`},
		{"connect without user", `{"action":"connect"}`},
		{"create without id", `{"action":"todo_item_create"}`},
		{"update with null id", `{"action":"todo_item_update","todo_item_id":null}`},
		{"delete with zero id", `{"action":"todo_item_delete","todo_item_id":0}`},
		{"edit without description", `{"action":"todo_item_edit_description","todo_item_id":1}`},
		{"id of wrong type", `{"action":"todo_item_update","todo_item_id":"5"}`},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.Equal(t, errors.Is(err, shared.ErrInvalidMessage), true)
		})
	}
}

func TestEncode(t *testing.T) {
	t.Run("item event carries only the id", func(t *testing.T) {
		data, err := Encode(Item(ActionUpdate, 5))
		assert.Equal(t, err, nil)
		assert.Equal(t, string(data), `{"action":"todo_item_update","todo_item_id":5}`)
	})

	t.Run("edit description", func(t *testing.T) {
		data, err := Encode(EditDescriptionEvent{ItemID: 2, Description: ""})
		assert.Equal(t, err, nil)
		assert.Equal(t, string(data), `{"action":"todo_item_edit_description","todo_item_id":2,"description":""}`)
	})

	t.Run("init uses data envelope", func(t *testing.T) {
		data, err := Encode(InitEvent{Users: map[int]models.User{1: {ID: 1, Username: "ada"}}})
		assert.Equal(t, err, nil)
		assert.Equal(t, string(data), `{"action":"init","data":{"users":{"1":{"id":1,"username":"ada"}}}}`)

		back, err := Parse(data)
		assert.Equal(t, err, nil)
		assert.Equal(t, back.(InitEvent).Users[1].Username, "ada")
	})

	t.Run("rejects invalid events", func(t *testing.T) {
		_, err := Encode(Item(ActionUpdate, 0))
		assert.Equal(t, errors.Is(err, shared.ErrInvalidMessage), true)

		_, err = Encode(ItemEvent{Kind: ActionConnect, ItemID: 1})
		assert.Equal(t, errors.Is(err, shared.ErrInvalidMessage), true)

		_, err = Encode(PresenceEvent{Kind: ActionUpdate})
		assert.Equal(t, errors.Is(err, shared.ErrInvalidMessage), true)
	})
}

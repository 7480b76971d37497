package models

import (
	"fmt"
	"strings"
)

// RoleName is a viewer's permission level on a list.
type RoleName string

const (
	RoleOwner  RoleName = "owner"
	RoleEditor RoleName = "editor"
	RoleViewer RoleName = "viewer"
)

// CanEdit reports whether the role may create, update or delete items.
func (r RoleName) CanEdit() bool { return r == RoleOwner || r == RoleEditor }

// User is the public projection of an account.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Role is a list role as served by /api/todo-lists/roles.
type Role struct {
	ID   int      `json:"id"`
	Name RoleName `json:"name"`
}

// Member pairs a user with their role on a list.
//
// Active is never fetched from the CRUD API; only live presence notifications change it.
type Member struct {
	User   User `json:"user"`
	Role   Role `json:"role"`
	Active bool `json:"active,omitempty"`
}

// List is a todo list as seen by the current viewer.
type List struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Author      User     `json:"author"`
	Role        RoleName `json:"role"`
	Created     string   `json:"created,omitempty"`
	Updated     string   `json:"updated,omitempty"`
	Members     []Member `json:"-"`
	Items       []Item   `json:"-"`
}

// CompletionSummary renders "done/total completed", or "no todos" for an empty list.
func (l List) CompletionSummary() string {
	if len(l.Items) == 0 {
		return "no todos"
	}
	done := 0
	for _, it := range l.Items {
		if it.Completed {
			done++
		}
	}
	return fmt.Sprintf("%d/%d completed", done, len(l.Items))
}

// NeedsDeleteConfirmation reports whether deleting the list should be confirmed by viewerID: it has items, other
// members, or another author.
func (l List) NeedsDeleteConfirmation(viewerID int) bool {
	return l.Author.ID != viewerID || len(l.Items) > 0 || IsShared(l.Author, l.Members)
}

// Clone returns a deep copy so callers can hold it while the original keeps changing.
func (l List) Clone() List {
	c := l
	c.Members = append([]Member(nil), l.Members...)
	c.Items = append([]Item(nil), l.Items...)
	return c
}

// Item is a single todo entry.
type Item struct {
	ID          int    `json:"id"`
	ListID      int    `json:"todo_list_id"`
	AuthorID    int    `json:"author_id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	Created     string `json:"created,omitempty"`
	Updated     string `json:"updated,omitempty"`
}

// ItemUpdate is a partial update; nil fields are left untouched by the server.
type ItemUpdate struct {
	Completed   *bool   `json:"completed,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ListInput is the body for creating or updating a list.
type ListInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate trims the name and rejects an empty one.
func (in *ListInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("list name is required")
	}
	return nil
}

// ShareRequest adds users to a list with a role.
type ShareRequest struct {
	UserIDs []int `json:"user_ids"`
	RoleID  int   `json:"role_id"`
}

// OwnerRoleID is the id the client assigns to the synthetic owner membership.
const OwnerRoleID = 0

// EffectiveMembers returns members with the author added as owner when the server omitted them.
//
// Every returned member starts inactive.
func EffectiveMembers(author User, members []Member) []Member {
	out := make([]Member, 0, len(members)+1)
	hasAuthor := false
	for _, m := range members {
		m.Active = false
		if m.User.ID == author.ID {
			hasAuthor = true
		}
		out = append(out, m)
	}
	if !hasAuthor {
		out = append(out, Member{User: author, Role: Role{ID: OwnerRoleID, Name: RoleOwner}})
	}
	return out
}

// IsShared reports whether anyone besides the author is a member.
func IsShared(author User, members []Member) bool {
	if len(members) > 1 {
		return true
	}
	return len(members) == 1 && members[0].User.ID != author.ID
}

// FindMember returns the index of the member with userID, or -1.
func FindMember(members []Member, userID int) int {
	for i, m := range members {
		if m.User.ID == userID {
			return i
		}
	}
	return -1
}

// FindItem returns the index of the item with id, or -1.
func FindItem(items []Item, id int) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

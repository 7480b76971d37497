package models

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestEffectiveMembers(t *testing.T) {
	author := User{ID: 1, Username: "ada"}

	t.Run("adds synthetic owner", func(t *testing.T) {
		members := EffectiveMembers(author, []Member{
			{User: User{ID: 2, Username: "bob"}, Role: Role{ID: 2, Name: RoleEditor}, Active: true},
		})

		if len(members) != 2 {
			t.Fatalf("expected 2 members, got %d", len(members))
		}
		owner := members[1]
		if owner.User != author || owner.Role.Name != RoleOwner || owner.Role.ID != OwnerRoleID {
			t.Errorf("unexpected synthetic owner %+v", owner)
		}
		for _, m := range members {
			if m.Active {
				t.Errorf("expected %s to start inactive", m.User.Username)
			}
		}
	})

	t.Run("does not duplicate author", func(t *testing.T) {
		members := EffectiveMembers(author, []Member{{User: author, Role: Role{ID: 1, Name: RoleOwner}}})
		if len(members) != 1 {
			t.Errorf("expected author once, got %d members", len(members))
		}
	})

	t.Run("empty roster", func(t *testing.T) {
		members := EffectiveMembers(author, nil)
		if len(members) != 1 || members[0].User.ID != author.ID {
			t.Errorf("expected only the owner, got %+v", members)
		}
	})
}

func TestIsShared(t *testing.T) {
	author := User{ID: 1}
	tc := []struct {
		name    string
		members []Member
		want    bool
	}{
		{"owner only", []Member{{User: author}}, false},
		{"no members", nil, false},
		{"owner and editor", []Member{{User: author}, {User: User{ID: 2}}}, true},
		{"single foreign member", []Member{{User: User{ID: 3}}}, true},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsShared(author, tt.members); got != tt.want {
				t.Errorf("IsShared() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompletionSummary(t *testing.T) {
	if got := (List{}).CompletionSummary(); got != "no todos" {
		t.Errorf("expected 'no todos', got %q", got)
	}

	l := List{Items: []Item{{ID: 1, Completed: true}, {ID: 2}, {ID: 3, Completed: true}}}
	if got := l.CompletionSummary(); got != "2/3 completed" {
		t.Errorf("expected '2/3 completed', got %q", got)
	}
}

func TestListClone(t *testing.T) {
	l := List{ID: 1, Items: []Item{{ID: 1}}, Members: []Member{{User: User{ID: 1}}}}
	c := l.Clone()
	c.Items[0].Description = "changed"
	c.Members[0].Active = true

	if l.Items[0].Description != "" || l.Members[0].Active {
		t.Error("clone shares backing arrays with the original")
	}
}

func TestNeedsDeleteConfirmation(t *testing.T) {
	ada := User{ID: 1, Username: "ada"}
	tc := []struct {
		name   string
		list   List
		viewer int
		want   bool
	}{
		{"own empty list", List{Author: ada}, 1, false},
		{"own list with owner member", List{Author: ada, Members: []Member{{User: ada}}}, 1, false},
		{"has items", List{Author: ada, Items: []Item{{ID: 1}}}, 1, true},
		{"shared", List{Author: ada, Members: []Member{{User: ada}, {User: User{ID: 2}}}}, 1, true},
		{"someone else's", List{Author: ada}, 2, true},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.list.NeedsDeleteConfirmation(tt.viewer); got != tt.want {
				t.Errorf("NeedsDeleteConfirmation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListInputValidate(t *testing.T) {
	in := ListInput{Name: "  groceries  "}
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Name != "groceries" {
		t.Errorf("expected trimmed name, got %q", in.Name)
	}

	empty := ListInput{Name: "   "}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for blank name")
	}
}

func TestSessionClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  7,
		"username": "ada",
		"exp":      exp.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	t.Run("ParseClaims", func(t *testing.T) {
		claims, err := ParseClaims(signed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if claims.UserID != 7 || claims.Username != "ada" {
			t.Errorf("unexpected claims %+v", claims)
		}
		if !claims.Expiry.Equal(exp) {
			t.Errorf("expected expiry %v, got %v", exp, claims.Expiry)
		}
	})

	t.Run("token", func(t *testing.T) {
		s := Session{UserID: 7, Username: "ada", AccessToken: signed, RefreshToken: "r"}
		tok := s.Token()
		if tok.Type() != "Bearer" || tok.AccessToken != signed || tok.RefreshToken != "r" {
			t.Errorf("unexpected token %+v", tok)
		}
		if !tok.Expiry.Equal(exp) {
			t.Errorf("expected expiry from claims, got %v", tok.Expiry)
		}
	})

	t.Run("opaque token", func(t *testing.T) {
		if _, err := ParseClaims("not-a-jwt"); err == nil {
			t.Error("expected error for opaque token")
		}
		tok := Session{AccessToken: "not-a-jwt"}.Token()
		if !tok.Expiry.IsZero() {
			t.Error("expected zero expiry for opaque token")
		}
	})

	t.Run("authenticated", func(t *testing.T) {
		if (Session{}).Authenticated() {
			t.Error("empty session should not be authenticated")
		}
		if !(Session{AccessToken: signed}).Authenticated() {
			t.Error("session with token should be authenticated")
		}
	})
}

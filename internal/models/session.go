package models

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Session holds the signed-in user's credentials. Field names match the server's AuthData body.
type Session struct {
	UserID       int    `json:"userId"`
	Username     string `json:"username"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Authenticated reports whether an access token is present.
func (s Session) Authenticated() bool { return s.AccessToken != "" }

// Token adapts the session to an [oauth2.Token] for attaching the bearer header.
//
// Expiry is read from the access token's exp claim when it can be decoded.
func (s Session) Token() *oauth2.Token {
	tok := &oauth2.Token{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, TokenType: "Bearer"}
	if claims, err := ParseClaims(s.AccessToken); err == nil {
		tok.Expiry = claims.Expiry
	}
	return tok
}

// Claims are the fields tdx reads from an access token.
type Claims struct {
	UserID   int
	Username string
	Expiry   time.Time
}

// ParseClaims decodes an access token without verifying its signature.
//
// The server is the only party that verifies tokens; the client just reads them.
func ParseClaims(accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("empty token")
	}

	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	claims := &Claims{}
	if v, ok := mc["user_id"].(float64); ok {
		claims.UserID = int(v)
	}
	if v, ok := mc["username"].(string); ok {
		claims.Username = v
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.Expiry = exp.Time
	}
	return claims, nil
}

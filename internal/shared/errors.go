package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("token has expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")

	// Remote store errors
	ErrAPIRequest = fmt.Errorf("API request failed")
	ErrTimeout    = fmt.Errorf("operation timed out")

	// Live channel errors
	ErrChannelUnavailable = fmt.Errorf("live channel unavailable")
	ErrStaleNotification  = fmt.Errorf("stale notification")
	ErrInvalidMessage     = fmt.Errorf("invalid live message")

	// View errors
	ErrViewClosed  = fmt.Errorf("list view closed")
	ErrNotEditing  = fmt.Errorf("item is not being edited locally")
	ErrItemMissing = fmt.Errorf("item not in view")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

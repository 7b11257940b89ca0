package domain

import "fmt"

// Role is the part a participant plays in a room.
type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)

// Placeholder display names used when an identity carries none.
const (
	PlaceholderBroadcaster = "Admin"
	PlaceholderViewer      = "Guest"
)

// ParseRole validates a role string from the wire.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleBroadcaster, RoleViewer:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Placeholder returns the display name used for the role when none is given.
func (r Role) Placeholder() string {
	if r == RoleBroadcaster {
		return PlaceholderBroadcaster
	}
	return PlaceholderViewer
}

// Identity is the authenticated (or guest) identity supplied by the
// identity provider.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	Guest       bool   `json:"guest,omitempty"`
}

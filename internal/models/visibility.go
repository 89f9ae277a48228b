package models

import "time"

// ContentScope declares who may see a user's ephemeral content (stories).
// The set is closed; VisibilityPolicy matches exhaustively so an
// unrecognized value can never silently default to visible or hidden.
type ContentScope string

const (
	ScopeNone        ContentScope = "none"
	ScopeFriendsOnly ContentScope = "friends"
	ScopeNearbyOnly  ContentScope = "nearby"
	ScopeBoth        ContentScope = "both"
)

// Valid reports whether s is one of the declared scopes.
func (s ContentScope) Valid() bool {
	switch s {
	case ScopeNone, ScopeFriendsOnly, ScopeNearbyOnly, ScopeBoth:
		return true
	}
	return false
}

// VisibilityProfile is the per-user discovery policy. Mutated only by its
// owner. GloballyDiscoverable=false removes the user from every nearby
// candidate pool regardless of content scope; the friends pool is unaffected.
type VisibilityProfile struct {
	UserID               uint         `json:"user_id" gorm:"primaryKey"`
	GloballyDiscoverable bool         `json:"globally_discoverable"`
	ContentScope         ContentScope `json:"content_scope" gorm:"type:varchar(20);default:'none'"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// UpdateVisibilityRequest defines the request body for visibility changes
type UpdateVisibilityRequest struct {
	GloballyDiscoverable *bool  `json:"globally_discoverable,omitempty"`
	ContentScope         string `json:"content_scope,omitempty" validate:"omitempty,oneof=none friends nearby both"`
}

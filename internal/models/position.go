package models

import "time"

// UserPosition is the single live position record for a user. It is
// overwritten on every accepted location fix; no history is retained.
type UserPosition struct {
	UserID    uint      `json:"user_id" gorm:"primaryKey"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`
}

// FreshAt reports whether the position is recent enough to count toward
// proximity calculations. A stale position is a soft timeout: the owner
// silently drops out of nearby pools.
func (p UserPosition) FreshAt(now time.Time, window time.Duration) bool {
	return now.Sub(p.UpdatedAt) <= window
}

// UpdatePositionRequest defines the request body for a manual position report
type UpdatePositionRequest struct {
	Latitude  float64 `json:"latitude" validate:"required,latitude"`
	Longitude float64 `json:"longitude" validate:"required,longitude"`
}

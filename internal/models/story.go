package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Story represents a user's ephemeral content item stored in MongoDB.
// Expired stories are excluded at query time, never mutated in place.
type Story struct {
	ID            primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	OwnerID       uint               `json:"owner_id" bson:"owner_id"`
	CorrelationID string             `json:"correlation_id" bson:"correlation_id"` // client-generated ksuid for optimistic reconciliation
	MediaURL      string             `json:"media_url" bson:"media_url"`
	Type          string             `json:"type" bson:"type"` // "image" or "video"
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	ExpiresAt     time.Time          `json:"expires_at" bson:"expires_at"`
}

// Active reports whether the story has not yet expired.
func (s Story) Active(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// StorySeen tracks which stories a user has viewed (PostgreSQL, append-only;
// presence of a row means "viewed")
type StorySeen struct {
	ID      uint      `json:"id" gorm:"primaryKey"`
	StoryID string    `json:"story_id" gorm:"index;uniqueIndex:idx_story_user_seen"`
	UserID  uint      `json:"user_id" gorm:"index;uniqueIndex:idx_story_user_seen"`
	SeenAt  time.Time `json:"seen_at"`
}

// CreateStoryRequest defines the request body for creating a story
type CreateStoryRequest struct {
	MediaURL      string `json:"media_url" validate:"required"`
	Type          string `json:"type" validate:"required,oneof=image video"`
	CorrelationID string `json:"correlation_id" validate:"required"`
}

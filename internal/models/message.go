package models

import "time"

// UserMessage is a direct message between two users. Unread counters are
// derived from these rows, never stored independently.
type UserMessage struct {
	ID         string    `json:"id" gorm:"primaryKey"` // ksuid
	FromUserID uint      `json:"from_user_id" gorm:"index"`
	ToUserID   uint      `json:"to_user_id" gorm:"index:idx_to_unread"`
	Body       string    `json:"body"`
	Read       bool      `json:"read" gorm:"index:idx_to_unread"`
	CreatedAt  time.Time `json:"created_at"`
}

// SendMessageRequest defines the request body for sending a direct message
type SendMessageRequest struct {
	ToUserID uint   `json:"to_user_id" validate:"required"`
	Body     string `json:"body" validate:"required,max=2000"`
}

package models

import "gorm.io/gorm"

// FriendStatus is the state of a friendship edge. The source behavior models
// a request as immediately accepted; Pending is kept so a two-phase flow can
// be introduced without a schema change. In a write race Accepted dominates.
type FriendStatus string

const (
	FriendStatusNone     FriendStatus = "none"
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
)

// Friendship is an undirected edge materialized as an ordered pair:
// UserAID < UserBID always, so concurrent adds from both sides converge on a
// single row instead of two mirrored ones.
type Friendship struct {
	gorm.Model
	UserAID uint         `json:"user_a_id" gorm:"index;uniqueIndex:idx_friend_pair"`
	UserBID uint         `json:"user_b_id" gorm:"index;uniqueIndex:idx_friend_pair"`
	Status  FriendStatus `json:"status" gorm:"type:varchar(20);default:'accepted'"`
}

// OrderedPair normalizes an edge's endpoints into storage order.
func OrderedPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// Peer returns the other endpoint of the edge relative to userID.
func (f Friendship) Peer(userID uint) uint {
	if f.UserAID == userID {
		return f.UserBID
	}
	return f.UserAID
}

// AddFriendRequest defines the request body for adding a friend
type AddFriendRequest struct {
	FriendID uint `json:"friend_id" validate:"required"`
}

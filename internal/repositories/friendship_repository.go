package repositories

import (
	"context"
	"errors"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/apperrors"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FriendshipRepository defines the interface for friendship edge operations.
// Edges are undirected, stored as an ordered pair so concurrent adds from
// both sides converge on one row.
type FriendshipRepository interface {
	AddFriend(ctx context.Context, a, b uint) (*models.Friendship, error)
	RemoveFriend(ctx context.Context, a, b uint) error
	Status(ctx context.Context, a, b uint) (models.FriendStatus, error)
	FriendIDsOf(ctx context.Context, userID uint) ([]uint, error)
}

type postgresFriendshipRepository struct {
	db *gorm.DB
}

func NewPostgresFriendshipRepository(db *gorm.DB) FriendshipRepository {
	return &postgresFriendshipRepository{db: db}
}

// AddFriend creates (or re-affirms) an Accepted edge between a and b. The
// source behavior has no pending-approval workflow: requests are immediately
// Accepted. Idempotent, and in a race with a concurrent add or a stale
// Pending row, Accepted dominates.
func (r *postgresFriendshipRepository) AddFriend(ctx context.Context, a, b uint) (*models.Friendship, error) {
	if a == b {
		return nil, apperrors.NewBadInput("cannot befriend yourself")
	}
	ua, ub := models.OrderedPair(a, b)
	edge := models.Friendship{UserAID: ua, UserBID: ub, Status: models.FriendStatusAccepted}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_a_id"}, {Name: "user_b_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"status": models.FriendStatusAccepted}),
	}).Create(&edge).Error
	if err != nil {
		return nil, apperrors.NewWriteConflict("friendship write failed").WithCause(err)
	}
	return &edge, nil
}

// RemoveFriend dissolves the edge for both sides. Unfriending is unilateral;
// any FriendsOnly-scoped content grant dies with the edge on the next read.
func (r *postgresFriendshipRepository) RemoveFriend(ctx context.Context, a, b uint) error {
	ua, ub := models.OrderedPair(a, b)
	res := r.db.WithContext(ctx).Where("user_a_id = ? AND user_b_id = ?", ua, ub).Delete(&models.Friendship{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFound("friendship not found")
	}
	return nil
}

func (r *postgresFriendshipRepository) Status(ctx context.Context, a, b uint) (models.FriendStatus, error) {
	if a == b {
		// self-inclusion invariant: a user is implicitly "friended" with themself
		return models.FriendStatusAccepted, nil
	}
	ua, ub := models.OrderedPair(a, b)
	var edge models.Friendship
	err := r.db.WithContext(ctx).Where("user_a_id = ? AND user_b_id = ?", ua, ub).First(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.FriendStatusNone, nil
	}
	if err != nil {
		return models.FriendStatusNone, err
	}
	return edge.Status, nil
}

// FriendIDsOf returns the ids of all Accepted friends of userID.
func (r *postgresFriendshipRepository) FriendIDsOf(ctx context.Context, userID uint) ([]uint, error) {
	var edges []models.Friendship
	err := r.db.WithContext(ctx).
		Where("(user_a_id = ? OR user_b_id = ?) AND status = ?", userID, userID, models.FriendStatusAccepted).
		Find(&edges).Error
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.Peer(userID))
	}
	return ids, nil
}

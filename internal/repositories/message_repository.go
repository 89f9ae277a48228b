package repositories

import (
	"context"
	"time"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"gorm.io/gorm"
)

// MessageRepository defines the interface for direct message operations and
// the unread log the aggregator derives counters from.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.UserMessage) error
	CountUnread(ctx context.Context, viewerID, peerID uint) (int64, error)
	UnreadCountsByPeer(ctx context.Context, viewerID uint) (map[uint]int64, error)
	MarkRead(ctx context.Context, viewerID, peerID uint) (int64, error)
}

type postgresMessageRepository struct {
	db *gorm.DB
}

func NewPostgresMessageRepository(db *gorm.DB) MessageRepository {
	return &postgresMessageRepository{db: db}
}

func (r *postgresMessageRepository) CreateMessage(ctx context.Context, msg *models.UserMessage) error {
	msg.CreatedAt = time.Now()
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *postgresMessageRepository) CountUnread(ctx context.Context, viewerID, peerID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserMessage{}).
		Where("to_user_id = ? AND from_user_id = ? AND read = false", viewerID, peerID).
		Count(&count).Error
	return count, err
}

// UnreadCountsByPeer is the session-start full scan: unread counts grouped by
// sender for one viewer.
func (r *postgresMessageRepository) UnreadCountsByPeer(ctx context.Context, viewerID uint) (map[uint]int64, error) {
	type row struct {
		FromUserID uint
		N          int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.UserMessage{}).
		Select("from_user_id, COUNT(*) AS n").
		Where("to_user_id = ? AND read = false", viewerID).
		Group("from_user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.FromUserID] = r.N
	}
	return out, nil
}

// MarkRead flags every unread message from peer to viewer as read and returns
// how many rows changed.
func (r *postgresMessageRepository) MarkRead(ctx context.Context, viewerID, peerID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.UserMessage{}).
		Where("to_user_id = ? AND from_user_id = ? AND read = false", viewerID, peerID).
		Update("read", true)
	return res.RowsAffected, res.Error
}

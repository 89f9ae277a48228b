package repositories

import (
	"context"
	"time"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PositionRepository defines the interface for live position operations.
// A user's position is owned by the user and overwritten on every tick.
type PositionRepository interface {
	UpsertPosition(ctx context.Context, pos *models.UserPosition) error
	GetPosition(ctx context.Context, userID uint) (*models.UserPosition, error)
	ListFreshPositions(ctx context.Context, since time.Time) ([]models.UserPosition, error)
	DeletePosition(ctx context.Context, userID uint) error
}

type postgresPositionRepository struct {
	db *gorm.DB
}

func NewPostgresPositionRepository(db *gorm.DB) PositionRepository {
	return &postgresPositionRepository{db: db}
}

func (r *postgresPositionRepository) UpsertPosition(ctx context.Context, pos *models.UserPosition) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "updated_at"}),
	}).Create(pos).Error
}

func (r *postgresPositionRepository) GetPosition(ctx context.Context, userID uint) (*models.UserPosition, error) {
	var pos models.UserPosition
	if err := r.db.WithContext(ctx).First(&pos, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &pos, nil
}

// ListFreshPositions returns every position newer than the cutoff. The
// candidate pool is bounded (single-city radius), so a time-filtered range
// read is sufficient; stale rows are excluded here, not deleted.
func (r *postgresPositionRepository) ListFreshPositions(ctx context.Context, since time.Time) ([]models.UserPosition, error) {
	var positions []models.UserPosition
	if err := r.db.WithContext(ctx).Where("updated_at > ?", since).Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// DeletePosition drops the user's live position, used when visibility is
// disabled so the user stops publishing entirely.
func (r *postgresPositionRepository) DeletePosition(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Delete(&models.UserPosition{}, "user_id = ?", userID).Error
}

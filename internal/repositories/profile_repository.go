package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VisibilityProfileRepository defines the interface for visibility profile
// operations. Profiles are mutated only by their owner.
type VisibilityProfileRepository interface {
	GetProfile(ctx context.Context, userID uint) (*models.VisibilityProfile, error)
	UpsertProfile(ctx context.Context, profile *models.VisibilityProfile) error
	GetProfilesByUserIDs(ctx context.Context, userIDs []uint) (map[uint]models.VisibilityProfile, error)
	ListDiscoverable(ctx context.Context) ([]models.VisibilityProfile, error)
}

type postgresProfileRepository struct {
	db *gorm.DB
}

func NewPostgresProfileRepository(db *gorm.DB) VisibilityProfileRepository {
	return &postgresProfileRepository{db: db}
}

// GetProfile returns the user's profile, or the restrictive default
// (not discoverable, scope none) if the user never configured one.
func (r *postgresProfileRepository) GetProfile(ctx context.Context, userID uint) (*models.VisibilityProfile, error) {
	var profile models.VisibilityProfile
	err := r.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.VisibilityProfile{UserID: userID, ContentScope: models.ScopeNone}, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *postgresProfileRepository) UpsertProfile(ctx context.Context, profile *models.VisibilityProfile) error {
	profile.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"globally_discoverable", "content_scope", "updated_at"}),
	}).Create(profile).Error
}

func (r *postgresProfileRepository) GetProfilesByUserIDs(ctx context.Context, userIDs []uint) (map[uint]models.VisibilityProfile, error) {
	out := make(map[uint]models.VisibilityProfile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var profiles []models.VisibilityProfile
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.UserID] = p
	}
	return out, nil
}

// ListDiscoverable returns every profile with the global discoverability flag
// set, the pre-filter for nearby candidate pools.
func (r *postgresProfileRepository) ListDiscoverable(ctx context.Context) ([]models.VisibilityProfile, error) {
	var profiles []models.VisibilityProfile
	if err := r.db.WithContext(ctx).Where("globally_discoverable = ?", true).Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

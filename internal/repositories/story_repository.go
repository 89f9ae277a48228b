package repositories

import (
	"context"
	"time"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// storyTTL is how long an ephemeral item lives after creation.
const storyTTL = 24 * time.Hour

// StoryRepository defines the interface for ephemeral content operations.
// Expired stories are filtered at query time, never mutated in place.
type StoryRepository interface {
	CreateStory(ctx context.Context, story *models.Story) error
	GetActiveByOwnerIDs(ctx context.Context, ownerIDs []uint) ([]models.Story, error)
	DeleteExpiredStories(ctx context.Context) error
	MarkSeen(ctx context.Context, seen *models.StorySeen) error
	GetSeenStoryIDs(ctx context.Context, userID uint, storyIDs []string) (map[string]bool, error)
}

type storyRepository struct {
	mongoCollection *mongo.Collection
	pgDB            *gorm.DB
}

func NewStoryRepository(mongoDB *mongo.Database, pgDB *gorm.DB) StoryRepository {
	return &storyRepository{
		mongoCollection: mongoDB.Collection("stories"),
		pgDB:            pgDB,
	}
}

func (r *storyRepository) CreateStory(ctx context.Context, story *models.Story) error {
	story.ID = primitive.NewObjectID()
	story.CreatedAt = time.Now()
	story.ExpiresAt = story.CreatedAt.Add(storyTTL)
	_, err := r.mongoCollection.InsertOne(ctx, story)
	return err
}

// GetActiveByOwnerIDs returns unexpired stories for the given owners, newest
// first.
func (r *storyRepository) GetActiveByOwnerIDs(ctx context.Context, ownerIDs []uint) ([]models.Story, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"owner_id":   bson.M{"$in": ownerIDs},
		"expires_at": bson.M{"$gt": time.Now()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.mongoCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stories []models.Story
	if err = cursor.All(ctx, &stories); err != nil {
		return nil, err
	}
	return stories, nil
}

func (r *storyRepository) DeleteExpiredStories(ctx context.Context) error {
	_, err := r.mongoCollection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now()}})
	return err
}

// MarkSeen appends to the viewed log. Re-viewing is a no-op.
func (r *storyRepository) MarkSeen(ctx context.Context, seen *models.StorySeen) error {
	seen.SeenAt = time.Now()
	return r.pgDB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(seen).Error
}

func (r *storyRepository) GetSeenStoryIDs(ctx context.Context, userID uint, storyIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(storyIDs) == 0 {
		return result, nil
	}
	var seen []models.StorySeen
	err := r.pgDB.WithContext(ctx).Where("user_id = ? AND story_id IN ?", userID, storyIDs).Find(&seen).Error
	if err != nil {
		return nil, err
	}
	for _, s := range seen {
		result[s.StoryID] = true
	}
	return result, nil
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/apperrors"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/fanout"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
)

// ~0.0009 degrees of latitude is about 100m.
const (
	baseLat     = 40.0
	baseLon     = -8.0
	latStep80m  = 0.00072
	latStep500m = 0.0045
)

func TestNearbyCandidatesAnnotated(t *testing.T) {
	svc, backend, _ := newTestService(testConfig())
	ctx := context.Background()
	now := time.Now()

	backend.seedUser(1, "viewer", true, models.ScopeNone)
	backend.seedUser(2, "ana", true, models.ScopeBoth)
	backend.seedUser(3, "rui", true, models.ScopeBoth)
	backend.seedPosition(1, baseLat, baseLon, now)
	backend.seedPosition(2, baseLat+latStep80m, baseLon, now)
	backend.seedPosition(3, baseLat+latStep500m, baseLon, now) // out of radius

	// one unread message and a fresh story from the in-radius user
	_, err := svc.SendMessage(ctx, 2, models.SendMessageRequest{ToUserID: 1, Body: "oi"})
	require.NoError(t, err)
	_, err = svc.CreateStory(ctx, 2, models.CreateStoryRequest{MediaURL: "https://cdn/x.jpg", Type: "image", CorrelationID: "c1"})
	require.NoError(t, err)

	rows, err := svc.NearbyCandidates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint(2), rows[0].UserID)
	assert.Equal(t, "ana", rows[0].Name)
	assert.Equal(t, "80m", rows[0].Distance)
	assert.Equal(t, int64(1), rows[0].Unread)
	assert.True(t, rows[0].HasNewStory)
}

func TestNearbyExcludesFriends(t *testing.T) {
	svc, backend, _ := newTestService(testConfig())
	ctx := context.Background()
	now := time.Now()

	backend.seedUser(1, "viewer", true, models.ScopeNone)
	backend.seedUser(2, "ana", true, models.ScopeNone)
	backend.seedPosition(1, baseLat, baseLon, now)
	backend.seedPosition(2, baseLat+latStep80m, baseLon, now)

	_, err := svc.AddFriend(ctx, 1, 2)
	require.NoError(t, err)

	rows, err := svc.NearbyCandidates(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, rows, "friends never appear in the nearby pool")

	friends, err := svc.FriendCandidates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, uint(2), friends[0].UserID)
	assert.Equal(t, "80m", friends[0].Distance)
}

func TestFriendCandidatesWithoutPositions(t *testing.T) {
	svc, backend, _ := newTestService(testConfig())
	ctx := context.Background()

	backend.seedUser(1, "viewer", false, models.ScopeNone)
	backend.seedUser(2, "ana", false, models.ScopeNone)
	_, err := svc.AddFriend(ctx, 1, 2)
	require.NoError(t, err)

	// neither side has a position; the row still surfaces, distance empty
	rows, err := svc.FriendCandidates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint(2), rows[0].UserID)
	assert.Empty(t, rows[0].Distance)
	assert.Zero(t, rows[0].DistanceMeters)
}

func TestToggleVisibilityOffDropsPosition(t *testing.T) {
	svc, backend, broker := newTestService(testConfig())
	ctx := context.Background()

	backend.seedUser(1, "viewer", true, models.ScopeBoth)
	backend.seedPosition(1, baseLat, baseLon, time.Now())

	sub, err := broker.Subscribe(ctx, fanout.TopicProfileUpdates)
	require.NoError(t, err)
	defer sub.Close()

	off := false
	profile, err := svc.ToggleVisibility(ctx, 1, models.UpdateVisibilityRequest{GloballyDiscoverable: &off})
	require.NoError(t, err)
	assert.False(t, profile.GloballyDiscoverable)
	assert.Equal(t, models.ScopeBoth, profile.ContentScope, "scope unchanged by the toggle")

	_, err = backend.GetPosition(ctx, 1)
	assert.Error(t, err, "position dropped when discovery is switched off")

	select {
	case ev := <-sub.Events():
		assert.Equal(t, fanout.TopicProfileUpdates, ev.Topic)
		assert.Equal(t, uint(1), ev.SubjectID)
		require.NotNil(t, ev.Profile)
		assert.False(t, ev.Profile.GloballyDiscoverable)
	case <-time.After(time.Second):
		t.Fatal("no profile event published")
	}
}

func TestToggleVisibilityRejectsUnknownScope(t *testing.T) {
	svc, backend, _ := newTestService(testConfig())
	backend.seedUser(1, "viewer", false, models.ScopeNone)

	_, err := svc.ToggleVisibility(context.Background(), 1, models.UpdateVisibilityRequest{ContentScope: "everyone"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBadInput))
}

func TestSendMessageToUnknownRecipient(t *testing.T) {
	svc, backend, _ := newTestService(testConfig())
	backend.seedUser(1, "viewer", false, models.ScopeNone)

	_, err := svc.SendMessage(context.Background(), 1, models.SendMessageRequest{ToUserID: 99, Body: "hi"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestMessageRoundTripCounters(t *testing.T) {
	svc, backend, _ := newTestService(testConfig())
	ctx := context.Background()

	backend.seedUser(1, "viewer", false, models.ScopeNone)
	backend.seedUser(2, "ana", false, models.ScopeNone)

	for i := 0; i < 3; i++ {
		_, err := svc.SendMessage(ctx, 2, models.SendMessageRequest{ToUserID: 1, Body: "oi"})
		require.NoError(t, err)
	}

	n, err := svc.UnreadCount(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	counts, err := svc.UnreadCounts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[uint]int64{2: 3}, counts)

	require.NoError(t, svc.MarkMessagesRead(ctx, 1, 2))
	n, err = svc.UnreadCount(ctx, 1, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoryFeedScopes(t *testing.T) {
	svc, backend, _ := newTestService(testConfig())
	ctx := context.Background()
	now := time.Now()

	backend.seedUser(1, "viewer", true, models.ScopeNone)
	backend.seedPosition(1, baseLat, baseLon, now)

	// friend with friends-only scope, no position
	backend.seedUser(2, "friend", false, models.ScopeFriendsOnly)
	_, err := svc.AddFriend(ctx, 1, 2)
	require.NoError(t, err)

	// stranger in radius with nearby scope
	backend.seedUser(3, "near", true, models.ScopeNearbyOnly)
	backend.seedPosition(3, baseLat+latStep80m, baseLon, now)

	// stranger in radius with scope none
	backend.seedUser(4, "closed", true, models.ScopeNone)
	backend.seedPosition(4, baseLat+latStep80m, baseLon, now)

	for owner, corr := range map[uint]string{1: "own", 2: "fr", 3: "nr", 4: "cl"} {
		_, err := svc.CreateStory(ctx, owner, models.CreateStoryRequest{MediaURL: "https://cdn/s.jpg", Type: "image", CorrelationID: corr})
		require.NoError(t, err)
	}

	feed, err := svc.StoryFeed(ctx, 1)
	require.NoError(t, err)

	owners := make(map[uint]bool)
	for _, item := range feed {
		owners[item.OwnerID] = true
	}
	assert.True(t, owners[1], "own story always visible")
	assert.True(t, owners[2], "friends-only story from a friend")
	assert.True(t, owners[3], "nearby-scoped story inside the radius")
	assert.False(t, owners[4], "scope none stays hidden")
}

func TestStorySeenFlow(t *testing.T) {
	svc, backend, _ := newTestService(testConfig())
	ctx := context.Background()
	now := time.Now()

	backend.seedUser(1, "viewer", true, models.ScopeNone)
	backend.seedUser(2, "ana", true, models.ScopeBoth)
	backend.seedPosition(1, baseLat, baseLon, now)
	backend.seedPosition(2, baseLat+latStep80m, baseLon, now)

	story, err := svc.CreateStory(ctx, 2, models.CreateStoryRequest{MediaURL: "https://cdn/s.jpg", Type: "image", CorrelationID: "c1"})
	require.NoError(t, err)

	feed, err := svc.StoryFeed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.False(t, feed[0].Seen)

	require.NoError(t, svc.MarkStorySeen(ctx, 1, story.ID.Hex()))
	// marking twice is a no-op
	require.NoError(t, svc.MarkStorySeen(ctx, 1, story.ID.Hex()))

	feed, err = svc.StoryFeed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.True(t, feed[0].Seen)

	rows, err := svc.NearbyCandidates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].HasNewStory, "seen story no longer badges the row")
}

func TestAddFriendUnknownUser(t *testing.T) {
	svc, backend, _ := newTestService(testConfig())
	backend.seedUser(1, "viewer", false, models.ScopeNone)

	_, err := svc.AddFriend(context.Background(), 1, 42)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestRemoveFriendRevokesScopedContent(t *testing.T) {
	svc, backend, _ := newTestService(testConfig())
	ctx := context.Background()

	backend.seedUser(1, "viewer", false, models.ScopeNone)
	backend.seedUser(2, "ana", false, models.ScopeFriendsOnly)
	_, err := svc.AddFriend(ctx, 1, 2)
	require.NoError(t, err)
	_, err = svc.CreateStory(ctx, 2, models.CreateStoryRequest{MediaURL: "https://cdn/s.jpg", Type: "image", CorrelationID: "c1"})
	require.NoError(t, err)

	feed, err := svc.StoryFeed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, feed, 1)

	require.NoError(t, svc.RemoveFriend(ctx, 1, 2))

	feed, err = svc.StoryFeed(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, feed, "friends-only grant dies with the edge")

	st, err := svc.FriendStatus(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.FriendStatusNone, st)
}

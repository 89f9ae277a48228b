package proximity

import (
	"testing"
	"time"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = Config{RadiusMeters: 100, FreshnessWindow: 10 * time.Minute}

// latOffset returns the latitude delta that corresponds to roughly the given
// distance in meters at the equator.
func latOffset(meters float64) float64 {
	return meters / 111195.0
}

func snapshotWith(now time.Time, positions []models.UserPosition, profiles map[uint]models.VisibilityProfile, friends map[uint]bool) Snapshot {
	if profiles == nil {
		profiles = map[uint]models.VisibilityProfile{}
	}
	for _, p := range positions {
		if _, ok := profiles[p.UserID]; !ok {
			profiles[p.UserID] = models.VisibilityProfile{UserID: p.UserID, GloballyDiscoverable: true}
		}
	}
	return Snapshot{
		ViewerID:  1,
		Viewer:    models.UserPosition{UserID: 1, Latitude: 0, Longitude: 0, UpdatedAt: now},
		ViewerOK:  true,
		Positions: positions,
		Profiles:  profiles,
		Friends:   friends,
	}
}

func TestNearbyFreshInRadiusSubject(t *testing.T) {
	now := time.Now()
	snap := snapshotWith(now, []models.UserPosition{
		{UserID: 2, Latitude: latOffset(80), Longitude: 0, UpdatedAt: now.Add(-2 * time.Minute)},
	}, nil, nil)

	got := Nearby(snap, testCfg, now)
	require.Len(t, got, 1)
	assert.Equal(t, uint(2), got[0].SubjectID)
	assert.InDelta(t, 80, got[0].DistanceMeters, 1)
	assert.Equal(t, "80m", got[0].Distance)
}

func TestNearbyStalePositionExcluded(t *testing.T) {
	now := time.Now()
	snap := snapshotWith(now, []models.UserPosition{
		{UserID: 2, Latitude: latOffset(80), Longitude: 0, UpdatedAt: now.Add(-12 * time.Minute)},
	}, nil, nil)

	assert.Empty(t, Nearby(snap, testCfg, now), "position older than the freshness window must be excluded")
}

func TestNearbyNotDiscoverableExcluded(t *testing.T) {
	now := time.Now()
	snap := snapshotWith(now, []models.UserPosition{
		{UserID: 2, Latitude: latOffset(5), Longitude: 0, UpdatedAt: now},
	}, map[uint]models.VisibilityProfile{
		2: {UserID: 2, GloballyDiscoverable: false},
	}, nil)

	assert.Empty(t, Nearby(snap, testCfg, now), "globallyDiscoverable=false removes the subject for any distance")
}

func TestNearbyOutOfRadiusExcluded(t *testing.T) {
	now := time.Now()
	snap := snapshotWith(now, []models.UserPosition{
		{UserID: 2, Latitude: latOffset(150), Longitude: 0, UpdatedAt: now},
	}, nil, nil)

	assert.Empty(t, Nearby(snap, testCfg, now))
}

func TestNearbyExcludesSelfAndFriends(t *testing.T) {
	now := time.Now()
	snap := snapshotWith(now, []models.UserPosition{
		{UserID: 1, Latitude: 0, Longitude: 0, UpdatedAt: now},
		{UserID: 2, Latitude: latOffset(10), Longitude: 0, UpdatedAt: now},
		{UserID: 3, Latitude: latOffset(20), Longitude: 0, UpdatedAt: now},
	}, nil, map[uint]bool{2: true})

	got := Nearby(snap, testCfg, now)
	require.Len(t, got, 1)
	assert.Equal(t, uint(3), got[0].SubjectID, "self and accepted friends stay out of the nearby pool")
}

func TestNearbyOrderingDeterministic(t *testing.T) {
	now := time.Now()
	snap := snapshotWith(now, []models.UserPosition{
		{UserID: 5, Latitude: latOffset(40), Longitude: 0, UpdatedAt: now},
		{UserID: 3, Latitude: latOffset(40), Longitude: 0, UpdatedAt: now},
		{UserID: 2, Latitude: latOffset(90), Longitude: 0, UpdatedAt: now},
		{UserID: 4, Latitude: latOffset(10), Longitude: 0, UpdatedAt: now},
	}, nil, nil)

	got := Nearby(snap, testCfg, now)
	require.Len(t, got, 4)
	ids := []uint{got[0].SubjectID, got[1].SubjectID, got[2].SubjectID, got[3].SubjectID}
	assert.Equal(t, []uint{4, 3, 5, 2}, ids, "ascending by distance, ties broken by id")
}

func TestNearbyStaleViewerYieldsNothing(t *testing.T) {
	now := time.Now()
	snap := snapshotWith(now, []models.UserPosition{
		{UserID: 2, Latitude: latOffset(10), Longitude: 0, UpdatedAt: now},
	}, nil, nil)
	snap.Viewer.UpdatedAt = now.Add(-time.Hour)

	assert.Empty(t, Nearby(snap, testCfg, now))

	snap.ViewerOK = false
	assert.Empty(t, Nearby(snap, testCfg, now))
}

func TestWithinRadius(t *testing.T) {
	now := time.Now()
	viewer := models.UserPosition{UserID: 1, Latitude: 0, Longitude: 0, UpdatedAt: now}
	subject := models.UserPosition{UserID: 2, Latitude: latOffset(60), Longitude: 0, UpdatedAt: now}

	assert.True(t, WithinRadius(viewer, subject, testCfg, now))

	subject.UpdatedAt = now.Add(-11 * time.Minute)
	assert.False(t, WithinRadius(viewer, subject, testCfg, now), "stale subject position must not count")

	subject.UpdatedAt = now
	subject.Latitude = latOffset(200)
	assert.False(t, WithinRadius(viewer, subject, testCfg, now))
}

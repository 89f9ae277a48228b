package visibility

import (
	"testing"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestVisibleSelfInclusion(t *testing.T) {
	in := Input{
		ViewerID:  7,
		SubjectID: 7,
		Profile:   models.VisibilityProfile{UserID: 7, GloballyDiscoverable: false, ContentScope: models.ScopeNone},
	}
	for _, kind := range []ContentKind{KindNearby, KindFriends, KindStory} {
		assert.True(t, Visible(in, kind), "a user must always be visible to themself")
	}
}

func TestVisibleNearbyPool(t *testing.T) {
	tcs := []struct {
		name         string
		discoverable bool
		friendStatus models.FriendStatus
		expected     bool
	}{
		{name: "Discoverable", discoverable: true, friendStatus: models.FriendStatusNone, expected: true},
		{name: "NotDiscoverable", discoverable: false, friendStatus: models.FriendStatusNone, expected: false},
		{name: "NotDiscoverableEvenForFriends", discoverable: false, friendStatus: models.FriendStatusAccepted, expected: false},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			in := Input{
				ViewerID:     1,
				SubjectID:    2,
				Profile:      models.VisibilityProfile{UserID: 2, GloballyDiscoverable: c.discoverable},
				FriendStatus: c.friendStatus,
			}
			assert.Equal(t, c.expected, Visible(in, KindNearby))
		})
	}
}

func TestVisibleFriendsPoolIgnoresDiscoverability(t *testing.T) {
	in := Input{
		ViewerID:     1,
		SubjectID:    2,
		Profile:      models.VisibilityProfile{UserID: 2, GloballyDiscoverable: false, ContentScope: models.ScopeNone},
		FriendStatus: models.FriendStatusAccepted,
	}
	assert.True(t, Visible(in, KindFriends))

	in.FriendStatus = models.FriendStatusNone
	assert.False(t, Visible(in, KindFriends))

	in.FriendStatus = models.FriendStatusPending
	assert.False(t, Visible(in, KindFriends))
}

func TestVisibleStoryScopes(t *testing.T) {
	tcs := []struct {
		name         string
		scope        models.ContentScope
		friendStatus models.FriendStatus
		withinRadius bool
		expected     bool
	}{
		{name: "NoneHidesFromFriends", scope: models.ScopeNone, friendStatus: models.FriendStatusAccepted, withinRadius: true, expected: false},
		{name: "FriendsOnlyForFriend", scope: models.ScopeFriendsOnly, friendStatus: models.FriendStatusAccepted, expected: true},
		{name: "FriendsOnlyForStranger", scope: models.ScopeFriendsOnly, friendStatus: models.FriendStatusNone, withinRadius: true, expected: false},
		{name: "NearbyOnlyWithinRadius", scope: models.ScopeNearbyOnly, friendStatus: models.FriendStatusNone, withinRadius: true, expected: true},
		{name: "NearbyOnlyFarAway", scope: models.ScopeNearbyOnly, friendStatus: models.FriendStatusNone, withinRadius: false, expected: false},
		{name: "NearbyOnlyAcceptedOverride", scope: models.ScopeNearbyOnly, friendStatus: models.FriendStatusAccepted, withinRadius: false, expected: true},
		{name: "BothForFriendFarAway", scope: models.ScopeBoth, friendStatus: models.FriendStatusAccepted, withinRadius: false, expected: true},
		{name: "BothForNearbyStranger", scope: models.ScopeBoth, friendStatus: models.FriendStatusNone, withinRadius: true, expected: true},
		{name: "BothForDistantStranger", scope: models.ScopeBoth, friendStatus: models.FriendStatusNone, withinRadius: false, expected: false},
		{name: "UnknownScopeHidden", scope: models.ContentScope("bogus"), friendStatus: models.FriendStatusAccepted, withinRadius: true, expected: false},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			in := Input{
				ViewerID:     1,
				SubjectID:    2,
				Profile:      models.VisibilityProfile{UserID: 2, GloballyDiscoverable: true, ContentScope: c.scope},
				FriendStatus: c.friendStatus,
				WithinRadius: c.withinRadius,
			}
			assert.Equal(t, c.expected, Visible(in, KindStory))
		})
	}
}

func TestRemoveFriendRevokesFriendsOnlyContent(t *testing.T) {
	in := Input{
		ViewerID:     1,
		SubjectID:    2,
		Profile:      models.VisibilityProfile{UserID: 2, GloballyDiscoverable: true, ContentScope: models.ScopeFriendsOnly},
		FriendStatus: models.FriendStatusAccepted,
	}
	assert.True(t, Visible(in, KindStory))

	// edge dissolved: the next read must not honor any cached grant
	in.FriendStatus = models.FriendStatusNone
	assert.False(t, Visible(in, KindStory))
}

package visibility

import (
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
)

// ContentKind selects which pool or content type a visibility check is for.
type ContentKind int

const (
	// KindNearby asks whether the subject may appear in the viewer's nearby
	// pool at all. Distance and freshness are checked separately by the
	// proximity index; this gate covers the discoverability flag only.
	KindNearby ContentKind = iota
	// KindFriends asks whether the subject belongs in the viewer's friends
	// pool, independent of distance or discoverability.
	KindFriends
	// KindStory asks whether the subject's ephemeral content is readable by
	// the viewer under the subject's declared content scope.
	KindStory
)

// Input is an immutable snapshot of everything the policy reads. Building it
// up front keeps Visible a pure function that is safe to evaluate on every
// incoming event without locking.
type Input struct {
	ViewerID     uint
	SubjectID    uint
	Profile      models.VisibilityProfile // the subject's profile
	FriendStatus models.FriendStatus      // Friendship(viewer, subject)
	WithinRadius bool                     // viewer within proximity radius of subject, fresh position
}

// Visible decides whether the subject is visible to the viewer for the given
// content kind. Self-inclusion: a user always sees themself.
func Visible(in Input, kind ContentKind) bool {
	if in.SubjectID == in.ViewerID {
		return true
	}

	switch kind {
	case KindNearby:
		return in.Profile.GloballyDiscoverable

	case KindFriends:
		return in.FriendStatus == models.FriendStatusAccepted

	case KindStory:
		accepted := in.FriendStatus == models.FriendStatusAccepted
		// Exhaustive over the closed scope set. An unknown scope is treated
		// as hidden, never as visible.
		switch in.Profile.ContentScope {
		case models.ScopeNone:
			return false
		case models.ScopeFriendsOnly:
			return accepted
		case models.ScopeNearbyOnly:
			// Accepted friendship overrides any scope except None.
			return in.WithinRadius || accepted
		case models.ScopeBoth:
			return accepted || in.WithinRadius
		}
		return false
	}
	return false
}

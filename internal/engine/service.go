package engine

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/apperrors"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/fanout"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/geo"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/proximity"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/repositories"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/tracker"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/visibility"
)

// Config carries the engine tunables.
type Config struct {
	Proximity  proximity.Config
	Tracker    tracker.Config
	IdleWindow time.Duration
}

// DefaultConfig returns the production tunables: 100m radius, 10 minute
// freshness window, 5 minute subscription idle window.
func DefaultConfig() Config {
	return Config{
		Proximity:  proximity.Config{RadiusMeters: 100, FreshnessWindow: 10 * time.Minute},
		Tracker:    tracker.DefaultConfig(),
		IdleWindow: 5 * time.Minute,
	}
}

// Service is the discovery engine facade the HTTP and websocket layers talk
// to. Queries compute from authoritative store state; mutations write the
// store first and publish the corresponding fanout event only on success, so
// a failed write never leaves partial local state behind.
type Service struct {
	users     repositories.UserRepository
	positions repositories.PositionRepository
	profiles  repositories.VisibilityProfileRepository
	friends   repositories.FriendshipRepository
	messages  repositories.MessageRepository
	stories   repositories.StoryRepository
	broker    fanout.Broker
	cfg       Config
	logger    *log.Entry
}

func NewService(
	users repositories.UserRepository,
	positions repositories.PositionRepository,
	profiles repositories.VisibilityProfileRepository,
	friends repositories.FriendshipRepository,
	messages repositories.MessageRepository,
	stories repositories.StoryRepository,
	broker fanout.Broker,
	cfg Config,
) *Service {
	return &Service{
		users:     users,
		positions: positions,
		profiles:  profiles,
		friends:   friends,
		messages:  messages,
		stories:   stories,
		broker:    broker,
		cfg:       cfg,
		logger:    log.WithField("component", "engine"),
	}
}

// CandidateRow is a fully annotated entry of the nearby or friends pool, as
// rendered by the UI.
type CandidateRow struct {
	UserID         uint    `json:"user_id"`
	Name           string  `json:"name"`
	DistanceMeters float64 `json:"distance_meters,omitempty"`
	Distance       string  `json:"distance,omitempty"`
	Unread         int64   `json:"unread"`
	HasNewStory    bool    `json:"has_new_story"`
}

// snapshot loads the authoritative state a recomputation needs.
func (s *Service) snapshot(ctx context.Context, viewerID uint) (proximity.Snapshot, error) {
	now := time.Now()
	snap := proximity.Snapshot{
		ViewerID: viewerID,
		Profiles: make(map[uint]models.VisibilityProfile),
		Friends:  make(map[uint]bool),
	}

	viewerPos, err := s.positions.GetPosition(ctx, viewerID)
	if err == nil {
		snap.Viewer = *viewerPos
		snap.ViewerOK = true
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return snap, apperrors.NewServiceFailure("load viewer position").WithCause(err)
	}

	positions, err := s.positions.ListFreshPositions(ctx, now.Add(-s.cfg.Proximity.FreshnessWindow))
	if err != nil {
		return snap, apperrors.NewServiceFailure("load candidate positions").WithCause(err)
	}
	snap.Positions = positions

	profiles, err := s.profiles.ListDiscoverable(ctx)
	if err != nil {
		return snap, apperrors.NewServiceFailure("load discoverable profiles").WithCause(err)
	}
	for _, p := range profiles {
		snap.Profiles[p.UserID] = p
	}

	friendIDs, err := s.friends.FriendIDsOf(ctx, viewerID)
	if err != nil {
		return snap, apperrors.NewServiceFailure("load friends").WithCause(err)
	}
	for _, id := range friendIDs {
		snap.Friends[id] = true
	}
	return snap, nil
}

// NearbyCandidates computes the viewer's nearby pool with unread and story
// badges attached.
func (s *Service) NearbyCandidates(ctx context.Context, viewerID uint) ([]CandidateRow, error) {
	snap, err := s.snapshot(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	candidates := proximity.Nearby(snap, s.cfg.Proximity, time.Now())

	ids := make([]uint, len(candidates))
	distances := make(map[uint]float64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.SubjectID
		distances[c.SubjectID] = c.DistanceMeters
	}
	return s.buildRows(ctx, viewerID, ids, distances, snap)
}

// FriendCandidates computes the viewer's friends pool, independent of
// distance; distance is attached only when both positions are fresh.
func (s *Service) FriendCandidates(ctx context.Context, viewerID uint) ([]CandidateRow, error) {
	snap, err := s.snapshot(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	ids := make([]uint, 0, len(snap.Friends))
	for id := range snap.Friends {
		ids = append(ids, id)
	}
	distances := make(map[uint]float64, len(ids))
	if snap.ViewerOK && snap.Viewer.FreshAt(now, s.cfg.Proximity.FreshnessWindow) {
		for _, pos := range snap.Positions {
			if snap.Friends[pos.UserID] && pos.FreshAt(now, s.cfg.Proximity.FreshnessWindow) {
				distances[pos.UserID] = geo.Distance(
					geo.Point{Lat: snap.Viewer.Latitude, Lon: snap.Viewer.Longitude},
					geo.Point{Lat: pos.Latitude, Lon: pos.Longitude},
				)
			}
		}
	}
	return s.buildRows(ctx, viewerID, ids, distances, snap)
}

// buildRows annotates candidate ids with names, unread counters and
// new-story flags, sorted to match the order of ids.
func (s *Service) buildRows(ctx context.Context, viewerID uint, ids []uint, distances map[uint]float64, snap proximity.Snapshot) ([]CandidateRow, error) {
	if len(ids) == 0 {
		return []CandidateRow{}, nil
	}

	users, err := s.users.GetUsersByIDs(ids)
	if err != nil {
		return nil, apperrors.NewServiceFailure("load candidate users").WithCause(err)
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	unread, err := s.messages.UnreadCountsByPeer(ctx, viewerID)
	if err != nil {
		return nil, apperrors.NewServiceFailure("load unread counts").WithCause(err)
	}

	newStories, err := s.newStoryOwners(ctx, viewerID, ids, distances, snap)
	if err != nil {
		return nil, err
	}

	rows := make([]CandidateRow, 0, len(ids))
	for _, id := range ids {
		row := CandidateRow{
			UserID:      id,
			Name:        names[id],
			Unread:      unread[id],
			HasNewStory: newStories[id],
		}
		if d, ok := distances[id]; ok {
			row.DistanceMeters = d
			row.Distance = geo.FormatDistance(d)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// newStoryOwners reports which of the given subjects have an active story
// that is both visible to the viewer and not yet seen.
func (s *Service) newStoryOwners(ctx context.Context, viewerID uint, ids []uint, distances map[uint]float64, snap proximity.Snapshot) (map[uint]bool, error) {
	stories, err := s.stories.GetActiveByOwnerIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.NewServiceFailure("load stories").WithCause(err)
	}
	if len(stories) == 0 {
		return map[uint]bool{}, nil
	}

	ownerIDs := make([]uint, 0, len(stories))
	for _, st := range stories {
		ownerIDs = append(ownerIDs, st.OwnerID)
	}
	profiles, err := s.profiles.GetProfilesByUserIDs(ctx, ownerIDs)
	if err != nil {
		return nil, apperrors.NewServiceFailure("load story owner profiles").WithCause(err)
	}

	storyIDs := make([]string, 0, len(stories))
	for _, st := range stories {
		storyIDs = append(storyIDs, st.ID.Hex())
	}
	seen, err := s.stories.GetSeenStoryIDs(ctx, viewerID, storyIDs)
	if err != nil {
		return nil, apperrors.NewServiceFailure("load seen stories").WithCause(err)
	}

	out := make(map[uint]bool)
	for _, st := range stories {
		if seen[st.ID.Hex()] {
			continue
		}
		_, within := distances[st.OwnerID]
		within = within && distances[st.OwnerID] <= s.cfg.Proximity.RadiusMeters
		in := visibility.Input{
			ViewerID:     viewerID,
			SubjectID:    st.OwnerID,
			Profile:      profiles[st.OwnerID],
			FriendStatus: friendStatus(snap.Friends, st.OwnerID),
			WithinRadius: within,
		}
		if visibility.Visible(in, visibility.KindStory) {
			out[st.OwnerID] = true
		}
	}
	return out, nil
}

// Visibility returns the viewer's current visibility profile, falling back to
// the restrictive default for users who never configured one.
func (s *Service) Visibility(ctx context.Context, viewerID uint) (*models.VisibilityProfile, error) {
	profile, err := s.profiles.GetProfile(ctx, viewerID)
	if err != nil {
		return nil, apperrors.NewServiceFailure("load profile").WithCause(err)
	}
	return profile, nil
}

// ToggleVisibility applies a discoverability or content-scope change for the
// viewer and fans it out. When discovery is switched off the live position is
// dropped so the user stops being published immediately.
func (s *Service) ToggleVisibility(ctx context.Context, viewerID uint, req models.UpdateVisibilityRequest) (*models.VisibilityProfile, error) {
	profile, err := s.profiles.GetProfile(ctx, viewerID)
	if err != nil {
		return nil, apperrors.NewServiceFailure("load profile").WithCause(err)
	}
	if req.GloballyDiscoverable != nil {
		profile.GloballyDiscoverable = *req.GloballyDiscoverable
	}
	if req.ContentScope != "" {
		scope := models.ContentScope(req.ContentScope)
		if !scope.Valid() {
			return nil, apperrors.NewBadInput("unknown content scope")
		}
		profile.ContentScope = scope
	}
	if err := s.profiles.UpsertProfile(ctx, profile); err != nil {
		return nil, apperrors.NewServiceFailure("store profile").WithCause(err)
	}
	if !profile.GloballyDiscoverable {
		if err := s.positions.DeletePosition(ctx, viewerID); err != nil {
			s.logger.WithError(err).WithField("viewerId", viewerID).Warn("position cleanup failed")
		}
	}
	s.publish(ctx, fanout.Event{
		Topic:     fanout.TopicProfileUpdates,
		SubjectID: viewerID,
		At:        time.Now(),
		Profile:   profile,
	})
	return profile, nil
}

// ReportPosition stores a position fix on behalf of the viewer and fans it
// out. The tracker uses this as its store so every accepted fix reaches the
// proximity index before the next recomputation.
func (s *Service) ReportPosition(ctx context.Context, pos *models.UserPosition) error {
	if err := s.positions.UpsertPosition(ctx, pos); err != nil {
		return apperrors.NewServiceFailure("store position").WithCause(err)
	}
	s.publish(ctx, fanout.Event{
		Topic:     fanout.TopicPositionUpdates,
		SubjectID: pos.UserID,
		At:        time.Now(),
		Position:  pos,
	})
	return nil
}

// AddFriend creates the Accepted edge and notifies both endpoints' sessions.
func (s *Service) AddFriend(ctx context.Context, viewerID, friendID uint) (*models.Friendship, error) {
	if _, err := s.users.GetUserByID(friendID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("user not found")
		}
		return nil, apperrors.NewServiceFailure("load user").WithCause(err)
	}
	edge, err := s.friends.AddFriend(ctx, viewerID, friendID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s.publish(ctx, fanout.Event{Topic: fanout.TopicProfileUpdates, SubjectID: viewerID, At: now})
	s.publish(ctx, fanout.Event{Topic: fanout.TopicProfileUpdates, SubjectID: friendID, At: now})
	return edge, nil
}

// RemoveFriend dissolves the edge and notifies both endpoints' sessions.
func (s *Service) RemoveFriend(ctx context.Context, viewerID, friendID uint) error {
	if err := s.friends.RemoveFriend(ctx, viewerID, friendID); err != nil {
		return err
	}
	now := time.Now()
	s.publish(ctx, fanout.Event{Topic: fanout.TopicProfileUpdates, SubjectID: viewerID, At: now})
	s.publish(ctx, fanout.Event{Topic: fanout.TopicProfileUpdates, SubjectID: friendID, At: now})
	return nil
}

// FriendStatus returns Friendship(viewer, other).
func (s *Service) FriendStatus(ctx context.Context, viewerID, otherID uint) (models.FriendStatus, error) {
	return s.friends.Status(ctx, viewerID, otherID)
}

// SendMessage stores a direct message and fans it out. The event is
// published only after the write succeeded.
func (s *Service) SendMessage(ctx context.Context, fromID uint, req models.SendMessageRequest) (*models.UserMessage, error) {
	if _, err := s.users.GetUserByID(req.ToUserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("recipient not found")
		}
		return nil, apperrors.NewServiceFailure("load recipient").WithCause(err)
	}
	msg := &models.UserMessage{
		ID:         ksuid.New().String(),
		FromUserID: fromID,
		ToUserID:   req.ToUserID,
		Body:       req.Body,
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, apperrors.NewServiceFailure("store message").WithCause(err)
	}
	s.publish(ctx, fanout.Event{
		Topic:     fanout.TopicNewMessages,
		SubjectID: fromID,
		At:        time.Now(),
		Message:   msg,
	})
	return msg, nil
}

// MarkMessagesRead flags the peer's messages to the viewer as read and emits
// the read-ack the aggregators re-derive from.
func (s *Service) MarkMessagesRead(ctx context.Context, viewerID, peerID uint) error {
	if _, err := s.messages.MarkRead(ctx, viewerID, peerID); err != nil {
		return apperrors.NewServiceFailure("mark read").WithCause(err)
	}
	s.publish(ctx, fanout.Event{
		Topic:     fanout.TopicMessageReadAcks,
		SubjectID: peerID,
		ReaderID:  viewerID,
		At:        time.Now(),
	})
	return nil
}

// UnreadCount returns the exact unread counter for one peer straight from
// the log.
func (s *Service) UnreadCount(ctx context.Context, viewerID, peerID uint) (int64, error) {
	return s.messages.CountUnread(ctx, viewerID, peerID)
}

// UnreadCounts returns all non-zero per-peer counters for the viewer.
func (s *Service) UnreadCounts(ctx context.Context, viewerID uint) (map[uint]int64, error) {
	return s.messages.UnreadCountsByPeer(ctx, viewerID)
}

// CreateStory stores an ephemeral item and fans it out. The client's
// correlation id travels with the confirmed event so sessions can replace
// their provisional entry instead of appending a duplicate.
func (s *Service) CreateStory(ctx context.Context, ownerID uint, req models.CreateStoryRequest) (*models.Story, error) {
	story := &models.Story{
		OwnerID:       ownerID,
		CorrelationID: req.CorrelationID,
		MediaURL:      req.MediaURL,
		Type:          req.Type,
	}
	if err := s.stories.CreateStory(ctx, story); err != nil {
		return nil, apperrors.NewServiceFailure("store story").WithCause(err)
	}
	s.publish(ctx, fanout.Event{
		Topic:     fanout.TopicNewStories,
		SubjectID: ownerID,
		At:        time.Now(),
		Story:     story,
	})
	return story, nil
}

// StoryFeedItem is a story with the viewer's seen flag attached.
type StoryFeedItem struct {
	models.Story
	Seen bool `json:"seen"`
}

// StoryFeed returns the active stories visible to the viewer: their own, plus
// friends' and nearby users' per each owner's content scope.
func (s *Service) StoryFeed(ctx context.Context, viewerID uint) ([]StoryFeedItem, error) {
	snap, err := s.snapshot(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	nearby := proximity.Nearby(snap, s.cfg.Proximity, now)
	within := make(map[uint]bool, len(nearby))
	ownerIDs := []uint{viewerID}
	for _, c := range nearby {
		within[c.SubjectID] = true
		ownerIDs = append(ownerIDs, c.SubjectID)
	}
	for id := range snap.Friends {
		ownerIDs = append(ownerIDs, id)
		if !within[id] && snap.ViewerOK {
			for _, pos := range snap.Positions {
				if pos.UserID == id {
					within[id] = proximity.WithinRadius(snap.Viewer, pos, s.cfg.Proximity, now)
					break
				}
			}
		}
	}

	stories, err := s.stories.GetActiveByOwnerIDs(ctx, ownerIDs)
	if err != nil {
		return nil, apperrors.NewServiceFailure("load stories").WithCause(err)
	}
	if len(stories) == 0 {
		return []StoryFeedItem{}, nil
	}

	profiles, err := s.profiles.GetProfilesByUserIDs(ctx, ownerIDs)
	if err != nil {
		return nil, apperrors.NewServiceFailure("load story owner profiles").WithCause(err)
	}

	storyIDs := make([]string, 0, len(stories))
	for _, st := range stories {
		storyIDs = append(storyIDs, st.ID.Hex())
	}
	seen, err := s.stories.GetSeenStoryIDs(ctx, viewerID, storyIDs)
	if err != nil {
		return nil, apperrors.NewServiceFailure("load seen stories").WithCause(err)
	}

	out := make([]StoryFeedItem, 0, len(stories))
	for _, st := range stories {
		if !st.Active(now) {
			continue
		}
		in := visibility.Input{
			ViewerID:     viewerID,
			SubjectID:    st.OwnerID,
			Profile:      profiles[st.OwnerID],
			FriendStatus: friendStatus(snap.Friends, st.OwnerID),
			WithinRadius: within[st.OwnerID],
		}
		if !visibility.Visible(in, visibility.KindStory) {
			continue
		}
		out = append(out, StoryFeedItem{Story: st, Seen: seen[st.ID.Hex()]})
	}
	return out, nil
}

// StartStoryJanitor periodically removes expired story documents. Expiry is
// enforced at query time regardless; the purge only keeps the collection
// bounded. Runs until ctx ends.
func (s *Service) StartStoryJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := s.stories.DeleteExpiredStories(ctx); err != nil {
					s.logger.WithError(err).Warn("expired story purge failed")
				}
			}
		}
	}()
}

// MarkStorySeen appends to the viewed log. Duplicate views are no-ops.
func (s *Service) MarkStorySeen(ctx context.Context, viewerID uint, storyID string) error {
	if err := s.stories.MarkSeen(ctx, &models.StorySeen{StoryID: storyID, UserID: viewerID}); err != nil {
		return apperrors.NewServiceFailure("store seen entry").WithCause(err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, ev fanout.Event) {
	if err := s.broker.Publish(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("topic", string(ev.Topic)).Warn("fanout publish failed")
	}
}

func friendStatus(friends map[uint]bool, id uint) models.FriendStatus {
	if friends[id] {
		return models.FriendStatusAccepted
	}
	return models.FriendStatusNone
}

package engine

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/apperrors"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/fanout"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/proximity"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/tracker"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/unread"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/visibility"
)

// SessionState is the visibility lifecycle of a viewing session.
type SessionState string

const (
	// StateInvisible: not publishing position, still receiving fanout.
	StateInvisible SessionState = "invisible"
	// StateVisible: publishing position, fully discoverable.
	StateVisible SessionState = "visible"
	// StateVisibleDegraded: discoverable but position acquisition failed
	// terminally (permission revoked). The last stored position ages out of
	// the freshness window on its own.
	StateVisibleDegraded SessionState = "visible_degraded"
)

// UpdateType tags a session update for the client.
type UpdateType string

const (
	UpdateNearby  UpdateType = "nearby"
	UpdateFriends UpdateType = "friends"
	UpdateStory   UpdateType = "story"
	UpdateUnread  UpdateType = "unread"
	UpdateState   UpdateType = "state"
	UpdateResync  UpdateType = "resync"
)

// Update is one incremental change pushed to the session's client. Nearby and
// friend payloads carry ids and distances only; the client fetches annotated
// rows over HTTP when it needs them.
type Update struct {
	Type      UpdateType            `json:"type"`
	State     SessionState          `json:"state,omitempty"`
	Nearby    []proximity.Candidate `json:"nearby,omitempty"`
	FriendIDs []uint                `json:"friend_ids,omitempty"`
	Story     *models.Story         `json:"story,omitempty"`
	PeerID    uint                  `json:"peer_id,omitempty"`
	Unread    int64                 `json:"unread,omitempty"`
}

// sessionUpdateBuffer bounds the client update queue. A full queue drops the
// update; the client converges again on the next resynchronization.
const sessionUpdateBuffer = 64

// resubscribeDelay is the wait between re-subscribe attempts after a
// subscription drop.
const resubscribeDelay = time.Second

// Session is one user's live view of the engine: it consumes the fanout
// stream, maintains the materialized candidate pools and counters in memory,
// and owns the position tracker lifecycle. All cache state is confined to the
// run goroutine; outside callers interact through commands and the updates
// channel.
type Session struct {
	svc      *Service
	viewerID uint
	src      tracker.Source
	logger   *log.Entry

	sub *fanout.Subscription
	agg *unread.Aggregator
	opt *fanout.OptimisticSet

	// run-goroutine state
	viewerPos    models.UserPosition
	viewerOK     bool
	profile      models.VisibilityProfile
	positions    map[uint]models.UserPosition
	profiles     map[uint]models.VisibilityProfile
	friends      map[uint]bool
	nearby       []proximity.Candidate
	trk          *tracker.Tracker
	trkPositions <-chan models.UserPosition
	trkErrs      <-chan error

	stateMu sync.RWMutex
	state   SessionState

	cmds    chan func(context.Context)
	updates chan Update

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// StartSession seeds a session from authoritative state and starts its run
// loop. Position tracking starts immediately when the viewer's profile is
// already discoverable and a source is available.
func (s *Service) StartSession(ctx context.Context, viewerID uint, src tracker.Source) (*Session, error) {
	sub, err := s.broker.Subscribe(ctx, fanout.AllTopics()...)
	if err != nil {
		return nil, apperrors.NewServiceFailure("subscribe fanout").WithCause(err)
	}

	sess := &Session{
		svc:      s,
		viewerID: viewerID,
		src:      src,
		logger:   log.WithField("component", "session").WithField("viewerId", viewerID),
		sub:      sub,
		agg:      unread.NewAggregator(viewerID, s.messages),
		opt:      fanout.NewOptimisticSet(),
		state:    StateInvisible,
		cmds:     make(chan func(context.Context), 4),
		updates:  make(chan Update, sessionUpdateBuffer),
		done:     make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel

	if err := sess.resync(ctx); err != nil {
		sub.Close()
		cancel()
		return nil, err
	}
	if sess.profile.GloballyDiscoverable && src != nil {
		sess.startTracking(runCtx)
	}

	go sess.run(runCtx)
	return sess, nil
}

// Updates returns the client update stream. Closed when the session stops.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// State returns the current visibility state.
func (s *Session) State() SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Stop tears the session down: tracker, subscription and update stream go
// together. Idempotent; returns after the run loop exited.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
	})
	<-s.done
}

// EnableVisibility flips the viewer discoverable and starts position
// tracking.
func (s *Session) EnableVisibility(ctx context.Context) (*models.VisibilityProfile, error) {
	on := true
	profile, err := s.svc.ToggleVisibility(ctx, s.viewerID, models.UpdateVisibilityRequest{GloballyDiscoverable: &on})
	if err != nil {
		return nil, err
	}
	s.command(ctx, func(runCtx context.Context) {
		s.profile = *profile
		s.startTracking(runCtx)
	})
	return profile, nil
}

// DisableVisibility stops publishing and removes the viewer from others'
// pools on their next recomputation.
func (s *Session) DisableVisibility(ctx context.Context) (*models.VisibilityProfile, error) {
	off := false
	profile, err := s.svc.ToggleVisibility(ctx, s.viewerID, models.UpdateVisibilityRequest{GloballyDiscoverable: &off})
	if err != nil {
		return nil, err
	}
	s.command(ctx, func(context.Context) {
		s.profile = *profile
		s.stopTracking()
	})
	return profile, nil
}

// command hands a closure to the run goroutine, which owns all cache state.
func (s *Session) command(ctx context.Context, fn func(context.Context)) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	case <-ctx.Done():
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.updates)
	defer s.sub.Close()
	defer func() {
		if s.trk != nil {
			s.trk.Stop()
		}
	}()

	idle := time.NewTimer(s.svc.cfg.IdleWindow)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case fn := <-s.cmds:
			fn(ctx)

		case pos, ok := <-s.trkPositions:
			if !ok {
				s.trkPositions = nil
				continue
			}
			s.viewerPos = pos
			s.viewerOK = true
			s.recomputeNearby()

		case err, ok := <-s.trkErrs:
			if !ok {
				s.trkErrs = nil
				continue
			}
			if apperrors.IsCode(err, apperrors.CodePermissionDenied) {
				// Terminal: reap the tracker so a later enableVisibility can
				// start a fresh one once permission is re-granted. The stored
				// position stays discoverable until the freshness window
				// expires it.
				if s.trk != nil {
					s.trk.Stop()
					s.trk = nil
				}
				s.trkPositions = nil
				s.trkErrs = nil
				s.setState(StateVisibleDegraded)
				s.emit(Update{Type: UpdateState, State: StateVisibleDegraded})
			}

		case ev, ok := <-s.sub.Events():
			if !ok {
				continue
			}
			s.resetIdle(idle)
			s.applyEvent(ctx, ev)

		case <-s.sub.Dropped():
			s.logger.Warn("subscription dropped, resynchronizing")
			if !s.resubscribe(ctx) {
				return
			}
			if err := s.resync(ctx); err != nil {
				s.logger.WithError(err).Error("resync after drop failed")
			}
			s.resetIdle(idle)

		case <-idle.C:
			// No events for a full idle window. Cheap liveness check: reseed
			// from authoritative state in case the stream went quiet-dead.
			if err := s.resync(ctx); err != nil {
				s.logger.WithError(err).Warn("idle resync failed")
			}
			idle.Reset(s.svc.cfg.IdleWindow)
		}
	}
}

func (s *Session) resetIdle(idle *time.Timer) {
	if !idle.Stop() {
		select {
		case <-idle.C:
		default:
		}
	}
	idle.Reset(s.svc.cfg.IdleWindow)
}

// resubscribe replaces the dropped subscription, retrying until the session
// context ends.
func (s *Session) resubscribe(ctx context.Context) bool {
	s.sub.Close()
	for {
		sub, err := s.svc.broker.Subscribe(ctx, fanout.AllTopics()...)
		if err == nil {
			s.sub = sub
			return true
		}
		s.logger.WithError(err).Warn("resubscribe failed")
		select {
		case <-time.After(resubscribeDelay):
		case <-ctx.Done():
			return false
		}
	}
}

// resync rebuilds every cache from authoritative state and pushes a full
// refresh to the client. Provisional story entries survive a resync; they are
// local truth until confirmed.
func (s *Session) resync(ctx context.Context) error {
	profile, err := s.svc.profiles.GetProfile(ctx, s.viewerID)
	if err != nil {
		return apperrors.NewServiceFailure("load viewer profile").WithCause(err)
	}
	snap, err := s.svc.snapshot(ctx, s.viewerID)
	if err != nil {
		return err
	}
	if err := s.agg.Seed(ctx); err != nil {
		return apperrors.NewServiceFailure("seed unread counters").WithCause(err)
	}

	s.profile = *profile
	s.viewerPos = snap.Viewer
	s.viewerOK = snap.ViewerOK
	s.positions = make(map[uint]models.UserPosition, len(snap.Positions))
	for _, pos := range snap.Positions {
		s.positions[pos.UserID] = pos
	}
	s.profiles = snap.Profiles
	s.friends = snap.Friends
	// Friends may be non-discoverable yet still scope content to us; their
	// profiles are not in the discoverable set and need a separate load.
	if len(snap.Friends) > 0 {
		friendProfiles, err := s.svc.profiles.GetProfilesByUserIDs(ctx, friendIDList(snap.Friends))
		if err != nil {
			return apperrors.NewServiceFailure("load friend profiles").WithCause(err)
		}
		for id, p := range friendProfiles {
			s.profiles[id] = p
		}
	}
	s.nearby = proximity.Nearby(s.snapshot(), s.svc.cfg.Proximity, time.Now())

	s.emit(Update{
		Type:      UpdateResync,
		State:     s.State(),
		Nearby:    s.nearby,
		FriendIDs: friendIDList(s.friends),
	})
	return nil
}

// snapshot assembles a proximity snapshot from the in-memory caches.
func (s *Session) snapshot() proximity.Snapshot {
	positions := make([]models.UserPosition, 0, len(s.positions))
	for _, pos := range s.positions {
		positions = append(positions, pos)
	}
	return proximity.Snapshot{
		ViewerID:  s.viewerID,
		Viewer:    s.viewerPos,
		ViewerOK:  s.viewerOK,
		Positions: positions,
		Profiles:  s.profiles,
		Friends:   s.friends,
	}
}

func (s *Session) applyEvent(ctx context.Context, ev fanout.Event) {
	switch ev.Topic {
	case fanout.TopicPositionUpdates:
		if ev.Position == nil {
			return
		}
		if ev.SubjectID == s.viewerID {
			s.viewerPos = *ev.Position
			s.viewerOK = true
		} else {
			s.positions[ev.SubjectID] = *ev.Position
		}
		s.recomputeNearby()

	case fanout.TopicProfileUpdates:
		if ev.SubjectID == s.viewerID {
			if ev.Profile != nil {
				s.profile = *ev.Profile
				s.recomputeNearby()
				return
			}
			// Edge change involving us: reload the friend set, then let the
			// nearby pool shift accordingly.
			if !s.reloadFriends(ctx) {
				return
			}
			s.emit(Update{Type: UpdateFriends, FriendIDs: friendIDList(s.friends)})
			s.recomputeNearby()
			return
		}
		if ev.Profile == nil {
			// Friendship change between other users; nothing of ours moved.
			return
		}
		if !s.materialized(ev.SubjectID) {
			// Unknown user: stays out of the pools until the next resync.
			return
		}
		s.profiles[ev.SubjectID] = *ev.Profile
		s.recomputeNearby()

	case fanout.TopicNewMessages:
		s.agg.Apply(ctx, ev)
		if ev.Message != nil && ev.Message.ToUserID == s.viewerID {
			s.emit(Update{
				Type:   UpdateUnread,
				PeerID: ev.Message.FromUserID,
				Unread: s.agg.Count(ev.Message.FromUserID),
			})
		}

	case fanout.TopicMessageReadAcks:
		s.agg.Apply(ctx, ev)
		if ev.ReaderID == s.viewerID {
			s.emit(Update{
				Type:   UpdateUnread,
				PeerID: ev.SubjectID,
				Unread: s.agg.Count(ev.SubjectID),
			})
		}

	case fanout.TopicNewStories:
		if ev.Story == nil {
			return
		}
		if ev.SubjectID == s.viewerID {
			// Confirmation of our own post replaces the provisional entry.
			s.opt.Confirm(*ev.Story)
			s.emit(Update{Type: UpdateStory, Story: ev.Story})
			return
		}
		if !s.materialized(ev.SubjectID) {
			return
		}
		if s.storyVisible(ev.Story) {
			s.emit(Update{Type: UpdateStory, Story: ev.Story})
		}
	}
}

// reloadFriends refetches the viewer's friend set after an edge change.
func (s *Session) reloadFriends(ctx context.Context) bool {
	ids, err := s.svc.friends.FriendIDsOf(ctx, s.viewerID)
	if err != nil {
		s.logger.WithError(err).Warn("friend reload failed")
		return false
	}
	s.friends = make(map[uint]bool, len(ids))
	for _, id := range ids {
		s.friends[id] = true
	}
	return true
}

// materialized reports whether the subject is currently surfaced to this
// viewer. Events about unsurfaced users are skipped; the periodic resync
// picks them up.
func (s *Session) materialized(subjectID uint) bool {
	if s.friends[subjectID] {
		return true
	}
	for _, c := range s.nearby {
		if c.SubjectID == subjectID {
			return true
		}
	}
	return false
}

func (s *Session) storyVisible(story *models.Story) bool {
	within := false
	if pos, ok := s.positions[story.OwnerID]; ok && s.viewerOK {
		within = proximity.WithinRadius(s.viewerPos, pos, s.svc.cfg.Proximity, time.Now())
	}
	in := visibility.Input{
		ViewerID:     s.viewerID,
		SubjectID:    story.OwnerID,
		Profile:      s.profiles[story.OwnerID],
		FriendStatus: friendStatus(s.friends, story.OwnerID),
		WithinRadius: within,
	}
	return visibility.Visible(in, visibility.KindStory)
}

func (s *Session) recomputeNearby() {
	next := proximity.Nearby(s.snapshot(), s.svc.cfg.Proximity, time.Now())
	if candidatesEqual(s.nearby, next) {
		return
	}
	s.nearby = next
	s.emit(Update{Type: UpdateNearby, Nearby: next})
}

// PendingStories returns the viewer's provisional posts awaiting
// confirmation.
func (s *Session) PendingStories() []models.Story {
	return s.opt.Pending()
}

// PostStoryOptimistic registers the provisional entry locally, then performs
// the write. On success the fanout confirmation replaces the entry; on
// failure the provisional entry is withdrawn.
func (s *Session) PostStoryOptimistic(ctx context.Context, req models.CreateStoryRequest) (*models.Story, error) {
	s.opt.Add(models.Story{
		OwnerID:       s.viewerID,
		CorrelationID: req.CorrelationID,
		MediaURL:      req.MediaURL,
		Type:          req.Type,
		CreatedAt:     time.Now(),
	})
	story, err := s.svc.CreateStory(ctx, s.viewerID, req)
	if err != nil {
		s.opt.Confirm(models.Story{CorrelationID: req.CorrelationID})
		return nil, err
	}
	return story, nil
}

// UnreadCounts returns the session's live per-peer counters.
func (s *Session) UnreadCounts() map[uint]int64 {
	return s.agg.Counts()
}

func (s *Session) startTracking(runCtx context.Context) {
	if s.trk != nil || s.src == nil {
		return
	}
	s.trk = tracker.New(s.viewerID, s.src, trackerStore{svc: s.svc}, s.svc.cfg.Tracker)
	s.trkPositions, s.trkErrs = s.trk.Start(runCtx)
	s.setState(StateVisible)
	s.emit(Update{Type: UpdateState, State: StateVisible})
}

func (s *Session) stopTracking() {
	if s.trk != nil {
		s.trk.Stop()
		s.trk = nil
		s.trkPositions = nil
		s.trkErrs = nil
	}
	s.setState(StateInvisible)
	s.emit(Update{Type: UpdateState, State: StateInvisible})
}

func (s *Session) setState(state SessionState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// emit pushes an update without ever blocking the run loop. A full client
// queue loses the update; the client converges on the next resync.
func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	default:
		s.logger.WithField("type", string(u.Type)).Debug("update queue full, dropped")
	}
}

// trackerStore routes tracker writes through the service so each accepted fix
// is stored and fanned out in one step.
type trackerStore struct {
	svc *Service
}

func (t trackerStore) UpsertPosition(ctx context.Context, pos *models.UserPosition) error {
	return t.svc.ReportPosition(ctx, pos)
}

func candidatesEqual(a, b []proximity.Candidate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].SubjectID != b[i].SubjectID || a[i].DistanceMeters != b[i].DistanceMeters {
			return false
		}
	}
	return true
}

func friendIDList(friends map[uint]bool) []uint {
	out := make([]uint, 0, len(friends))
	for id := range friends {
		out = append(out, id)
	}
	return out
}

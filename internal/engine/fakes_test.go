package engine

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/apperrors"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/fanout"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/proximity"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/tracker"
)

// memBackend implements every repository interface in memory for engine
// tests.
type memBackend struct {
	mu        sync.Mutex
	users     map[uint]models.User
	positions map[uint]models.UserPosition
	profiles  map[uint]models.VisibilityProfile
	edges     map[[2]uint]models.FriendStatus
	messages  []models.UserMessage
	stories   []models.Story
	seen      map[string]map[uint]bool
}

func newMemBackend() *memBackend {
	return &memBackend{
		users:     make(map[uint]models.User),
		positions: make(map[uint]models.UserPosition),
		profiles:  make(map[uint]models.VisibilityProfile),
		edges:     make(map[[2]uint]models.FriendStatus),
		seen:      make(map[string]map[uint]bool),
	}
}

// --- UserRepository

func (m *memBackend) CreateUser(user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = *user
	return nil
}

func (m *memBackend) GetUserByID(id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (m *memBackend) GetUserByEmail(email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memBackend) GetUserByFirebaseUID(uid string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.FirebaseUID == uid {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memBackend) GetUsersByIDs(ids []uint) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memBackend) UpdateUser(user *models.User) error {
	return m.CreateUser(user)
}

// --- PositionRepository

func (m *memBackend) UpsertPosition(_ context.Context, pos *models.UserPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.UserID] = *pos
	return nil
}

func (m *memBackend) GetPosition(_ context.Context, userID uint) (*models.UserPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &pos, nil
}

func (m *memBackend) ListFreshPositions(_ context.Context, since time.Time) ([]models.UserPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserPosition
	for _, pos := range m.positions {
		if pos.UpdatedAt.After(since) {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *memBackend) DeletePosition(_ context.Context, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, userID)
	return nil
}

// --- VisibilityProfileRepository

func (m *memBackend) GetProfile(_ context.Context, userID uint) (*models.VisibilityProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return &models.VisibilityProfile{UserID: userID, ContentScope: models.ScopeNone}, nil
	}
	return &p, nil
}

func (m *memBackend) UpsertProfile(_ context.Context, profile *models.VisibilityProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = *profile
	return nil
}

func (m *memBackend) GetProfilesByUserIDs(_ context.Context, userIDs []uint) (map[uint]models.VisibilityProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint]models.VisibilityProfile)
	for _, id := range userIDs {
		if p, ok := m.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *memBackend) ListDiscoverable(_ context.Context) ([]models.VisibilityProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.VisibilityProfile
	for _, p := range m.profiles {
		if p.GloballyDiscoverable {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- FriendshipRepository

func (m *memBackend) AddFriend(_ context.Context, a, b uint) (*models.Friendship, error) {
	if a == b {
		return nil, apperrors.NewBadInput("cannot befriend yourself")
	}
	ua, ub := models.OrderedPair(a, b)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[[2]uint{ua, ub}] = models.FriendStatusAccepted
	return &models.Friendship{UserAID: ua, UserBID: ub, Status: models.FriendStatusAccepted}, nil
}

func (m *memBackend) RemoveFriend(_ context.Context, a, b uint) error {
	ua, ub := models.OrderedPair(a, b)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.edges[[2]uint{ua, ub}]; !ok {
		return apperrors.NewNotFound("friendship not found")
	}
	delete(m.edges, [2]uint{ua, ub})
	return nil
}

func (m *memBackend) Status(_ context.Context, a, b uint) (models.FriendStatus, error) {
	if a == b {
		return models.FriendStatusAccepted, nil
	}
	ua, ub := models.OrderedPair(a, b)
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.edges[[2]uint{ua, ub}]
	if !ok {
		return models.FriendStatusNone, nil
	}
	return st, nil
}

func (m *memBackend) FriendIDsOf(_ context.Context, userID uint) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uint
	for pair, st := range m.edges {
		if st != models.FriendStatusAccepted {
			continue
		}
		if pair[0] == userID {
			out = append(out, pair[1])
		} else if pair[1] == userID {
			out = append(out, pair[0])
		}
	}
	return out, nil
}

// --- MessageRepository

func (m *memBackend) CreateMessage(_ context.Context, msg *models.UserMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memBackend) CountUnread(_ context.Context, viewerID, peerID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.messages {
		if msg.ToUserID == viewerID && msg.FromUserID == peerID && !msg.Read {
			n++
		}
	}
	return n, nil
}

func (m *memBackend) UnreadCountsByPeer(_ context.Context, viewerID uint) (map[uint]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint]int64)
	for _, msg := range m.messages {
		if msg.ToUserID == viewerID && !msg.Read {
			out[msg.FromUserID]++
		}
	}
	return out, nil
}

func (m *memBackend) MarkRead(_ context.Context, viewerID, peerID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.messages {
		if m.messages[i].ToUserID == viewerID && m.messages[i].FromUserID == peerID && !m.messages[i].Read {
			m.messages[i].Read = true
			n++
		}
	}
	return n, nil
}

// --- StoryRepository

func (m *memBackend) CreateStory(_ context.Context, story *models.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	story.ID = primitive.NewObjectID()
	story.CreatedAt = time.Now()
	story.ExpiresAt = story.CreatedAt.Add(24 * time.Hour)
	m.stories = append(m.stories, *story)
	return nil
}

func (m *memBackend) GetActiveByOwnerIDs(_ context.Context, ownerIDs []uint) ([]models.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owners := make(map[uint]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	var out []models.Story
	for _, st := range m.stories {
		if owners[st.OwnerID] && st.Active(time.Now()) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *memBackend) DeleteExpiredStories(_ context.Context) error {
	return nil
}

func (m *memBackend) MarkSeen(_ context.Context, seen *models.StorySeen) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[seen.StoryID] == nil {
		m.seen[seen.StoryID] = make(map[uint]bool)
	}
	m.seen[seen.StoryID][seen.UserID] = true
	return nil
}

func (m *memBackend) GetSeenStoryIDs(_ context.Context, userID uint, storyIDs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, id := range storyIDs {
		if m.seen[id][userID] {
			out[id] = true
		}
	}
	return out, nil
}

func testConfig() Config {
	return Config{
		Proximity:  proximity.Config{RadiusMeters: 100, FreshnessWindow: 10 * time.Minute},
		Tracker:    tracker.Config{WriteInterval: time.Millisecond, BaseDelay: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Jitter: 0},
		IdleWindow: time.Hour,
	}
}

func newTestService(cfg Config) (*Service, *memBackend, *fanout.InProcBroker) {
	backend := newMemBackend()
	broker := fanout.NewInProcBroker()
	svc := NewService(backend, backend, backend, backend, backend, backend, broker, cfg)
	return svc, backend, broker
}

// seedUser registers a user with an optional position and profile.
func (m *memBackend) seedUser(id uint, name string, discoverable bool, scope models.ContentScope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{Name: name}
	u.ID = id
	m.users[id] = u
	m.profiles[id] = models.VisibilityProfile{UserID: id, GloballyDiscoverable: discoverable, ContentScope: scope}
}

func (m *memBackend) seedPosition(id uint, lat, lon float64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[id] = models.UserPosition{UserID: id, Latitude: lat, Longitude: lon, UpdatedAt: at}
}

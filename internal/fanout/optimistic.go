package fanout

import (
	"sync"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
)

// OptimisticSet holds provisional local entries shown before server
// confirmation, keyed by a client-generated correlation id. The provisional
// entry is the source of truth until the confirmed event arrives, at which
// point the confirmed entry replaces it. Never appends a duplicate.
type OptimisticSet struct {
	mu      sync.Mutex
	pending map[string]models.Story
}

func NewOptimisticSet() *OptimisticSet {
	return &OptimisticSet{pending: make(map[string]models.Story)}
}

// Add registers a provisional story under its correlation id.
func (o *OptimisticSet) Add(story models.Story) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[story.CorrelationID] = story
}

// Confirm resolves a server-confirmed story against the pending entries.
// Matches by correlation id first, then by owner + create-timestamp when the
// confirmed event carries no correlation id. Returns true if a provisional
// entry was replaced, false if the story is new to this session.
func (o *OptimisticSet) Confirm(confirmed models.Story) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if confirmed.CorrelationID != "" {
		if _, ok := o.pending[confirmed.CorrelationID]; ok {
			delete(o.pending, confirmed.CorrelationID)
			return true
		}
		return false
	}
	for key, p := range o.pending {
		if p.OwnerID == confirmed.OwnerID && p.CreatedAt.Equal(confirmed.CreatedAt) {
			delete(o.pending, key)
			return true
		}
	}
	return false
}

// Pending returns the provisional entries still awaiting confirmation.
func (o *OptimisticSet) Pending() []models.Story {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.Story, 0, len(o.pending))
	for _, s := range o.pending {
		out = append(out, s)
	}
	return out
}

// Clear discards all provisional entries (used on full resynchronization).
func (o *OptimisticSet) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = make(map[string]models.Story)
}

package unread

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/fanout"
)

// CounterLog is the authoritative unread-message log the aggregator re-derives
// exact counts from.
type CounterLog interface {
	CountUnread(ctx context.Context, viewerID, peerID uint) (int64, error)
	UnreadCountsByPeer(ctx context.Context, viewerID uint) (map[uint]int64, error)
}

// Aggregator maintains per-peer unread counters for one viewer. Counters are
// derived state: incremented on message inserts, re-derived exactly on read
// acks (a blind decrement would drift under concurrent acks), and rebuilt by
// full scan only at session start.
type Aggregator struct {
	mu       sync.RWMutex
	viewerID uint
	counts   map[uint]int64
	logsrc   CounterLog
	logger   *log.Entry
}

func NewAggregator(viewerID uint, logsrc CounterLog) *Aggregator {
	return &Aggregator{
		viewerID: viewerID,
		counts:   make(map[uint]int64),
		logsrc:   logsrc,
		logger:   log.WithField("component", "unread").WithField("viewerId", viewerID),
	}
}

// Seed rebuilds every counter from the unread log. Called at session start
// and after a subscription drop.
func (a *Aggregator) Seed(ctx context.Context) error {
	counts, err := a.logsrc.UnreadCountsByPeer(ctx, a.viewerID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.counts = counts
	a.mu.Unlock()
	return nil
}

// Apply updates counters from a fanout event. Events that do not concern this
// viewer are no-ops.
func (a *Aggregator) Apply(ctx context.Context, ev fanout.Event) {
	switch ev.Topic {
	case fanout.TopicNewMessages:
		if ev.Message == nil || ev.Message.ToUserID != a.viewerID || ev.Message.Read {
			return
		}
		a.mu.Lock()
		a.counts[ev.Message.FromUserID]++
		a.mu.Unlock()

	case fanout.TopicMessageReadAcks:
		if ev.ReaderID != a.viewerID {
			return
		}
		// Re-derive the exact count for this peer instead of decrementing.
		count, err := a.logsrc.CountUnread(ctx, a.viewerID, ev.SubjectID)
		if err != nil {
			a.logger.WithError(err).WithField("peerId", ev.SubjectID).Warn("unread re-derivation failed")
			return
		}
		a.mu.Lock()
		if count == 0 {
			delete(a.counts, ev.SubjectID)
		} else {
			a.counts[ev.SubjectID] = count
		}
		a.mu.Unlock()
	}
}

// Count returns the unread counter for one peer.
func (a *Aggregator) Count(peerID uint) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.counts[peerID]
}

// Counts returns a copy of all non-zero counters, keyed by peer.
func (a *Aggregator) Counts() map[uint]int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[uint]int64, len(a.counts))
	for peer, n := range a.counts {
		if n > 0 {
			out[peer] = n
		}
	}
	return out
}

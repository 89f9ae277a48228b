package tracker

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/apperrors"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
)

// Fix is a single raw position report from the platform source.
type Fix struct {
	Latitude  float64
	Longitude float64
	At        time.Time
}

// Source is the platform position provider. Next blocks until a fix is
// available or fails. A PermissionDenied error is terminal for the tracker;
// any other error is treated as transient and retried with backoff.
type Source interface {
	Next(ctx context.Context) (Fix, error)
}

// PositionStore receives accepted fixes. Every successful write overwrites
// the viewer's UserPosition and must be visible to the proximity index before
// the next recomputation cycle, so the store write happens before the fix is
// emitted downstream.
type PositionStore interface {
	UpsertPosition(ctx context.Context, pos *models.UserPosition) error
}

// Config carries the tracker tunables.
type Config struct {
	// WriteInterval caps store writes to avoid index thrash. Fixes arriving
	// inside the interval are dropped.
	WriteInterval time.Duration
	// Backoff for transient source errors: the wait before the (i+1)-th
	// retry is min(BaseDelay * 2^i * (1 + Jitter*rand), MaxBackoff).
	BaseDelay  time.Duration
	MaxBackoff time.Duration
	Jitter     float64
}

// DefaultConfig returns the tunables used in production sessions.
func DefaultConfig() Config {
	return Config{
		WriteInterval: 10 * time.Second,
		BaseDelay:     500 * time.Millisecond,
		MaxBackoff:    30 * time.Second,
		Jitter:        0.2,
	}
}

// Tracker acquires the viewer's live position, throttles writes to the shared
// position store and streams accepted positions to the session.
type Tracker struct {
	viewerID uint
	src      Source
	store    PositionStore
	cfg      Config
	logger   *log.Entry

	positions chan models.UserPosition
	errs      chan error

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(viewerID uint, src Source, store PositionStore, cfg Config) *Tracker {
	return &Tracker{
		viewerID:  viewerID,
		src:       src,
		store:     store,
		cfg:       cfg,
		logger:    log.WithField("component", "tracker").WithField("viewerId", viewerID),
		positions: make(chan models.UserPosition, 16),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
	}
}

// Start begins acquisition. The position channel carries every accepted
// (stored) fix; the error channel carries at most one terminal error.
// Both channels are closed when the tracker stops.
func (t *Tracker) Start(ctx context.Context) (<-chan models.UserPosition, <-chan error) {
	ctx, t.cancel = context.WithCancel(ctx)
	go t.run(ctx)
	return t.positions, t.errs
}

// Stop tears down acquisition. Idempotent; returns after the run loop exited.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
	})
	<-t.done
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)
	defer close(t.positions)
	defer close(t.errs)

	var lastWrite time.Time
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		fix, err := t.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if apperrors.IsCode(err, apperrors.CodePermissionDenied) {
				// Terminal until the user re-grants. Surfaced, not retried.
				t.logger.WithError(err).Warn("location permission denied")
				t.errs <- err
				return
			}
			attempt++
			delay := t.backoff(attempt)
			t.logger.WithError(err).WithField("retryIn", delay.String()).Debug("transient position error")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		attempt = 0

		if fix.At.IsZero() {
			fix.At = time.Now()
		}
		if !lastWrite.IsZero() && fix.At.Sub(lastWrite) < t.cfg.WriteInterval {
			continue
		}

		pos := models.UserPosition{
			UserID:    t.viewerID,
			Latitude:  fix.Latitude,
			Longitude: fix.Longitude,
			UpdatedAt: fix.At,
		}
		if err := t.store.UpsertPosition(ctx, &pos); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.WithError(err).Warn("position write failed")
			continue
		}
		lastWrite = fix.At

		select {
		case t.positions <- pos:
		case <-ctx.Done():
			return
		}
	}
}

func (t *Tracker) backoff(attempt int) time.Duration {
	d := float64(t.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	d *= 1 + t.cfg.Jitter*rand.Float64()
	if max := float64(t.cfg.MaxBackoff); d > max {
		d = max
	}
	return time.Duration(d)
}

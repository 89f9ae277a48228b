package proximity

import (
	"sort"
	"time"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/geo"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/visibility"
)

// Candidate is a derived nearby entry. Never stored: always rebuilt from the
// authoritative position/profile/friendship state.
type Candidate struct {
	SubjectID      uint    `json:"subject_id"`
	DistanceMeters float64 `json:"distance_meters"`
	Distance       string  `json:"distance"` // formatted for candidate rows
}

// Snapshot is the immutable input of a recomputation cycle. The caller
// assembles it from current store state; Nearby never mutates it, so it is
// safe to run on every incoming event without locking.
type Snapshot struct {
	ViewerID  uint
	Viewer    models.UserPosition
	ViewerOK  bool // viewer has a position at all
	Positions []models.UserPosition
	Profiles  map[uint]models.VisibilityProfile
	Friends   map[uint]bool // Accepted friends of the viewer
}

// Config carries the proximity tunables.
type Config struct {
	RadiusMeters    float64
	FreshnessWindow time.Duration
}

// Nearby computes the viewer's nearby pool: discoverable subjects with a
// fresh position within the radius, excluding self and Accepted friends
// (friends surface through the friends pool instead). Sorted ascending by
// distance, ties broken by subject id for determinism.
func Nearby(snap Snapshot, cfg Config, now time.Time) []Candidate {
	if !snap.ViewerOK || !snap.Viewer.FreshAt(now, cfg.FreshnessWindow) {
		return nil
	}

	viewerPoint := geo.Point{Lat: snap.Viewer.Latitude, Lon: snap.Viewer.Longitude}
	out := make([]Candidate, 0, len(snap.Positions))
	for _, pos := range snap.Positions {
		if pos.UserID == snap.ViewerID || snap.Friends[pos.UserID] {
			continue
		}
		if !pos.FreshAt(now, cfg.FreshnessWindow) {
			continue
		}
		in := visibility.Input{
			ViewerID:  snap.ViewerID,
			SubjectID: pos.UserID,
			Profile:   snap.Profiles[pos.UserID],
		}
		if !visibility.Visible(in, visibility.KindNearby) {
			continue
		}
		d := geo.Distance(viewerPoint, geo.Point{Lat: pos.Latitude, Lon: pos.Longitude})
		if d > cfg.RadiusMeters {
			continue
		}
		out = append(out, Candidate{
			SubjectID:      pos.UserID,
			DistanceMeters: d,
			Distance:       geo.FormatDistance(d),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].SubjectID < out[j].SubjectID
	})
	return out
}

// WithinRadius reports whether the viewer is inside the subject's proximity
// radius with both positions fresh. Used by the story visibility check.
func WithinRadius(viewer, subject models.UserPosition, cfg Config, now time.Time) bool {
	if !viewer.FreshAt(now, cfg.FreshnessWindow) || !subject.FreshAt(now, cfg.FreshnessWindow) {
		return false
	}
	d := geo.Distance(
		geo.Point{Lat: viewer.Latitude, Lon: viewer.Longitude},
		geo.Point{Lat: subject.Latitude, Lon: subject.Longitude},
	)
	return d <= cfg.RadiusMeters
}

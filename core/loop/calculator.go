package loop

import (
	"math"

	"Bt1QLooper/model"
)

// MasterLoop describes the reference loop of a session: the speed-adjusted
// span of the first track in caller-supplied order. An empty session has
// DurationMs 0 and a nil Track.
type MasterLoop struct {
	DurationMs float64      `json:"durationMs"`
	TrackID    int64        `json:"trackId"`
	Track      *model.Track `json:"track"`
}

// TrackLoopInfo describes how one track tiles inside the master loop span.
// BoundariesMs holds the restart timestamps within [0, master duration).
type TrackLoopInfo struct {
	LoopCount       int       `json:"loopCount"`
	BoundariesMs    []float64 `json:"boundariesMs"`
	TotalDurationMs float64   `json:"totalDurationMs"`
}

// Calculator derives loop timing from an ordered track list. Which track is
// "first" is the caller's list-ordering convention; the calculator only
// trusts the order it is handed. All durations are milliseconds.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// MasterLoopInfo returns the master loop of the given session.
func (c *Calculator) MasterLoopInfo(tracks []*model.Track) MasterLoop {
	if len(tracks) == 0 || tracks[0] == nil {
		return MasterLoop{}
	}
	master := tracks[0]
	return MasterLoop{
		DurationMs: master.AdjustedDurationMs(),
		TrackID:    master.ID,
		Track:      master,
	}
}

// TrackLoopInfo computes loop count and restart boundaries for the track
// with the given id. Unknown ids and sessions without a usable master both
// yield the single-pass default {1, [], 0}.
func (c *Calculator) TrackLoopInfo(trackID int64, tracks []*model.Track) TrackLoopInfo {
	none := TrackLoopInfo{LoopCount: 1, BoundariesMs: []float64{}}

	track := findTrack(trackID, tracks)
	if track == nil {
		return none
	}
	m := c.MasterLoopInfo(tracks).DurationMs
	if m <= 0 {
		return none
	}
	d := track.AdjustedDurationMs()
	if d <= 0 {
		return none
	}

	loopCount := int(math.Ceil(m / d))
	if loopCount < 1 {
		loopCount = 1
	}
	boundaries := make([]float64, loopCount)
	for i := range boundaries {
		boundaries[i] = float64(i) * d
	}

	return TrackLoopInfo{
		LoopCount:       loopCount,
		BoundariesMs:    boundaries,
		TotalDurationMs: m,
	}
}

// ShouldTrackLoop reports whether the track repeats inside the master span.
// The master track itself spans the whole loop and never repeats against it.
func (c *Calculator) ShouldTrackLoop(trackID int64, loopModeEnabled bool, tracks []*model.Track) bool {
	if !loopModeEnabled {
		return false
	}
	track := findTrack(trackID, tracks)
	if track == nil {
		return false
	}
	m := c.MasterLoopInfo(tracks).DurationMs
	d := track.AdjustedDurationMs()
	return d > 0 && d < m
}

// ExportDurationMs is the nominal export length: master duration times the
// loop count plus the fadeout tail. A non-positive loop count leaves only
// the fadeout.
func (c *Calculator) ExportDurationMs(loopCount int, fadeoutMs float64, tracks []*model.Track) float64 {
	if loopCount <= 0 {
		return fadeoutMs
	}
	m := c.MasterLoopInfo(tracks).DurationMs
	return m*float64(loopCount) + fadeoutMs
}

func findTrack(trackID int64, tracks []*model.Track) *model.Track {
	for _, t := range tracks {
		if t != nil && t.ID == trackID {
			return t
		}
	}
	return nil
}

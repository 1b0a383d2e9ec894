package mix

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultSampleRate is the fixed render rate both backends share.
const DefaultSampleRate = 44100

// TrackInput is one clip handed to the mixdown engine. Source is an opaque
// handle the chosen backend understands; both built-in renderers take local
// file paths. NaturalMs is the clip's probed or decoded duration before any
// speed adjustment. The trim fields are optional; nil means untrimmed.
type TrackInput struct {
	ID             int64
	Source         string
	Speed          float64
	Volume         int
	NaturalMs      float64
	StartOffsetMs  *float64
	ClipDurationMs *float64
}

// Options controls one mixdown.
type Options struct {
	LoopCount  int     // repetitions of the render master span, minimum 1
	FadeoutMs  float64 // linear fade to silence at the very end, 0 disables
	Format     string  // requested container, renderers may pin their own
	SampleRate int     // 0 picks DefaultSampleRate
}

// SpeedSpec carries both renderer representations of one speed factor. The
// graph renderer applies Rate directly; the pipeline renderer stacks the
// bounded Stages.
type SpeedSpec struct {
	Rate   float64
	Stages []float64
}

// PlanTrack is one track's backend-neutral render instruction.
type PlanTrack struct {
	ID             int64
	Source         string
	Speed          SpeedSpec
	Gain           float64
	LoopEnabled    bool    // always true: shorter sources tile the whole span
	StartOffsetMs  float64 // 0 when untrimmed
	ClipDurationMs float64 // 0 when untrimmed
	SourceMs       float64 // effective loopable length, unadjusted by speed
}

// FadeSpec describes the single fadeout ramp on the combined bus.
type FadeSpec struct {
	Enabled    bool
	StartMs    float64
	DurationMs float64
}

// GainAt evaluates the bus envelope at the given render position. The ramp
// is linear from 1.0 at StartMs down to exactly 0.0 at StartMs+DurationMs.
func (f FadeSpec) GainAt(ms float64) float64 {
	if !f.Enabled || ms <= f.StartMs {
		return 1
	}
	g := 1 - (ms-f.StartMs)/f.DurationMs
	if g < 0 {
		return 0
	}
	return g
}

// Plan is the complete mixdown blueprint a renderer consumes. It is built
// once, up front, and never mutated during the render.
type Plan struct {
	Tracks         []PlanTrack
	Target         string
	Format         string
	SampleRate     int
	LoopCount      int
	RenderMasterMs float64 // longest effective source length among the tracks
	TotalRenderMs  float64 // RenderMasterMs * LoopCount + fadeout
	Fade           FadeSpec
}

// TotalFrames converts the render length into whole frames at the plan rate.
func (p *Plan) TotalFrames() int {
	return int(math.Round(p.TotalRenderMs * float64(p.SampleRate) / 1000.0))
}

// ValidateTracks checks the submitted track list before any decode or
// render work starts.
func ValidateTracks(tracks []TrackInput) error {
	if len(tracks) == 0 {
		return &ValidationError{Field: "tracks", Reason: "track list is empty"}
	}
	for i, t := range tracks {
		if strings.TrimSpace(t.Source) == "" {
			return &ValidationError{Field: fmt.Sprintf("tracks[%d].source", i), Reason: "source is missing"}
		}
		if t.Speed < MinSpeed || t.Speed > MaxSpeed {
			return &ValidationError{
				Field:  fmt.Sprintf("tracks[%d].speed", i),
				Reason: fmt.Sprintf("%.3f outside [%.2f, %.2f]", t.Speed, MinSpeed, MaxSpeed),
			}
		}
		if t.Volume < 0 || t.Volume > 100 {
			return &ValidationError{
				Field:  fmt.Sprintf("tracks[%d].volume", i),
				Reason: fmt.Sprintf("%d outside [0, 100]", t.Volume),
			}
		}
		if t.StartOffsetMs != nil && *t.StartOffsetMs < 0 {
			return &ValidationError{Field: fmt.Sprintf("tracks[%d].startOffset", i), Reason: "negative offset"}
		}
		if t.ClipDurationMs != nil && *t.ClipDurationMs <= 0 {
			return &ValidationError{Field: fmt.Sprintf("tracks[%d].duration", i), Reason: "non-positive duration"}
		}
	}
	return nil
}

var unsafeTargetChars = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)

// ValidateOutputTarget rejects empty targets, path traversal, and output
// names with characters outside the safe filename set.
func ValidateOutputTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return &ValidationError{Field: "target", Reason: "output target is empty"}
	}
	if strings.Contains(target, "..") {
		return &ValidationError{Field: "target", Reason: "path traversal in output target"}
	}
	if base := filepath.Base(target); unsafeTargetChars.MatchString(base) {
		return &ValidationError{Field: "target", Reason: fmt.Sprintf("unsafe characters in %q", base)}
	}
	return nil
}

// BuildPlan validates the inputs and assembles the render instructions.
//
// Every track is scheduled to loop for the entire render span, so shorter
// sources fill the export by repetition. The render length derives from the
// longest effective source duration, not from the UI-level master loop:
// TotalRenderMs = RenderMasterMs * loopCount + fadeout.
func BuildPlan(tracks []TrackInput, target string, opts Options) (*Plan, error) {
	if err := ValidateTracks(tracks); err != nil {
		return nil, err
	}
	if err := ValidateOutputTarget(target); err != nil {
		return nil, err
	}

	loopCount := opts.LoopCount
	if loopCount < 1 {
		loopCount = 1
	}
	fadeout := opts.FadeoutMs
	if fadeout < 0 {
		fadeout = 0
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	planTracks := make([]PlanTrack, 0, len(tracks))
	masterMs := 0.0
	for _, t := range tracks {
		var startOff, clipDur float64
		if t.StartOffsetMs != nil {
			startOff = *t.StartOffsetMs
		}
		if t.ClipDurationMs != nil {
			clipDur = *t.ClipDurationMs
		}

		effective := t.NaturalMs
		if clipDur > 0 {
			effective = clipDur
		} else if startOff > 0 && t.NaturalMs > startOff {
			effective = t.NaturalMs - startOff
		}
		if effective > masterMs {
			masterMs = effective
		}

		planTracks = append(planTracks, PlanTrack{
			ID:             t.ID,
			Source:         t.Source,
			Speed:          SpeedSpec{Rate: t.Speed, Stages: SpeedStages(t.Speed)},
			Gain:           VolumeGain(t.Volume),
			LoopEnabled:    true,
			StartOffsetMs:  startOff,
			ClipDurationMs: clipDur,
			SourceMs:       effective,
		})
	}

	if masterMs <= 0 {
		return nil, &ValidationError{Field: "tracks", Reason: "no source duration available"}
	}

	total := masterMs*float64(loopCount) + fadeout
	fade := FadeSpec{}
	if fadeout > 0 {
		fade = FadeSpec{Enabled: true, StartMs: total - fadeout, DurationMs: fadeout}
	}

	return &Plan{
		Tracks:         planTracks,
		Target:         target,
		Format:         opts.Format,
		SampleRate:     rate,
		LoopCount:      loopCount,
		RenderMasterMs: masterMs,
		TotalRenderMs:  total,
		Fade:           fade,
	}, nil
}

package mix

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func fptr(v float64) *float64 { return &v }

func validInput(source string, naturalMs float64) TrackInput {
	return TrackInput{Source: source, Speed: 1.0, Volume: 100, NaturalMs: naturalMs}
}

func TestValidateTracks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tracks    []TrackInput
		wantField string
	}{
		{"empty list", nil, "tracks"},
		{"missing source", []TrackInput{{Source: "  ", Speed: 1, Volume: 50}}, "tracks[0].source"},
		{"speed below domain", []TrackInput{{Source: "a.wav", Speed: 0.04, Volume: 50}}, "tracks[0].speed"},
		{"speed above domain", []TrackInput{{Source: "a.wav", Speed: 2.51, Volume: 50}}, "tracks[0].speed"},
		{"volume below range", []TrackInput{{Source: "a.wav", Speed: 1, Volume: -1}}, "tracks[0].volume"},
		{"volume above range", []TrackInput{{Source: "a.wav", Speed: 1, Volume: 101}}, "tracks[0].volume"},
		{
			"negative start offset",
			[]TrackInput{validInput("a.wav", 1000), {Source: "b.wav", Speed: 1, Volume: 50, StartOffsetMs: fptr(-1)}},
			"tracks[1].startOffset",
		},
		{
			"non-positive clip duration",
			[]TrackInput{{Source: "a.wav", Speed: 1, Volume: 50, ClipDurationMs: fptr(0)}},
			"tracks[0].duration",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTracks(tc.tracks)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.wantField {
				t.Fatalf("expected field %q, got %q (%v)", tc.wantField, verr.Field, verr)
			}
		})
	}

	if err := ValidateTracks([]TrackInput{validInput("a.wav", 1000)}); err != nil {
		t.Fatalf("valid track list rejected: %v", err)
	}
}

func TestValidateOutputTarget(t *testing.T) {
	t.Parallel()

	bad := []string{"", "   ", "../../etc/passwd", "my mix.wav", "mix(1).wav", "loop;rm.wav"}
	for _, target := range bad {
		if err := ValidateOutputTarget(target); err == nil {
			t.Errorf("expected rejection for %q", target)
		}
	}

	good := []string{"loop_01-final.wav", "mix.m4a", "exports/session-3/loop.wav"}
	for _, target := range good {
		if err := ValidateOutputTarget(target); err != nil {
			t.Errorf("expected %q to pass, got %v", target, err)
		}
	}
}

func TestBuildPlan(t *testing.T) {
	t.Parallel()

	tracks := []TrackInput{
		{Source: "drums.wav", Speed: 1.0, Volume: 100, NaturalMs: 10000},
		{Source: "bass.wav", Speed: 2.0, Volume: 50, NaturalMs: 4000},
	}
	plan, err := BuildPlan(tracks, "mix.wav", Options{LoopCount: 3, FadeoutMs: 2000})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if plan.RenderMasterMs != 10000 {
		t.Fatalf("render master = %f, want longest natural duration 10000", plan.RenderMasterMs)
	}
	if plan.TotalRenderMs != 32000 {
		t.Fatalf("total render = %f, want 10000*3+2000 = 32000", plan.TotalRenderMs)
	}
	if plan.SampleRate != DefaultSampleRate {
		t.Fatalf("sample rate = %d, want default %d", plan.SampleRate, DefaultSampleRate)
	}

	bass := plan.Tracks[1]
	if bass.Speed.Rate != 2.0 {
		t.Fatalf("bass rate = %f, want 2.0", bass.Speed.Rate)
	}
	if len(bass.Speed.Stages) != 1 || bass.Speed.Stages[0] != 2.0 {
		t.Fatalf("bass stages = %v, want [2.0]", bass.Speed.Stages)
	}
	if got, want := bass.Gain, VolumeGain(50); math.Abs(got-want) > 1e-12 {
		t.Fatalf("bass gain = %f, want %f", got, want)
	}
	for i, pt := range plan.Tracks {
		if !pt.LoopEnabled {
			t.Fatalf("track %d not scheduled to loop the full span", i)
		}
	}

	if !plan.Fade.Enabled || plan.Fade.StartMs != 30000 || plan.Fade.DurationMs != 2000 {
		t.Fatalf("unexpected fade spec %+v", plan.Fade)
	}
}

func TestBuildPlanNormalizesOptions(t *testing.T) {
	t.Parallel()

	plan, err := BuildPlan([]TrackInput{validInput("a.wav", 8000)}, "out.wav",
		Options{LoopCount: 0, FadeoutMs: -100})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if plan.LoopCount != 1 {
		t.Fatalf("loop count = %d, want floor of 1", plan.LoopCount)
	}
	if plan.TotalRenderMs != 8000 {
		t.Fatalf("total render = %f, want 8000 with fadeout dropped", plan.TotalRenderMs)
	}
	if plan.Fade.Enabled {
		t.Fatal("no fade ramp should be scheduled for zero fadeout")
	}
}

func TestBuildPlanTrimmedDurations(t *testing.T) {
	t.Parallel()

	tracks := []TrackInput{
		// Natural 10s but trimmed to a 2.5s window.
		{Source: "a.wav", Speed: 1, Volume: 100, NaturalMs: 10000, StartOffsetMs: fptr(1000), ClipDurationMs: fptr(2500)},
		// Offset-only trim leaves the tail: 10s - 6s = 4s.
		{Source: "b.wav", Speed: 1, Volume: 100, NaturalMs: 10000, StartOffsetMs: fptr(6000)},
	}
	plan, err := BuildPlan(tracks, "out.wav", Options{})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if plan.Tracks[0].SourceMs != 2500 {
		t.Fatalf("trimmed source length = %f, want 2500", plan.Tracks[0].SourceMs)
	}
	if plan.Tracks[1].SourceMs != 4000 {
		t.Fatalf("offset source length = %f, want 4000", plan.Tracks[1].SourceMs)
	}
	if plan.RenderMasterMs != 4000 {
		t.Fatalf("render master = %f, want 4000", plan.RenderMasterMs)
	}
}

func TestBuildPlanWithoutDurations(t *testing.T) {
	t.Parallel()

	_, err := BuildPlan([]TrackInput{validInput("a.wav", 0)}, "out.wav", Options{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for missing durations, got %v", err)
	}
	if !strings.Contains(verr.Reason, "duration") {
		t.Fatalf("unexpected reason %q", verr.Reason)
	}
}

func TestBuildPlanLengthFormula(t *testing.T) {
	t.Parallel()

	for _, loopCount := range []int{1, 2, 4, 8, 20} {
		for _, fadeout := range []float64{0, 1000, 2000, 3500} {
			plan, err := BuildPlan([]TrackInput{validInput("a.wav", 5500)}, "out.wav",
				Options{LoopCount: loopCount, FadeoutMs: fadeout})
			if err != nil {
				t.Fatalf("BuildPlan(%d, %f) failed: %v", loopCount, fadeout, err)
			}
			want := 5500*float64(loopCount) + fadeout
			if plan.TotalRenderMs != want {
				t.Fatalf("total render for loops=%d fade=%f: got %f, want %f",
					loopCount, fadeout, plan.TotalRenderMs, want)
			}
		}
	}
}

func TestFadeGainAt(t *testing.T) {
	t.Parallel()

	fade := FadeSpec{Enabled: true, StartMs: 10000, DurationMs: 2000}
	tests := []struct {
		ms   float64
		want float64
	}{
		{0, 1},
		{10000, 1},
		{11000, 0.5},
		{12000, 0},
		{15000, 0},
	}
	for _, tc := range tests {
		if got := fade.GainAt(tc.ms); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("GainAt(%f) = %f, want %f", tc.ms, got, tc.want)
		}
	}

	off := FadeSpec{}
	if got := off.GainAt(99999); got != 1 {
		t.Errorf("disabled fade should hold unity gain, got %f", got)
	}
}

func TestPlanTotalFrames(t *testing.T) {
	t.Parallel()

	plan := &Plan{TotalRenderMs: 1000, SampleRate: 44100}
	if got := plan.TotalFrames(); got != 44100 {
		t.Fatalf("TotalFrames = %d, want 44100", got)
	}

	plan = &Plan{TotalRenderMs: 1000.4, SampleRate: 44100}
	if got := plan.TotalFrames(); got != 44118 {
		t.Fatalf("TotalFrames = %d, want rounded 44118", got)
	}
}

package mix

import (
	"strings"
	"testing"
)

func pipelinePlan(t *testing.T, tracks []TrackInput, target string, opts Options) *Plan {
	t.Helper()
	plan, err := BuildPlan(tracks, target, opts)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	return plan
}

func TestTrackFilterChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		idx   int
		track PlanTrack
		want  string
	}{
		{
			name:  "plain track is gain only",
			idx:   0,
			track: PlanTrack{Speed: SpeedSpec{Rate: 1}, Gain: 1, LoopEnabled: true},
			want:  "[0:a]volume=1.000000[t0]",
		},
		{
			name:  "chained atempo stages before the gain",
			idx:   1,
			track: PlanTrack{Speed: SpeedSpec{Rate: 2.5, Stages: []float64{2.0, 1.25}}, Gain: 0.5, LoopEnabled: true},
			want:  "[1:a]atempo=2.00,atempo=1.25,volume=0.500000[t1]",
		},
		{
			name: "trimmed track loops in the filter graph",
			idx:  0,
			track: PlanTrack{
				Speed: SpeedSpec{Rate: 1}, Gain: 1, LoopEnabled: true,
				StartOffsetMs: 1000, ClipDurationMs: 2500,
			},
			want: "[0:a]atrim=start=1.000:duration=2.500,asetpts=PTS-STARTPTS,aloop=loop=-1:size=2147483647,volume=1.000000[t0]",
		},
		{
			name: "offset-only trim keeps the tail",
			idx:  0,
			track: PlanTrack{
				Speed: SpeedSpec{Rate: 1}, Gain: 1, LoopEnabled: true,
				StartOffsetMs: 500,
			},
			want: "[0:a]atrim=start=0.500,asetpts=PTS-STARTPTS,aloop=loop=-1:size=2147483647,volume=1.000000[t0]",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := trackFilterChain(tc.idx, tc.track); got != tc.want {
				t.Fatalf("chain mismatch:\n got %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestBuildFilterGraph(t *testing.T) {
	t.Parallel()

	tracks := []TrackInput{
		{Source: "drums.wav", Speed: 1, Volume: 100, NaturalMs: 10000},
		{Source: "bass.wav", Speed: 1, Volume: 100, NaturalMs: 4000},
	}

	t.Run("combine keeps user gains", func(t *testing.T) {
		plan := pipelinePlan(t, tracks, "mix.wav", Options{LoopCount: 3, FadeoutMs: 2000})
		graph := buildFilterGraph(plan)
		if !strings.Contains(graph, "[t0][t1]amix=inputs=2:duration=longest:normalize=0") {
			t.Fatalf("combine stage missing or normalizing: %s", graph)
		}
		if !strings.Contains(graph, ",afade=t=out:st=30.000:d=2.000[mix]") {
			t.Fatalf("fadeout must sit on the combined bus: %s", graph)
		}
	})

	t.Run("no fade ramp without fadeout", func(t *testing.T) {
		plan := pipelinePlan(t, tracks, "mix.wav", Options{LoopCount: 1})
		graph := buildFilterGraph(plan)
		if strings.Contains(graph, "afade") {
			t.Fatalf("unexpected fade stage: %s", graph)
		}
		if !strings.HasSuffix(graph, "[mix]") {
			t.Fatalf("graph must end at the [mix] label: %s", graph)
		}
	})
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	r := NewPipelineRenderer("ffmpeg", "ffprobe", "192k")

	t.Run("untrimmed inputs loop at the demuxer", func(t *testing.T) {
		plan := pipelinePlan(t, []TrackInput{
			{Source: "drums.wav", Speed: 1, Volume: 100, NaturalMs: 10000},
		}, "exports/mix.m4a", Options{LoopCount: 3, FadeoutMs: 2000})

		args := r.buildArgs(plan)
		joined := strings.Join(args, " ")

		if !strings.HasPrefix(joined, "-y -threads 0 -progress pipe:1") {
			t.Fatalf("unexpected leading flags: %s", joined)
		}
		if !strings.Contains(joined, "-stream_loop -1 -i drums.wav") {
			t.Fatalf("demuxer loop missing: %s", joined)
		}
		if !strings.Contains(joined, "-t 32.000") {
			t.Fatalf("render length flag missing: %s", joined)
		}
		if !strings.Contains(joined, "-c:a aac -b:a 192k -ar 44100 -ac 2") {
			t.Fatalf("fixed encode flags missing: %s", joined)
		}
		if args[len(args)-1] != "exports/mix.m4a" {
			t.Fatalf("output target must be the final element, got %q", args[len(args)-1])
		}
	})

	t.Run("trimmed inputs do not stream_loop", func(t *testing.T) {
		plan := pipelinePlan(t, []TrackInput{
			{Source: "cut.wav", Speed: 1, Volume: 100, NaturalMs: 10000, StartOffsetMs: fptr(1000)},
		}, "mix.wav", Options{})

		args := r.buildArgs(plan)
		joined := strings.Join(args, " ")
		if strings.Contains(joined, "-stream_loop") {
			t.Fatalf("trimmed input must loop in the filter graph, not the demuxer: %s", joined)
		}
		if !strings.Contains(joined, "aloop=loop=-1") {
			t.Fatalf("filter-graph loop missing for trimmed input: %s", joined)
		}
	})
}

func TestTargetFormat(t *testing.T) {
	t.Parallel()

	plan := &Plan{Target: "out/mix.m4a", Format: "aac"}
	if got := targetFormat(plan); got != "m4a" {
		t.Fatalf("targetFormat = %q, want extension m4a", got)
	}

	plan = &Plan{Target: "rawmix", Format: "aac"}
	if got := targetFormat(plan); got != "aac" {
		t.Fatalf("targetFormat = %q, want fallback aac", got)
	}
}

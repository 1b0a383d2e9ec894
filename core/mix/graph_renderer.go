package mix

import (
	"context"
	"sync"

	"Bt1QLooper/core/audio"
	"Bt1QLooper/logger"
)

// chunkFrames is the bus granularity: cancellation and progress are
// observed between chunks.
const chunkFrames = 8192

// GraphRenderer is the in-process embodiment. Every track is decoded into
// memory and wrapped in a playback node running at the track's speed; the
// nodes accumulate into a shared float32 stereo bus with their gains, the
// bus gets the single fadeout ramp, and the result is encoded as 16-bit
// WAV held in memory.
type GraphRenderer struct{}

// NewGraphRenderer builds the in-process renderer. It has no external
// dependencies and needs no configuration.
func NewGraphRenderer() *GraphRenderer { return &GraphRenderer{} }

func (r *GraphRenderer) Name() string { return "graph" }

// Prepare is a no-op: decoding happens in-process.
func (r *GraphRenderer) Prepare(ctx context.Context) error { return nil }

// Render decodes all sources, mixes them chunk by chunk onto the bus and
// encodes the final WAV. The render length comes from the plan, never from
// the decoded material, so both embodiments agree on output duration.
func (r *GraphRenderer) Render(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
	clips, err := r.decodeAll(ctx, plan)
	if err != nil {
		return nil, err
	}

	nodes := make([]*audio.PlaybackNode, len(plan.Tracks))
	gains := make([]float32, len(plan.Tracks))
	for i, t := range plan.Tracks {
		node := audio.NewPlaybackNode(clips[i], t.Speed.Rate, plan.SampleRate, t.LoopEnabled)
		if t.StartOffsetMs > 0 || t.ClipDurationMs > 0 {
			node.SetRegion(t.StartOffsetMs, t.ClipDurationMs)
		}
		nodes[i] = node
		gains[i] = float32(t.Gain)
	}

	totalFrames := plan.TotalFrames()
	logger.Debug("构建混音图",
		logger.Int("nodes", len(nodes)),
		logger.Int("totalFrames", totalFrames),
		logger.Int("sampleRate", plan.SampleRate))

	bus := make([]float32, totalFrames*2)
	for off := 0; off < totalFrames; off += chunkFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := off + chunkFrames
		if end > totalFrames {
			end = totalFrames
		}
		window := bus[off*2 : end*2]
		for i, node := range nodes {
			node.MixInto(window, gains[i])
		}

		if onProgress != nil && plan.TotalRenderMs > 0 {
			elapsedMs := float64(end) / float64(plan.SampleRate) * 1000.0
			ratio := elapsedMs / plan.TotalRenderMs
			if ratio > 1 {
				ratio = 1
			}
			onProgress(Progress{Ratio: ratio, ElapsedRenderMs: elapsedMs, TotalRenderMs: plan.TotalRenderMs})
		}
	}

	if plan.Fade.Enabled {
		applyFade(bus, plan)
	}

	data := audio.EncodeWAV16(bus, plan.SampleRate, 2)
	return &Artifact{
		Data:       data,
		Format:     "wav",
		DurationMs: plan.TotalRenderMs,
		SampleRate: plan.SampleRate,
		Size:       int64(len(data)),
	}, nil
}

// decodeAll loads every source into memory concurrently. When several
// sources fail, the one earliest in the track list wins.
func (r *GraphRenderer) decodeAll(ctx context.Context, plan *Plan) ([]*audio.Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clips := make([]*audio.Clip, len(plan.Tracks))
	errs := make([]error, len(plan.Tracks))
	var wg sync.WaitGroup
	for i, t := range plan.Tracks {
		wg.Add(1)
		go func(i int, source string) {
			defer wg.Done()
			clip, err := audio.ReadClip(source)
			if err != nil {
				errs[i] = err
				return
			}
			if clip.Frames() == 0 {
				errs[i] = audio.ErrEmptyClip
				return
			}
			clips[i] = clip
		}(i, t.Source)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, &DecodeError{Index: i, Source: plan.Tracks[i].Source, Err: err}
		}
	}
	return clips, nil
}

// applyFade multiplies the bus tail by the linear fadeout envelope. The
// fade sits after the per-track gain stage, on the combined signal.
func applyFade(bus []float32, plan *Plan) {
	msPerFrame := 1000.0 / float64(plan.SampleRate)
	startFrame := int(plan.Fade.StartMs / msPerFrame)
	if startFrame < 0 {
		startFrame = 0
	}
	for f := startFrame; f < len(bus)/2; f++ {
		g := float32(plan.Fade.GainAt(float64(f) * msPerFrame))
		bus[2*f] *= g
		bus[2*f+1] *= g
	}
}

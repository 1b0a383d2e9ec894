package mix

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"Bt1QLooper/core/audio"
	"Bt1QLooper/logger"
)

// PipelineRenderer is the offline ffmpeg embodiment: every track becomes an
// input with an atempo/volume filter chain, the chains meet in one amix, and
// ffmpeg encodes the result straight to the output target. Loudness is never
// normalized automatically so the user-chosen per-track gains survive the
// sum untouched.
type PipelineRenderer struct {
	ffmpegPath  string
	ffprobePath string
	bitrate     string

	prepMu   sync.Mutex
	prepared bool
}

// NewPipelineRenderer builds the ffmpeg-backed renderer. Empty bitrate
// falls back to 192k.
func NewPipelineRenderer(ffmpegPath, ffprobePath, bitrate string) *PipelineRenderer {
	if bitrate == "" {
		bitrate = "192k"
	}
	return &PipelineRenderer{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		bitrate:     bitrate,
	}
}

func (r *PipelineRenderer) Name() string { return "pipeline" }

// Prepare verifies the ffmpeg binary once. Further calls after a success
// return immediately.
func (r *PipelineRenderer) Prepare(ctx context.Context) error {
	r.prepMu.Lock()
	defer r.prepMu.Unlock()
	if r.prepared {
		return nil
	}

	out, err := exec.CommandContext(ctx, r.ffmpegPath, "-version").Output()
	if err != nil {
		return fmt.Errorf("ffmpeg not available at %s: %w", r.ffmpegPath, err)
	}
	if line, _, ok := strings.Cut(string(out), "\n"); ok {
		logger.Info("ffmpeg就绪", logger.String("version", line))
	}

	r.prepared = true
	return nil
}

// Render probes all sources, assembles the filter graph and drives one
// ffmpeg process to completion, reporting progress parsed from its
// -progress output.
func (r *PipelineRenderer) Render(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
	if err := r.Prepare(ctx); err != nil {
		return nil, &RenderError{Stage: "prepare", Err: err}
	}
	if err := r.probeSources(ctx, plan); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(plan.Target); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &RenderError{Stage: "output", Err: err}
		}
	}

	args := r.buildArgs(plan)
	logger.Debug("执行FFmpeg混音命令",
		logger.String("ffmpeg", r.ffmpegPath),
		logger.String("args", strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &RenderError{Stage: "pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &RenderError{Stage: "start", Err: err}
	}

	// 解析 -progress pipe:1 输出（out_time_ms 单位为微秒）
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "out_time_ms=") {
				continue
			}
			var us int64
			if _, err := fmt.Sscanf(line, "out_time_ms=%d", &us); err != nil {
				continue
			}
			elapsedMs := float64(us) / 1000.0
			ratio := elapsedMs / plan.TotalRenderMs
			if ratio > 1 {
				ratio = 1
			}
			if onProgress != nil {
				onProgress(Progress{Ratio: ratio, ElapsedRenderMs: elapsedMs, TotalRenderMs: plan.TotalRenderMs})
			}
		}
	}()

	if err := cmd.Wait(); err != nil {
		_ = os.Remove(plan.Target)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RenderError{
			Stage: "ffmpeg",
			Err:   fmt.Errorf("ffmpeg execution failed: %w\nFFmpeg Error: %s", err, stderr.String()),
		}
	}

	info, err := os.Stat(plan.Target)
	if err != nil {
		return nil, &RenderError{Stage: "output", Err: err}
	}

	return &Artifact{
		Path:       plan.Target,
		Format:     targetFormat(plan),
		DurationMs: plan.TotalRenderMs,
		SampleRate: plan.SampleRate,
		Size:       info.Size(),
	}, nil
}

// probeSources checks every input with ffprobe before any render work.
// Probes run concurrently; the first failing source (by list position)
// aborts the mix.
func (r *PipelineRenderer) probeSources(ctx context.Context, plan *Plan) error {
	errs := make([]error, len(plan.Tracks))
	var wg sync.WaitGroup
	for i, t := range plan.Tracks {
		wg.Add(1)
		go func(i int, source string) {
			defer wg.Done()
			if _, err := audio.ProbeDurationMs(ctx, r.ffprobePath, source); err != nil {
				errs[i] = err
			}
		}(i, t.Source)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return &DecodeError{Index: i, Source: plan.Tracks[i].Source, Err: err}
		}
	}
	return nil
}

// buildArgs assembles the full ffmpeg invocation: inputs first, then the
// filter graph, output mapping, encode flags, and the output target as the
// final element.
func (r *PipelineRenderer) buildArgs(plan *Plan) []string {
	args := []string{"-y", "-threads", "0", "-progress", "pipe:1"}

	for _, t := range plan.Tracks {
		// Untrimmed clips loop at the demuxer; trimmed clips loop in the
		// filter graph instead (see trackFilterChain).
		if t.LoopEnabled && t.StartOffsetMs == 0 && t.ClipDurationMs == 0 {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", t.Source)
	}

	args = append(args, "-filter_complex", buildFilterGraph(plan))
	args = append(args, "-map", "[mix]")
	args = append(args, "-t", fmt.Sprintf("%.3f", plan.TotalRenderMs/1000.0))
	args = append(args,
		"-c:a", "aac",
		"-b:a", r.bitrate,
		"-ar", strconv.Itoa(plan.SampleRate),
		"-ac", "2",
	)
	args = append(args, plan.Target)
	return args
}

// buildFilterGraph renders the per-track chains and the final combine step
// as one filter_complex expression.
func buildFilterGraph(plan *Plan) string {
	parts := make([]string, 0, len(plan.Tracks)+1)
	for i, t := range plan.Tracks {
		parts = append(parts, trackFilterChain(i, t))
	}

	var combine strings.Builder
	for i := range plan.Tracks {
		fmt.Fprintf(&combine, "[t%d]", i)
	}
	fmt.Fprintf(&combine, "amix=inputs=%d:duration=longest:normalize=0", len(plan.Tracks))
	if plan.Fade.Enabled {
		// One fadeout on the combined bus, after the per-track gains.
		fmt.Fprintf(&combine, ",afade=t=out:st=%.3f:d=%.3f",
			plan.Fade.StartMs/1000.0, plan.Fade.DurationMs/1000.0)
	}
	combine.WriteString("[mix]")

	parts = append(parts, combine.String())
	return strings.Join(parts, ";")
}

// trackFilterChain builds one track's filter stages: optional trim and
// filter-domain loop, the atempo stage chain, then the volume gain.
func trackFilterChain(idx int, t PlanTrack) string {
	var stages []string

	if t.StartOffsetMs > 0 || t.ClipDurationMs > 0 {
		trim := fmt.Sprintf("atrim=start=%.3f", t.StartOffsetMs/1000.0)
		if t.ClipDurationMs > 0 {
			trim += fmt.Sprintf(":duration=%.3f", t.ClipDurationMs/1000.0)
		}
		stages = append(stages, trim, "asetpts=PTS-STARTPTS")
		if t.LoopEnabled {
			stages = append(stages, "aloop=loop=-1:size=2147483647")
		}
	}

	for _, s := range t.Speed.Stages {
		stages = append(stages, fmt.Sprintf("atempo=%.2f", s))
	}
	stages = append(stages, fmt.Sprintf("volume=%.6f", t.Gain))

	return fmt.Sprintf("[%d:a]%s[t%d]", idx, strings.Join(stages, ","), idx)
}

func targetFormat(plan *Plan) string {
	if ext := strings.TrimPrefix(filepath.Ext(plan.Target), "."); ext != "" {
		return ext
	}
	return plan.Format
}

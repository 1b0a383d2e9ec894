package mix

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"Bt1QLooper/logger"
)

// Progress is one progress report during a render. Ratio is in [0, 1] and
// never decreases within a mix.
type Progress struct {
	Ratio           float64
	ElapsedRenderMs float64
	TotalRenderMs   float64
}

// ProgressFunc receives progress reports. It is called from the render
// goroutine and must return quickly.
type ProgressFunc func(Progress)

// Artifact is a finished mixdown. The pipeline renderer writes a file and
// sets Path; the graph renderer renders in memory and sets Data.
type Artifact struct {
	Path       string
	Data       []byte
	Format     string
	DurationMs float64
	SampleRate int
	Size       int64
}

// RenderStrategy is the capability the orchestrator needs from a rendering
// backend. Render observes ctx cancellation between its discrete stages
// where the underlying primitive allows; a backend that cannot interrupt
// mid-render simply runs to completion and the orchestrator discards the
// result.
type RenderStrategy interface {
	Name() string
	// Prepare warms up backend resources. Idempotent: repeated calls
	// after a success are no-ops.
	Prepare(ctx context.Context) error
	Render(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error)
}

// Mixer drives one injected rendering strategy through the mix lifecycle:
// Idle -> Mixing -> {Complete, Failed, Cancelled} -> Idle. One mix at a
// time per instance; a second Mix while busy fails immediately.
type Mixer struct {
	strategy RenderStrategy

	mixing    atomic.Bool
	cancelled atomic.Bool

	mu         sync.Mutex // guards cancelFn and progressCb
	cancelFn   context.CancelFunc
	progressCb ProgressFunc
}

// NewMixer builds a mixer around the given strategy. The strategy is chosen
// explicitly by the caller; there is no implicit backend selection.
func NewMixer(strategy RenderStrategy) *Mixer {
	return &Mixer{strategy: strategy}
}

// Strategy returns the injected rendering backend.
func (m *Mixer) Strategy() RenderStrategy { return m.strategy }

// Prepare warms up the backend. Safe to call repeatedly.
func (m *Mixer) Prepare(ctx context.Context) error {
	return m.strategy.Prepare(ctx)
}

// SetProgressCallback installs the progress receiver for subsequent mixes.
func (m *Mixer) SetProgressCallback(cb ProgressFunc) {
	m.mu.Lock()
	m.progressCb = cb
	m.mu.Unlock()
}

// IsMixing reports whether a mix is in flight.
func (m *Mixer) IsMixing() bool {
	return m.mixing.Load()
}

// Cancel requests cooperative cancellation of the in-flight mix. The mix
// rejects with ErrMixCancelled and no artifact is delivered. Calling Cancel
// while idle does nothing.
func (m *Mixer) Cancel() {
	m.mu.Lock()
	cancel := m.cancelFn
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	m.cancelled.Store(true)
	cancel()
}

// Mix validates the inputs, builds the plan and renders it through the
// configured strategy. Validation failures surface before any decode or
// render work and leave the mixer Idle.
func (m *Mixer) Mix(ctx context.Context, tracks []TrackInput, target string, opts Options) (*Artifact, error) {
	plan, err := BuildPlan(tracks, target, opts)
	if err != nil {
		return nil, err
	}

	if !m.mixing.CompareAndSwap(false, true) {
		return nil, ErrAlreadyMixing
	}
	m.cancelled.Store(false)

	renderCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancelFn = cancel
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		m.cancelFn = nil
		m.mu.Unlock()
		m.mixing.Store(false)
	}()

	// Progress plumbing: ratios are clamped and kept monotonic, and the
	// stream goes silent the moment the mix resolves.
	var (
		resolved   atomic.Bool
		progressMu sync.Mutex
		lastRatio  float64
	)
	report := func(p Progress) {
		if resolved.Load() {
			return
		}
		progressMu.Lock()
		if p.Ratio > 1 {
			p.Ratio = 1
		}
		if p.Ratio < lastRatio {
			progressMu.Unlock()
			return
		}
		lastRatio = p.Ratio
		progressMu.Unlock()

		m.mu.Lock()
		cb := m.progressCb
		m.mu.Unlock()
		if cb != nil {
			cb(p)
		}
	}

	started := time.Now()
	logger.Info("开始混音渲染",
		logger.String("renderer", m.strategy.Name()),
		logger.Int("tracks", len(plan.Tracks)),
		logger.Int("loopCount", plan.LoopCount),
		logger.Float64("totalRenderMs", plan.TotalRenderMs))

	artifact, renderErr := m.strategy.Render(renderCtx, plan, report)

	// Cancellation wins over whatever the backend returned: any completed
	// result is discarded and the caller sees the cancellation error.
	if m.cancelled.Load() {
		resolved.Store(true)
		discardArtifact(artifact)
		logger.Info("混音已取消", logger.String("renderer", m.strategy.Name()))
		return nil, ErrMixCancelled
	}

	if renderErr != nil {
		resolved.Store(true)
		discardArtifact(artifact)
		if errors.Is(renderErr, context.Canceled) || errors.Is(renderErr, context.DeadlineExceeded) {
			// The surrounding context died without an explicit Cancel call.
			logger.Info("混音已取消", logger.String("renderer", m.strategy.Name()))
			return nil, ErrMixCancelled
		}
		logger.Error("混音失败",
			logger.String("renderer", m.strategy.Name()),
			logger.ErrorField(renderErr))
		return nil, renderErr
	}

	report(Progress{Ratio: 1, ElapsedRenderMs: plan.TotalRenderMs, TotalRenderMs: plan.TotalRenderMs})
	resolved.Store(true)

	logger.Info("混音完成",
		logger.String("renderer", m.strategy.Name()),
		logger.Float64("durationMs", artifact.DurationMs),
		logger.Int64("size", artifact.Size),
		logger.Duration("totalTime", time.Since(started)))

	return artifact, nil
}

// discardArtifact removes whatever a backend produced for a mix that did
// not resolve successfully. Callers never see partial output.
func discardArtifact(a *Artifact) {
	if a == nil {
		return
	}
	if a.Path != "" {
		_ = os.Remove(a.Path)
	}
	a.Data = nil
}

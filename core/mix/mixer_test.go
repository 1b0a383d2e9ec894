package mix

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// stubStrategy scripts backend behavior so the orchestrator's state
// machine can be exercised without real rendering.
type stubStrategy struct {
	render func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error)

	mu    sync.Mutex
	calls int
}

func (s *stubStrategy) Name() string                      { return "stub" }
func (s *stubStrategy) Prepare(ctx context.Context) error { return nil }

func (s *stubStrategy) Render(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.render(ctx, plan, onProgress)
}

func (s *stubStrategy) renderCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// progressLog collects callbacks across goroutines.
type progressLog struct {
	mu     sync.Mutex
	ratios []float64
}

func (l *progressLog) record(p Progress) {
	l.mu.Lock()
	l.ratios = append(l.ratios, p.Ratio)
	l.mu.Unlock()
}

func (l *progressLog) snapshot() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]float64(nil), l.ratios...)
}

func testTracks() []TrackInput {
	return []TrackInput{{Source: "a.wav", Speed: 1, Volume: 100, NaturalMs: 1000}}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestMixSuccess(t *testing.T) {
	t.Parallel()

	stub := &stubStrategy{
		render: func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
			onProgress(Progress{Ratio: 0.5, ElapsedRenderMs: plan.TotalRenderMs / 2, TotalRenderMs: plan.TotalRenderMs})
			return &Artifact{Data: []byte{1, 2, 3}, Format: "wav", DurationMs: plan.TotalRenderMs}, nil
		},
	}
	m := NewMixer(stub)

	log := &progressLog{}
	m.SetProgressCallback(log.record)

	artifact, err := m.Mix(context.Background(), testTracks(), "out.wav", Options{})
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}
	if artifact == nil || len(artifact.Data) == 0 {
		t.Fatal("expected in-memory artifact")
	}
	if m.IsMixing() {
		t.Fatal("mixer should be idle after completion")
	}

	ratios := log.snapshot()
	if len(ratios) == 0 || ratios[len(ratios)-1] != 1.0 {
		t.Fatalf("expected final progress 1.0, got %v", ratios)
	}
	for i := 1; i < len(ratios); i++ {
		if ratios[i] < ratios[i-1] {
			t.Fatalf("progress regressed: %v", ratios)
		}
	}
}

func TestMixRejectsWhileMixing(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	stub := &stubStrategy{
		render: func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
			close(started)
			<-release
			return &Artifact{Data: []byte{1}}, nil
		},
	}
	m := NewMixer(stub)

	var firstErr error
	done := make(chan struct{})
	go func() {
		_, firstErr = m.Mix(context.Background(), testTracks(), "out.wav", Options{})
		close(done)
	}()

	<-started
	if _, err := m.Mix(context.Background(), testTracks(), "other.wav", Options{}); !errors.Is(err, ErrAlreadyMixing) {
		t.Fatalf("expected ErrAlreadyMixing, got %v", err)
	}

	close(release)
	<-done
	if firstErr != nil {
		t.Fatalf("in-flight mix was disturbed: %v", firstErr)
	}
}

func TestMixValidationLeavesIdle(t *testing.T) {
	t.Parallel()

	stub := &stubStrategy{
		render: func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
			return &Artifact{Data: []byte{1}}, nil
		},
	}
	m := NewMixer(stub)

	_, err := m.Mix(context.Background(), nil, "out.wav", Options{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for empty list, got %v", err)
	}
	if stub.renderCalls() != 0 {
		t.Fatal("validation failure must precede any render work")
	}
	if m.IsMixing() {
		t.Fatal("mixer must stay idle after validation failure")
	}

	if _, err := m.Mix(context.Background(), testTracks(), "out.wav", Options{}); err != nil {
		t.Fatalf("mixer unusable after validation failure: %v", err)
	}
}

func TestCancelResolvesWithDistinctError(t *testing.T) {
	t.Parallel()

	stub := &stubStrategy{
		render: func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	m := NewMixer(stub)

	var mixErr error
	done := make(chan struct{})
	go func() {
		_, mixErr = m.Mix(context.Background(), testTracks(), "out.wav", Options{})
		close(done)
	}()

	waitUntil(t, m.IsMixing)
	m.Cancel()
	<-done

	if !errors.Is(mixErr, ErrMixCancelled) {
		t.Fatalf("expected ErrMixCancelled, got %v", mixErr)
	}
	if m.IsMixing() {
		t.Fatal("mixer should return to idle after cancellation")
	}

	// Idle again: a fresh mix starts immediately.
	stub.render = func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
		return &Artifact{Data: []byte{1}}, nil
	}
	if _, err := m.Mix(context.Background(), testTracks(), "out.wav", Options{}); err != nil {
		t.Fatalf("mix after cancel failed: %v", err)
	}
}

func TestCancelDiscardsCompletedResult(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "finished.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}

	// A backend that cannot be interrupted: it ignores ctx and hands back
	// a fully rendered file after cancellation was requested.
	started := make(chan struct{})
	release := make(chan struct{})
	stub := &stubStrategy{
		render: func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
			close(started)
			<-release
			return &Artifact{Path: path, Format: "wav"}, nil
		},
	}
	m := NewMixer(stub)

	var mixErr error
	done := make(chan struct{})
	go func() {
		_, mixErr = m.Mix(context.Background(), testTracks(), "out.wav", Options{})
		close(done)
	}()

	<-started
	m.Cancel()
	close(release)
	<-done

	if !errors.Is(mixErr, ErrMixCancelled) {
		t.Fatalf("expected ErrMixCancelled, got %v", mixErr)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("cancelled mix must not leave its artifact behind")
	}
}

func TestParentContextCancellation(t *testing.T) {
	t.Parallel()

	stub := &stubStrategy{
		render: func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	m := NewMixer(stub)

	ctx, cancel := context.WithCancel(context.Background())
	var mixErr error
	done := make(chan struct{})
	go func() {
		_, mixErr = m.Mix(ctx, testTracks(), "out.wav", Options{})
		close(done)
	}()

	waitUntil(t, m.IsMixing)
	cancel()
	<-done

	if !errors.Is(mixErr, ErrMixCancelled) {
		t.Fatalf("expected ErrMixCancelled when the caller's context dies, got %v", mixErr)
	}
}

func TestRenderFailureSurfaces(t *testing.T) {
	t.Parallel()

	cause := &RenderError{Stage: "encode", Err: errors.New("boom")}
	stub := &stubStrategy{
		render: func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
			onProgress(Progress{Ratio: 0.3})
			return nil, cause
		},
	}
	m := NewMixer(stub)

	log := &progressLog{}
	m.SetProgressCallback(log.record)

	_, err := m.Mix(context.Background(), testTracks(), "out.wav", Options{})
	var rerr *RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RenderError, got %v", err)
	}
	if errors.Is(err, ErrMixCancelled) {
		t.Fatal("failure must not masquerade as cancellation")
	}

	for _, r := range log.snapshot() {
		if r >= 1.0 {
			t.Fatalf("failed mix must never report completion, got %v", log.snapshot())
		}
	}
	if m.IsMixing() {
		t.Fatal("mixer should be idle after failure")
	}
}

func TestNoProgressAfterResolve(t *testing.T) {
	t.Parallel()

	var captured ProgressFunc
	stub := &stubStrategy{
		render: func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
			captured = onProgress
			return &Artifact{Data: []byte{1}}, nil
		},
	}
	m := NewMixer(stub)

	log := &progressLog{}
	m.SetProgressCallback(log.record)

	if _, err := m.Mix(context.Background(), testTracks(), "out.wav", Options{}); err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	before := len(log.snapshot())
	captured(Progress{Ratio: 0.5})
	captured(Progress{Ratio: 2})
	if got := len(log.snapshot()); got != before {
		t.Fatalf("callbacks delivered after resolve: %d -> %d", before, got)
	}
}

func TestProgressClampedAndMonotonic(t *testing.T) {
	t.Parallel()

	stub := &stubStrategy{
		render: func(ctx context.Context, plan *Plan, onProgress ProgressFunc) (*Artifact, error) {
			onProgress(Progress{Ratio: 0.2})
			onProgress(Progress{Ratio: 1.7}) // backend overshoot
			onProgress(Progress{Ratio: 0.5}) // backend regression
			return &Artifact{Data: []byte{1}}, nil
		},
	}
	m := NewMixer(stub)

	log := &progressLog{}
	m.SetProgressCallback(log.record)

	if _, err := m.Mix(context.Background(), testTracks(), "out.wav", Options{}); err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	ratios := log.snapshot()
	for i, r := range ratios {
		if r < 0 || r > 1 {
			t.Fatalf("ratio %f outside [0,1] at %d: %v", r, i, ratios)
		}
		if i > 0 && r < ratios[i-1] {
			t.Fatalf("regression reached the callback: %v", ratios)
		}
	}
	if ratios[len(ratios)-1] != 1.0 {
		t.Fatalf("final ratio = %v, want 1.0", ratios)
	}
}

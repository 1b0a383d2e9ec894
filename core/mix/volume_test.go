package mix

import (
	"math"
	"testing"
)

func TestVolumeGainEndpoints(t *testing.T) {
	t.Parallel()

	if got := VolumeGain(0); got != 0 {
		t.Fatalf("VolumeGain(0) = %f, want exactly 0", got)
	}
	if got := VolumeGain(100); got != 1 {
		t.Fatalf("VolumeGain(100) = %f, want exactly 1", got)
	}
	if got := VolumeGain(-5); got != 0 {
		t.Fatalf("VolumeGain(-5) = %f, want clamp to 0", got)
	}
	if got := VolumeGain(130); got != 1 {
		t.Fatalf("VolumeGain(130) = %f, want clamp to 1", got)
	}
}

func TestVolumeGainCurve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		volume int
		want   float64
	}{
		{50, 1 - math.Log(50)/math.Log(100)},
		{90, 1 - math.Log(10)/math.Log(100)}, // exactly 0.5
		{99, 1},                              // ln(1) = 0, the curve reaches unity one step early
	}
	for _, tc := range tests {
		got := VolumeGain(tc.volume)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("VolumeGain(%d) = %f, want %f", tc.volume, got, tc.want)
		}
	}
}

func TestVolumeGainStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	prev := VolumeGain(0)
	for v := 1; v <= 100; v++ {
		got := VolumeGain(v)
		if got <= prev && v < 100 {
			t.Fatalf("VolumeGain not strictly increasing at %d: %f <= %f", v, got, prev)
		}
		if got < 0 || got > 1 {
			t.Fatalf("VolumeGain(%d) = %f outside [0,1]", v, got)
		}
		prev = got
	}
}

package mix

import "math"

// VolumeGain maps a 0-100 slider value onto a 0.0-1.0 linear gain.
// The slider is linear but hearing is not, so the mapping follows a
// logarithmic curve: gain = 1 - ln(100-v)/ln(100). Values at or beyond
// the domain edges clamp to exact silence and exact unity.
func VolumeGain(volume int) float64 {
	if volume <= 0 {
		return 0
	}
	if volume >= 100 {
		return 1
	}

	gain := 1 - math.Log(float64(100-volume))/math.Log(100)

	// Guard against floating error at the curve ends.
	if gain < 0 {
		return 0
	}
	if gain > 1 {
		return 1
	}
	return gain
}

package mix

import "math"

// Speed factor domain accepted from users, and the multiplier range a
// single atempo filter instance accepts.
const (
	MinSpeed = 0.05
	MaxSpeed = 2.5

	minStageRate = 0.5
	maxStageRate = 2.0

	// speedEpsilon stops the decomposition once the remaining factor is
	// close enough to 1.0 that no further stage is audible.
	speedEpsilon = 0.01
)

// SpeedStages decomposes a speed factor into a chain of stage multipliers,
// each within [0.5, 2.0], whose product realizes the factor. The pipeline
// renderer turns the chain into stacked atempo filters; the graph renderer
// applies the factor directly and never needs this.
//
// Unity speed yields an empty chain.
func SpeedStages(speed float64) []float64 {
	if speed == 1.0 {
		return nil
	}

	var stages []float64
	remaining := speed
	for math.Abs(remaining-1.0) > speedEpsilon {
		switch {
		case remaining > maxStageRate:
			stages = append(stages, maxStageRate)
			remaining /= maxStageRate
		case remaining < minStageRate:
			stages = append(stages, minStageRate)
			remaining /= minStageRate
		default:
			stages = append(stages, math.Round(remaining*100)/100)
			return stages
		}
	}
	return stages
}

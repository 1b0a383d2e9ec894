package mix

import (
	"math"
	"testing"
)

func stageProduct(stages []float64) float64 {
	p := 1.0
	for _, s := range stages {
		p *= s
	}
	return p
}

func TestSpeedStages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		speed float64
		want  []float64
	}{
		{"unity needs no chain", 1.0, nil},
		{"near unity inside epsilon", 1.005, nil},
		{"upper domain edge", 2.5, []float64{2.0, 1.25}},
		{"lower domain edge", 0.05, []float64{0.5, 0.5, 0.5, 0.5, 0.8}},
		{"exact stage ceiling", 2.0, []float64{2.0}},
		{"exact stage floor", 0.5, []float64{0.5}},
		{"in-range single stage", 1.37, []float64{1.37}},
		{"quarter speed", 0.25, []float64{0.5, 0.5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SpeedStages(tc.speed)
			if len(got) != len(tc.want) {
				t.Fatalf("SpeedStages(%v) = %v, want %v", tc.speed, got, tc.want)
			}
			for i := range got {
				if math.Abs(got[i]-tc.want[i]) > 1e-9 {
					t.Fatalf("SpeedStages(%v)[%d] = %v, want %v", tc.speed, i, got[i], tc.want[i])
				}
			}
		})
	}
}

// The decomposition stops once the residual factor is within the builder's
// 1% epsilon, so the realized product may deviate from the request by up to
// 1/(1-0.01)-1 ≈ 1.02% relative. That bound is the tolerance used here.
const speedProductTolerance = 0.0102

func TestSpeedStagesProductAcrossDomain(t *testing.T) {
	t.Parallel()

	for i := 5; i <= 250; i++ {
		speed := float64(i) / 100.0
		stages := SpeedStages(speed)

		if speed == 1.0 {
			if len(stages) != 0 {
				t.Fatalf("SpeedStages(1.0) = %v, want empty chain", stages)
			}
			continue
		}

		for _, s := range stages {
			if s < minStageRate-1e-9 || s > maxStageRate+1e-9 {
				t.Fatalf("SpeedStages(%v) produced out-of-range stage %v in %v", speed, s, stages)
			}
		}

		product := stageProduct(stages)
		if rel := math.Abs(product/speed - 1); rel > speedProductTolerance {
			t.Fatalf("SpeedStages(%v) product %v deviates %.4f%%, beyond tolerance", speed, product, rel*100)
		}
	}
}

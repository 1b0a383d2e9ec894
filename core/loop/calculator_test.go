package loop

import (
	"math"
	"testing"

	"Bt1QLooper/model"
)

func newTrack(id int64, durationMs, speed float64) *model.Track {
	return &model.Track{ID: id, DurationMs: durationMs, Speed: speed, Volume: 100}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMasterLoopInfo(t *testing.T) {
	t.Parallel()
	c := NewCalculator()

	t.Run("empty session", func(t *testing.T) {
		info := c.MasterLoopInfo(nil)
		if info.DurationMs != 0 || info.Track != nil {
			t.Fatalf("expected zero master for empty session, got %+v", info)
		}
	})

	t.Run("first track wins", func(t *testing.T) {
		tracks := []*model.Track{newTrack(7, 10000, 1.0), newTrack(8, 99000, 1.0)}
		info := c.MasterLoopInfo(tracks)
		if info.TrackID != 7 {
			t.Fatalf("expected track 7 as master, got %d", info.TrackID)
		}
		if !almostEqual(info.DurationMs, 10000) {
			t.Fatalf("expected master duration 10000, got %f", info.DurationMs)
		}
	})

	t.Run("speed adjusts duration", func(t *testing.T) {
		tracks := []*model.Track{newTrack(1, 20000, 2.0)}
		info := c.MasterLoopInfo(tracks)
		if !almostEqual(info.DurationMs, 10000) {
			t.Fatalf("expected 20000/2.0 = 10000, got %f", info.DurationMs)
		}
	})
}

func TestTrackLoopInfo(t *testing.T) {
	t.Parallel()
	c := NewCalculator()

	tests := []struct {
		name           string
		tracks         []*model.Track
		trackID        int64
		wantLoops      int
		wantBoundaries []float64
		wantTotal      float64
	}{
		{
			name:           "short track tiles three times",
			tracks:         []*model.Track{newTrack(1, 10000, 1.0), newTrack(2, 4000, 1.0)},
			trackID:        2,
			wantLoops:      3,
			wantBoundaries: []float64{0, 4000, 8000},
			wantTotal:      10000,
		},
		{
			name:           "track longer than master plays once",
			tracks:         []*model.Track{newTrack(1, 24000, 1.0), newTrack(2, 30000, 1.0)},
			trackID:        2,
			wantLoops:      1,
			wantBoundaries: []float64{0},
			wantTotal:      24000,
		},
		{
			name:           "exact multiple has no boundary at master end",
			tracks:         []*model.Track{newTrack(1, 12000, 1.0), newTrack(2, 4000, 1.0)},
			trackID:        2,
			wantLoops:      3,
			wantBoundaries: []float64{0, 4000, 8000},
			wantTotal:      12000,
		},
		{
			name:           "sped up track tiles more often",
			tracks:         []*model.Track{newTrack(1, 10000, 1.0), newTrack(2, 10000, 2.0)},
			trackID:        2,
			wantLoops:      2,
			wantBoundaries: []float64{0, 5000},
			wantTotal:      10000,
		},
		{
			name:           "unknown id yields single pass default",
			tracks:         []*model.Track{newTrack(1, 10000, 1.0)},
			trackID:        42,
			wantLoops:      1,
			wantBoundaries: []float64{},
			wantTotal:      0,
		},
		{
			name:           "zero master duration yields default",
			tracks:         []*model.Track{newTrack(1, 0, 1.0), newTrack(2, 4000, 1.0)},
			trackID:        2,
			wantLoops:      1,
			wantBoundaries: []float64{},
			wantTotal:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := c.TrackLoopInfo(tt.trackID, tt.tracks)
			if info.LoopCount != tt.wantLoops {
				t.Errorf("loop count = %d, want %d", info.LoopCount, tt.wantLoops)
			}
			if len(info.BoundariesMs) != len(tt.wantBoundaries) {
				t.Fatalf("boundaries = %v, want %v", info.BoundariesMs, tt.wantBoundaries)
			}
			for i, b := range tt.wantBoundaries {
				if !almostEqual(info.BoundariesMs[i], b) {
					t.Errorf("boundary[%d] = %f, want %f", i, info.BoundariesMs[i], b)
				}
			}
			if !almostEqual(info.TotalDurationMs, tt.wantTotal) {
				t.Errorf("total duration = %f, want %f", info.TotalDurationMs, tt.wantTotal)
			}
		})
	}
}

func TestTrackLoopBoundariesStayInsideMaster(t *testing.T) {
	t.Parallel()
	c := NewCalculator()

	tracks := []*model.Track{newTrack(1, 10000, 1.0), newTrack(2, 3000, 1.0)}
	info := c.TrackLoopInfo(2, tracks)

	prev := -1.0
	for i, b := range info.BoundariesMs {
		if b <= prev {
			t.Errorf("boundary[%d] = %f not strictly increasing after %f", i, b, prev)
		}
		if b >= info.TotalDurationMs {
			t.Errorf("boundary[%d] = %f reaches past master duration %f", i, b, info.TotalDurationMs)
		}
		prev = b
	}
}

func TestShouldTrackLoop(t *testing.T) {
	t.Parallel()
	c := NewCalculator()

	tracks := []*model.Track{
		newTrack(1, 10000, 1.0), // master
		newTrack(2, 4000, 1.0),  // shorter, loops
		newTrack(3, 30000, 1.0), // longer, never loops
	}

	tests := []struct {
		name     string
		trackID  int64
		loopMode bool
		want     bool
	}{
		{"shorter track loops", 2, true, true},
		{"loop mode disabled", 2, false, false},
		{"master never loops against itself", 1, true, false},
		{"longer track never loops", 3, true, false},
		{"unknown track never loops", 99, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ShouldTrackLoop(tt.trackID, tt.loopMode, tracks); got != tt.want {
				t.Errorf("ShouldTrackLoop(%d, %v) = %v, want %v", tt.trackID, tt.loopMode, got, tt.want)
			}
		})
	}
}

func TestExportDurationMs(t *testing.T) {
	t.Parallel()
	c := NewCalculator()

	tracks := []*model.Track{newTrack(1, 10000, 1.0)}

	tests := []struct {
		name      string
		loopCount int
		fadeoutMs float64
		want      float64
	}{
		{"four loops with fadeout", 4, 2000, 42000},
		{"two loops with fadeout", 2, 1000, 21000},
		{"single loop no fadeout", 1, 0, 10000},
		{"zero loop count leaves only fadeout", 0, 1500, 1500},
		{"negative loop count leaves only fadeout", -3, 500, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ExportDurationMs(tt.loopCount, tt.fadeoutMs, tracks)
			if !almostEqual(got, tt.want) {
				t.Errorf("ExportDurationMs(%d, %f) = %f, want %f", tt.loopCount, tt.fadeoutMs, got, tt.want)
			}
		})
	}
}

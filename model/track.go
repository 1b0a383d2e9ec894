package model

import "time"

// Track represents one audio clip in a user's loop session.
type Track struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	Title      string    `json:"title"`
	FileName   string    `json:"fileName"`
	ObjectKey  string    `json:"-"`          // Storage key of the source audio, not exposed in API directly
	Format     string    `json:"format"`     // Source container: wav, aiff, mp3, ogg, flac, ...
	DurationMs float64   `json:"durationMs"` // Natural duration in milliseconds, before speed adjustment
	Speed      float64   `json:"speed"`      // Playback rate, domain [0.05, 2.5]
	Volume     int       `json:"volume"`     // Slider value, domain [0, 100]
	Position   int       `json:"position"`   // List order; position 0 is the master track by convention
	Status     string    `json:"status"`     // Track processing status: processing, completed, failed
	State      int8      `json:"state"`      // 0=soft deleted, 1=normal
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AdjustedDurationMs returns the play length after the speed factor is applied.
func (t *Track) AdjustedDurationMs() float64 {
	if t.Speed <= 0 {
		return 0
	}
	return t.DurationMs / t.Speed
}

// UpdateTrackRequest 更新音轨参数请求，nil 字段保持原值
type UpdateTrackRequest struct {
	Title    *string  `json:"title,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Volume   *int     `json:"volume,omitempty"`
	Position *int     `json:"position,omitempty"`
}

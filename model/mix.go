package model

import (
	"time"

	"github.com/google/uuid"
)

// 混音任务状态
const (
	MixStatusPending   = "pending"
	MixStatusMixing    = "mixing"
	MixStatusComplete  = "complete"
	MixStatusFailed    = "failed"
	MixStatusCancelled = "cancelled"
)

// MixJob 混音导出任务，使用 GORM 存储
type MixJob struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	UserID        int64     `json:"userId" gorm:"index"`
	Renderer      string    `json:"renderer" gorm:"size:16"` // pipeline or graph
	Status        string    `json:"status" gorm:"size:16;index"`
	LoopCount     int       `json:"loopCount"`
	FadeoutMs     float64   `json:"fadeoutMs"`
	OutputTarget  string    `json:"outputTarget" gorm:"size:255"`
	OutputKey     string    `json:"outputKey" gorm:"size:512"` // storage key of the finished artifact
	OutputFormat  string    `json:"outputFormat" gorm:"size:8"`
	TotalRenderMs float64   `json:"totalRenderMs"`
	Error         string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CreateMixRequest 创建混音任务请求
type CreateMixRequest struct {
	TrackIDs  []int64 `json:"trackIds,omitempty"` // empty = all tracks in list order
	LoopCount int     `json:"loopCount"`
	FadeoutMs float64 `json:"fadeoutMs"`
	Renderer  string  `json:"renderer,omitempty"` // defaults to the server's configured renderer
	Format    string  `json:"format,omitempty"`
}

// MixJobProgress 混音任务进度（Redis 缓存与 WebSocket 推送共用）
type MixJobProgress struct {
	JobID    string  `json:"jobId"`
	Status   string  `json:"status"`
	Ratio    float64 `json:"ratio"` // 0.0 - 1.0
	Elapsed  float64 `json:"elapsedRenderMs"`
	Total    float64 `json:"totalRenderMs"`
	Error    string  `json:"error,omitempty"`
	Finished bool    `json:"finished"`
}

// NewMixJob 创建新的混音任务
func NewMixJob(userID int64, renderer string, req CreateMixRequest) *MixJob {
	return &MixJob{
		ID:           uuid.New().String(),
		UserID:       userID,
		Renderer:     renderer,
		Status:       MixStatusPending,
		LoopCount:    req.LoopCount,
		FadeoutMs:    req.FadeoutMs,
		OutputFormat: req.Format,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

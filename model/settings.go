package model

import "time"

// UserSettings 用户导出默认设置，使用 GORM 存储
type UserSettings struct {
	UserID           int64     `json:"userId" gorm:"primaryKey"`
	DefaultLoopCount int       `json:"defaultLoopCount" gorm:"default:1"`
	DefaultFadeoutMs float64   `json:"defaultFadeoutMs" gorm:"default:0"`
	LoopModeEnabled  bool      `json:"loopModeEnabled" gorm:"default:true"`
	OutputFormat     string    `json:"outputFormat" gorm:"size:8;default:wav"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DefaultSettings 返回新用户的默认设置
func DefaultSettings(userID int64) *UserSettings {
	return &UserSettings{
		UserID:           userID,
		DefaultLoopCount: 1,
		DefaultFadeoutMs: 0,
		LoopModeEnabled:  true,
		OutputFormat:     "wav",
		UpdatedAt:        time.Now(),
	}
}

// UpdateSettingsRequest 更新设置请求，nil 字段保持原值
type UpdateSettingsRequest struct {
	DefaultLoopCount *int     `json:"defaultLoopCount,omitempty"`
	DefaultFadeoutMs *float64 `json:"defaultFadeoutMs,omitempty"`
	LoopModeEnabled  *bool    `json:"loopModeEnabled,omitempty"`
	OutputFormat     *string  `json:"outputFormat,omitempty"`
}

package repository

import (
	"errors"
	"fmt"

	"Bt1QLooper/db"
	"Bt1QLooper/model"

	"gorm.io/gorm"
)

// SettingsRepository 用户导出默认设置，GORM 存储
type SettingsRepository struct {
	DB *gorm.DB
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{DB: db.GormDB}
}

// GetSettings 获取用户设置，不存在时返回默认值（不落库）
func (r *SettingsRepository) GetSettings(userID int64) (*model.UserSettings, error) {
	var settings model.UserSettings
	err := r.DB.First(&settings, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.DefaultSettings(userID), nil
		}
		return nil, fmt.Errorf("failed to get settings for user %d: %w", userID, err)
	}
	return &settings, nil
}

// SaveSettings 写入用户设置（存在则更新）
func (r *SettingsRepository) SaveSettings(settings *model.UserSettings) error {
	err := r.DB.Save(settings).Error
	if err != nil {
		return fmt.Errorf("failed to save settings for user %d: %w", settings.UserID, err)
	}
	return nil
}

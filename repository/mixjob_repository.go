package repository

import (
	"errors"
	"fmt"
	"time"

	"Bt1QLooper/db"
	"Bt1QLooper/model"

	"gorm.io/gorm"
)

// MixJobRepository 混音任务历史，GORM 存储
type MixJobRepository struct {
	DB *gorm.DB
}

func NewMixJobRepository() *MixJobRepository {
	return &MixJobRepository{DB: db.GormDB}
}

// CreateJob 持久化一个新任务
func (r *MixJobRepository) CreateJob(job *model.MixJob) error {
	if err := r.DB.Create(job).Error; err != nil {
		return fmt.Errorf("failed to create mix job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob 按ID查询任务，未找到返回 (nil, nil)
func (r *MixJobRepository) GetJob(jobID string) (*model.MixJob, error) {
	var job model.MixJob
	err := r.DB.First(&job, "id = ?", jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mix job %s: %w", jobID, err)
	}
	return &job, nil
}

// ListJobsByUser 按创建时间倒序列出用户的任务历史
func (r *MixJobRepository) ListJobsByUser(userID int64, limit int) ([]*model.MixJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []*model.MixJob
	err := r.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list mix jobs for user %d: %w", userID, err)
	}
	return jobs, nil
}

// UpdateStatus 更新任务状态
func (r *MixJobRepository) UpdateStatus(jobID, status string) error {
	err := r.DB.Model(&model.MixJob{}).Where("id = ?", jobID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to update mix job %s status: %w", jobID, err)
	}
	return nil
}

// MarkComplete 记录完成的任务及其成品位置
func (r *MixJobRepository) MarkComplete(jobID, outputKey string, totalRenderMs float64) error {
	err := r.DB.Model(&model.MixJob{}).Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":          model.MixStatusComplete,
			"output_key":      outputKey,
			"total_render_ms": totalRenderMs,
			"updated_at":      time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark mix job %s complete: %w", jobID, err)
	}
	return nil
}

// DeleteJob 删除一条任务记录
func (r *MixJobRepository) DeleteJob(jobID string) error {
	if err := r.DB.Delete(&model.MixJob{}, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("failed to delete mix job %s: %w", jobID, err)
	}
	return nil
}

// MarkFailed 记录失败原因
func (r *MixJobRepository) MarkFailed(jobID, errText string) error {
	err := r.DB.Model(&model.MixJob{}).Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     model.MixStatusFailed,
			"error":      errText,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark mix job %s failed: %w", jobID, err)
	}
	return nil
}

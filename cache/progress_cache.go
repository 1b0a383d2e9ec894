package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Bt1QLooper/logger"
	"Bt1QLooper/model"

	"github.com/redis/go-redis/v9"
)

// 混音任务进度镜像：渲染协程写入，HTTP轮询和WebSocket推送读取
// 任务结束后保留一段时间供客户端拉取最终状态
const progressCacheTTL = 30 * time.Minute

// ProgressKey 根据任务ID生成进度缓存的Redis键
func ProgressKey(jobID string) string {
	return fmt.Sprintf("looper:mix:progress:%s", jobID)
}

// SetJobProgress 写入一次进度快照
func SetJobProgress(p *model.MixJobProgress) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal job progress: %w", err)
	}

	err = RedisClient.Set(ctx, ProgressKey(p.JobID), data, progressCacheTTL).Err()
	if err != nil {
		logger.Error("设置任务进度缓存失败",
			logger.String("jobId", p.JobID),
			logger.ErrorField(err))
		return err
	}
	return nil
}

// GetJobProgress 读取任务进度快照，未命中返回 (nil, nil)
func GetJobProgress(jobID string) (*model.MixJobProgress, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := RedisClient.Get(ctx, ProgressKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job progress: %w", err)
	}

	var p model.MixJobProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("corrupt job progress cache for %s: %w", jobID, err)
	}
	return &p, nil
}

// DeleteJobProgress 删除任务进度缓存
func DeleteJobProgress(jobID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return RedisClient.Del(ctx, ProgressKey(jobID)).Err()
}

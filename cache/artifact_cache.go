package cache

import (
	"context"
	"fmt"
	"time"

	"Bt1QLooper/logger"
)

// 热导出缓存：刚完成的混音成品在一段时间内直接从Redis下发，
// 避免每次下载都回源到对象存储
const (
	artifactCacheTTL = 15 * time.Minute
	// 超过此大小的成品不进缓存，直接回源
	maxCachedArtifactSize = 32 << 20
)

// ArtifactKey 根据任务ID生成成品缓存的Redis键
func ArtifactKey(jobID string) string {
	return fmt.Sprintf("looper:mix:artifact:%s", jobID)
}

// SetArtifact 缓存一个完成的混音成品
func SetArtifact(jobID string, data []byte) error {
	if len(data) > maxCachedArtifactSize {
		logger.Debug("成品过大，跳过缓存",
			logger.String("jobId", jobID),
			logger.Int("size", len(data)))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := RedisClient.Set(ctx, ArtifactKey(jobID), data, artifactCacheTTL).Err()
	if err != nil {
		logger.Error("设置成品缓存失败",
			logger.String("jobId", jobID),
			logger.Int("size", len(data)),
			logger.ErrorField(err))
		return err
	}

	logger.Debug("成品缓存设置成功",
		logger.String("jobId", jobID),
		logger.Int("size", len(data)))
	return nil
}

// GetArtifact 获取缓存的混音成品
// 返回 (nil, nil) 表示缓存未命中，调用方继续从对象存储获取
func GetArtifact(jobID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 最多重试2次
	maxRetries := 2
	retryDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		data, err := RedisClient.Get(ctx, ArtifactKey(jobID)).Bytes()
		if err != nil {
			if err.Error() == "redis: nil" {
				return nil, nil
			}

			if attempt < maxRetries-1 {
				logger.Warn("获取成品缓存失败，准备重试",
					logger.String("jobId", jobID),
					logger.Int("attempt", attempt+1),
					logger.ErrorField(err))
				time.Sleep(retryDelay)
				retryDelay *= 2
				continue
			}

			// 最终失败也不报错，让调用方回源
			logger.Error("获取成品缓存最终失败，将回源到对象存储",
				logger.String("jobId", jobID),
				logger.ErrorField(err))
			return nil, nil
		}
		return data, nil
	}
	return nil, nil
}

// DeleteArtifact 删除成品缓存
func DeleteArtifact(jobID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := RedisClient.Del(ctx, ArtifactKey(jobID)).Err()
	if err != nil {
		logger.Error("删除成品缓存失败",
			logger.String("jobId", jobID),
			logger.ErrorField(err))
		return err
	}
	return nil
}

package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"Bt1QLooper/logger"

	"github.com/redis/go-redis/v9"
)

// 探测到的音频时长缓存，避免对同一个源重复调用 ffprobe
const durationCacheTTL = 24 * time.Hour

// DurationKey 根据对象键生成时长缓存的Redis键
func DurationKey(objectKey string) string {
	return fmt.Sprintf("looper:duration:%s", objectKey)
}

// SetDurationMs 缓存一个音频源的自然时长（毫秒）
func SetDurationMs(objectKey string, durationMs float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := RedisClient.Set(ctx, DurationKey(objectKey),
		strconv.FormatFloat(durationMs, 'f', -1, 64), durationCacheTTL).Err()
	if err != nil {
		logger.Error("设置时长缓存失败",
			logger.String("objectKey", objectKey),
			logger.ErrorField(err))
		return err
	}
	return nil
}

// GetDurationMs 读取缓存的自然时长
// 缓存未命中返回 (0, false, nil)，调用方应回落到 ffprobe
func GetDurationMs(objectKey string) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	val, err := RedisClient.Get(ctx, DurationKey(objectKey)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		// 缓存故障不应阻断探测，调用方继续走 ffprobe
		logger.Warn("获取时长缓存失败",
			logger.String("objectKey", objectKey),
			logger.ErrorField(err))
		return 0, false, nil
	}

	ms, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt duration cache value %q: %w", val, err)
	}
	return ms, true, nil
}

// DeleteDuration 删除时长缓存（音轨被删除或源被替换时调用）
func DeleteDuration(objectKey string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return RedisClient.Del(ctx, DurationKey(objectKey)).Err()
}

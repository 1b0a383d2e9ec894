package storage

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectInfo 对象的摘要信息，供管理命令打印
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// MinioClient 管理用客户端，供 minio 子命令检查和清理存储桶
type MinioClient struct {
	client *minio.Client
	bucket string
}

// NewMinioClient 创建管理用 MinIO 客户端
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioClient{client: client, bucket: bucketName}, nil
}

// ListObjects 列出存储桶中的对象（带前缀过滤）
func (m *MinioClient) ListObjects(prefix string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	objectCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	count := 0
	var totalSize int64
	for object := range objectCh {
		if object.Err != nil {
			return fmt.Errorf("failed to list objects: %w", object.Err)
		}
		fmt.Printf("%-60s %12s  %s\n", object.Key, formatSize(object.Size),
			object.LastModified.Format("2006-01-02 15:04:05"))
		count++
		totalSize += object.Size
	}

	fmt.Printf("\n共 %d 个对象，总大小 %s\n", count, formatSize(totalSize))
	return nil
}

// GetBucketStats 统计存储桶中各类音频和导出成品的数量与大小
func (m *MinioClient) GetBucketStats() (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	objectCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Recursive: true,
	})

	stats := map[string]interface{}{}
	var totalSize int64
	totalCount := 0
	byPrefix := map[string]int64{}
	byPrefixCount := map[string]int{}

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects for stats: %w", object.Err)
		}
		totalCount++
		totalSize += object.Size

		prefix := "(root)"
		if idx := strings.Index(object.Key, "/"); idx > 0 {
			prefix = object.Key[:idx]
		}
		byPrefix[prefix] += object.Size
		byPrefixCount[prefix]++
	}

	stats["totalCount"] = totalCount
	stats["totalSize"] = totalSize
	stats["byPrefix"] = byPrefix
	stats["byPrefixCount"] = byPrefixCount
	return stats, nil
}

// PrintBucketStats 打印存储桶统计信息
func (m *MinioClient) PrintBucketStats() error {
	stats, err := m.GetBucketStats()
	if err != nil {
		return err
	}

	fmt.Printf("存储桶: %s\n", m.bucket)
	fmt.Printf("对象总数: %d\n", stats["totalCount"])
	fmt.Printf("总大小: %s\n\n", formatSize(stats["totalSize"].(int64)))

	byPrefix := stats["byPrefix"].(map[string]int64)
	byPrefixCount := stats["byPrefixCount"].(map[string]int)

	prefixes := make([]string, 0, len(byPrefix))
	for p := range byPrefix {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	for _, p := range prefixes {
		fmt.Printf("%-20s %6d 个对象  %12s\n", p+"/", byPrefixCount[p], formatSize(byPrefix[p]))
	}
	return nil
}

// ListObjectsRecursive 按目录层级打印对象结构
func (m *MinioClient) ListObjectsRecursive(prefix string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	objectCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	dirs := map[string][]ObjectInfo{}
	for object := range objectCh {
		if object.Err != nil {
			return fmt.Errorf("failed to list objects: %w", object.Err)
		}
		dir := "."
		if idx := strings.LastIndex(object.Key, "/"); idx > 0 {
			dir = object.Key[:idx]
		}
		dirs[dir] = append(dirs[dir], ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}

	names := make([]string, 0, len(dirs))
	for d := range dirs {
		names = append(names, d)
	}
	sort.Strings(names)

	for _, d := range names {
		fmt.Printf("%s/\n", d)
		for _, obj := range dirs[d] {
			base := obj.Key
			if idx := strings.LastIndex(obj.Key, "/"); idx >= 0 {
				base = obj.Key[idx+1:]
			}
			fmt.Printf("  %-50s %12s\n", base, formatSize(obj.Size))
		}
	}
	return nil
}

// DeleteDirectory 删除指定前缀下的所有对象
func (m *MinioClient) DeleteDirectory(prefix string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	objectCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	deleted := 0
	for object := range objectCh {
		if object.Err != nil {
			return fmt.Errorf("failed to list objects for deletion: %w", object.Err)
		}
		if err := m.client.RemoveObject(ctx, m.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete object %s: %w", object.Key, err)
		}
		log.Printf("已删除: %s", object.Key)
		deleted++
	}

	fmt.Printf("共删除 %d 个对象\n", deleted)
	return nil
}

// formatSize 人类可读的字节大小
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// InferContentType 根据文件名推断音频内容类型
func InferContentType(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(lower, ".aiff"), strings.HasSuffix(lower, ".aif"):
		return "audio/aiff"
	case strings.HasSuffix(lower, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(lower, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(lower, ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(lower, ".flac"):
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ArtifactSink 成品输出端：接收渲染好的混音成品并返回可供下载的引用
// MinIO 与本地目录两种实现，由配置决定使用哪一个
type ArtifactSink interface {
	// Store 保存成品并返回其存储键
	Store(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error)
	// Fetch 按存储键取回成品
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
	// Remove 删除成品
	Remove(ctx context.Context, key string) error
}

// MinioSink 把成品写入 MinIO 存储桶
type MinioSink struct {
	bucket string
	prefix string
}

// NewMinioSink 创建 MinIO 成品输出端，prefix 为对象键前缀（如 "exports"）
func NewMinioSink(bucket, prefix string) *MinioSink {
	return &MinioSink{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *MinioSink) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *MinioSink) Store(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	client := GetMinioClient()
	if client == nil {
		return "", fmt.Errorf("minio client not initialized")
	}

	objectKey := s.objectKey(key)
	_, err := client.PutObject(ctx, s.bucket, objectKey, data, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to store artifact %s: %w", objectKey, err)
	}
	return objectKey, nil
}

func (s *MinioSink) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	client := GetMinioClient()
	if client == nil {
		return nil, fmt.Errorf("minio client not initialized")
	}

	obj, err := client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artifact %s: %w", key, err)
	}
	// GetObject 是惰性的，Stat 一次确认对象真实存在
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("artifact %s not found: %w", key, err)
	}
	return obj, nil
}

func (s *MinioSink) Remove(ctx context.Context, key string) error {
	client := GetMinioClient()
	if client == nil {
		return fmt.Errorf("minio client not initialized")
	}
	return client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// LocalSink 把成品写入本地目录，作为没有对象存储时的退路
type LocalSink struct {
	dir string
}

// NewLocalSink 创建本地目录成品输出端
func NewLocalSink(dir string) (*LocalSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &LocalSink{dir: dir}, nil
}

func (s *LocalSink) path(key string) string {
	// 只取文件名部分，存储键不允许带路径穿越
	return filepath.Join(s.dir, filepath.Base(key))
}

func (s *LocalSink) Store(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	path := s.path(key)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write artifact file %s: %w", path, err)
	}
	return filepath.Base(path), nil
}

func (s *LocalSink) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("artifact %s not found: %w", key, err)
	}
	return f, nil
}

func (s *LocalSink) Remove(ctx context.Context, key string) error {
	return os.Remove(s.path(key))
}

// StoreBytes 便捷封装：把内存中的成品写入任意输出端
func StoreBytes(ctx context.Context, sink ArtifactSink, key string, data []byte, contentType string) (string, error) {
	return sink.Store(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

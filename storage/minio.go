package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"Bt1QLooper/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
)

// InitMinio 初始化 MinIO 客户端
func InitMinio() error {
	cfg := config.Load()

	log.Printf("正在连接 MinIO 服务器...")
	log.Printf("Endpoint: %s", cfg.MinioEndpoint)
	log.Printf("Bucket: %s", cfg.MinioBucket)
	if len(cfg.MinioAccessKey) > 4 {
		log.Printf("AccessKey: %s...", cfg.MinioAccessKey[:4])
	}

	// 初始化 MinIO 客户端
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %v", err)
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 检查存储桶是否存在
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %v", err)
	}

	if !exists {
		// 如果存储桶不存在，尝试创建它
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("创建存储桶失败: %v", err)
		}
		log.Printf("✅ 成功创建存储桶: %s", cfg.MinioBucket)
	} else {
		log.Printf("✅ 存储桶已存在: %s", cfg.MinioBucket)
	}

	// 测试文件操作
	testObjectName := "test/connection.txt"

	// 先尝试读取测试文件
	obj, err := client.GetObject(ctx, cfg.MinioBucket, testObjectName, minio.GetObjectOptions{})
	var readErr error
	if err == nil {
		_, readErr = io.ReadAll(obj)
		obj.Close()
	}
	if err != nil || readErr != nil {
		// 如果文件不存在，则上传测试文件
		testContent := "This is a test file for MinIO connection verification. Created at: " + time.Now().String()

		_, err = client.PutObject(ctx, cfg.MinioBucket, testObjectName,
			strings.NewReader(testContent), int64(len(testContent)),
			minio.PutObjectOptions{ContentType: "text/plain"})
		if err != nil {
			return fmt.Errorf("上传测试文件失败: %v", err)
		}
		log.Printf("✅ 成功上传测试文件: %s", testObjectName)
	} else {
		log.Printf("✅ 成功读取测试文件: %s", testObjectName)
	}

	// 保存客户端实例
	minioClient = client
	log.Println("✅ MinIO 客户端初始化成功！")
	return nil
}

// GetMinioClient 获取 MinIO 客户端实例
func GetMinioClient() *minio.Client {
	return minioClient
}

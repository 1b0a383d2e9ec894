package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Bt1QLooper/cache"
	"Bt1QLooper/config"
	"Bt1QLooper/core/audio"
	"Bt1QLooper/core/ingest"
	"Bt1QLooper/db"
	"Bt1QLooper/logger"
	"Bt1QLooper/model"
	"Bt1QLooper/repository"
	"Bt1QLooper/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	// 设置服务器超时
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(); err != nil {
		log.Fatalf("Failed to initialize MinIO: %v", err)
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseDB()

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database with GORM: %v", err)
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.CloseRedis()
	log.Println("Successfully connected to Redis")

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.AutoMigrateModels(&model.UserSettings{}, &model.MixJob{}); err != nil {
		log.Fatalf("Failed to migrate GORM models: %v", err)
	}

	// Create necessary directories if they don't exist
	ensureDirExists(cfg.UploadDir)
	ensureDirExists(cfg.AudioUploadDir)
	ensureDirExists(cfg.OutputDir)
	ensureDirExists(cfg.MixTempDir)

	// 成品输出端：默认 MinIO，本地目录作为退路
	var sink storage.ArtifactSink
	if cfg.ArtifactSink == "local" {
		localSink, err := storage.NewLocalSink(cfg.OutputDir)
		if err != nil {
			log.Fatalf("Failed to create local artifact sink: %v", err)
		}
		sink = localSink
	} else {
		sink = storage.NewMinioSink(cfg.MinioBucket, "exports")
	}

	transcoder := audio.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.FFprobePath)
	trackRepo := repository.NewMySQLTrackRepository()
	userRepo := repository.NewMySQLUserRepository(db.DB)
	settingsRepo := repository.NewSettingsRepository()
	mixJobRepo := repository.NewMixJobRepository()

	jobs := NewJobManager(cfg, mixJobRepo, trackRepo, sink)
	apiHandler := NewAPIHandler(trackRepo, userRepo, settingsRepo, mixJobRepo, transcoder, sink, jobs, cfg)

	// 导入目录监听（可选）
	var watcher *ingest.Watcher
	if cfg.ImportDir != "" {
		watcher = ingest.NewWatcher(cfg, trackRepo, transcoder)
		if err := watcher.Start(); err != nil {
			log.Fatalf("Failed to start import watcher: %v", err)
		}
	}

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Content-Disposition")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 请求日志中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("http request",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Duration("elapsed", time.Since(start)))
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/user/profile", apiHandler.AuthMiddleware(apiHandler.GetUserProfileHandler)).Methods(http.MethodGet)

	// 音轨管理
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.UploadTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.UpdateTrackHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)

	// 循环时序视图
	router.HandleFunc("/api/loop/master", apiHandler.AuthMiddleware(apiHandler.GetMasterLoopHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/loop/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.GetTrackLoopHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/loop/export-duration", apiHandler.AuthMiddleware(apiHandler.GetExportDurationHandler)).Methods(http.MethodGet)

	// 用户设置
	router.HandleFunc("/api/settings", apiHandler.AuthMiddleware(apiHandler.GetSettingsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/settings", apiHandler.AuthMiddleware(apiHandler.UpdateSettingsHandler)).Methods(http.MethodPut)

	// 混音任务
	router.HandleFunc("/api/mix", apiHandler.AuthMiddleware(apiHandler.CreateMixHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/mix", apiHandler.AuthMiddleware(apiHandler.ListMixesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/mix/{id}", apiHandler.AuthMiddleware(apiHandler.GetMixHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/mix/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteMixHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/mix/{id}/cancel", apiHandler.AuthMiddleware(apiHandler.CancelMixHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/mix/{id}/download", apiHandler.AuthMiddleware(apiHandler.DownloadMixHandler)).Methods(http.MethodGet)

	// WebSocket 进度流
	router.HandleFunc("/ws/mix/{id}", apiHandler.MixProgressWSHandler)

	// 本地导出目录（local sink 时的直接下载路径）
	router.PathPrefix("/exports/").Handler(NewStaticHandler(cfg))

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		log.Printf("Server starting on :%s...", cfg.ServerPort)
		log.Println("Manage tracks via /api/tracks endpoints")
		log.Println("Loop timing views under /api/loop")
		log.Println("Start a mixdown via POST to /api/mix, watch progress on /ws/mix/{id}")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号
	<-stop
	log.Println("Shutting down server...")

	if watcher != nil {
		watcher.Stop()
	}

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Creating directory: %s", path)
		if err := os.MkdirAll(path, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", path, err)
		}
	} else if err != nil {
		log.Fatalf("Failed to check directory %s: %v", path, err)
	}
}

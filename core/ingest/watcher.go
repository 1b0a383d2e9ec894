package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"Bt1QLooper/cache"
	"Bt1QLooper/config"
	"Bt1QLooper/core/audio"
	"Bt1QLooper/logger"
	"Bt1QLooper/model"
	"Bt1QLooper/repository"
	"Bt1QLooper/storage"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

const (
	// 文件大小稳定判定：连续两次采样大小一致才认为写入完成
	stableCheckInterval = 500 * time.Millisecond
	stableCheckRetries  = 20
)

// Watcher 监听导入目录，把丢进来的音频文件自动注册为音轨。
// fsnotify 事件进入任务通道，固定数量的工作协程消费。
type Watcher struct {
	cfg        *config.Config
	trackRepo  repository.TrackRepository
	transcoder audio.Transcoder

	tasks    chan string
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewWatcher 创建导入监听器
func NewWatcher(cfg *config.Config, trackRepo repository.TrackRepository, transcoder audio.Transcoder) *Watcher {
	return &Watcher{
		cfg:        cfg,
		trackRepo:  trackRepo,
		transcoder: transcoder,
		tasks:      make(chan string, 64),
		stopChan:   make(chan struct{}),
	}
}

// Start 启动监听。重复调用是空操作。
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if w.cfg.ImportDir == "" {
		return fmt.Errorf("import directory not configured")
	}
	if err := os.MkdirAll(w.cfg.ImportDir, 0755); err != nil {
		return fmt.Errorf("failed to create import directory %s: %w", w.cfg.ImportDir, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(w.cfg.ImportDir); err != nil {
		fsWatcher.Close()
		return fmt.Errorf("failed to watch import directory: %w", err)
	}

	workers := w.cfg.ImportWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}

	w.wg.Add(1)
	go w.watchLoop(fsWatcher)

	w.started = true
	logger.Info("导入监听已启动",
		logger.String("dir", w.cfg.ImportDir),
		logger.Int("workers", workers))
	return nil
}

// Stop 停止监听并等待在途任务完成
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	logger.Info("导入监听已停止")
}

func (w *Watcher) watchLoop(fsWatcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsWatcher.Close()
	defer close(w.tasks)

	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !IsImportCandidate(event.Name) {
				continue
			}
			select {
			case w.tasks <- event.Name:
			case <-w.stopChan:
				return
			}
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Warn("导入监听错误", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) worker(id int) {
	defer w.wg.Done()

	seen := make(map[string]time.Time)
	for path := range w.tasks {
		// Write 事件会对同一文件多次触发，短窗口内去重
		if t, ok := seen[path]; ok && time.Since(t) < 10*time.Second {
			continue
		}
		seen[path] = time.Now()

		if err := w.ingest(path); err != nil {
			logger.Error("导入文件失败",
				logger.Int("worker", id),
				logger.String("path", path),
				logger.ErrorField(err))
		}
	}
}

// ingest 完整处理一个投递文件：等写入稳定、探测时长、必要时转码、
// 上传到对象存储、登记音轨
func (w *Watcher) ingest(path string) error {
	if !waitForStableSize(path, stableCheckRetries, stableCheckInterval, w.stopChan) {
		return fmt.Errorf("file %s never reached a stable size", path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sourcePath := path
	ext := strings.ToLower(filepath.Ext(path))

	// 注册表读不了的格式先转成 WAV
	if !audio.SupportedFormat(ext) {
		wavPath := filepath.Join(w.cfg.AudioUploadDir,
			strings.TrimSuffix(filepath.Base(path), ext)+"_"+uuid.New().String()[:8]+".wav")
		if err := w.transcoder.TranscodeToWAV(ctx, path, wavPath, w.cfg.SampleRate); err != nil {
			return fmt.Errorf("transcode failed: %w", err)
		}
		sourcePath = wavPath
		ext = ".wav"
	}

	durationMs, err := audio.ProbeDurationMs(ctx, w.cfg.FFprobePath, sourcePath)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	objectKey := fmt.Sprintf("imports/%s%s", uuid.New().String(), ext)
	if err := w.uploadSource(ctx, sourcePath, objectKey); err != nil {
		return err
	}
	_ = cache.SetDurationMs(objectKey, durationMs)

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	position, err := w.trackRepo.NextPosition(w.cfg.ImportUserID)
	if err != nil {
		return err
	}

	track := &model.Track{
		UserID:     w.cfg.ImportUserID,
		Title:      title,
		FileName:   filepath.Base(path),
		ObjectKey:  objectKey,
		Format:     strings.TrimPrefix(ext, "."),
		DurationMs: durationMs,
		Speed:      1.0,
		Volume:     100,
		Position:   position,
		Status:     "completed",
	}
	trackID, err := w.trackRepo.CreateTrack(track)
	if err != nil {
		return err
	}

	// 原始投递文件移走，避免重复触发
	_ = os.Remove(path)

	logger.Info("导入音轨完成",
		logger.Int64("trackId", trackID),
		logger.String("title", title),
		logger.Float64("durationMs", durationMs),
		logger.String("objectKey", objectKey))
	return nil
}

func (w *Watcher) uploadSource(ctx context.Context, path, objectKey string) error {
	client := storage.GetMinioClient()
	if client == nil {
		return fmt.Errorf("minio client not initialized")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	_, err = client.PutObject(ctx, w.cfg.MinioBucket, objectKey, f, info.Size(),
		minio.PutObjectOptions{ContentType: storage.InferContentType(path)})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return nil
}

// IsImportCandidate reports whether the file name looks like an audio clip
// worth ingesting. Hidden and partial files are skipped.
func IsImportCandidate(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".part") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".wav", ".aiff", ".aif", ".mp3", ".ogg", ".m4a", ".flac":
		return true
	}
	return false
}

// waitForStableSize polls the file size until two consecutive samples agree.
// Returns false if the file disappears, never settles, or the watcher stops.
func waitForStableSize(path string, retries int, interval time.Duration, stop <-chan struct{}) bool {
	var lastSize int64 = -1
	for i := 0; i < retries; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize && info.Size() > 0 {
			return true
		}
		lastSize = info.Size()

		select {
		case <-stop:
			return false
		case <-time.After(interval):
		}
	}
	return false
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Bt1QLooper/cache"
	"Bt1QLooper/config"
	"Bt1QLooper/core/audio"
	"Bt1QLooper/core/mix"
	"Bt1QLooper/logger"
	"Bt1QLooper/model"
	"Bt1QLooper/repository"
	"Bt1QLooper/storage"

	minio "github.com/minio/minio-go/v7"
)

// JobManager 管理异步混音任务：每个接受的任务一个渲染协程，
// 状态落库，进度镜像到 Redis 并广播给 WebSocket 订阅者。
type JobManager struct {
	cfg        *config.Config
	mixJobRepo *repository.MixJobRepository
	trackRepo  repository.TrackRepository
	sink       storage.ArtifactSink

	mu      sync.Mutex
	running map[string]*runningJob
}

type runningJob struct {
	job   *model.MixJob
	mixer *mix.Mixer

	subMu sync.Mutex
	subs  map[chan model.MixJobProgress]struct{}
	done  chan struct{}
}

// NewJobManager 创建任务管理器
func NewJobManager(cfg *config.Config, mixJobRepo *repository.MixJobRepository, trackRepo repository.TrackRepository, sink storage.ArtifactSink) *JobManager {
	return &JobManager{
		cfg:        cfg,
		mixJobRepo: mixJobRepo,
		trackRepo:  trackRepo,
		sink:       sink,
		running:    make(map[string]*runningJob),
	}
}

// strategyFor 按名称构造渲染策略。策略在任务提交时显式选择，
// 不存在隐式的平台探测。
func (m *JobManager) strategyFor(name string) (mix.RenderStrategy, error) {
	switch name {
	case "pipeline":
		return mix.NewPipelineRenderer(m.cfg.FFmpegPath, m.cfg.FFprobePath, m.cfg.AudioBitrate), nil
	case "graph":
		return mix.NewGraphRenderer(), nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", name)
	}
}

// StartJob 校验并启动一个异步混音任务。校验失败同步返回错误，
// 不产生任何任务记录。
func (m *JobManager) StartJob(userID int64, req model.CreateMixRequest, tracks []*model.Track) (*model.MixJob, error) {
	renderer := req.Renderer
	if renderer == "" {
		renderer = m.cfg.MixRenderer
	}
	strategy, err := m.strategyFor(renderer)
	if err != nil {
		return nil, err
	}

	inputs := make([]mix.TrackInput, 0, len(tracks))
	for _, t := range tracks {
		inputs = append(inputs, mix.TrackInput{
			ID:        t.ID,
			Source:    t.ObjectKey, // 渲染前换成本地路径
			Speed:     t.Speed,
			Volume:    t.Volume,
			NaturalMs: t.DurationMs,
		})
	}
	// 入参问题在接受任务前暴露
	if err := mix.ValidateTracks(inputs); err != nil {
		return nil, err
	}

	job := model.NewMixJob(userID, renderer, req)
	if job.LoopCount < 1 {
		job.LoopCount = 1
	}
	if job.FadeoutMs < 0 {
		job.FadeoutMs = 0
	}
	if job.OutputFormat == "" {
		if renderer == "pipeline" {
			job.OutputFormat = "m4a"
		} else {
			job.OutputFormat = "wav"
		}
	}
	job.OutputTarget = fmt.Sprintf("%s.%s", job.ID, job.OutputFormat)

	if err := m.mixJobRepo.CreateJob(job); err != nil {
		return nil, err
	}

	rj := &runningJob{
		job:   job,
		mixer: mix.NewMixer(strategy),
		subs:  make(map[chan model.MixJobProgress]struct{}),
		done:  make(chan struct{}),
	}
	m.mu.Lock()
	m.running[job.ID] = rj
	m.mu.Unlock()

	go m.run(rj, inputs, tracks)
	return job, nil
}

// Subscribe 订阅任务的进度流。任务不在运行中时返回 (nil, nil, false)，
// 调用方应回落到 Redis 里的最终快照。
func (m *JobManager) Subscribe(jobID string) (<-chan model.MixJobProgress, func(), bool) {
	m.mu.Lock()
	rj, ok := m.running[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, nil, false
	}

	ch := make(chan model.MixJobProgress, 16)
	rj.subMu.Lock()
	rj.subs[ch] = struct{}{}
	rj.subMu.Unlock()

	unsubscribe := func() {
		rj.subMu.Lock()
		delete(rj.subs, ch)
		rj.subMu.Unlock()
	}
	return ch, unsubscribe, true
}

// Cancel 请求取消在途任务。任务不在运行中返回 false。
func (m *JobManager) Cancel(jobID string) bool {
	m.mu.Lock()
	rj, ok := m.running[jobID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	rj.mixer.Cancel()
	return true
}

// IsRunning 报告任务是否仍在渲染中
func (m *JobManager) IsRunning(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[jobID]
	return ok
}

// publish 把一次进度快照送往 Redis 和所有订阅者。
// 订阅者的通道满了就丢弃这一帧，渲染协程绝不被慢消费者拖住。
func (rj *runningJob) publish(p model.MixJobProgress) {
	_ = cache.SetJobProgress(&p)

	rj.subMu.Lock()
	for ch := range rj.subs {
		select {
		case ch <- p:
		default:
		}
	}
	rj.subMu.Unlock()
}

func (rj *runningJob) closeSubs() {
	rj.subMu.Lock()
	for ch := range rj.subs {
		close(ch)
	}
	rj.subs = make(map[chan model.MixJobProgress]struct{})
	rj.subMu.Unlock()
	close(rj.done)
}

// run 驱动一次完整的任务生命周期：取源、渲染、入库、收尾
func (m *JobManager) run(rj *runningJob, inputs []mix.TrackInput, tracks []*model.Track) {
	job := rj.job

	defer func() {
		m.mu.Lock()
		delete(m.running, job.ID)
		m.mu.Unlock()
		rj.closeSubs()
	}()

	_ = m.mixJobRepo.UpdateStatus(job.ID, model.MixStatusMixing)
	rj.publish(model.MixJobProgress{JobID: job.ID, Status: model.MixStatusMixing})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	// 渲染器吃本地文件路径，先把源从对象存储拉下来
	workDir := filepath.Join(m.cfg.MixTempDir, job.ID)
	if err := m.fetchSources(ctx, workDir, inputs, tracks); err != nil {
		m.finishFailed(rj, fmt.Errorf("fetch sources: %w", err))
		return
	}
	defer os.RemoveAll(workDir)

	rj.mixer.SetProgressCallback(func(p mix.Progress) {
		rj.publish(model.MixJobProgress{
			JobID:   job.ID,
			Status:  model.MixStatusMixing,
			Ratio:   p.Ratio,
			Elapsed: p.ElapsedRenderMs,
			Total:   p.TotalRenderMs,
		})
	})

	target := filepath.Join(workDir, job.OutputTarget)
	artifact, err := rj.mixer.Mix(ctx, inputs, target, mix.Options{
		LoopCount:  job.LoopCount,
		FadeoutMs:  job.FadeoutMs,
		Format:     job.OutputFormat,
		SampleRate: m.cfg.SampleRate,
	})

	switch {
	case errors.Is(err, mix.ErrMixCancelled):
		_ = m.mixJobRepo.UpdateStatus(job.ID, model.MixStatusCancelled)
		rj.publish(model.MixJobProgress{
			JobID: job.ID, Status: model.MixStatusCancelled, Finished: true,
		})
		logger.Info("混音任务已取消", logger.String("jobId", job.ID))
	case err != nil:
		m.finishFailed(rj, err)
	default:
		m.finishComplete(rj, artifact)
	}
}

// fetchSources 把每条音轨的源对象下载到任务工作目录，
// 并把 TrackInput.Source 重写为本地路径
func (m *JobManager) fetchSources(ctx context.Context, workDir string, inputs []mix.TrackInput, tracks []*model.Track) error {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create work dir %s: %w", workDir, err)
	}

	client := storage.GetMinioClient()
	if client == nil {
		return fmt.Errorf("minio client not initialized")
	}

	for i, t := range tracks {
		localPath := filepath.Join(workDir, fmt.Sprintf("src_%d%s", t.ID, filepath.Ext(t.ObjectKey)))
		obj, err := client.GetObject(ctx, m.cfg.MinioBucket, t.ObjectKey, minio.GetObjectOptions{})
		if err != nil {
			return fmt.Errorf("source %d (%s): %w", i, t.ObjectKey, err)
		}

		f, err := os.Create(localPath)
		if err != nil {
			obj.Close()
			return err
		}
		_, copyErr := io.Copy(f, obj)
		f.Close()
		obj.Close()
		if copyErr != nil {
			return fmt.Errorf("source %d (%s): %w", i, t.ObjectKey, copyErr)
		}

		inputs[i].Source = localPath

		// 还没探测出时长的音轨（状态 processing）在这里补齐，
		// 优先走缓存，探测结果写回缓存
		if inputs[i].NaturalMs <= 0 {
			if ms, ok, _ := cache.GetDurationMs(t.ObjectKey); ok {
				inputs[i].NaturalMs = ms
			} else if ms, err := audio.ProbeDurationMs(ctx, m.cfg.FFprobePath, localPath); err == nil {
				inputs[i].NaturalMs = ms
				_ = cache.SetDurationMs(t.ObjectKey, ms)
				_ = m.trackRepo.UpdateTrackDuration(t.ID, ms, "completed")
			}
		}
	}
	return nil
}

func (m *JobManager) finishFailed(rj *runningJob, err error) {
	job := rj.job
	_ = m.mixJobRepo.MarkFailed(job.ID, err.Error())
	rj.publish(model.MixJobProgress{
		JobID: job.ID, Status: model.MixStatusFailed, Error: err.Error(), Finished: true,
	})
	logger.Error("混音任务失败",
		logger.String("jobId", job.ID),
		logger.ErrorField(err))
}

func (m *JobManager) finishComplete(rj *runningJob, artifact *mix.Artifact) {
	job := rj.job

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	contentType := storage.InferContentType(job.OutputTarget)
	var (
		outputKey string
		err       error
	)
	if len(artifact.Data) > 0 {
		// 内存成品（graph 渲染器）
		outputKey, err = storage.StoreBytes(ctx, m.sink, job.OutputTarget, artifact.Data, contentType)
		if err == nil {
			_ = cache.SetArtifact(job.ID, artifact.Data)
		}
	} else {
		// 文件成品（pipeline 渲染器）
		var f *os.File
		f, err = os.Open(artifact.Path)
		if err == nil {
			outputKey, err = m.sink.Store(ctx, job.OutputTarget, f, artifact.Size, contentType)
			f.Close()
		}
	}
	if err != nil {
		m.finishFailed(rj, fmt.Errorf("store artifact: %w", err))
		return
	}

	if err := m.mixJobRepo.MarkComplete(job.ID, outputKey, artifact.DurationMs); err != nil {
		logger.Error("记录任务完成状态失败",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
	}

	rj.publish(model.MixJobProgress{
		JobID:    job.ID,
		Status:   model.MixStatusComplete,
		Ratio:    1,
		Elapsed:  artifact.DurationMs,
		Total:    artifact.DurationMs,
		Finished: true,
	})
	logger.Info("混音任务完成",
		logger.String("jobId", job.ID),
		logger.String("outputKey", outputKey),
		logger.Float64("durationMs", artifact.DurationMs),
		logger.Int64("size", artifact.Size))
}

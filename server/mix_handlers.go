package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"Bt1QLooper/cache"
	"Bt1QLooper/core/mix"
	"Bt1QLooper/logger"
	"Bt1QLooper/model"
	"Bt1QLooper/storage"

	"github.com/gorilla/mux"
)

// CreateMixHandler 接受一个异步混音任务。
// 请求里没有给的参数取用户设置里的默认值。
func (h *APIHandler) CreateMixHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req model.CreateMixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	settings, err := h.settingsRepo.GetSettings(userID)
	if err != nil {
		logger.Error("查询用户设置失败", logger.ErrorField(err))
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	if req.LoopCount < 1 {
		req.LoopCount = settings.DefaultLoopCount
	}
	if req.FadeoutMs <= 0 {
		req.FadeoutMs = settings.DefaultFadeoutMs
	}

	// 空 trackIds 表示把整个列表按顺序混下来
	var tracks []*model.Track
	if len(req.TrackIDs) == 0 {
		tracks, err = h.trackRepo.GetTracksByUserID(userID)
	} else {
		tracks, err = h.trackRepo.GetTracksByIDs(userID, req.TrackIDs)
	}
	if err != nil {
		logger.Error("加载混音音轨失败", logger.ErrorField(err))
		http.Error(w, "Failed to load tracks", http.StatusUnprocessableEntity)
		return
	}

	job, err := h.jobs.StartJob(userID, req, tracks)
	if err != nil {
		var vErr *mix.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		logger.Error("启动混音任务失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to start mix job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"job":     job,
	})
}

// GetMixHandler 返回任务状态及最近一次进度快照
func (h *APIHandler) GetMixHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job, ok := h.ownedJob(w, r, userID)
	if !ok {
		return
	}

	progress, err := cache.GetJobProgress(job.ID)
	if err != nil {
		logger.Warn("读取任务进度失败", logger.ErrorField(err))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"job":      job,
		"progress": progress,
	})
}

// ListMixesHandler 返回用户的任务历史
func (h *APIHandler) ListMixesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobs, err := h.mixJobRepo.ListJobsByUser(userID, 50)
	if err != nil {
		logger.Error("查询任务历史失败", logger.ErrorField(err))
		http.Error(w, "Failed to list mix jobs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"jobs":    jobs,
	})
}

// CancelMixHandler 请求取消在途任务。取消是协作式的：
// 结果被丢弃，任务以 cancelled 状态落库。
func (h *APIHandler) CancelMixHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job, ok := h.ownedJob(w, r, userID)
	if !ok {
		return
	}

	if !h.jobs.Cancel(job.ID) {
		writeError(w, http.StatusConflict, "job is not running")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  model.MixStatusCancelled,
	})
}

// DownloadMixHandler 下发完成任务的成品，优先走Redis热缓存
func (h *APIHandler) DownloadMixHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job, ok := h.ownedJob(w, r, userID)
	if !ok {
		return
	}
	if job.Status != model.MixStatusComplete || job.OutputKey == "" {
		writeError(w, http.StatusConflict, "mix job is not complete")
		return
	}

	contentType := storage.InferContentType(job.OutputTarget)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+job.OutputTarget+"\"")

	if data, err := cache.GetArtifact(job.ID); err == nil && data != nil {
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	rc, err := h.sink.Fetch(ctx, job.OutputKey)
	if err != nil {
		logger.Error("获取成品失败",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
		http.Error(w, "Artifact not found", http.StatusNotFound)
		return
	}
	defer rc.Close()

	// 边下发边回填热缓存
	var buf bytes.Buffer
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(io.MultiWriter(w, &buf), rc); err != nil {
		logger.Warn("下发成品中断", logger.ErrorField(err))
		return
	}
	_ = cache.SetArtifact(job.ID, buf.Bytes())
}

// DeleteMixHandler 删除一条任务历史及其成品。
// 在途任务先取消再删。
func (h *APIHandler) DeleteMixHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job, ok := h.ownedJob(w, r, userID)
	if !ok {
		return
	}

	if h.jobs.IsRunning(job.ID) {
		writeError(w, http.StatusConflict, "cancel the running job before deleting it")
		return
	}

	// 成品和缓存尽力清理，失败不阻塞记录删除
	if job.OutputKey != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		if err := h.sink.Remove(ctx, job.OutputKey); err != nil {
			logger.Warn("删除成品失败",
				logger.String("jobId", job.ID),
				logger.ErrorField(err))
		}
	}
	_ = cache.DeleteArtifact(job.ID)
	_ = cache.DeleteJobProgress(job.ID)

	if err := h.mixJobRepo.DeleteJob(job.ID); err != nil {
		logger.Error("删除任务记录失败", logger.ErrorField(err))
		http.Error(w, "Failed to delete mix job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ownedJob 解析路径中的任务ID并校验归属
func (h *APIHandler) ownedJob(w http.ResponseWriter, r *http.Request, userID int64) (*model.MixJob, bool) {
	jobID := mux.Vars(r)["id"]
	job, err := h.mixJobRepo.GetJob(jobID)
	if err != nil {
		logger.Error("查询任务失败", logger.ErrorField(err))
		http.Error(w, "Failed to load mix job", http.StatusInternalServerError)
		return nil, false
	}
	if job == nil || job.UserID != userID {
		http.Error(w, "Mix job not found", http.StatusNotFound)
		return nil, false
	}
	return job, true
}

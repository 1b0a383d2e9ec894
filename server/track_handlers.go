package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"Bt1QLooper/cache"
	"Bt1QLooper/core/audio"
	"Bt1QLooper/core/mix"
	"Bt1QLooper/logger"
	"Bt1QLooper/model"
	"Bt1QLooper/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	minio "github.com/minio/minio-go/v7"
)

// GetTracksHandler 返回用户的音轨列表（按列表顺序）及主循环信息
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	tracks, err := h.trackRepo.GetTracksByUserID(userID)
	if err != nil {
		logger.Error("查询音轨列表失败", logger.ErrorField(err))
		http.Error(w, "Failed to list tracks", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tracks":  tracks,
		"master":  h.loopCalc.MasterLoopInfo(tracks),
	})
}

// UploadTrackHandler handles audio file uploads and metadata.
// Expected multipart form fields:
// - trackFile: the audio clip (WAV, AIFF, MP3, OGG; other formats are
//   transcoded to WAV on the way in)
// - title: track title (optional, defaults to the file name)
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max memory
		http.Error(w, fmt.Sprintf("Failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}

	trackFile, trackHeader, err := r.FormFile("trackFile")
	if err != nil {
		http.Error(w, "Missing 'trackFile' in form", http.StatusBadRequest)
		return
	}
	defer trackFile.Close()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(trackHeader.Filename, filepath.Ext(trackHeader.Filename))
	}

	// 先落到本地再处理，探测和转码都需要文件路径
	ext := strings.ToLower(filepath.Ext(trackHeader.Filename))
	if err := os.MkdirAll(h.cfg.AudioUploadDir, 0755); err != nil {
		http.Error(w, "Failed to prepare upload directory", http.StatusInternalServerError)
		return
	}
	localName := fmt.Sprintf("%s_%s%s", generateSafeFilenamePrefix(title), uuid.New().String()[:8], ext)
	localPath := filepath.Join(h.cfg.AudioUploadDir, localName)

	dst, err := os.Create(localPath)
	if err != nil {
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(dst, trackFile); err != nil {
		dst.Close()
		os.Remove(localPath)
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	dst.Close()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	// 注册表读不了的格式先转成 WAV
	sourcePath := localPath
	if !audio.SupportedFormat(ext) {
		wavPath := strings.TrimSuffix(localPath, ext) + ".wav"
		if err := h.transcoder.TranscodeToWAV(ctx, localPath, wavPath, h.cfg.SampleRate); err != nil {
			os.Remove(localPath)
			logger.Error("上传转码失败", logger.ErrorField(err))
			http.Error(w, "Unsupported or corrupt audio file", http.StatusUnprocessableEntity)
			return
		}
		os.Remove(localPath)
		sourcePath = wavPath
		ext = ".wav"
	}
	defer os.Remove(sourcePath)

	durationMs, err := audio.ProbeDurationMs(ctx, h.cfg.FFprobePath, sourcePath)
	if err != nil {
		logger.Error("探测音频时长失败", logger.ErrorField(err))
		http.Error(w, "Unreadable audio file", http.StatusUnprocessableEntity)
		return
	}

	objectKey := fmt.Sprintf("audio/%d/%s", userID, filepath.Base(sourcePath))
	if err := uploadFileToMinio(ctx, h.cfg.MinioBucket, sourcePath, objectKey); err != nil {
		logger.Error("上传到对象存储失败", logger.ErrorField(err))
		http.Error(w, "Failed to store audio", http.StatusInternalServerError)
		return
	}
	_ = cache.SetDurationMs(objectKey, durationMs)

	position, err := h.trackRepo.NextPosition(userID)
	if err != nil {
		logger.Error("计算音轨位置失败", logger.ErrorField(err))
		http.Error(w, "Failed to create track", http.StatusInternalServerError)
		return
	}

	track := &model.Track{
		UserID:     userID,
		Title:      title,
		FileName:   trackHeader.Filename,
		ObjectKey:  objectKey,
		Format:     strings.TrimPrefix(ext, "."),
		DurationMs: durationMs,
		Speed:      1.0,
		Volume:     100,
		Position:   position,
		Status:     "completed",
	}
	trackID, err := h.trackRepo.CreateTrack(track)
	if err != nil {
		logger.Error("登记音轨失败", logger.ErrorField(err))
		http.Error(w, "Failed to create track", http.StatusInternalServerError)
		return
	}
	track.ID = trackID

	logger.Info("音轨上传完成",
		logger.Int64("trackId", trackID),
		logger.String("title", title),
		logger.Float64("durationMs", durationMs))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"track":   track,
	})
}

// UpdateTrackHandler 更新音轨的速度/音量/位置/标题
func (h *APIHandler) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	track, ok := h.ownedTrack(w, r, userID)
	if !ok {
		return
	}

	var req model.UpdateTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// 引擎定义的参数域在写入前校验
	if req.Speed != nil && (*req.Speed < mix.MinSpeed || *req.Speed > mix.MaxSpeed) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("speed %.3f outside [%.2f, %.2f]", *req.Speed, mix.MinSpeed, mix.MaxSpeed))
		return
	}
	if req.Volume != nil && (*req.Volume < 0 || *req.Volume > 100) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("volume %d outside [0, 100]", *req.Volume))
		return
	}
	if req.Position != nil && *req.Position < 0 {
		writeError(w, http.StatusBadRequest, "position must be non-negative")
		return
	}

	if err := h.trackRepo.UpdateTrackParams(track.ID, &req); err != nil {
		logger.Error("更新音轨失败", logger.ErrorField(err))
		http.Error(w, "Failed to update track", http.StatusInternalServerError)
		return
	}

	updated, err := h.trackRepo.GetTrackByID(track.ID)
	if err != nil || updated == nil {
		http.Error(w, "Failed to reload track", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"track":   updated,
	})
}

// DeleteTrackHandler 删除音轨。删掉主音轨会使其它音轨的循环信息失效，
// 下一次查询会基于新的首音轨重新计算。
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	track, ok := h.ownedTrack(w, r, userID)
	if !ok {
		return
	}

	if err := h.trackRepo.DeleteTrack(track.ID); err != nil {
		logger.Error("删除音轨失败", logger.ErrorField(err))
		http.Error(w, "Failed to delete track", http.StatusInternalServerError)
		return
	}

	// 源对象和时长缓存尽力清理，失败不影响删除结果
	_ = cache.DeleteDuration(track.ObjectKey)
	if client := storage.GetMinioClient(); client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = client.RemoveObject(ctx, h.cfg.MinioBucket, track.ObjectKey, minio.RemoveObjectOptions{})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ownedTrack 解析路径中的音轨ID并校验归属
func (h *APIHandler) ownedTrack(w http.ResponseWriter, r *http.Request, userID int64) (*model.Track, bool) {
	idStr := mux.Vars(r)["id"]
	trackID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid track id", http.StatusBadRequest)
		return nil, false
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		logger.Error("查询音轨失败", logger.ErrorField(err))
		http.Error(w, "Failed to load track", http.StatusInternalServerError)
		return nil, false
	}
	if track == nil || track.UserID != userID {
		http.Error(w, "Track not found", http.StatusNotFound)
		return nil, false
	}
	return track, true
}

// uploadFileToMinio 把本地文件推入对象存储
func uploadFileToMinio(ctx context.Context, bucket, path, objectKey string) error {
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

	_, err = client.PutObject(ctx, bucket, objectKey, f, info.Size(),
		minio.PutObjectOptions{ContentType: storage.InferContentType(path)})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return nil
}

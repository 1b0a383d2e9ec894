package server

import (
	"net/http"
	"strconv"

	"Bt1QLooper/logger"

	"github.com/gorilla/mux"
)

// GetMasterLoopHandler 返回当前会话的主循环信息：
// 列表中的首音轨及其变速后的时长
func (h *APIHandler) GetMasterLoopHandler(w http.ResponseWriter, r *http.Request) {
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
		"master":  h.loopCalc.MasterLoopInfo(tracks),
	})
}

// GetTrackLoopHandler 返回某条音轨相对主循环的平铺信息：
// 循环次数、重启时间点，以及该音轨当前是否应当循环
func (h *APIHandler) GetTrackLoopHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	idStr := mux.Vars(r)["id"]
	trackID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid track id", http.StatusBadRequest)
		return
	}

	tracks, err := h.trackRepo.GetTracksByUserID(userID)
	if err != nil {
		logger.Error("查询音轨列表失败", logger.ErrorField(err))
		http.Error(w, "Failed to list tracks", http.StatusInternalServerError)
		return
	}

	settings, err := h.settingsRepo.GetSettings(userID)
	if err != nil {
		logger.Error("查询用户设置失败", logger.ErrorField(err))
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}

	info := h.loopCalc.TrackLoopInfo(trackID, tracks)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"loopInfo":   info,
		"shouldLoop": h.loopCalc.ShouldTrackLoop(trackID, settings.LoopModeEnabled, tracks),
	})
}

// GetExportDurationHandler 预览导出时长：M · loopCount + fadeout
func (h *APIHandler) GetExportDurationHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	settings, err := h.settingsRepo.GetSettings(userID)
	if err != nil {
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}

	loopCount := settings.DefaultLoopCount
	if v := r.URL.Query().Get("loopCount"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			loopCount = n
		}
	}
	fadeoutMs := settings.DefaultFadeoutMs
	if v := r.URL.Query().Get("fadeoutMs"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			fadeoutMs = f
		}
	}

	tracks, err := h.trackRepo.GetTracksByUserID(userID)
	if err != nil {
		http.Error(w, "Failed to list tracks", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"loopCount":        loopCount,
		"fadeoutMs":        fadeoutMs,
		"exportDurationMs": h.loopCalc.ExportDurationMs(loopCount, fadeoutMs, tracks),
	})
}

package server

import (
	"encoding/json"
	"net/http"

	"Bt1QLooper/logger"
	"Bt1QLooper/model"
)

// GetSettingsHandler 返回用户的导出默认设置
func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	settings, err := h.settingsRepo.GetSettings(userID)
	if err != nil {
		logger.Error("查询用户设置失败", logger.ErrorField(err))
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": settings,
	})
}

// UpdateSettingsHandler 保存用户的导出默认设置
func (h *APIHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var settings model.UserSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if settings.DefaultLoopCount < 1 {
		writeError(w, http.StatusBadRequest, "defaultLoopCount must be at least 1")
		return
	}
	if settings.DefaultFadeoutMs < 0 {
		writeError(w, http.StatusBadRequest, "defaultFadeoutMs must be non-negative")
		return
	}

	settings.UserID = userID
	if err := h.settingsRepo.SaveSettings(&settings); err != nil {
		logger.Error("保存用户设置失败", logger.ErrorField(err))
		http.Error(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": settings,
	})
}

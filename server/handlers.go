package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"Bt1QLooper/config"
	"Bt1QLooper/core/audio"
	"Bt1QLooper/core/loop"
	"Bt1QLooper/logger"
	"Bt1QLooper/repository"
	"Bt1QLooper/storage"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	trackRepo    repository.TrackRepository
	userRepo     repository.UserRepository
	settingsRepo *repository.SettingsRepository
	mixJobRepo   *repository.MixJobRepository
	loopCalc     *loop.Calculator
	transcoder   audio.Transcoder
	sink         storage.ArtifactSink
	jobs         *JobManager
	cfg          *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	userRepo repository.UserRepository,
	settingsRepo *repository.SettingsRepository,
	mixJobRepo *repository.MixJobRepository,
	transcoder audio.Transcoder,
	sink storage.ArtifactSink,
	jobs *JobManager,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo:    trackRepo,
		userRepo:     userRepo,
		settingsRepo: settingsRepo,
		mixJobRepo:   mixJobRepo,
		loopCalc:     loop.NewCalculator(),
		transcoder:   transcoder,
		sink:         sink,
		jobs:         jobs,
		cfg:          cfg,
	}
}

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)
var multipleSpaces = regexp.MustCompile(`\s+`)

// generateSafeFilenamePrefix sanitizes a track title into a storage-safe
// object name fragment.
func generateSafeFilenamePrefix(title string) string {
	if strings.TrimSpace(title) == "" {
		title = "Untitled_Track"
	}

	base := strings.TrimSpace(title)
	// Replace multiple spaces with a single underscore
	base = multipleSpaces.ReplaceAllString(base, "_")
	// Replace known problematic characters or any non-alphanumeric (excluding _, -, .)
	base = nonAlphaNumeric.ReplaceAllString(base, "")

	maxLength := 150
	if len(base) > maxLength {
		base = base[:maxLength]
	}
	if base == "" {
		base = "fallback_filename"
	}
	return base
}

// writeJSON 输出JSON响应
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("编码响应失败", logger.ErrorField(err))
	}
}

// writeError 输出统一格式的错误响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

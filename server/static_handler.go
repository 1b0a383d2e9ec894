package server

import (
	"net/http"
	"path/filepath"
	"strings"

	"Bt1QLooper/config"
	"Bt1QLooper/storage"
)

// StaticHandler serves locally exported artifacts from the output
// directory. Only used when the local sink is active; MinIO-backed
// artifacts go through the download endpoint instead.
type StaticHandler struct {
	outputDir string
}

func NewStaticHandler(cfg *config.Config) *StaticHandler {
	return &StaticHandler{outputDir: cfg.OutputDir}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/exports/")
	if name == "" || strings.Contains(name, "..") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	path := filepath.Join(h.outputDir, filepath.Base(name))
	w.Header().Set("Content-Type", storage.InferContentType(path))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, path)
}

package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsImportCandidate(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"drums.wav", true},
		{"bass.MP3", true},
		{"pad.aiff", true},
		{"pad.aif", true},
		{"voice.ogg", true},
		{"clip.m4a", true},
		{"clip.flac", true},
		{"/drop/incoming/loop.wav", true},
		{".hidden.wav", false},
		{"half-written.wav.part", false},
		{"scratch.tmp", false},
		{"notes.txt", false},
		{"cover.jpg", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsImportCandidate(tt.path); got != tt.want {
			t.Errorf("IsImportCandidate(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWaitForStableSizeSettledFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFFdata"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	stop := make(chan struct{})
	if !waitForStableSize(path, 5, time.Millisecond, stop) {
		t.Fatal("settled file reported as unstable")
	}
}

func TestWaitForStableSizeMissingFile(t *testing.T) {
	stop := make(chan struct{})
	if waitForStableSize(filepath.Join(t.TempDir(), "gone.wav"), 3, time.Millisecond, stop) {
		t.Fatal("missing file reported as stable")
	}
}

func TestWaitForStableSizeEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	// A zero-byte file never counts as settled.
	stop := make(chan struct{})
	if waitForStableSize(path, 3, time.Millisecond, stop) {
		t.Fatal("empty file reported as stable")
	}
}

func TestWaitForStableSizeStopSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	stop := make(chan struct{})
	close(stop)
	// First sample cannot match anything yet, so the closed stop channel
	// has to win before a second sample is taken.
	if waitForStableSize(path, 10, time.Hour, stop) {
		t.Fatal("stopped watcher still reported stability")
	}
}

package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"Bt1QLooper/logger"
)

// FFmpegTranscoder implements the Transcoder interface using ffmpeg.
type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegTranscoder creates a new FFmpegTranscoder.
func NewFFmpegTranscoder(ffmpegPath, ffprobePath string) *FFmpegTranscoder {
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// DetectCodec 获取音频文件第一条音频流的编码名称
func (p *FFmpegTranscoder) DetectCodec(ctx context.Context, inputFile string) (string, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	var probeData struct {
		Streams []struct {
			CodecName string `json:"codec_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return "", fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}

	if len(probeData.Streams) == 0 {
		return "", fmt.Errorf("no audio streams found in file")
	}

	return probeData.Streams[0].CodecName, nil
}

// TranscodeToWAV rewrites any ffmpeg-readable source as 16-bit stereo PCM
// WAV at the given sample rate, so the in-process decoder registry can read
// it afterwards.
func (p *FFmpegTranscoder) TranscodeToWAV(ctx context.Context, inputFile, outputFile string, sampleRate int) error {
	outputDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	args := []string{
		"-y",
		"-i", inputFile,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "2",
		"-f", "wav",
		outputFile,
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("转码导入音频",
		logger.String("input", inputFile),
		logger.String("output", outputFile),
		logger.Int("sampleRate", sampleRate))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}

	logger.Info("导入音频转码完成",
		logger.String("input", inputFile),
		logger.String("output", outputFile))
	return nil
}

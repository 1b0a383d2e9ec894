package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeDurationMs asks ffprobe for a file's duration in milliseconds.
func ProbeDurationMs(ctx context.Context, ffprobePath, filePath string) (float64, error) {
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", filePath, err, stderr.String())
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output for %s: %w", filePath, err)
	}
	if result.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", filePath)
	}

	seconds, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q from ffprobe for %s: %w", result.Format.Duration, filePath, err)
	}
	return seconds * 1000.0, nil
}

package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// FFmpegEncoder compiles videos by invoking ffmpeg: the still image looped
// under the audio track, portrait 1080x1920, H.264 + AAC.
type FFmpegEncoder struct {
	Path string
}

// NewFFmpegEncoder returns an encoder using the given ffmpeg binary,
// defaulting to "ffmpeg" on PATH.
func NewFFmpegEncoder(path string) FFmpegEncoder {
	if path == "" {
		path = "ffmpeg"
	}
	return FFmpegEncoder{Path: path}
}

func (e FFmpegEncoder) Compile(ctx context.Context, imagePath, audioPath, outPath string) error {
	cmd := exec.CommandContext(ctx, e.Path,
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-shortest",
		"-vf", "scale=1080:1920,format=yuv420p",
		"-c:v", "libx264",
		"-c:a", "aac",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(string(out), 400))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/storyreel/storyreel/pkg/file"
)

// FFmpeg wraps the ffmpeg/ffprobe command line tools for the small set of
// operations the pipeline needs: probing, silence and placeholder
// generation, remote clip download and lossless concatenation.
type FFmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
	runner     Runner
}

type FFmpegOption func(*FFmpeg)

func WithCommands(ffmpegCmd, ffprobeCmd string) FFmpegOption {
	return func(f *FFmpeg) {
		f.ffmpegCmd = ffmpegCmd
		f.ffprobeCmd = ffprobeCmd
	}
}

func WithRunner(r Runner) FFmpegOption {
	return func(f *FFmpeg) {
		f.runner = r
	}
}

func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	ff := &FFmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
		runner:     NewExecRunner(),
	}
	for _, opt := range opts {
		opt(ff)
	}
	return ff
}

// Command returns the configured ffmpeg executable name.
func (ff *FFmpeg) Command() string {
	return ff.ffmpegCmd
}

// ProbeDuration reads a media file's duration in seconds via ffprobe.
func (ff *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	output, err := ff.runner.Output(ctx, ff.ffprobeCmd,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse probed duration of %s: %w", path, err)
	}
	return duration, nil
}

// GenerateSilence writes a silent audio track of the given length. The codec
// follows the output extension so the file stays playable as-is.
func (ff *FFmpeg) GenerateSilence(ctx context.Context, outputPath string, seconds float64) error {
	if err := file.EnsureDir(filepath.Dir(outputPath)); err != nil {
		return err
	}

	codec := "aac"
	if strings.EqualFold(filepath.Ext(outputPath), ".mp3") {
		codec = "libmp3lame"
	}

	return ff.runner.Run(ctx, ff.ffmpegCmd,
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-t", formatSeconds(seconds),
		"-c:a", codec,
		"-b:a", "192k",
		"-y", outputPath,
	)
}

// GeneratePlaceholderClip writes a vertical solid-color clip with the label
// drawn in the middle. Used when every richer background source failed.
func (ff *FFmpeg) GeneratePlaceholderClip(ctx context.Context, outputPath, label, color string, seconds float64) error {
	if err := file.EnsureDir(filepath.Dir(outputPath)); err != nil {
		return err
	}

	source := fmt.Sprintf("color=c=%s:size=1080x1920:duration=%s", color, formatSeconds(seconds))
	drawtext := fmt.Sprintf("drawtext=text='%s':fontsize=60:fontcolor=white:x=(w-text_w)/2:y=(h-text_h)/2",
		EscapeFilterText(label))

	return ff.runner.Run(ctx, ff.ffmpegCmd,
		"-f", "lavfi",
		"-i", source,
		"-vf", drawtext,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-y", outputPath,
	)
}

// DownloadClip stream-copies a remote clip to disk, trimmed to maxSeconds.
func (ff *FFmpeg) DownloadClip(ctx context.Context, url, outputPath string, maxSeconds float64) error {
	if err := file.EnsureDir(filepath.Dir(outputPath)); err != nil {
		return err
	}

	if err := ff.runner.Run(ctx, ff.ffmpegCmd,
		"-i", url,
		"-c", "copy",
		"-t", formatSeconds(maxSeconds),
		"-y", outputPath,
	); err != nil {
		return fmt.Errorf("download clip %s: %w", url, err)
	}
	return nil
}

// ConcatAudio joins audio parts losslessly (stream copy) in the given order
// using ffmpeg's concat demuxer.
func (ff *FFmpeg) ConcatAudio(ctx context.Context, parts []string, outputPath string) error {
	if len(parts) == 0 {
		return fmt.Errorf("no audio parts to concatenate")
	}
	if err := file.EnsureDir(filepath.Dir(outputPath)); err != nil {
		return err
	}

	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		lines = append(lines, fmt.Sprintf("file '%s'", part))
	}

	listPath := outputPath + ".concat.txt"
	if err := os.WriteFile(listPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return err
	}
	defer os.Remove(listPath)

	return ff.runner.Run(ctx, ff.ffmpegCmd,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", outputPath,
	)
}

// EscapeFilterText escapes characters that are meaningful inside ffmpeg
// filter arguments (drawtext in particular).
func EscapeFilterText(text string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
		`,`, `\,`,
	)
	return replacer.Replace(text)
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

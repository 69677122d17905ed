package compose

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/storyreel/storyreel/internal/captions"
	"github.com/storyreel/storyreel/internal/media"
	"github.com/storyreel/storyreel/pkg/file"
	"github.com/storyreel/storyreel/pkg/log"
)

const (
	frameWidth  = 1080
	frameHeight = 1920

	// Silence appended after the narration ends.
	outroPadSeconds = 0.5

	captionFadeSeconds = 0.15
	cardFadeSeconds    = 0.3

	voiceGain = 1.0
	musicGain = 0.25
)

// CardRenderer produces the intro story-card image. Rendering failures are
// absorbed; the video is composed without the card.
type CardRenderer interface {
	Render(ctx context.Context, title, outputPath string) error
}

// Spec describes one composition: resolved inputs plus the caption track.
type Spec struct {
	ID            string
	VoiceoverPath string
	// VoiceDuration is the fallback when the voiceover cannot be probed.
	VoiceDuration  float64
	BackgroundPath string
	MusicPath      string
	Title          string
	// CardSeconds is how long the title card stays on screen; zero disables it.
	CardSeconds   float64
	CaptionGroups []captions.Group
	OutputDir     string
}

// Engine assembles the final vertical video with a single ffmpeg invocation
// and reports encode progress while it runs.
type Engine struct {
	ff      *media.FFmpeg
	cards   CardRenderer
	tempDir string

	// run streams stdout lines from the encode; overridable in tests.
	run func(ctx context.Context, name string, args []string, onLine func(string)) error
}

type Option func(*Engine)

func WithCardRenderer(cards CardRenderer) Option {
	return func(e *Engine) { e.cards = cards }
}

func NewEngine(ff *media.FFmpeg, tempDir string, opts ...Option) *Engine {
	e := &Engine{
		ff:      ff,
		tempDir: tempDir,
		run:     runStreaming,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compose renders the final video and returns its path. onProgress receives
// encode percentages in [0,100]; it may be nil.
func (e *Engine) Compose(ctx context.Context, spec Spec, onProgress func(pct int)) (string, error) {
	if spec.VoiceoverPath == "" || spec.BackgroundPath == "" {
		return "", fmt.Errorf("composition needs a voiceover and a background")
	}
	if err := file.EnsureDir(spec.OutputDir); err != nil {
		return "", err
	}

	duration, err := e.ff.ProbeDuration(ctx, spec.VoiceoverPath)
	if err != nil {
		if spec.VoiceDuration <= 0 {
			return "", fmt.Errorf("probe voiceover: %w", err)
		}
		log.Warn("Could not probe voiceover, using reported duration %.2fs: %v", spec.VoiceDuration, err)
		duration = spec.VoiceDuration
	}
	finalDuration := duration + outroPadSeconds

	cardPath := e.renderCard(ctx, spec)
	defer func() {
		if cardPath != "" {
			_ = os.Remove(cardPath)
		}
	}()

	outputPath := filepath.Join(spec.OutputDir, fmt.Sprintf("video_%s.mp4", spec.ID))
	args := buildArgs(spec, cardPath, finalDuration, outputPath)

	log.Info("Composing %s: %.2fs, %d caption groups, card=%v",
		spec.ID, finalDuration, len(spec.CaptionGroups), cardPath != "")

	parse := newProgressParser(finalDuration, onProgress)
	if err := e.run(ctx, e.ff.Command(), args, parse); err != nil {
		return "", fmt.Errorf("encode %s: %w", spec.ID, err)
	}
	if onProgress != nil {
		onProgress(100)
	}
	return outputPath, nil
}

// renderCard returns the card image path, or "" when the card is disabled
// or rendering failed.
func (e *Engine) renderCard(ctx context.Context, spec Spec) string {
	if e.cards == nil || spec.Title == "" || spec.CardSeconds <= 0 {
		return ""
	}
	cardPath := filepath.Join(e.tempDir, fmt.Sprintf("card_%s_%s.png", spec.ID, uuid.NewString()))
	if err := e.cards.Render(ctx, spec.Title, cardPath); err != nil {
		log.Warn("Title card render failed, composing without card: %v", err)
		return ""
	}
	return cardPath
}

func buildArgs(spec Spec, cardPath string, finalDuration float64, outputPath string) []string {
	args := []string{
		"-y",
		"-stream_loop", "-1", "-i", spec.BackgroundPath,
		"-i", spec.VoiceoverPath,
	}

	musicInput := -1
	cardInput := -1
	next := 2
	if spec.MusicPath != "" {
		args = append(args, "-stream_loop", "-1", "-i", spec.MusicPath)
		musicInput = next
		next++
	}
	if cardPath != "" {
		args = append(args, "-loop", "1", "-i", cardPath)
		cardInput = next
	}

	filter := buildFilterGraph(spec, musicInput, cardInput, finalDuration)

	args = append(args,
		"-filter_complex", filter,
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "28",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-t", formatSeconds(finalDuration),
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	)
	return args
}

func buildFilterGraph(spec Spec, musicInput, cardInput int, finalDuration float64) string {
	var chains []string

	// Background fills the vertical frame regardless of source shape.
	video := fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1",
		frameWidth, frameHeight, frameWidth, frameHeight)
	for _, group := range spec.CaptionGroups {
		for _, d := range captionDrawtexts(group) {
			video += "," + d
		}
	}
	label := "[vout]"
	if cardInput >= 0 {
		label = "[base]"
	}
	chains = append(chains, video+label)

	if cardInput >= 0 {
		cardEnd := spec.CardSeconds
		if cardEnd > finalDuration {
			cardEnd = finalDuration
		}
		chains = append(chains, fmt.Sprintf(
			"[%d:v]format=rgba,fade=t=out:st=%s:d=%s:alpha=1[card]",
			cardInput, formatSeconds(cardEnd-cardFadeSeconds), formatSeconds(cardFadeSeconds)))
		chains = append(chains, fmt.Sprintf(
			"[base][card]overlay=(W-w)/2:(H-h)/2:enable='between(t,0,%s)'[vout]",
			formatSeconds(cardEnd)))
	}

	if musicInput >= 0 {
		chains = append(chains, fmt.Sprintf("[1:a]volume=%.2f[va]", voiceGain))
		chains = append(chains, fmt.Sprintf("[%d:a]volume=%.2f[ma]", musicInput, musicGain))
		chains = append(chains, "[va][ma]amix=inputs=2:duration=first:dropout_transition=2[aout]")
	} else {
		chains = append(chains, fmt.Sprintf("[1:a]volume=%.2f[aout]", voiceGain))
	}

	return strings.Join(chains, ";")
}

// captionDrawtexts builds one drawtext filter per caption line, centered,
// with short alpha ramps at the group boundaries.
func captionDrawtexts(group captions.Group) []string {
	alpha := fmt.Sprintf(
		"if(lt(t\\,%[1]s+%[3]s)\\,(t-%[1]s)/%[3]s\\,if(gt(t\\,%[2]s-%[3]s)\\,(%[2]s-t)/%[3]s\\,1))",
		formatSeconds(group.Start), formatSeconds(group.End), formatSeconds(captionFadeSeconds))
	enable := fmt.Sprintf("between(t\\,%s\\,%s)", formatSeconds(group.Start), formatSeconds(group.End))

	filters := make([]string, 0, len(group.Lines))
	for i, line := range group.Lines {
		y := "(h-text_h)/2"
		if len(group.Lines) == 2 {
			if i == 0 {
				y = "(h-text_h)/2-55"
			} else {
				y = "(h-text_h)/2+55"
			}
		}
		filters = append(filters, fmt.Sprintf(
			"drawtext=text='%s':fontsize=72:fontcolor=white:borderw=4:bordercolor=black:"+
				"x=(w-text_w)/2:y=%s:alpha='%s':enable='%s'",
			media.EscapeFilterText(line), y, alpha, enable))
	}
	return filters
}

// newProgressParser consumes ffmpeg -progress key=value lines and converts
// out_time_ms into a percentage of the final duration.
func newProgressParser(finalDuration float64, onProgress func(pct int)) func(string) {
	if onProgress == nil {
		return func(string) {}
	}
	totalMicros := finalDuration * 1e6
	last := -1
	return func(line string) {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || key != "out_time_ms" {
			return
		}
		micros, err := strconv.ParseFloat(value, 64)
		if err != nil || totalMicros <= 0 {
			return
		}
		pct := int(micros / totalMicros * 100)
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		if pct != last {
			last = pct
			onProgress(pct)
		}
	}
}

// runStreaming executes the command and feeds each stdout line to onLine.
func runStreaming(ctx context.Context, name string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	if err := scanLines(stdout, onLine); err != nil {
		// The encode result is governed by the process exit; a broken
		// progress pipe only stops the percentage updates.
		log.Warn("Encoder progress stream: %v", err)
	}

	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 400 {
			msg = msg[len(msg)-400:]
		}
		return fmt.Errorf("%w: %s", err, msg)
	}
	return nil
}

// scanLines feeds each line from r to onLine and reports any read error.
func scanLines(r io.Reader, onLine func(string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	return scanner.Err()
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

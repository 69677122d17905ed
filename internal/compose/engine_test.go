package compose

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/storyreel/internal/captions"
	"github.com/storyreel/storyreel/internal/media"
)

type probeRunner struct {
	duration string
	probeErr error
}

func (r *probeRunner) Run(_ context.Context, _ string, _ ...string) error {
	return nil
}

func (r *probeRunner) Output(_ context.Context, _ string, _ ...string) ([]byte, error) {
	if r.probeErr != nil {
		return nil, r.probeErr
	}
	return []byte(r.duration + "\n"), nil
}

type fakeCards struct {
	err   error
	calls int
}

func (c *fakeCards) Render(_ context.Context, _ string, outputPath string) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	return os.WriteFile(outputPath, []byte("png"), 0o644)
}

func newTestEngine(t *testing.T, runner media.Runner, opts ...Option) (*Engine, *[][]string) {
	t.Helper()
	ff := media.NewFFmpeg(media.WithRunner(runner))
	e := NewEngine(ff, t.TempDir(), opts...)

	var invocations [][]string
	e.run = func(_ context.Context, name string, args []string, _ func(string)) error {
		invocations = append(invocations, append([]string{name}, args...))
		return nil
	}
	return e, &invocations
}

func baseSpec(t *testing.T) Spec {
	t.Helper()
	return Spec{
		ID:             "job1",
		VoiceoverPath:  "/tmp/voice.mp3",
		BackgroundPath: "/tmp/bg.mp4",
		OutputDir:      t.TempDir(),
		CaptionGroups: []captions.Group{
			{Lines: []string{"HELLO WORLD."}, Start: 0, End: 0.9},
			{Lines: []string{"THIS IS A", "TEST!"}, Start: 1.5, End: 2.6},
		},
	}
}

func TestCompose_PadsVoiceoverDuration(t *testing.T) {
	e, invocations := newTestEngine(t, &probeRunner{duration: "12.0"})

	out, err := e.Compose(context.Background(), baseSpec(t), nil)

	require.NoError(t, err)
	assert.Equal(t, "video_job1.mp4", filepath.Base(out))

	require.Len(t, *invocations, 1)
	args := strings.Join((*invocations)[0], " ")
	assert.Contains(t, args, "-t 12.500")
	assert.Contains(t, args, "-stream_loop -1 -i /tmp/bg.mp4")
	assert.Contains(t, args, "-preset ultrafast")
	assert.Contains(t, args, "-crf 28")
	assert.Contains(t, args, "-movflags +faststart")
	assert.Contains(t, args, "-progress pipe:1")
}

func TestCompose_ProbeFailureFallsBackToReportedDuration(t *testing.T) {
	e, invocations := newTestEngine(t, &probeRunner{probeErr: fmt.Errorf("no ffprobe")})

	spec := baseSpec(t)
	spec.VoiceDuration = 8.0

	_, err := e.Compose(context.Background(), spec, nil)

	require.NoError(t, err)
	assert.Contains(t, strings.Join((*invocations)[0], " "), "-t 8.500")
}

func TestCompose_ProbeFailureWithoutFallbackErrors(t *testing.T) {
	e, _ := newTestEngine(t, &probeRunner{probeErr: fmt.Errorf("no ffprobe")})

	_, err := e.Compose(context.Background(), baseSpec(t), nil)
	require.Error(t, err)
}

func TestCompose_FilterGraphCarriesCaptions(t *testing.T) {
	e, invocations := newTestEngine(t, &probeRunner{duration: "12.0"})

	_, err := e.Compose(context.Background(), baseSpec(t), nil)
	require.NoError(t, err)

	filter := extractFilter(t, (*invocations)[0])
	assert.Contains(t, filter, "scale=1080:1920:force_original_aspect_ratio=increase")
	assert.Contains(t, filter, "crop=1080:1920")
	assert.Contains(t, filter, "HELLO WORLD.")
	assert.Contains(t, filter, "THIS IS A")
	assert.Contains(t, filter, "TEST!")
	// Three caption lines, three drawtext filters.
	assert.Equal(t, 3, strings.Count(filter, "drawtext="))
	assert.Contains(t, filter, "alpha=")
	assert.Contains(t, filter, "enable='between(t\\,1.500\\,2.600)'")
	// Two-line group splits above and below center.
	assert.Contains(t, filter, "(h-text_h)/2-55")
	assert.Contains(t, filter, "(h-text_h)/2+55")
}

func TestCompose_VoiceOnlyAudioGraph(t *testing.T) {
	e, invocations := newTestEngine(t, &probeRunner{duration: "12.0"})

	_, err := e.Compose(context.Background(), baseSpec(t), nil)
	require.NoError(t, err)

	filter := extractFilter(t, (*invocations)[0])
	assert.Contains(t, filter, "[1:a]volume=1.00[aout]")
	assert.NotContains(t, filter, "amix")
}

func TestCompose_MixesMusicUnderVoice(t *testing.T) {
	e, invocations := newTestEngine(t, &probeRunner{duration: "12.0"})

	spec := baseSpec(t)
	spec.MusicPath = "/tmp/music.mp3"

	_, err := e.Compose(context.Background(), spec, nil)
	require.NoError(t, err)

	filter := extractFilter(t, (*invocations)[0])
	assert.Contains(t, filter, "[1:a]volume=1.00[va]")
	assert.Contains(t, filter, "[2:a]volume=0.25[ma]")
	assert.Contains(t, filter, "amix=inputs=2:duration=first")
}

func TestCompose_TitleCardOverlayWithFadeOut(t *testing.T) {
	cards := &fakeCards{}
	e, invocations := newTestEngine(t, &probeRunner{duration: "12.0"}, WithCardRenderer(cards))

	spec := baseSpec(t)
	spec.Title = "A story"
	spec.CardSeconds = 3.5

	_, err := e.Compose(context.Background(), spec, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cards.calls)

	filter := extractFilter(t, (*invocations)[0])
	assert.Contains(t, filter, "fade=t=out:st=3.200:d=0.300:alpha=1")
	assert.Contains(t, filter, "overlay=(W-w)/2:(H-h)/2:enable='between(t,0,3.500)'")

	args := strings.Join((*invocations)[0], " ")
	assert.Contains(t, args, "-loop 1 -i ")
}

func TestCompose_CardRenderFailureDegrades(t *testing.T) {
	cards := &fakeCards{err: fmt.Errorf("no browser")}
	e, invocations := newTestEngine(t, &probeRunner{duration: "12.0"}, WithCardRenderer(cards))

	spec := baseSpec(t)
	spec.Title = "A story"
	spec.CardSeconds = 3.5

	_, err := e.Compose(context.Background(), spec, nil)
	require.NoError(t, err)

	filter := extractFilter(t, (*invocations)[0])
	assert.NotContains(t, filter, "overlay")
}

func TestCompose_ReportsEncodeProgress(t *testing.T) {
	e, _ := newTestEngine(t, &probeRunner{duration: "12.0"})

	var reported []int
	e.run = func(_ context.Context, _ string, _ []string, onLine func(string)) error {
		// 12.5s final duration.
		onLine("frame=100")
		onLine("out_time_ms=3125000") // 3.125s -> 25%
		onLine("out_time_ms=6250000") // 6.25s -> 50%
		onLine("out_time_ms=garbage")
		onLine("out_time_ms=12500000") // -> 100%
		return nil
	}

	_, err := e.Compose(context.Background(), baseSpec(t), func(pct int) {
		reported = append(reported, pct)
	})

	require.NoError(t, err)
	assert.Equal(t, []int{25, 50, 100, 100}, reported)
}

func TestCompose_MissingInputs(t *testing.T) {
	e, _ := newTestEngine(t, &probeRunner{duration: "12.0"})

	_, err := e.Compose(context.Background(), Spec{ID: "x", OutputDir: t.TempDir()}, nil)
	require.Error(t, err)
}

func TestProgressParser_ClampsAndDeduplicates(t *testing.T) {
	var got []int
	parse := newProgressParser(10.0, func(pct int) { got = append(got, pct) })

	parse("out_time_ms=5000000")
	parse("out_time_ms=5000000")  // duplicate percent suppressed
	parse("out_time_ms=20000000") // past the end clamps to 100
	parse("speed=4.1x")

	assert.Equal(t, []int{50, 100}, got)
}

func TestScanLines_DeliversLinesAndReportsReadError(t *testing.T) {
	readErr := fmt.Errorf("pipe closed early")
	r := io.MultiReader(
		strings.NewReader("out_time_ms=1000000\nprogress=continue\n"),
		iotest.ErrReader(readErr),
	)

	var lines []string
	err := scanLines(r, func(line string) { lines = append(lines, line) })

	assert.Equal(t, []string{"out_time_ms=1000000", "progress=continue"}, lines)
	assert.ErrorIs(t, err, readErr)
}

func TestScanLines_CleanEOF(t *testing.T) {
	var lines []string
	err := scanLines(strings.NewReader("a=1\n"), func(line string) { lines = append(lines, line) })

	require.NoError(t, err)
	assert.Equal(t, []string{"a=1"}, lines)
}

func extractFilter(t *testing.T, invocation []string) string {
	t.Helper()
	for i, arg := range invocation {
		if arg == "-filter_complex" {
			require.Less(t, i+1, len(invocation))
			return invocation[i+1]
		}
	}
	t.Fatal("no -filter_complex in invocation")
	return ""
}

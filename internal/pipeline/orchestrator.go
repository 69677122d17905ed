package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storyreel/storyreel/internal/captions"
	"github.com/storyreel/storyreel/internal/compose"
	"github.com/storyreel/storyreel/internal/mediares"
	"github.com/storyreel/storyreel/internal/progress"
	"github.com/storyreel/storyreel/internal/store"
	"github.com/storyreel/storyreel/internal/story"
	"github.com/storyreel/storyreel/internal/voice"
	"github.com/storyreel/storyreel/pkg/log"
)

// Stage progress windows. Each stage reports within its own slice so the
// overall percentage only moves forward.
const (
	voiceWindowEnd   = 25
	mediaWindowEnd   = 40
	composeWindowEnd = 95

	tickInterval = 2 * time.Second
)

// Synthesizer produces the narration audio track.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outputPath string, opts voice.Options) (*voice.Track, error)
}

// MediaResolver resolves background video and music selections to assets.
type MediaResolver interface {
	ResolveVideo(ctx context.Context, id string) (mediares.Asset, error)
	ResolveMusic(ctx context.Context, id string) (mediares.Asset, error)
}

// Composer renders the final video.
type Composer interface {
	Compose(ctx context.Context, spec compose.Spec, onProgress func(pct int)) (string, error)
}

// RecordStore is the persistence boundary the pipeline writes results to.
type RecordStore interface {
	Get(ctx context.Context, id string) (store.Record, bool, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, videoPath, voiceoverPath string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}

// CreateRequest asks for one video to be produced from an existing content
// record and the client's media selections.
type CreateRequest struct {
	ContentID  string `json:"content_id"`
	Background string `json:"background_video"`
	Music      string `json:"background_music"`
}

// Orchestrator runs composition jobs in detached goroutines, bounded by a
// semaphore sized to the CPU count. Progress is published to the tracker
// under the content id; results are persisted to the record store.
type Orchestrator struct {
	synth    Synthesizer
	resolver MediaResolver
	composer Composer
	records  RecordStore
	tracker  *progress.Tracker

	tempDir    string
	uploadsDir string
	grace      time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

type Option func(*Orchestrator)

// WithMaxConcurrent caps the number of jobs encoding at once. Zero or
// negative keeps the CPU-count default.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sem = make(chan struct{}, n)
		}
	}
}

// WithClearGrace sets how long terminal progress stays readable before the
// entry is evicted.
func WithClearGrace(d time.Duration) Option {
	return func(o *Orchestrator) { o.grace = d }
}

func NewOrchestrator(
	synth Synthesizer,
	resolver MediaResolver,
	composer Composer,
	records RecordStore,
	tracker *progress.Tracker,
	tempDir, uploadsDir string,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		synth:      synth,
		resolver:   resolver,
		composer:   composer,
		records:    records,
		tracker:    tracker,
		tempDir:    tempDir,
		uploadsDir: uploadsDir,
		grace:      5 * time.Second,
		sem:        make(chan struct{}, runtime.NumCPU()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Launch starts the job and returns immediately. The caller observes the
// outcome through the progress tracker and the record store.
func (o *Orchestrator) Launch(req CreateRequest) {
	o.tracker.Set(req.ContentID, "Starting...", progress.Pct(0))
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.sem <- struct{}{}
		defer func() { <-o.sem }()
		o.runJob(context.Background(), req)
	}()
}

// Wait blocks until all launched jobs have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) runJob(ctx context.Context, req CreateRequest) {
	id := req.ContentID
	log.Info("Job %s: starting (background=%s music=%s)", id, req.Background, req.Music)

	rec, ok, err := o.records.Get(ctx, id)
	if err != nil {
		o.fail(ctx, id, fmt.Errorf("load content: %w", err))
		return
	}
	if !ok {
		o.fail(ctx, id, fmt.Errorf("content %s not found", id))
		return
	}
	if err := o.records.MarkProcessing(ctx, id); err != nil {
		o.fail(ctx, id, fmt.Errorf("mark processing: %w", err))
		return
	}

	track, err := o.synthesizeVoice(ctx, id, rec)
	if err != nil {
		o.fail(ctx, id, err)
		return
	}

	video, music, err := o.resolveMedia(ctx, id, req)
	if err != nil {
		o.fail(ctx, id, err)
		return
	}

	videoPath, err := o.composeVideo(ctx, id, rec, req, track, video, music)
	if err != nil {
		o.fail(ctx, id, err)
		return
	}

	o.tracker.Set(id, "Finalizing video...", progress.Pct(composeWindowEnd))
	if err := o.records.MarkCompleted(ctx, id, videoPath, track.Path); err != nil {
		o.fail(ctx, id, fmt.Errorf("persist result: %w", err))
		return
	}

	o.tracker.Set(id, "Video ready!", progress.Pct(100))
	o.scheduleClear(id)
	log.Info("Job %s: completed -> %s", id, videoPath)
}

// synthesizeVoice runs the TTS chain under an elapsed-time progress ticker
// scaled into the voice window.
func (o *Orchestrator) synthesizeVoice(ctx context.Context, id string, rec store.Record) (*voice.Track, error) {
	stop := o.startTicker(func(pct int) {
		o.tracker.Set(id, "Generating voiceover...", progress.Pct(pct))
	}, func(elapsed time.Duration) int {
		pct := 2 + int(elapsed.Seconds()/30*float64(voiceWindowEnd-2))
		if pct > voiceWindowEnd-1 {
			pct = voiceWindowEnd - 1
		}
		return pct
	})
	defer stop()

	script := story.VoiceoverScript(rec.StoryText)
	lang := story.DetectLanguage(script)
	outputPath := filepath.Join(o.tempDir, fmt.Sprintf("voice_%s.mp3", id))

	track, err := o.synth.Synthesize(ctx, script, outputPath, voice.Options{Language: lang})
	if err != nil {
		return nil, fmt.Errorf("synthesize voiceover: %w", err)
	}
	return track, nil
}

// resolveMedia resolves the background and music selections concurrently.
func (o *Orchestrator) resolveMedia(ctx context.Context, id string, req CreateRequest) (mediares.Asset, mediares.Asset, error) {
	o.tracker.Set(id, "Selecting background media...", progress.Pct(voiceWindowEnd))

	var video, music mediares.Asset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		video, err = o.resolver.ResolveVideo(gctx, req.Background)
		if err != nil {
			return fmt.Errorf("resolve background: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		music, err = o.resolver.ResolveMusic(gctx, req.Music)
		if err != nil {
			return fmt.Errorf("resolve music: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return mediares.Asset{}, mediares.Asset{}, err
	}

	o.tracker.Set(id, "Selecting background media...", progress.Pct(mediaWindowEnd))
	return video, music, nil
}

// composeVideo runs the encode. An elapsed-time ticker estimates progress
// until the encoder reports real percentages, then hands over.
func (o *Orchestrator) composeVideo(
	ctx context.Context,
	id string,
	rec store.Record,
	req CreateRequest,
	track *voice.Track,
	video, music mediares.Asset,
) (string, error) {
	o.tracker.Set(id, "Composing video...", progress.Pct(mediaWindowEnd))

	// The elapsed-time estimate and the encoder mapping share a floor, so
	// the published percent never moves backwards at the handover: the
	// encoder's first reports start at the bottom of the window, below
	// where the estimate may already have climbed.
	var (
		pctMu sync.Mutex
		floor = mediaWindowEnd
	)
	setPct := func(pct int) {
		pctMu.Lock()
		if pct < floor {
			pct = floor
		}
		floor = pct
		pctMu.Unlock()
		o.tracker.Set(id, "Composing video...", progress.Pct(pct))
	}

	stop := o.startTicker(setPct, func(elapsed time.Duration) int {
		pct := mediaWindowEnd + 5 + int(elapsed.Seconds()/60*45)
		if pct > 90 {
			pct = 90
		}
		return pct
	})
	var handover sync.Once
	defer stop()

	title, _ := story.Parse(rec.StoryText)
	groups := o.captionGroups(track)

	spec := compose.Spec{
		ID:             id,
		VoiceoverPath:  track.Path,
		VoiceDuration:  track.Duration,
		BackgroundPath: video.Location,
		MusicPath:      music.Location,
		Title:          title,
		CardSeconds:    story.CardReadTime(title),
		CaptionGroups:  groups,
		OutputDir:      o.uploadsDir,
	}

	videoPath, err := o.composer.Compose(ctx, spec, func(encodePct int) {
		handover.Do(stop)
		pct := mediaWindowEnd + encodePct*(composeWindowEnd-mediaWindowEnd)/100
		if pct > composeWindowEnd {
			pct = composeWindowEnd
		}
		setPct(pct)
	})
	if err != nil {
		return "", fmt.Errorf("compose video: %w", err)
	}
	return videoPath, nil
}

// captionGroups segments the narration's word timings, falling back to
// evenly spaced timings when no provider produced alignment.
func (o *Orchestrator) captionGroups(track *voice.Track) []captions.Group {
	timings := track.WordTimings
	if len(timings) == 0 {
		timings = captions.EvenTimings(track.Text, track.Duration)
	}
	return captions.Segment(timings)
}

// startTicker publishes an elapsed-time progress estimate through set until
// the returned stop function is called. Stop is safe to call more than once.
func (o *Orchestrator) startTicker(set func(pct int), estimate func(elapsed time.Duration) int) func() {
	done := make(chan struct{})
	var once sync.Once
	start := time.Now()

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				set(estimate(time.Since(start)))
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

// fail publishes the terminal error and persists it. The progress entry is
// left in place so a polling client can observe the failure; the HTTP layer
// evicts it once served.
func (o *Orchestrator) fail(ctx context.Context, id string, err error) {
	log.Error("Job %s: %v", id, err)
	o.tracker.Set(id, fmt.Sprintf("Error: %v", err), nil)
	if storeErr := o.records.MarkFailed(ctx, id, err.Error()); storeErr != nil {
		log.Error("Job %s: persist failure state: %v", id, storeErr)
	}
}

// scheduleClear evicts the progress entry after the grace period so late
// pollers can still observe the terminal state.
func (o *Orchestrator) scheduleClear(id string) {
	time.AfterFunc(o.grace, func() {
		o.tracker.Clear(id)
	})
}

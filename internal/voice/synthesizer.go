package voice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/storyreel/storyreel/internal/captions"
	"github.com/storyreel/storyreel/internal/config"
	"github.com/storyreel/storyreel/internal/media"
	"github.com/storyreel/storyreel/pkg/log"
)

// Synthesizer tries a fixed priority order of TTS providers and returns the
// first success. Individual provider failures are logged and swallowed; the
// final placeholder tier only fails when ffmpeg itself is unavailable, in
// which case the whole call errors.
type Synthesizer struct {
	providers []Provider
}

func NewSynthesizer(providers ...Provider) *Synthesizer {
	return &Synthesizer{providers: providers}
}

// NewFromConfig assembles the provider chain from configuration. Providers
// missing credentials are left out; the placeholder tier is always present.
func NewFromConfig(cfg config.VoiceConfig, tempDir string, ff *media.FFmpeg) *Synthesizer {
	httpClient := &http.Client{Timeout: 120 * time.Second}

	providers := make([]Provider, 0, 4)
	if cfg.GoogleCredentialsFile != "" {
		providers = append(providers, NewGoogleProvider(cfg.GoogleCredentialsFile, cfg.GoogleVoice, ff))
	}
	if cfg.SpeechAPIURL != "" && cfg.SpeechAPIKey != "" {
		speech := NewSpeechProvider(cfg.SpeechAPIURL, cfg.SpeechAPIKey, cfg.SpeechModel, cfg.SpeechVoice, tempDir, httpClient, ff)
		if cfg.WhisperCmd != "" {
			speech.transcriber = NewTranscriber(cfg.WhisperCmd, media.NewExecRunner())
		}
		providers = append(providers, speech)
	}
	if cfg.ElevenLabsAPIKey != "" && cfg.ElevenLabsVoiceID != "" {
		providers = append(providers, NewElevenLabsProvider(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, httpClient, ff))
	}
	providers = append(providers, NewPlaceholderProvider(ff))

	return NewSynthesizer(providers...)
}

// Synthesize runs the provider chain. The returned track always has a
// playable audio file at outputPath.
func (s *Synthesizer) Synthesize(ctx context.Context, text, outputPath string, opts Options) (*Track, error) {
	var lastErr error
	for _, provider := range s.providers {
		track, err := provider.Synthesize(ctx, text, outputPath, opts)
		if err != nil {
			log.Warn("Voice provider %s failed: %v", provider.Name(), err)
			lastErr = err
			continue
		}

		track.WordTimings = sanitizeTimings(track.WordTimings)
		log.Info("Voice synthesized with %s: %.2fs, %d word timings",
			provider.Name(), track.Duration, len(track.WordTimings))
		return track, nil
	}

	return nil, fmt.Errorf("all voice providers failed: %w", lastErr)
}

// sanitizeTimings drops entries that would violate the ordering invariant:
// starts must be non-decreasing and each end >= its start.
func sanitizeTimings(timings []captions.WordTiming) []captions.WordTiming {
	if len(timings) == 0 {
		return timings
	}
	ret := timings[:0]
	lastStart := -1.0
	for _, wt := range timings {
		if wt.End < wt.Start || wt.Start < lastStart {
			continue
		}
		lastStart = wt.Start
		ret = append(ret, wt)
	}
	return ret
}

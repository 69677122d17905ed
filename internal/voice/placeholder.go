package voice

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/storyreel/storyreel/internal/media"
)

const (
	readingWordsPerMinute = 150
	minPlaceholderSeconds = 5
	maxPlaceholderSeconds = 60
)

// PlaceholderProvider is the guaranteed-available last tier: a silent track
// whose length approximates how long the text would take to read aloud.
type PlaceholderProvider struct {
	ff *media.FFmpeg
}

func NewPlaceholderProvider(ff *media.FFmpeg) *PlaceholderProvider {
	return &PlaceholderProvider{ff: ff}
}

func (p *PlaceholderProvider) Name() string {
	return "placeholder"
}

func (p *PlaceholderProvider) Synthesize(ctx context.Context, text, outputPath string, _ Options) (*Track, error) {
	duration := EstimateReadingSeconds(text)

	if err := p.ff.GenerateSilence(ctx, outputPath, duration); err != nil {
		return nil, fmt.Errorf("generate placeholder track: %w", err)
	}

	return &Track{
		Text:     text,
		Path:     outputPath,
		Duration: duration,
		Method:   p.Name(),
	}, nil
}

// EstimateReadingSeconds approximates narration length from word count at
// ~150 words per minute, clamped to the short-form video window.
func EstimateReadingSeconds(text string) float64 {
	words := len(strings.Fields(text))
	seconds := math.Ceil(float64(words) / readingWordsPerMinute * 60)
	return math.Min(maxPlaceholderSeconds, math.Max(minPlaceholderSeconds, seconds))
}

package voice

import (
	"context"

	"golang.org/x/text/language"

	"github.com/storyreel/storyreel/internal/captions"
)

// Track is the output of one voice synthesis call.
type Track struct {
	Text        string                `json:"text"`
	Path        string                `json:"path"`
	Duration    float64               `json:"duration"`
	WordTimings []captions.WordTiming `json:"word_timings,omitempty"`
	Method      string                `json:"method"`
}

// Options tune a synthesis request. Zero values select provider defaults.
type Options struct {
	Language language.Tag
	Voice    string
}

// Provider is one text-to-speech backend. Synthesize writes the audio to
// outputPath and reports duration plus word timings where the backend
// supports alignment.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, outputPath string, opts Options) (*Track, error)
}

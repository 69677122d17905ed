package voice

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/language"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/storyreel/storyreel/internal/media"
	"github.com/storyreel/storyreel/pkg/file"
	"github.com/storyreel/storyreel/pkg/log"
)

// GoogleProvider synthesizes speech through the Google Cloud Text-to-Speech
// API using service-account credentials. The API returns no word alignment.
type GoogleProvider struct {
	credentialsFile string
	voiceName       string
	ff              *media.FFmpeg
}

func NewGoogleProvider(credentialsFile, voiceName string, ff *media.FFmpeg) *GoogleProvider {
	return &GoogleProvider{
		credentialsFile: credentialsFile,
		voiceName:       voiceName,
		ff:              ff,
	}
}

func (p *GoogleProvider) Name() string {
	return "google-tts"
}

func (p *GoogleProvider) Synthesize(ctx context.Context, text, outputPath string, opts Options) (*Track, error) {
	svc, err := texttospeech.NewService(ctx, option.WithCredentialsFile(p.credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create tts service: %w", err)
	}

	voiceName := opts.Voice
	if voiceName == "" {
		voiceName = p.voiceName
	}

	resp, err := svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: googleLanguageCode(opts.Language),
			Name:         voiceName,
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode audio content: %w", err)
	}
	if err := file.EnsureDir(filepath.Dir(outputPath)); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}

	duration, err := p.ff.ProbeDuration(ctx, outputPath)
	if err != nil {
		log.Warn("Could not probe synthesized audio, using reading estimate: %v", err)
		duration = EstimateReadingSeconds(text)
	}

	return &Track{
		Text:     text,
		Path:     outputPath,
		Duration: duration,
		Method:   p.Name(),
	}, nil
}

// googleLanguageCode maps a BCP 47 tag to the region-qualified codes the
// TTS API expects, defaulting to US English.
func googleLanguageCode(tag language.Tag) string {
	if tag == language.Und || tag == language.English {
		return "en-US"
	}
	if base, conf := tag.Base(); conf != language.No {
		region, _ := tag.Region()
		if region.IsCountry() {
			return base.String() + "-" + region.String()
		}
		return base.String()
	}
	return "en-US"
}

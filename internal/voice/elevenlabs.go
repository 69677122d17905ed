package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/storyreel/storyreel/internal/captions"
	"github.com/storyreel/storyreel/internal/media"
	"github.com/storyreel/storyreel/pkg/file"
	"github.com/storyreel/storyreel/pkg/log"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

// ElevenLabsProvider uses the with-timestamps endpoint, which returns audio
// together with per-character alignment. Characters are folded into word
// timings so captions can track the narration.
type ElevenLabsProvider struct {
	apiKey     string
	voiceID    string
	baseURL    string
	httpClient *http.Client
	ff         *media.FFmpeg
}

func NewElevenLabsProvider(apiKey, voiceID string, httpClient *http.Client, ff *media.FFmpeg) *ElevenLabsProvider {
	return &ElevenLabsProvider{
		apiKey:     apiKey,
		voiceID:    voiceID,
		baseURL:    elevenLabsBaseURL,
		httpClient: httpClient,
		ff:         ff,
	}
}

func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

type elevenLabsAlignment struct {
	Characters              []string  `json:"characters"`
	CharacterStartTimesSecs []float64 `json:"character_start_times_seconds"`
	CharacterEndTimesSecs   []float64 `json:"character_end_times_seconds"`
}

type elevenLabsResponse struct {
	AudioBase64 string               `json:"audio_base64"`
	Alignment   *elevenLabsAlignment `json:"alignment"`
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text, outputPath string, _ Options) (*Track, error) {
	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_multilingual_v2",
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/with-timestamps", p.baseURL, p.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed elevenLabsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode elevenlabs response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if err := file.EnsureDir(filepath.Dir(outputPath)); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}

	var timings []captions.WordTiming
	if parsed.Alignment != nil {
		timings = wordsFromAlignment(parsed.Alignment)
	}

	duration, err := p.ff.ProbeDuration(ctx, outputPath)
	if err != nil {
		log.Warn("Could not probe synthesized audio, using reading estimate: %v", err)
		duration = EstimateReadingSeconds(text)
	}

	return &Track{
		Text:        text,
		Path:        outputPath,
		Duration:    duration,
		WordTimings: timings,
		Method:      p.Name(),
	}, nil
}

// wordsFromAlignment folds per-character times into word timings. A word
// spans from its first character's start to its last character's end;
// whitespace characters terminate the current word.
func wordsFromAlignment(a *elevenLabsAlignment) []captions.WordTiming {
	n := len(a.Characters)
	if n > len(a.CharacterStartTimesSecs) {
		n = len(a.CharacterStartTimesSecs)
	}
	if n > len(a.CharacterEndTimesSecs) {
		n = len(a.CharacterEndTimesSecs)
	}

	timings := make([]captions.WordTiming, 0, n/5+1)
	var word strings.Builder
	var start, end float64

	flush := func() {
		if word.Len() > 0 {
			timings = append(timings, captions.WordTiming{
				Word:  word.String(),
				Start: start,
				End:   end,
			})
			word.Reset()
		}
	}

	for i := 0; i < n; i++ {
		ch := a.Characters[i]
		if ch == "" || isSpaceString(ch) {
			flush()
			continue
		}
		if word.Len() == 0 {
			start = a.CharacterStartTimesSecs[i]
		}
		end = a.CharacterEndTimesSecs[i]
		word.WriteString(ch)
	}
	flush()

	return timings
}

func isSpaceString(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/storyreel/storyreel/internal/media"
	"github.com/storyreel/storyreel/pkg/file"
	"github.com/storyreel/storyreel/pkg/log"
)

// maxChunkChars is the per-request text limit of the streaming speech API.
const maxChunkChars = 1900

// SpeechProvider talks to an OpenAI-compatible speech endpoint. Long texts
// are split on sentence boundaries, synthesized chunk by chunk, and the
// resulting audio concatenated without re-encoding. Word timings are not
// part of the API response; when a transcriber is configured, a whisper
// pass over the concatenated audio recovers them.
type SpeechProvider struct {
	apiURL      string
	apiKey      string
	model       string
	voice       string
	tempDir     string
	httpClient  *http.Client
	ff          *media.FFmpeg
	transcriber *Transcriber
}

func NewSpeechProvider(apiURL, apiKey, model, voice, tempDir string, httpClient *http.Client, ff *media.FFmpeg) *SpeechProvider {
	return &SpeechProvider{
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		model:      model,
		voice:      voice,
		tempDir:    tempDir,
		httpClient: httpClient,
		ff:         ff,
	}
}

func (p *SpeechProvider) Name() string {
	return "speech-api"
}

func (p *SpeechProvider) Synthesize(ctx context.Context, text, outputPath string, opts Options) (*Track, error) {
	if err := file.EnsureDir(filepath.Dir(outputPath)); err != nil {
		return nil, err
	}

	chunks := ChunkText(text, maxChunkChars)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text to synthesize")
	}

	if len(chunks) == 1 {
		if err := p.synthesizeChunk(ctx, chunks[0], outputPath, opts); err != nil {
			return nil, err
		}
	} else {
		parts := make([]string, 0, len(chunks))
		defer func() {
			for _, part := range parts {
				_ = os.Remove(part)
			}
		}()
		for i, chunk := range chunks {
			part := filepath.Join(p.tempDir, fmt.Sprintf("chunk_%d_%s.mp3", i, uuid.NewString()))
			if err := p.synthesizeChunk(ctx, chunk, part, opts); err != nil {
				return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			parts = append(parts, part)
		}
		if err := p.ff.ConcatAudio(ctx, parts, outputPath); err != nil {
			return nil, fmt.Errorf("concat chunks: %w", err)
		}
	}

	duration, err := p.ff.ProbeDuration(ctx, outputPath)
	if err != nil {
		log.Warn("Could not probe synthesized audio, using reading estimate: %v", err)
		duration = EstimateReadingSeconds(text)
	}

	track := &Track{
		Text:     text,
		Path:     outputPath,
		Duration: duration,
		Method:   p.Name(),
	}

	// Alignment is optional: losing it only degrades caption sync.
	if p.transcriber != nil {
		timings, err := p.transcriber.Transcribe(ctx, outputPath)
		if err != nil {
			log.Warn("Transcription pass failed, captions will use even spacing: %v", err)
		} else {
			track.WordTimings = timings
		}
	}

	return track, nil
}

func (p *SpeechProvider) synthesizeChunk(ctx context.Context, text, outputPath string, opts Options) error {
	voice := opts.Voice
	if voice == "" {
		voice = p.voice
	}

	payload, err := json.Marshal(map[string]string{
		"model":           p.model,
		"input":           text,
		"voice":           voice,
		"response_format": "mp3",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("speech request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write audio chunk: %w", err)
	}
	return nil
}

// ChunkText splits text into pieces of at most limit characters, breaking
// on sentence boundaries where possible. A single sentence longer than the
// limit is split mid-sentence as a last resort.
func ChunkText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}

	sentences := splitSentences(text)

	chunks := make([]string, 0, len(text)/limit+1)
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, sentence := range sentences {
		for len(sentence) > limit {
			flush()
			// Back the cut up to a rune boundary so a multi-byte
			// character is never split across chunks.
			cut := limit
			for cut > 0 && !utf8.RuneStart(sentence[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, strings.TrimSpace(sentence[:cut]))
			sentence = sentence[cut:]
		}
		if current.Len()+len(sentence)+1 > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(strings.TrimSpace(sentence))
	}
	flush()

	return chunks
}

func splitSentences(text string) []string {
	sentences := make([]string, 0)
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			// Consume any run of closing punctuation.
			end := i + 1
			for end < len(text) && (text[end] == '.' || text[end] == '!' || text[end] == '?' || text[end] == '"' || text[end] == '\'') {
				end++
			}
			if end >= len(text) || text[end] == ' ' || text[end] == '\n' {
				if s := strings.TrimSpace(text[start:end]); s != "" {
					sentences = append(sentences, s)
				}
				start = end
				i = end - 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

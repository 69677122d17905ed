package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/storyreel/storyreel/internal/captions"
	"github.com/storyreel/storyreel/internal/media"
	"github.com/storyreel/storyreel/pkg/file"
)

// Transcriber recovers word-level timings from an audio file by shelling
// out to a local whisper CLI.
type Transcriber struct {
	cmd    string
	runner media.Runner
}

func NewTranscriber(cmd string, runner media.Runner) *Transcriber {
	return &Transcriber{cmd: cmd, runner: runner}
}

// Transcribe runs whisper with word timestamps enabled and parses the JSON
// it writes next to the audio file.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) ([]captions.WordTiming, error) {
	outputDir := filepath.Dir(audioPath)

	args := []string{
		audioPath,
		"--word_timestamps", "True",
		"--output_format", "json",
		"--output_dir", outputDir,
	}
	if err := t.runner.Run(ctx, t.cmd, args...); err != nil {
		return nil, fmt.Errorf("run %s: %w", t.cmd, err)
	}

	jsonPath := file.ReplaceExt(audioPath, ".json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read transcription output: %w", err)
	}
	defer os.Remove(jsonPath)

	return ParseWhisperJSON(data)
}

type whisperOutput struct {
	Segments []struct {
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
}

// ParseWhisperJSON extracts word timings from whisper's JSON output format.
func ParseWhisperJSON(data []byte) ([]captions.WordTiming, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}

	var timings []captions.WordTiming
	for _, seg := range out.Segments {
		for _, w := range seg.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			timings = append(timings, captions.WordTiming{
				Word:  word,
				Start: w.Start,
				End:   w.End,
			})
		}
	}
	if len(timings) == 0 {
		return nil, fmt.Errorf("transcription produced no word timings")
	}
	return timings, nil
}

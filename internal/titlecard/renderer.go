package titlecard

import (
	"context"
	"fmt"
	"html/template"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/storyreel/storyreel/internal/media"
	"github.com/storyreel/storyreel/pkg/file"
)

const (
	cardWidth  = 800
	cardHeight = 400

	maxLineChars = 35
	maxLines     = 4
)

var cardTemplate = template.Must(template.New("card").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { width: {{.Width}}px; height: {{.Height}}px; background: transparent;
         font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; }
  .card { width: 100%; height: 100%; background: #ffffff; border-radius: 24px;
          padding: 32px 40px; display: flex; flex-direction: column; }
  .header { display: flex; align-items: center; margin-bottom: 20px; }
  .avatar { width: 56px; height: 56px; border-radius: 50%; background: #ff4500;
            color: #fff; font-size: 30px; font-weight: 700;
            display: flex; align-items: center; justify-content: center; }
  .username { margin-left: 16px; font-size: 26px; font-weight: 600; color: #1a1a1b; }
  .title { flex: 1; font-size: 32px; font-weight: 700; color: #1a1a1b; line-height: 1.25; }
  .footer { display: flex; gap: 32px; font-size: 24px; color: #878a8c; }
</style>
</head>
<body>
<div class="card">
  <div class="header">
    <div class="avatar">{{.AvatarGlyph}}</div>
    <div class="username">{{.Username}}</div>
  </div>
  <div class="title">{{range .Lines}}{{.}}<br>{{end}}</div>
  <div class="footer">
    <span>&#9650; {{.Likes}}</span>
    <span>&#128172; {{.Comments}}</span>
  </div>
</div>
</body>
</html>`))

type cardData struct {
	Width       int
	Height      int
	AvatarGlyph string
	Username    string
	Lines       []string
	Likes       string
	Comments    string
}

// Renderer rasterizes a story card to a transparent PNG by rendering HTML
// through a headless browser's screenshot mode.
type Renderer struct {
	browserCmd string
	username   string
	tempDir    string
	runner     media.Runner
}

type Option func(*Renderer)

func WithBrowserCommand(cmd string) Option {
	return func(r *Renderer) { r.browserCmd = cmd }
}

func WithUsername(username string) Option {
	return func(r *Renderer) { r.username = username }
}

func NewRenderer(tempDir string, runner media.Runner, opts ...Option) *Renderer {
	r := &Renderer{
		browserCmd: "chromium",
		username:   "storyreel",
		tempDir:    tempDir,
		runner:     runner,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes the card PNG for the given title to outputPath.
func (r *Renderer) Render(ctx context.Context, title, outputPath string) error {
	if err := file.EnsureDir(filepath.Dir(outputPath)); err != nil {
		return err
	}

	glyph := "S"
	if r.username != "" {
		first, _ := utf8.DecodeRuneInString(r.username)
		glyph = strings.ToUpper(string(first))
	}

	data := cardData{
		Width:       cardWidth,
		Height:      cardHeight,
		AvatarGlyph: glyph,
		Username:    r.username,
		Lines:       WrapTitle(title),
		Likes:       formatCount(1200 + rand.Intn(98000)),
		Comments:    formatCount(40 + rand.Intn(900)),
	}

	htmlPath := filepath.Join(r.tempDir, fmt.Sprintf("card_%s.html", uuid.NewString()))
	f, err := os.Create(htmlPath)
	if err != nil {
		return err
	}
	defer os.Remove(htmlPath)

	if err := cardTemplate.Execute(f, data); err != nil {
		f.Close()
		return fmt.Errorf("render card template: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	err = r.runner.Run(ctx, r.browserCmd,
		"--headless",
		"--disable-gpu",
		"--no-sandbox",
		"--default-background-color=00000000",
		fmt.Sprintf("--window-size=%d,%d", cardWidth, cardHeight),
		"--screenshot="+outputPath,
		"file://"+htmlPath,
	)
	if err != nil {
		return fmt.Errorf("screenshot card: %w", err)
	}
	if !file.Exists(outputPath) {
		return fmt.Errorf("browser produced no screenshot at %s", outputPath)
	}
	return nil
}

// WrapTitle word-wraps a title into at most four lines of at most 35
// characters. Overflow past the last line is elided.
func WrapTitle(title string) []string {
	words := strings.Fields(title)
	if len(words) == 0 {
		return nil
	}

	lines := make([]string, 0, maxLines)
	var current strings.Builder

	for _, word := range words {
		// A single oversized word gets hard-cut to fit a line.
		if len(word) > maxLineChars {
			word = word[:maxLineChars]
		}

		if current.Len() > 0 && current.Len()+1+len(word) > maxLineChars {
			lines = append(lines, current.String())
			current.Reset()

			if len(lines) == maxLines {
				last := lines[maxLines-1]
				if len(last) > maxLineChars-3 {
					last = last[:maxLineChars-3]
				}
				lines[maxLines-1] = strings.TrimRight(last, " ") + "..."
				return lines
			}
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

func formatCount(n int) string {
	if n >= 1000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

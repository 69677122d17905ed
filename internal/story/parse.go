package story

import (
	"math"
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

var (
	titleRe         = regexp.MustCompile(`(?i)TITLE:\s*(.+?)(?:\n|$)`)
	parentheticalRe = regexp.MustCompile(`\([^)]*\)`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// Parse splits generated story text into a title and a narration body.
// The title comes from a leading "TITLE:" line and gets terminal
// punctuation appended when missing; the body drops stage directions in
// parentheses, asterisks, and collapsed whitespace.
func Parse(text string) (title, body string) {
	if match := titleRe.FindStringSubmatchIndex(text); match != nil {
		title = strings.TrimSpace(text[match[2]:match[3]])
		body = text[match[1]:]
	} else {
		body = text
	}

	if title != "" && !strings.ContainsAny(title[len(title)-1:], ".!?") {
		title += "."
	}

	body = parentheticalRe.ReplaceAllString(body, "")
	body = strings.ReplaceAll(body, "*", "")
	body = whitespaceRe.ReplaceAllString(body, " ")
	body = strings.TrimSpace(body)

	return title, body
}

// VoiceoverScript is the text actually narrated: title followed by body.
func VoiceoverScript(text string) string {
	title, body := Parse(text)
	if title != "" {
		return title + " " + body
	}
	return body
}

// CardReadTime estimates how long the title card should stay on screen:
// reading pace of 2.5 words per second plus a beat to settle. Zero when
// there is no title.
func CardReadTime(title string) float64 {
	words := len(strings.Fields(title))
	if words == 0 {
		return 0
	}
	return math.Ceil(float64(words)/2.5) + 1.5
}

// DetectLanguage guesses the narration language for voice selection.
// Unrecognizable text falls back to English.
func DetectLanguage(text string) language.Tag {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return language.English
	}
	tag, err := language.Parse(info.Lang.Iso6391())
	if err != nil || tag == language.Und {
		return language.English
	}
	return tag
}

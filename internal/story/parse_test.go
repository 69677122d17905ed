package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestParse_TitleAndBody(t *testing.T) {
	title, body := Parse("TITLE: I found a letter in the attic\nIt was addressed to me. (pause) *Weird*, right?")
	assert.Equal(t, "I found a letter in the attic.", title)
	assert.Equal(t, "It was addressed to me. Weird, right?", body)
}

func TestParse_TitleKeepsExistingPunctuation(t *testing.T) {
	title, _ := Parse("TITLE: Why did nobody tell me?\nBody text.")
	assert.Equal(t, "Why did nobody tell me?", title)
}

func TestParse_NoTitle(t *testing.T) {
	title, body := Parse("Just a story   with    extra spaces.")
	assert.Empty(t, title)
	assert.Equal(t, "Just a story with extra spaces.", body)
}

func TestVoiceoverScript(t *testing.T) {
	script := VoiceoverScript("TITLE: The door\nIt opened by itself.")
	assert.Equal(t, "The door. It opened by itself.", script)

	assert.Equal(t, "No title here.", VoiceoverScript("No title here."))
}

func TestCardReadTime(t *testing.T) {
	assert.Equal(t, 0.0, CardReadTime(""))
	// 5 words / 2.5 wps = 2s, ceil + 1.5
	assert.Equal(t, 3.5, CardReadTime("one two three four five"))
	// 6 words / 2.5 = 2.4 -> ceil 3 + 1.5
	assert.Equal(t, 4.5, CardReadTime("one two three four five six"))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, language.English,
		DetectLanguage("This is a perfectly ordinary English sentence about nothing in particular."))
	assert.Equal(t, language.English, DetectLanguage("xq"), "unreliable input falls back to English")
}

package captions

import (
	"strings"
	"unicode"
)

const (
	// maxWordsPerGroup closes a group once it holds this many words.
	maxWordsPerGroup = 6
	// pauseThreshold is the inter-word gap (seconds) that forces a group break.
	pauseThreshold = 0.4
	// singleLineMax is the largest group rendered on one display line.
	singleLineMax = 3
	// maxGroups bounds rendering cost on degenerate inputs.
	maxGroups = 500
)

// Segment turns word-level timings into display caption groups.
//
// A group closes when it reaches maxWordsPerGroup words, when its last word
// ends a sentence, or when the silence before the next word exceeds
// pauseThreshold. Groups of more than singleLineMax words are split into two
// display lines. The function is pure and never fails; unusable input yields
// an empty slice.
func Segment(timings []WordTiming) []Group {
	groups := make([]Group, 0)
	current := make([]WordTiming, 0, maxWordsPerGroup)

	flush := func() {
		if len(current) == 0 {
			return
		}
		group, ok := buildGroup(current)
		current = current[:0]
		if ok {
			groups = append(groups, group)
		}
	}

	for i, wt := range timings {
		if len(groups) >= maxGroups {
			break
		}
		current = append(current, wt)

		closeGroup := len(current) >= maxWordsPerGroup || endsSentence(wt.Word)
		if !closeGroup && i+1 < len(timings) {
			if timings[i+1].Start-wt.End > pauseThreshold {
				closeGroup = true
			}
		}
		if closeGroup {
			flush()
		}
	}
	if len(groups) < maxGroups {
		flush()
	}

	return groups
}

// EvenTimings synthesizes evenly spaced word timings from plain text and a
// known total duration. It is the fallback when no alignment is available;
// sync fidelity is lower but captions still track the narration roughly.
func EvenTimings(text string, duration float64) []WordTiming {
	words := strings.Fields(text)
	if len(words) == 0 || duration <= 0 {
		return nil
	}

	per := duration / float64(len(words))
	timings := make([]WordTiming, len(words))
	for i, w := range words {
		timings[i] = WordTiming{
			Word:  w,
			Start: float64(i) * per,
			End:   float64(i+1) * per,
		}
	}
	return timings
}

func buildGroup(words []WordTiming) (Group, bool) {
	sanitized := make([]string, 0, len(words))
	for _, wt := range words {
		if s := sanitizeWord(wt.Word); s != "" {
			sanitized = append(sanitized, s)
		}
	}
	if len(sanitized) == 0 {
		return Group{}, false
	}

	group := Group{
		Start: words[0].Start,
		End:   words[len(words)-1].End,
	}
	if len(sanitized) > singleLineMax {
		first, second := splitLines(sanitized)
		group.Lines = []string{first, second}
	} else {
		group.Lines = []string{strings.Join(sanitized, " ")}
	}
	return group, true
}

// splitLines breaks a word list into two display lines at the word crossing
// the character midpoint, so the first line is the longer one when the split
// is uneven.
func splitLines(words []string) (string, string) {
	total := len(words) - 1 // separating spaces
	for _, w := range words {
		total += len(w)
	}
	half := float64(total) / 2

	cum := 0
	split := len(words) - 1
	for i, w := range words {
		if i > 0 {
			cum++
		}
		cum += len(w)
		if float64(cum) >= half {
			split = i + 1
			break
		}
	}
	if split >= len(words) {
		split = len(words) - 1
	}
	if split < 1 {
		split = 1
	}

	return strings.Join(words[:split], " "), strings.Join(words[split:], " ")
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, `"')]*_`)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// sanitizeWord strips markup characters, spells out bare MMDDYYYY date
// tokens, drops anything that is not a letter, digit, or ordinary
// punctuation, and uppercases the result.
func sanitizeWord(word string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '(', ')', '{', '}', '*', '_':
			return -1
		}
		return r
	}, word)

	cleaned = normalizeDateToken(cleaned)

	var b strings.Builder
	for _, r := range cleaned {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || isCaptionPunct(r) {
			b.WriteRune(r)
		}
	}

	return strings.ToUpper(strings.TrimSpace(b.String()))
}

func isCaptionPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', '\'', '’', '"', '-', ':', ';', ' ':
		return true
	}
	return false
}

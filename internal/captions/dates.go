package captions

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var monthNames = [...]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// normalizeDateToken rewrites a bare 8-digit MMDDYYYY token (optionally
// carrying trailing punctuation) into a spoken-friendly "Month Dth, YYYY"
// form. Anything that does not look like a plausible date passes through
// unchanged.
func normalizeDateToken(word string) string {
	digits := word
	suffix := ""
	if idx := strings.IndexFunc(word, func(r rune) bool { return !unicode.IsDigit(r) }); idx >= 0 {
		digits = word[:idx]
		suffix = word[idx:]
		if strings.ContainsFunc(suffix, unicode.IsDigit) {
			return word
		}
	}
	if len(digits) != 8 {
		return word
	}

	month, _ := strconv.Atoi(digits[0:2])
	day, _ := strconv.Atoi(digits[2:4])
	year, _ := strconv.Atoi(digits[4:8])
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1000 {
		return word
	}

	return fmt.Sprintf("%s %d%s, %d%s", monthNames[month-1], day, ordinalSuffix(day), year, suffix)
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

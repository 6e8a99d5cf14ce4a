// Package langdetect guesses the source language of a text so that
// translation into the same language can be skipped.
package langdetect

import (
	"strings"
	"unicode"
)

// Detect returns the most likely language code for text. CJK scripts are
// detected by character-range ratios; Latin-script text falls through to
// indicator-word scoring. Unknown or empty input defaults to "en".
// Parameters:
//   - text: input text.
// Returns:
//   - string: language code (en, zh, ja, ko, fr, de, es, it).
func Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "en"
	}

	var chinese, hiragana, katakana, korean, latin, total int
	for _, r := range text {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			chinese++
			total++
		case r >= 0x3040 && r <= 0x309F:
			hiragana++
			total++
		case r >= 0x30A0 && r <= 0x30FF:
			katakana++
			total++
		case r >= 0xAC00 && r <= 0xD7AF:
			korean++
			total++
		case unicode.IsLetter(r):
			if r < 256 {
				latin++
			}
			total++
		}
	}

	if total == 0 {
		return "en"
	}

	chineseRatio := float64(chinese) / float64(total)
	japaneseRatio := float64(hiragana+katakana) / float64(total)
	koreanRatio := float64(korean) / float64(total)
	latinRatio := float64(latin) / float64(total)

	switch {
	case chineseRatio > 0.3:
		return "zh"
	// Hiragana is a strong signal for Japanese even at low ratios.
	case japaneseRatio > 0.2 || hiragana > 0:
		return "ja"
	case koreanRatio > 0.2:
		return "ko"
	case latinRatio > 0.7:
		return detectLatin(text)
	case chineseRatio > 0.1:
		return "zh"
	}
	return "en"
}

var latinIndicators = map[string][]string{
	"en": {"the", "and", "is", "are", "was", "were", "have", "has", "had",
		"will", "would", "could", "should", "this", "that", "with", "from"},
	"fr": {"le", "la", "les", "de", "du", "des", "et", "est", "sont",
		"avec", "pour", "dans", "sur", "par", "ce", "cette", "ces"},
	"de": {"der", "die", "das", "und", "ist", "sind", "mit", "für",
		"auf", "von", "zu", "ein", "eine", "einen"},
	"es": {"el", "los", "las", "del", "y", "es", "son",
		"con", "para", "en", "por", "un", "una", "este", "esta"},
	"it": {"il", "lo", "gli", "di", "e", "è", "sono",
		"per", "su", "da", "questo", "questa"},
}

// detectLatin scores Latin-script text against per-language indicator words
// and returns the best match, defaulting to English on a tie at zero.
func detectLatin(text string) string {
	words := strings.Fields(strings.ToLower(text))

	scores := map[string]int{}
	for lang, indicators := range latinIndicators {
		set := make(map[string]struct{}, len(indicators))
		for _, w := range indicators {
			set[w] = struct{}{}
		}
		for _, w := range words {
			if _, ok := set[w]; ok {
				scores[lang]++
			}
		}
	}

	best, bestScore := "en", 0
	// Fixed iteration order keeps ties deterministic.
	for _, lang := range []string{"en", "fr", "de", "es", "it"} {
		if scores[lang] > bestScore {
			best, bestScore = lang, scores[lang]
		}
	}
	return best
}

package classifier

import (
	"strings"
	"unicode"

	"github.com/valpere/perevod/internal/lang"
)

const (
	minScriptLetters = 8
	minStopwordWords = 6
	minForeignHits   = 2
)

// IsPlausible reports whether text could be a translation into the language
// of p. It checks the writing system and, for longer Latin-script outputs,
// whether the stopwords of another supported language dominate. Inputs too
// short to judge are plausible.
func IsPlausible(text string, p lang.Profile) bool {
	latin, cyrillic := 0, 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	letters := latin + cyrillic
	if letters < minScriptLetters {
		return true
	}

	if p.Script == lang.Cyrillic {
		return cyrillic*2 >= letters
	}
	if cyrillic*2 > letters {
		return false
	}

	words := strings.Fields(NormalizeSpeech(text))
	if len(words) < minStopwordWords {
		return true
	}

	hits := stopwordHits(words)
	if hits[p.ISO] > 0 {
		return true
	}
	for iso, n := range hits {
		if iso != p.ISO && n >= minForeignHits {
			return false
		}
	}
	return true
}

// stopwordHits counts, per Latin-script ISO code, how many words are stopwords
// of that language.
func stopwordHits(words []string) map[string]int {
	hits := make(map[string]int)
	seen := make(map[string]bool)
	for _, tag := range lang.All() {
		p, _ := lang.Lookup(string(tag))
		if p.Script != lang.Latin || seen[p.ISO] {
			continue
		}
		seen[p.ISO] = true

		set := make(map[string]bool, len(p.Stopwords))
		for _, w := range p.Stopwords {
			set[w] = true
		}
		for _, w := range words {
			if set[w] {
				hits[p.ISO]++
			}
		}
	}
	return hits
}

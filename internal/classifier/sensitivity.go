// Package classifier implements the lexical heuristics that steer routing:
// explicit-content detection, structured-text detection, refusal phrases and
// target-language plausibility. All pattern tables are compiled once at
// package initialisation and are read-only afterwards.
package classifier

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SourceKind tells the classifier where the text came from.
type SourceKind string

const (
	// SourceText is typed input.
	SourceText SourceKind = "text"
	// SourceSpeech is a speech-to-text transcript.
	SourceSpeech SourceKind = "speech"
)

// ParseSourceKind maps a caller-supplied value onto a SourceKind. Empty input
// means typed text. "stt" is accepted as an alias for speech.
func ParseSourceKind(s string) (SourceKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return SourceText, true
	case "speech", "stt", "voice":
		return SourceSpeech, true
	}
	return "", false
}

const (
	// wordClass is the Unicode equivalent of \w. RE2's \b and \w only know ASCII.
	wordClass = `[\p{L}\p{N}_]`
	leftEdge  = `(?:^|[^\p{L}\p{N}_])`
	rightEdge = `(?:$|[^\p{L}\p{N}_])`

	speechMinRunes        = 20
	speechMinLettersRatio = 0.4
	speechThreshold       = 3
)

// textLexicon is matched against typed input. Fragments use \w, which is
// widened to wordClass when the pattern is compiled.
var textLexicon = []string{
	// en
	`sex`, `sext\w*`, `sexchat`, `porn\w*`, `xxx`, `onlyfans`, `nude\w*`, `nsfw`,
	`blow\s*job`, `blowjob`, `hand\s*job`, `handjob`, `anal`, `rimjob`,
	`pussy`, `dick`, `cock`, `cum`, `cumming`, `orgasm\w*`, `dildo`,
	`tits?`, `boobs?`, `breasts?`,
	// ru
	`секс\w*`, `порно\w*`, `онлифанс\w*`, `нюд\w*`, `анал\w*`, `минет\w*`,
	`оральн\w*`, `дроч\w*`, `мастурб\w*`, `оргазм\w*`, `пизд\w*`, `киск\w*`,
	`хуй\w*`, `член\w*`, `пенис\w*`, `сос\w*`, `дилдо\w*`, `сиськ\w*`,
	`титьк\w*`, `груд\w*`, `конч\w*`, `трах\w*`,
	// es
	`sexo\w*`, `porno\w*`, `desn?ud\w*`, `mamada\w*`, `oral`, `polla\w*`,
	`coñ\w*`, `corrid\w*`, `venirse`, `tetas?`, `pechos?`,
	// pt
	`nua?\w*`, `pelad\w*`, `boquete\w*`, `bucet\w*`, `pau`, `caralh\w*`,
	`gozad\w*`, `goz\w*`, `peitos?`, `seios?`,
}

var textPattern = compileTextPattern(textLexicon)

func compileTextPattern(fragments []string) *regexp.Regexp {
	alts := make([]string, len(fragments))
	for i, f := range fragments {
		alts[i] = strings.ReplaceAll(f, `\w`, wordClass)
	}
	return regexp.MustCompile(`(?i)` + leftEdge + `(?:` + strings.Join(alts, "|") + `)` + rightEdge)
}

// Speech transcripts are scored against two tiers. A trailing "*" matches any
// word suffix; multi-word terms require the words to be adjacent.
var strongSpeechTerms = []string{
	// en
	"porn*", "xxx", "onlyfans", "nude*", "nsfw", "blow job", "blowjob",
	"hand job", "handjob", "anal", "rimjob", "pussy", "dick", "cock", "cum",
	"cumming", "orgasm*", "dildo", "tits", "boobs", "breasts",
	// ru
	"порно*", "онлифанс", "нюд*", "анал*", "минет*", "оральн*", "дроч*",
	"мастурб*", "оргазм*", "пизд*", "киск*", "хуй*", "член*", "пенис*",
	"сос*", "дилдо*", "сиськ*", "титьк*", "груд*", "конч*", "трах*",
	// es
	"porno*", "xxx", "onlyfans", "desnud*", "mamada", "anal", "polla*",
	"coñ*", "corrid*", "venirse", "orgasm*", "dildo", "tetas", "pechos",
	// pt
	"porno*", "xxx", "onlyfans", "nua*", "pelad*", "boquete", "anal",
	"bucet*", "pau", "caralh*", "gozad*", "goz*", "orgasm*", "dildo",
	"tetas", "peit*", "seio*",
}

var weakSpeechTerms = []string{
	"sex", "sext*", "sexchat", "oral", // en
	"секс",          // ru
	"sexo*", "oral", // es
	"sexo*", "oral", // pt
}

type termPattern struct {
	term string
	re   *regexp.Regexp
}

var (
	strongSpeechPatterns = compileTerms(strongSpeechTerms)
	weakSpeechPatterns   = compileTerms(weakSpeechTerms)

	nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Z}]`)
)

// compileTerms compiles each distinct term once; duplicates across languages
// would otherwise be counted twice.
func compileTerms(terms []string) []termPattern {
	seen := make(map[string]bool, len(terms))
	out := make([]termPattern, 0, len(terms))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, termPattern{term: term, re: compileTerm(term)})
	}
	return out
}

func compileTerm(term string) *regexp.Regexp {
	words := strings.Fields(term)
	last := words[len(words)-1]
	wildcard := strings.HasSuffix(last, "*")
	if wildcard {
		words[len(words)-1] = strings.TrimSuffix(last, "*")
	}

	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}

	pattern := `(?i)` + leftEdge + strings.Join(quoted, `\s+`)
	if wildcard {
		pattern += wordClass + `*`
	}
	pattern += rightEdge
	return regexp.MustCompile(pattern)
}

// SpeechScore is the evidence collected for a transcript.
type SpeechScore struct {
	Score  int
	Strong []string
	Weak   []string
	// Skipped is set when the transcript was too short or too noisy to score.
	Skipped bool
}

// Route reports whether the evidence is strong enough to bypass the primary provider.
func (s SpeechScore) Route() bool {
	if s.Skipped {
		return false
	}
	strong, weak := len(s.Strong), len(s.Weak)
	return s.Score >= speechThreshold || (strong >= 1 && strong+weak >= 2)
}

// IsSensitive reports whether text contains explicit content that must be
// handled by the secondary provider.
func IsSensitive(text string, kind SourceKind) bool {
	if text == "" {
		return false
	}
	if kind == SourceSpeech {
		return ScoreSpeech(text).Route()
	}
	return textPattern.MatchString(text)
}

// ScoreSpeech scores a transcript against the strong and weak tiers.
//
// Transcripts shorter than 20 runes once trimmed, or whose letters make up
// less than 40% of the non-space runes, are skipped with a zero score.
func ScoreSpeech(text string) SpeechScore {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < speechMinRunes {
		return SpeechScore{Skipped: true}
	}
	if LettersRatio(text) < speechMinLettersRatio {
		return SpeechScore{Skipped: true}
	}

	normalized := NormalizeSpeech(text)
	res := SpeechScore{
		Strong: matchTerms(strongSpeechPatterns, normalized),
		Weak:   matchTerms(weakSpeechPatterns, normalized),
	}
	res.Score = 2*len(res.Strong) + len(res.Weak)
	return res
}

func matchTerms(patterns []termPattern, text string) []string {
	var hits []string
	for _, p := range patterns {
		if p.re.MatchString(text) {
			hits = append(hits, p.term)
		}
	}
	sort.Strings(hits)
	return hits
}

// NormalizeSpeech lowercases text, folds "ё" into "е" and replaces
// punctuation with spaces.
func NormalizeSpeech(text string) string {
	normalized := strings.ReplaceAll(strings.ToLower(text), "ё", "е")
	return nonWordRe.ReplaceAllString(normalized, " ")
}

// LettersRatio returns the share of letters among non-space runes, or 0 when
// text holds only whitespace.
func LettersRatio(text string) float64 {
	total, letters := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}

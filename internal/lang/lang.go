// Package lang holds the fixed set of supported target languages and the
// per-language data each provider needs.
package lang

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Tag is a supported target language code as accepted by the routing engine.
type Tag string

const (
	English            Tag = "en"
	Russian            Tag = "ru"
	SpanishSpain       Tag = "es-es"
	SpanishLatAm       Tag = "es-latam"
	PortugueseBrazil   Tag = "pt-br"
	PortuguesePortugal Tag = "pt-pt"
)

// Script is the writing system a translation into a language is expected to use.
type Script int

const (
	Latin Script = iota
	Cyrillic
)

// Profile describes how a Tag maps onto each provider and how its output is
// checked for plausibility.
type Profile struct {
	Tag Tag
	// Label is the short button caption used by the chat surface.
	Label string
	// DeepL is the target_lang value of the dedicated translation API.
	DeepL string
	// Google is the BCP-47 tag passed to Cloud Translation.
	Google language.Tag
	// Prompt is appended to the base system prompt of the generative provider.
	Prompt string
	// ISO is the ISO 639-1 code of the base language.
	ISO       string
	Script    Script
	Stopwords []string
}

var profiles = map[Tag]Profile{
	English: {
		Tag:    English,
		Label:  "EN",
		DeepL:  "EN",
		Google: language.English,
		Prompt: "Target language: English.\nUse natural English for informal online communication.",
		ISO:    "en",
		Script: Latin,
		Stopwords: []string{
			"the", "and", "is", "are", "you", "to", "of", "it", "that", "in",
			"for", "with", "this", "was", "what", "have", "not", "me", "my", "i",
		},
	},
	Russian: {
		Tag:    Russian,
		Label:  "RU",
		DeepL:  "RU",
		Google: language.Russian,
		Prompt: "Target language: Russian.\nUse natural modern Russian for informal online communication.",
		ISO:    "ru",
		Script: Cyrillic,
		Stopwords: []string{
			"и", "в", "не", "на", "я", "что", "с", "это", "ты", "как",
			"он", "мы", "но", "а", "по", "так", "мне", "всё", "все", "у",
		},
	},
	SpanishSpain: {
		Tag:       SpanishSpain,
		Label:     "ES (ES)",
		DeepL:     "ES",
		Google:    language.Spanish,
		Prompt:    "Target language: Spanish (Europe).\nUse natural European Spanish for informal online communication.",
		ISO:       "es",
		Script:    Latin,
		Stopwords: spanishStopwords,
	},
	SpanishLatAm: {
		Tag:       SpanishLatAm,
		Label:     "ES (LATAM)",
		DeepL:     "ES",
		Google:    language.LatinAmericanSpanish,
		Prompt:    "Target language: Spanish (Latin America).\nUse natural Latin American Spanish for informal online communication.\nAvoid vocabulary specific to Spain.",
		ISO:       "es",
		Script:    Latin,
		Stopwords: spanishStopwords,
	},
	PortugueseBrazil: {
		Tag:       PortugueseBrazil,
		Label:     "PT-BR",
		DeepL:     "PT-BR",
		Google:    language.BrazilianPortuguese,
		Prompt:    "Target language: Portuguese (Brazil).\nUse natural Brazilian Portuguese for informal online communication.",
		ISO:       "pt",
		Script:    Latin,
		Stopwords: portugueseStopwords,
	},
	PortuguesePortugal: {
		Tag:       PortuguesePortugal,
		Label:     "PT-PT",
		DeepL:     "PT-PT",
		Google:    language.EuropeanPortuguese,
		Prompt:    "Target language: Portuguese (Europe).\nUse natural European Portuguese for informal online communication.",
		ISO:       "pt",
		Script:    Latin,
		Stopwords: portugueseStopwords,
	},
}

var spanishStopwords = []string{
	"el", "la", "de", "que", "y", "en", "los", "es", "no", "por",
	"un", "una", "con", "para", "lo", "las", "del", "se", "te", "me",
}

var portugueseStopwords = []string{
	"o", "a", "de", "que", "e", "do", "da", "em", "não", "um",
	"uma", "para", "com", "os", "as", "se", "no", "na", "você", "eu",
}

// Lookup returns the profile of an exact supported tag. "EN" and " en "
// are not supported tags; use Resolve for user input.
func Lookup(code string) (Profile, bool) {
	p, ok := profiles[Tag(code)]
	return p, ok
}

// IsSupported reports whether code is one of the supported tags.
func IsSupported(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// All returns the supported tags in a stable order.
func All() []Tag {
	tags := make([]Tag, 0, len(profiles))
	for t := range profiles {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// latamRegions are the Spanish-speaking countries of the Americas plus the
// UN M.49 code for Latin America.
var latamRegions = map[string]bool{
	"419": true, "AR": true, "BO": true, "CL": true, "CO": true, "CR": true,
	"CU": true, "DO": true, "EC": true, "GT": true, "HN": true, "MX": true,
	"NI": true, "PA": true, "PE": true, "PR": true, "PY": true, "SV": true,
	"US": true, "UY": true, "VE": true,
}

// Resolve maps free-form input such as "pt-BR", "es_MX" or "en-US" onto a
// supported tag. Exact tags resolve to themselves. A bare "es" or "pt" is
// ambiguous and does not resolve.
func Resolve(code string) (Tag, bool) {
	code = strings.TrimSpace(code)
	if p, ok := Lookup(strings.ToLower(code)); ok {
		return p.Tag, true
	}

	parsed, err := language.Parse(code)
	if err != nil {
		return "", false
	}
	base, _ := parsed.Base()
	region, conf := parsed.Region()
	explicitRegion := conf == language.Exact

	switch base.String() {
	case "en":
		return English, true
	case "ru":
		return Russian, true
	case "es":
		if !explicitRegion {
			return "", false
		}
		if region.String() == "ES" {
			return SpanishSpain, true
		}
		if latamRegions[region.String()] {
			return SpanishLatAm, true
		}
	case "pt":
		if !explicitRegion {
			return "", false
		}
		switch region.String() {
		case "BR":
			return PortugueseBrazil, true
		case "PT":
			return PortuguesePortugal, true
		}
	}
	return "", false
}

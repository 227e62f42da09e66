// Package detector wraps lingua-go for the languages the router translates into.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// Languages is the candidate set: the base language of every supported target.
var Languages = []lingua.Language{
	lingua.English,
	lingua.Russian,
	lingua.Spanish,
	lingua.Portuguese,
}

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over Languages. Building is expensive; share the instance.
func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(Languages...).
		WithMinimumRelativeDistance(0.1).
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the ISO 639-1 code of text in lower case.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

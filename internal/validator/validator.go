// Package validator decides whether a candidate translation from the primary
// provider is acceptable or must be replaced by the secondary provider's.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/valpere/perevod/internal/classifier"
	"github.com/valpere/perevod/internal/lang"
)

// FinishContentFilter is the termination reason the generative provider
// reports when it withheld its output.
const FinishContentFilter = "content_filter"

// minDetectionLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without detection.
const minDetectionLength = 20

// Strictness selects which checks Evaluate runs.
type Strictness int

const (
	// Basic checks the finish reason, emptiness and length ratio.
	Basic Strictness = iota
	// Standard adds the refusal-phrase check.
	Standard
	// Strict adds the target-language plausibility check.
	Strict
)

func (s Strictness) String() string {
	switch s {
	case Basic:
		return "basic"
	case Standard:
		return "standard"
	case Strict:
		return "strict"
	}
	return fmt.Sprintf("Strictness(%d)", int(s))
}

// ParseStrictness parses a configured strictness name. An empty name selects Standard.
func ParseStrictness(s string) (Strictness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return Basic, nil
	case "", "standard":
		return Standard, nil
	case "strict":
		return Strict, nil
	}
	return Standard, fmt.Errorf("unknown strictness %q (want basic, standard or strict)", s)
}

// Reason names why a candidate was rejected.
type Reason string

const (
	ReasonContentFilter Reason = "content_filter"
	ReasonEmpty         Reason = "empty"
	ReasonTooShort      Reason = "too_short"
	ReasonRefusal       Reason = "refusal_text"
	ReasonWrongLang     Reason = "wrong_lang"
)

// Verdict is the gate decision. Reason is empty when Accepted.
type Verdict struct {
	Accepted bool
	Reason   Reason
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(r Reason) Verdict { return Verdict{Reason: r} }

// LanguageDetector is satisfied by *detector.Detector.
type LanguageDetector interface {
	DetectISO(text string) (string, bool)
}

// Gate evaluates candidate translations. A Gate is immutable and safe for
// concurrent use.
type Gate struct {
	strictness Strictness
	det        LanguageDetector
}

// New creates a Gate. det is optional and only consulted at Strict.
func New(strictness Strictness, det LanguageDetector) *Gate {
	return &Gate{strictness: strictness, det: det}
}

func (g *Gate) Strictness() Strictness { return g.strictness }

// Evaluate checks candidate, the primary provider's output for source.
// finish is the provider's termination reason and may be empty.
//
// Checks run in a fixed order and the first failing one decides the reason:
// content filter, empty, too short, refusal (Standard and above, unless the
// source reads the same way) and wrong language (Strict only).
func (g *Gate) Evaluate(source, candidate string, target lang.Tag, finish string) Verdict {
	if finish == FinishContentFilter {
		return reject(ReasonContentFilter)
	}

	text := strings.TrimSpace(candidate)
	if text == "" {
		return reject(ReasonEmpty)
	}

	if TooShort(source, text) {
		return reject(ReasonTooShort)
	}

	// An apology in the source legitimately carries over into the translation.
	if g.strictness >= Standard && classifier.IsRefusal(text) && !classifier.IsRefusal(source) {
		return reject(ReasonRefusal)
	}

	if g.strictness >= Strict && !g.plausible(text, target) {
		return reject(ReasonWrongLang)
	}

	return accept()
}

// TooShort reports whether candidate is implausibly short for source. Lengths
// are counted in runes.
func TooShort(source, candidate string) bool {
	src := utf8.RuneCountInString(strings.TrimSpace(source))
	out := utf8.RuneCountInString(strings.TrimSpace(candidate))

	if src > 80 && out < 12 {
		return true
	}
	// ceil(0.08 * src) without floating point.
	return src > 120 && out < (8*src+99)/100
}

func (g *Gate) plausible(text string, target lang.Tag) bool {
	p, ok := lang.Lookup(string(target))
	if !ok {
		return true
	}
	if !classifier.IsPlausible(text, p) {
		return false
	}

	// Detector is unreliable for very short texts; skip it.
	if g.det == nil || utf8.RuneCountInString(text) < minDetectionLength {
		return true
	}
	detected, ok := g.det.DetectISO(text)
	if !ok {
		// Ambiguous language, cannot validate, pass through.
		return true
	}
	return strings.EqualFold(detected, p.ISO)
}

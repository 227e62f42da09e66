package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxRefusalRunes bounds the candidates checked for refusal phrases. Long
// outputs are real translations that may legitimately quote such phrases.
const maxRefusalRunes = 600

var refusalPhrases = []string{
	// en
	"i cannot", "i can't", "i can not", "i won't", "i will not",
	"i'm unable to", "i am unable to", "i'm not able to", "i am not able to",
	"i'm sorry", "i am sorry", "i apologize", "as an ai", "as a language model",
	"cannot assist", "can't assist", "can't help with", "cannot help with",
	"against my guidelines",
	// ru
	"не могу", "не буду", "не имею возможности", "извините", "к сожалению",
	"как ии", "как языковая модель", "я не в состоянии",
	// es
	"lo siento", "no puedo", "no me es posible", "como ia",
	"como modelo de lenguaje", "no estoy en condiciones",
	// pt
	"não posso", "não consigo", "desculpe", "sinto muito", "como ia",
	"como modelo de linguagem",
}

var refusalRe = compilePhrases(refusalPhrases)

func compilePhrases(phrases []string) *regexp.Regexp {
	alts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}
	return regexp.MustCompile(`(?i)` + leftEdge + `(?:` + strings.Join(alts, "|") + `)` + rightEdge)
}

var apostrophes = strings.NewReplacer("’", "'", "ʼ", "'", "`", "'")

// IsRefusal reports whether a candidate translation reads like a model
// declining the task instead of translating.
func IsRefusal(candidate string) bool {
	text := strings.TrimSpace(candidate)
	if text == "" || utf8.RuneCountInString(text) > maxRefusalRunes {
		return false
	}
	return refusalRe.MatchString(apostrophes.Replace(text))
}

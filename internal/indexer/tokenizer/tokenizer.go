// Package tokenizer turns raw field text into annotated forward index
// tokens. Every word becomes a surface token under its sentence; non stop
// words get a lemma token under the surface token, and the stop words of a
// sentence are collected into one token with a set position.
package tokenizer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
)

// Annotation layers, used as token prefixes.
const (
	LayerSentence = "s"
	LayerToken    = "t"
	LayerLemma    = "lemma"
	LayerStop     = "stop"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// IsStopWord reports whether the lowercased word is a stop word.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// word is a run of letters and digits with its rune offsets.
type word struct {
	text       string
	start, end int
	// closes reports whether sentence-ending punctuation follows before the
	// next word.
	closes bool
}

func split(text string) []word {
	var words []word
	var b strings.Builder
	start := -1
	i := 0
	flush := func() {
		if start >= 0 {
			words = append(words, word{text: b.String(), start: start, end: i})
			b.Reset()
			start = -1
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if start < 0 {
				start = i
			}
			b.WriteRune(r)
		default:
			flush()
			if (r == '.' || r == '!' || r == '?') && len(words) > 0 {
				words[len(words)-1].closes = true
			}
		}
		i++
	}
	flush()
	return words
}

// Annotate returns the tokens of text with dense ids in creation order.
// Positions count words; offsets are rune offsets into text.
func Annotate(text string) []*token.Token {
	words := split(text)
	out := make([]*token.Token, 0, len(words)*2)

	var sentence *token.Token
	var stops []int
	var stopSpan token.Offset
	first, sentences := 0, 0
	closeSentence := func(last, end int) {
		sentence.Position = token.NewRangePosition(first, last)
		sentence.Offset.End = end
		if len(stops) > 0 {
			stop := &token.Token{
				Kind:     token.KindString,
				ID:       len(out),
				Value:    token.JoinValue(LayerStop, strconv.Itoa(len(stops))),
				Position: token.NewSetPosition(stops),
				Offset:   &token.Offset{Start: stopSpan.Start, End: stopSpan.End},
			}
			stop.SetParent(sentence.ID)
			out = append(out, stop)
		}
		sentence, stops = nil, nil
	}

	for pos, w := range words {
		if sentence == nil {
			sentence = &token.Token{
				Kind:   token.KindString,
				ID:     len(out),
				Value:  token.JoinValue(LayerSentence, strconv.Itoa(sentences)),
				Offset: &token.Offset{Start: w.start},
			}
			out = append(out, sentence)
			first = pos
			sentences++
		}
		lower := strings.ToLower(w.text)
		surface := token.New(len(out), LayerToken, lower, pos)
		surface.SetParent(sentence.ID)
		surface.Offset = &token.Offset{Start: w.start, End: w.end}
		out = append(out, surface)

		if IsStopWord(lower) {
			if len(stops) == 0 {
				stopSpan.Start = w.start
			}
			stops = append(stops, pos)
			stopSpan.End = w.end
		} else if len(lower) >= 2 {
			lemma := token.New(len(out), LayerLemma, stem(lower), pos)
			lemma.SetParent(surface.ID)
			lemma.Offset = &token.Offset{Start: w.start, End: w.end}
			out = append(out, lemma)
		}
		if w.closes || pos == len(words)-1 {
			closeSentence(pos, w.end)
		}
	}
	return out
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"iness", "y", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"eness", "ene", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ling", "l", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ful", "", 3},
		{"ous", "", 3},
		{"ess", "", 3},
		{"ble", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}

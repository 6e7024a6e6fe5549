// Package moderation screens chat messages for prohibited content. It is run
// out of process by the moderator, which reviews events from the room feed;
// verdicts are advisory and never alter the room log.
package moderation

import (
	"strings"
	"unicode"
)

// defaultTerms is the built-in blocklist. Multi-word entries are matched as
// whole phrases, single words as whole tokens.
var defaultTerms = []string{
	// harassment
	"kill yourself", "go die", "kys",
	// sexual solicitation
	"send nudes", "nude pics",
	// threats
	"bomb threat", "shoot up",
	// scams
	"free bitcoin", "crypto giveaway", "wire transfer",
	// profanity
	"fuck", "shit", "bitch", "asshole",
}

// leetMap folds common character substitutions back to letters.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// FilterResult is the outcome of a single Check.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // matched term or spam check name
}

// Filter matches text against a keyword/phrase blocklist and a set of spam
// patterns. It is immutable after construction and safe for concurrent use.
type Filter struct {
	words   map[string]struct{}
	phrases []string
}

// NewFilter creates a Filter with the built-in blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms creates a Filter with a custom blocklist. Terms are
// lowercased; blank terms are ignored.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		term = strings.ToLower(strings.Join(strings.Fields(term), " "))
		switch {
		case term == "":
		case strings.Contains(term, " "):
			f.phrases = append(f.phrases, term)
		default:
			f.words[term] = struct{}{}
		}
	}
	return f
}

// Check screens text. Blocklist matches take priority over spam patterns.
func (f *Filter) Check(text string) FilterResult {
	lower := strings.ToLower(text)

	for _, tokens := range [][]string{tokenizePlain(lower), leetTokens(lower)} {
		if term, ok := f.matchTokens(tokens); ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: term}
		}
	}

	return f.checkSpamPatterns(text)
}

func (f *Filter) matchTokens(tokens []string) (string, bool) {
	for _, tok := range tokens {
		if _, ok := f.words[tok]; ok {
			return tok, true
		}
	}
	if len(f.phrases) == 0 || len(tokens) < 2 {
		return "", false
	}
	joined := " " + strings.Join(tokens, " ") + " "
	for _, phrase := range f.phrases {
		if strings.Contains(joined, " "+phrase+" ") {
			return phrase, true
		}
	}
	return "", false
}

// tokenizePlain splits text into runs of letters and digits.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet splits on whitespace only, keeping substitution characters
// inside tokens.
func tokenizeLeet(text string) []string {
	return strings.FieldsFunc(text, unicode.IsSpace)
}

// leetTokens returns whitespace tokens with substitutions folded and
// surrounding punctuation trimmed.
func leetTokens(text string) []string {
	raw := tokenizeLeet(text)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		tok = strings.TrimFunc(normalizeLeet(tok), func(r rune) bool { return !unicode.IsLetter(r) })
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func normalizeLeet(s string) string {
	return strings.Map(func(r rune) rune {
		if m, ok := leetMap[r]; ok {
			return m
		}
		return r
	}, s)
}

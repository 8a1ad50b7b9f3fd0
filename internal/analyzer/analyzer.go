// Package analyzer implements the text analysis pipeline shared by the
// token stream producer (index time) and the query engine (query time):
// character filters, a tokenizer, and an ordered chain of token filters
// that preserve each surviving token's pre-filter position.
//
// The same *Analyzer value MUST be used on both paths; nothing here
// enforces that at runtime, it is a calling-convention contract.
package analyzer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// Token is one surviving (term, position) pair. Position is the token's
// index in the tokenizer's output, taken before any token filter runs.
type Token struct {
	Term string
	Pos  int
}

// CharFilter transforms raw document text before tokenization, e.g.
// stripping HTML markup.
type CharFilter func(string) string

// Tokenizer splits filtered text into an ordered sequence of raw tokens.
type Tokenizer func(string) []string

// TokenFilter maps a sequence of tokens-with-position to a
// filtered/rewritten sequence, preserving surviving tokens' Pos.
type TokenFilter func([]Token) []Token

// Config assembles a pipeline: char filters run left to right, then the
// tokenizer, then token filters run in order.
type Config struct {
	CharFilters  []CharFilter
	Tokenizer    Tokenizer
	TokenFilters []TokenFilter
}

// Analyzer runs a fixed Config over input text.
type Analyzer struct {
	cfg Config
}

// New builds an Analyzer from an explicit Config.
func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Default returns the canonical pipeline described by the component
// design: an HTML-aware char filter, whitespace tokenization, then
// punctuation-strip, lowercase, numeric-drop, stop-word-drop, and Porter
// stemming, in that order.
func Default() *Analyzer {
	return New(Config{
		CharFilters: []CharFilter{StripHTML},
		Tokenizer:   WhitespaceTokenizer,
		TokenFilters: []TokenFilter{
			PunctuationStripFilter(2),
			LowercaseFilter,
			NumericDropFilter,
			StopwordFilter,
			StemmerFilter,
		},
	})
}

// Analyze runs the full pipeline over raw text and returns the surviving
// (term, position) pairs in tokenizer order.
func (a *Analyzer) Analyze(text string) []Token {
	for _, cf := range a.cfg.CharFilters {
		text = cf(text)
	}
	tokenizer := a.cfg.Tokenizer
	if tokenizer == nil {
		tokenizer = WhitespaceTokenizer
	}
	raw := tokenizer(text)
	tokens := make([]Token, len(raw))
	for i, t := range raw {
		tokens[i] = Token{Term: t, Pos: i}
	}
	for _, tf := range a.cfg.TokenFilters {
		tokens = tf(tokens)
	}
	return tokens
}

// WhitespaceTokenizer splits on runs of Unicode whitespace. Punctuation
// stays attached to its token and is trimmed later by
// PunctuationStripFilter.
func WhitespaceTokenizer(text string) []string {
	return strings.Fields(text)
}

// PunctuationStripFilter trims any residual leading/trailing
// non-alphanumeric runes from each term and drops tokens shorter than
// minLength after trimming, or with no alphanumeric character at all.
// With the default WhitespaceTokenizer this is what removes punctuation
// such as a trailing period or surrounding quotes.
func PunctuationStripFilter(minLength int) TokenFilter {
	return func(tokens []Token) []Token {
		out := make([]Token, 0, len(tokens))
		for _, tok := range tokens {
			trimmed := strings.TrimFunc(tok.Term, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r)
			})
			if len(trimmed) < minLength {
				continue
			}
			if !containsAlnum(trimmed) {
				continue
			}
			out = append(out, Token{Term: trimmed, Pos: tok.Pos})
		}
		return out
	}
}

func containsAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// LowercaseFilter lowercases every term.
func LowercaseFilter(tokens []Token) []Token {
	out := make([]Token, len(tokens))
	for i, tok := range tokens {
		out[i] = Token{Term: strings.ToLower(tok.Term), Pos: tok.Pos}
	}
	return out
}

// NumericDropFilter removes tokens that contain no alphabetic character
// (pure numbers, serial codes, etc. carry no retrieval value here).
func NumericDropFilter(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if containsAlpha(tok.Term) {
			out = append(out, tok)
		}
	}
	return out
}

func containsAlpha(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// StopwordFilter drops English stop words.
func StopwordFilter(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if !isStopword(tok.Term) {
			out = append(out, tok)
		}
	}
	return out
}

func isStopword(term string) bool {
	_, ok := englishStopwords[term]
	return ok
}

// StemmerFilter applies the Porter2 (snowball) English stemmer.
func StemmerFilter(tokens []Token) []Token {
	out := make([]Token, len(tokens))
	for i, tok := range tokens {
		out[i] = Token{Term: english.Stem(tok.Term, false), Pos: tok.Pos}
	}
	return out
}

package usecase

import (
	"strings"
	"unicode"
)

// foldDiacritic maps accented Latin letters onto their base form. The corpus
// is predominantly Turkish and English, so the table covers the Turkish set
// plus the common Western European accents.
var foldDiacritic = map[rune]rune{
	'ç': 'c', 'ğ': 'g', 'ı': 'i', 'ö': 'o', 'ş': 's', 'ü': 'u',
	'â': 'a', 'î': 'i', 'û': 'u', 'á': 'a', 'à': 'a', 'ä': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e', 'í': 'i', 'ì': 'i',
	'ï': 'i', 'ó': 'o', 'ò': 'o', 'ô': 'o', 'ú': 'u', 'ù': 'u',
	'ñ': 'n', 'ý': 'y',
}

// normalizeText case-folds, diacritic-folds and whitespace-collapses a query.
// The result is the canonical form used for cache keys, lexical token match
// and spell correction.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range s {
		if r == 'İ' {
			// Turkish dotted capital I lowercases to plain i here.
			r = 'i'
		}
		r = unicode.ToLower(r)
		if folded, ok := foldDiacritic[r]; ok {
			r = folded
		}

		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}

	return strings.TrimRight(b.String(), " ")
}

// tokenizeQuery splits normalized text into lowercase alphanumeric tokens.
func tokenizeQuery(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 8)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

var stopwords = map[string]struct{}{
	// English
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {}, "to": {},
	"is": {}, "are": {}, "was": {}, "what": {}, "who": {}, "how": {},
	"and": {}, "or": {}, "for": {}, "with": {}, "about": {},
	// Turkish
	"bir": {}, "bu": {}, "ve": {}, "ile": {}, "ne": {}, "nedir": {},
	"nasil": {}, "icin": {}, "mi": {}, "mu": {}, "da": {}, "de": {},
	"gibi": {}, "kim": {}, "hakkinda": {},
}

// highInformationTokens picks up to max content-bearing tokens for the
// lemma-seed fallback, preferring longer tokens and keeping query order on
// equal length.
func highInformationTokens(tokens []string, max int) []string {
	if max <= 0 || len(tokens) == 0 {
		return nil
	}

	type scored struct {
		token string
		pos   int
	}
	candidates := make([]scored, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for i, token := range tokens {
		if len(token) < 3 {
			continue
		}
		if _, ok := stopwords[token]; ok {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		candidates = append(candidates, scored{token: token, pos: i})
	}

	// Insertion sort by descending length, stable on query position.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && len(candidates[j].token) > len(candidates[j-1].token); j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.token)
	}
	return out
}

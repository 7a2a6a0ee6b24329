// Package spell provides a dictionary-based single-token corrector used
// to rescue queries that yield too few lexical matches.
package spell

import (
	"sort"
	"strings"
	"sync"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Corrector suggests replacements for misspelled tokens based on term
// frequencies observed in the indexed corpus. Corrections are limited to
// edit distance 2; unknown tokens with no close candidate pass through
// unchanged.
type Corrector struct {
	mu    sync.RWMutex
	terms map[string]int
}

func NewCorrector() *Corrector {
	return &Corrector{terms: make(map[string]int)}
}

// Load replaces the dictionary. Terms are lowercased; zero or negative
// frequencies are ignored.
func (c *Corrector) Load(frequencies map[string]int) {
	terms := make(map[string]int, len(frequencies))
	for term, freq := range frequencies {
		if freq <= 0 {
			continue
		}
		terms[strings.ToLower(term)] = freq
	}
	c.mu.Lock()
	c.terms = terms
	c.mu.Unlock()
}

func (c *Corrector) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.terms)
}

// Correct rewrites each whitespace-separated token of a normalized query to
// its closest dictionary form. Queries with nothing to fix come back intact.
func (c *Corrector) Correct(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return query
	}
	changed := false
	for i, token := range fields {
		fixed := c.correctToken(token)
		if fixed != token {
			fields[i] = fixed
			changed = true
		}
	}
	if !changed {
		return query
	}
	return strings.Join(fields, " ")
}

// correctToken returns the most frequent dictionary term within edit
// distance 2 of token, preferring distance-1 candidates. Tokens already in
// the dictionary, and tokens with no candidate, are returned as-is.
func (c *Corrector) correctToken(token string) string {
	token = strings.ToLower(token)
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.terms) == 0 {
		return token
	}
	if _, known := c.terms[token]; known {
		return token
	}

	d1 := edits1(token)
	if best := c.bestOf(d1); best != "" {
		return best
	}

	// Distance 2 is the union of edits of every distance-1 string. Cap the
	// expansion so pathological inputs stay cheap.
	seen := make(map[string]struct{})
	var d2 []string
	for _, e := range d1 {
		for _, e2 := range edits1(e) {
			if _, dup := seen[e2]; dup {
				continue
			}
			seen[e2] = struct{}{}
			if _, ok := c.terms[e2]; ok {
				d2 = append(d2, e2)
			}
		}
		if len(seen) > 200000 {
			break
		}
	}
	if best := c.bestOf(d2); best != "" {
		return best
	}
	return token
}

// bestOf picks the candidate with the highest corpus frequency, breaking
// ties lexicographically so corrections are deterministic.
func (c *Corrector) bestOf(candidates []string) string {
	known := candidates[:0:0]
	for _, cand := range candidates {
		if _, ok := c.terms[cand]; ok {
			known = append(known, cand)
		}
	}
	if len(known) == 0 {
		return ""
	}
	sort.Strings(known)
	best, bestFreq := "", -1
	for _, cand := range known {
		if freq := c.terms[cand]; freq > bestFreq {
			best, bestFreq = cand, freq
		}
	}
	return best
}

func edits1(token string) []string {
	var out []string
	for i := 0; i <= len(token); i++ {
		left, right := token[:i], token[i:]
		if len(right) > 0 {
			out = append(out, left+right[1:]) // deletion
		}
		if len(right) > 1 {
			out = append(out, left+string(right[1])+string(right[0])+right[2:]) // transposition
		}
		for _, ch := range alphabet {
			if len(right) > 0 {
				out = append(out, left+string(ch)+right[1:]) // substitution
			}
			out = append(out, left+string(ch)+right) // insertion
		}
	}
	return out
}

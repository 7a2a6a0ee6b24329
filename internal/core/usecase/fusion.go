package usecase

import (
	"sort"

	"github.com/okutan/corpusqa/internal/core/domain"
)

// strategyList is one strategy's ranked output entering fusion. Weight only
// matters in RRF mode.
type strategyList struct {
	name    string
	weight  float64
	results []domain.CandidateResult
}

type fusionAccumulator struct {
	candidate domain.CandidateResult
	score     float64
	insertion int
}

// fuseCandidates merges ranked strategy lists into one dense-ranked result
// set. Exactly one mode applies per call; the caller records it in
// diagnostics. Fusion is deterministic for identical inputs.
func fuseCandidates(lists []strategyList, mode domain.FusionMode, rrfK, limit int) []domain.FusedResult {
	switch mode {
	case domain.FusionRRF:
		return fuseRRF(lists, rrfK, limit)
	default:
		return fuseConcat(lists, limit)
	}
}

// fuseConcat orders candidates by match-type precedence, then strategy-local
// score, deduplicating by content id. The fused score keeps the winning
// occurrence's strategy-local score.
func fuseConcat(lists []strategyList, limit int) []domain.FusedResult {
	merged := mergeOccurrences(lists, 0)

	out := make([]domain.FusedResult, 0, len(merged))
	for _, acc := range merged {
		out = append(out, domain.FusedResult{
			CandidateResult: acc.candidate,
			FusedScore:      acc.candidate.Score,
		})
	}

	insertionOf := insertionIndex(merged)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].MatchType.Precedence(), out[j].MatchType.Precedence()
		if pi != pj {
			return pi < pj
		}
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return lessByTieBreak(out[i], out[j], insertionOf)
	})

	return capAndRank(out, limit)
}

// fuseRRF scores each candidate as the weighted sum over strategies of
// 1/(k+rank) and sorts descending.
func fuseRRF(lists []strategyList, rrfK, limit int) []domain.FusedResult {
	if rrfK <= 0 {
		rrfK = 60
	}
	merged := mergeOccurrences(lists, rrfK)

	out := make([]domain.FusedResult, 0, len(merged))
	for _, acc := range merged {
		out = append(out, domain.FusedResult{
			CandidateResult: acc.candidate,
			FusedScore:      acc.score,
		})
	}

	insertionOf := insertionIndex(merged)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		pi, pj := out[i].MatchType.Precedence(), out[j].MatchType.Precedence()
		if pi != pj {
			return pi < pj
		}
		return lessByTieBreak(out[i], out[j], insertionOf)
	})

	return capAndRank(out, limit)
}

// mergeOccurrences collapses duplicate content ids across lists. The retained
// representative is the occurrence with the best match-type precedence (first
// seen wins on equal precedence). When rrfK > 0 the accumulator also sums the
// weighted reciprocal-rank contributions.
func mergeOccurrences(lists []strategyList, rrfK int) []fusionAccumulator {
	acc := make(map[string]*fusionAccumulator)
	order := make([]string, 0, 32)
	insertion := 0

	for _, list := range lists {
		weight := list.weight
		if weight <= 0 {
			weight = 1.0
		}
		for rank, candidate := range list.results {
			if candidate.ContentID == "" {
				continue
			}
			entry, ok := acc[candidate.ContentID]
			if !ok {
				entry = &fusionAccumulator{candidate: candidate, insertion: insertion}
				insertion++
				acc[candidate.ContentID] = entry
				order = append(order, candidate.ContentID)
			} else if candidate.MatchType.Precedence() < entry.candidate.MatchType.Precedence() {
				entry.candidate = candidate
			}
			if rrfK > 0 {
				entry.score += weight / float64(rrfK+rank+1)
			}
		}
	}

	out := make([]fusionAccumulator, 0, len(order))
	for _, id := range order {
		out = append(out, *acc[id])
	}
	return out
}

func insertionIndex(merged []fusionAccumulator) map[string]int {
	out := make(map[string]int, len(merged))
	for _, acc := range merged {
		out[acc.candidate.ContentID] = acc.insertion
	}
	return out
}

// lessByTieBreak resolves remaining ties: shorter content first, then stable
// insertion order.
func lessByTieBreak(a, b domain.FusedResult, insertionOf map[string]int) bool {
	if a.ContentLength != b.ContentLength && a.ContentLength > 0 && b.ContentLength > 0 {
		return a.ContentLength < b.ContentLength
	}
	return insertionOf[a.ContentID] < insertionOf[b.ContentID]
}

// capAndRank truncates to limit and assigns the dense 1..N rank sequence.
func capAndRank(results []domain.FusedResult, limit int) []domain.FusedResult {
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

package knowledge

import (
	"sort"
	"strings"

	"supportwatch/internal/models"
	"supportwatch/internal/utils"
)

// Candidate is one knowledge entry considered for an answer
type Candidate struct {
	Entry      models.KnowledgeEntry
	Confidence int // 0..100
	Source     string
}

// Candidate sources
const (
	SourceVector  = "vector"
	SourceKeyword = "keyword"
)

// KeywordConfidence scores an entry against a query: the share of
// meaningful query tokens found in the entry's question, answer or keywords,
// or 100 when the normalized query appears verbatim in the question.
func KeywordConfidence(query string, entry models.KnowledgeEntry) int {
	normalized := utils.NormalizeText(query)
	if normalized == "" {
		return 0
	}
	if strings.Contains(utils.NormalizeText(entry.Question), normalized) {
		return 100
	}

	tokens := utils.ExtractMeaningfulTokens(query)
	if len(tokens) == 0 {
		return 0
	}

	values := append([]string{entry.Question, entry.Answer}, entry.Keywords...)
	matched := utils.CountMatchedTokens(utils.BuildTokenSet(values...), tokens)
	return 100 * matched / len(tokens)
}

// MatchKeywords scores entries by keyword overlap and returns those with any
// overlap, best first, capped at limit.
func MatchKeywords(query string, entries []models.KnowledgeEntry, limit int) []Candidate {
	var candidates []Candidate
	for _, entry := range entries {
		confidence := KeywordConfidence(query, entry)
		if confidence == 0 {
			continue
		}
		candidates = append(candidates, Candidate{Entry: entry, Confidence: confidence, Source: SourceKeyword})
	}

	sortCandidates(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// mergeCandidates keeps the highest confidence per entry
func mergeCandidates(limit int, sets ...[]Candidate) []Candidate {
	byID := make(map[int64]Candidate)
	for _, set := range sets {
		for _, c := range set {
			if existing, ok := byID[c.Entry.ID]; ok && existing.Confidence >= c.Confidence {
				continue
			}
			byID[c.Entry.ID] = c
		}
	}

	merged := make([]Candidate, 0, len(byID))
	for _, c := range byID {
		merged = append(merged, c)
	}
	sortCandidates(merged)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Entry.ID < candidates[j].Entry.ID
	})
}

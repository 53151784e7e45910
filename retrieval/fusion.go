package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// rrfK is the standard Reciprocal Rank Fusion smoothing constant.
const rrfK = 60

// RankedItem is one entry of a ranked list handed to FuseRRF. Rank position
// is implied by slice order; Score is the source ranker's own score and only
// matters for that ordering.
type RankedItem struct {
	ID    string
	Score float64
}

// FusedResult carries an item's combined RRF score.
type FusedResult struct {
	ID    string
	Score float64
}

// FuseRRF merges ranked lists with Reciprocal Rank Fusion: each item scores
// the sum of 1/(k+rank) over every list it appears in, with rank starting at
// 1, deduplicated by ID. Items present in more lists outrank single-list
// items. The result is sorted by descending combined score.
func FuseRRF(lists ...[]RankedItem) []FusedResult {
	scores := make(map[string]float64)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, item := range list {
			if _, seen := scores[item.ID]; !seen {
				order = append(order, item.ID)
			}
			scores[item.ID] += 1.0 / float64(rrfK+rank+1)
		}
	}

	results := make([]FusedResult, 0, len(order))
	for _, id := range order {
		results = append(results, FusedResult{ID: id, Score: scores[id]})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// keywordRank scores candidate texts against a query with BM25 and returns
// IDs ranked by descending score, dropping zero-score candidates. Statistics
// are computed over the candidate set itself, which is small enough that the
// full pass per query is cheap.
func keywordRank(query string, candidates map[string]string) []RankedItem {
	const (
		k1 = 1.5
		b  = 0.75
	)

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || len(candidates) == 0 {
		return nil
	}

	type docStats struct {
		id       string
		termFreq map[string]int
		length   int
	}

	docs := make([]docStats, 0, len(candidates))
	termDocCount := make(map[string]int)
	totalLen := 0
	for id, text := range candidates {
		terms := tokenize(text)
		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		for term := range tf {
			termDocCount[term]++
		}
		docs = append(docs, docStats{id: id, termFreq: tf, length: len(terms)})
		totalLen += len(terms)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].id < docs[j].id })

	n := float64(len(docs))
	avgLen := float64(totalLen) / n

	items := make([]RankedItem, 0, len(docs))
	for _, doc := range docs {
		score := 0.0
		for _, qTerm := range queryTerms {
			tf, ok := doc.termFreq[qTerm]
			if !ok {
				continue
			}
			df := float64(termDocCount[qTerm])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)
			numerator := float64(tf) * (k1 + 1.0)
			denominator := float64(tf) + k1*(1.0-b+b*(float64(doc.length)/avgLen))
			score += idf * (numerator / denominator)
		}
		if score > 0 {
			items = append(items, RankedItem{ID: doc.id, Score: score})
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

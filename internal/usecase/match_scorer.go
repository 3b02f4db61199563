package usecase

import (
	"math"
	"sort"
	"strings"

	"github.com/pricelens/backend/internal/domain"
)

// Term weights of the confidence score
const (
	brandWeight    = 40.0
	titleWeight    = 40.0
	categoryWeight = 20.0
)

// Category similarity when both sides have a category
const (
	categoryExact     = 1.0
	categoryDifferent = 0.5
)

// MatchScorer computes how likely a candidate is the same product as the source
type MatchScorer struct{}

// NewMatchScorer creates a scorer
func NewMatchScorer() *MatchScorer {
	return &MatchScorer{}
}

// Score returns a 0-100 confidence that candidate matches source.
// It is a weighted average of brand, title and category similarity, taken
// only over the terms whose fields are present on both sides.
func (s *MatchScorer) Score(source *domain.ProductDescriptor, candidate *domain.SearchCandidate) float64 {
	if source == nil || candidate == nil {
		return 0
	}

	var weighted, totalWeight float64

	if sim, ok := brandSimilarity(source.Brand, candidate.Brand); ok {
		weighted += brandWeight * sim
		totalWeight += brandWeight
	}

	if sim, ok := titleSimilarity(source.Title, candidate.Title); ok {
		weighted += titleWeight * sim
		totalWeight += titleWeight
	}

	if sim, ok := categorySimilarity(source.Category, candidate.Category); ok {
		weighted += categoryWeight * sim
		totalWeight += categoryWeight
	}

	if totalWeight == 0 {
		return 0
	}

	score := weighted / totalWeight * 100
	return math.Round(math.Min(math.Max(score, 0), 100)*10) / 10
}

// brandSimilarity is the Jaccard similarity of whitespace tokens
func brandSimilarity(a, b string) (float64, bool) {
	ta := strings.Fields(strings.ToLower(a))
	tb := strings.Fields(strings.ToLower(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0, false
	}
	return jaccard(ta, tb), true
}

// titleSimilarity is the Jaccard similarity of query tokens
func titleSimilarity(a, b string) (float64, bool) {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0, false
	}
	return jaccard(ta, tb), true
}

func categorySimilarity(a, b string) (float64, bool) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0, false
	}
	if strings.EqualFold(a, b) {
		return categoryExact, true
	}
	return categoryDifferent, true
}

// jaccard returns |A∩B| / |A∪B| over the token sets
func jaccard(a, b []string) float64 {
	matched, _ := findIntersection(a, b)
	union := findUnion(a, b)
	if union == 0 {
		return 0
	}
	return float64(matched) / float64(union)
}

// findIntersection returns the count of common tokens and the list of matched tokens
func findIntersection(tokens1, tokens2 []string) (int, []string) {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}

	var matched []string
	seen := make(map[string]bool)
	for _, t := range tokens2 {
		if set[t] && !seen[t] {
			matched = append(matched, t)
			seen[t] = true
		}
	}

	return len(matched), matched
}

// findUnion returns the count of unique tokens across both sets
func findUnion(tokens1, tokens2 []string) int {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}
	for _, t := range tokens2 {
		set[t] = true
	}
	return len(set)
}

// sortCandidates orders candidates by confidence, then seller rating, review
// count and platform name. Title and URL settle whatever remains so the
// order never depends on arrival order.
func sortCandidates(items []domain.SearchCandidate) {
	sort.SliceStable(items, func(i, j int) bool {
		return compareCandidates(items[i], items[j]) > 0
	})
}

// compareCandidates returns >0 when left ranks ahead of right
func compareCandidates(left, right domain.SearchCandidate) int {
	if cmp := compareFloat64(left.ConfidenceScore, right.ConfidenceScore); cmp != 0 {
		return cmp
	}
	if cmp := compareFloat64(left.SellerRating, right.SellerRating); cmp != 0 {
		return cmp
	}
	if cmp := compareInt(left.ReviewCount, right.ReviewCount); cmp != 0 {
		return cmp
	}
	// lexically smaller names rank first
	if cmp := strings.Compare(left.Platform, right.Platform); cmp != 0 {
		return -cmp
	}
	if cmp := strings.Compare(left.Title, right.Title); cmp != 0 {
		return -cmp
	}
	return -strings.Compare(left.ProductURL, right.ProductURL)
}

func compareFloat64(left, right float64) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}

func compareInt(left, right int) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}

// savingsPercent returns how much cheaper candidate is than source, in
// percent rounded to two decimals. It is nil when prices are missing or in
// different currencies.
func savingsPercent(source *domain.Price, candidate domain.SearchCandidate) *float64 {
	if source == nil || source.Amount <= 0 || candidate.Price <= 0 {
		return nil
	}
	if source.Currency != "" && candidate.Currency != "" && !strings.EqualFold(source.Currency, candidate.Currency) {
		return nil
	}

	pct := (source.Amount - candidate.Price) / source.Amount * 100
	pct = math.Round(pct*100) / 100
	return &pct
}

package usecase

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pricelens/backend/internal/domain"
)

// maxQueryKeywords caps the number of title keywords sent to marketplaces
const maxQueryKeywords = 5

// minTokenLength drops short tokens such as "a", "of", "xl"
const minTokenLength = 3

var punctuationRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// stopWords includes basic English stop words plus listing noise
var stopWords = map[string]bool{
	// Basic English stop words
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"you": true, "your": true, "our": true, "are": true, "was": true,
	"this": true, "that": true, "into": true, "onto": true, "over": true,
	"per": true, "all": true, "any": true, "can": true, "not": true,
	// Marketing terms
	"new": true, "hot": true, "sale": true, "best": true, "top": true,
	"free": true, "shipping": true, "deal": true, "deals": true, "discount": true,
	"original": true, "genuine": true, "official": true, "authentic": true,
	"quality": true, "premium": true, "latest": true, "upgraded": true,
	"2024": true, "2025": true, "2026": true,
	// Packaging / quantity terms
	"pcs": true, "piece": true, "pieces": true, "pack": true, "set": true,
	"lot": true, "pairs": true, "pair": true, "count": true, "unit": true,
	// Generic product terms that don't help narrow down
	"item": true, "product": true, "products": true, "brand": true,
}

// genericBrands are placeholder brand values that carry no signal
var genericBrands = map[string]bool{
	"generic": true, "unbranded": true, "no brand": true, "nobrand": true,
	"n/a": true, "na": true, "none": true, "unknown": true, "oem": true,
	"other": true,
}

// BuildQuery builds the platform-independent query for a descriptor:
// the brand (unless it is a placeholder) plus up to five significant title
// keywords. Every adapter receives the same query for a given request.
func BuildQuery(descriptor *domain.ProductDescriptor) domain.NormalizedQuery {
	query := domain.NormalizedQuery{Keywords: []string{}}
	if descriptor == nil {
		return query
	}

	brandTokens := map[string]bool{}
	if brand := strings.TrimSpace(descriptor.Brand); brand != "" && !isGenericBrand(brand) {
		query.Brand = brand
		for _, t := range strings.Fields(strings.ToLower(brand)) {
			brandTokens[t] = true
		}
	}

	for _, token := range tokenize(descriptor.Title) {
		if brandTokens[token] {
			continue
		}
		query.Keywords = append(query.Keywords, token)
		if len(query.Keywords) == maxQueryKeywords {
			break
		}
	}

	return query
}

func isGenericBrand(brand string) bool {
	return genericBrands[strings.ToLower(strings.TrimSpace(brand))]
}

// tokenize splits a string into unique, lower-cased significant tokens in
// order of first appearance. Punctuation is stripped, stop words and tokens
// shorter than three characters are dropped.
func tokenize(s string) []string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")

	var tokens []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(word) < minTokenLength {
			continue
		}
		if stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		tokens = append(tokens, word)
	}

	return tokens
}

package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)
	stopwords    = map[string]struct{}{
		"a": {}, "about": {}, "am": {}, "an": {}, "and": {}, "any": {}, "anyone": {}, "are": {},
		"as": {}, "at": {}, "be": {}, "but": {}, "by": {}, "can": {}, "could": {}, "did": {},
		"do": {}, "does": {}, "doing": {}, "for": {}, "from": {}, "get": {}, "got": {}, "has": {},
		"have": {}, "hello": {}, "help": {}, "hi": {}, "how": {}, "i": {}, "if": {}, "im": {},
		"in": {}, "is": {}, "it": {}, "its": {}, "just": {}, "me": {}, "my": {}, "need": {},
		"not": {}, "of": {}, "on": {}, "or": {}, "our": {}, "please": {}, "should": {}, "so": {},
		"some": {}, "someone": {}, "thanks": {}, "that": {}, "the": {}, "their": {}, "them": {},
		"there": {}, "these": {}, "they": {}, "this": {}, "those": {}, "to": {}, "us": {},
		"want": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {},
		"which": {}, "who": {}, "why": {}, "will": {}, "with": {}, "would": {}, "you": {}, "your": {},
	}
)

// ExtractMeaningfulTokens tokenizes text, removes stopwords, and deduplicates tokens while preserving order.
func ExtractMeaningfulTokens(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	rawTokens := tokenize(text)
	filtered := filterTokens(rawTokens)
	return dedupeTokens(filtered)
}

// BuildTokenSet builds a unique token set from the provided values.
func BuildTokenSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		for _, token := range ExtractMeaningfulTokens(value) {
			set[token] = struct{}{}
		}
	}
	return set
}

// CountMatchedTokens returns how many of tokens are present in tokenSet
func CountMatchedTokens(tokenSet map[string]struct{}, tokens []string) int {
	matched := 0
	for _, token := range tokens {
		if _, ok := tokenSet[token]; ok {
			matched++
		}
	}
	return matched
}

// NormalizeText lowercases text and collapses every run of non-alphanumeric
// characters to a single space.
func NormalizeText(text string) string {
	return strings.Join(tokenize(text), " ")
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return tokenPattern.FindAllString(lower, -1)
}

func filterTokens(tokens []string) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		// single letters carry no signal, single digits do
		if r, size := utf8.DecodeRuneInString(token); size == len(token) && !unicode.IsDigit(r) && r < unicode.MaxLatin1 {
			continue
		}
		if _, isStopword := stopwords[token]; isStopword {
			continue
		}
		result = append(result, token)
	}
	return result
}

func dedupeTokens(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}

	seen := make(map[string]struct{}, len(tokens))
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, exists := seen[token]; exists {
			continue
		}
		seen[token] = struct{}{}
		result = append(result, token)
	}
	return result
}

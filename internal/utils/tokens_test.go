package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMeaningfulTokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "question with stopwords",
			input:    "How do I reset my password?",
			expected: []string{"reset", "password"},
		},
		{
			name:     "with punctuation",
			input:    "Two-factor, login!",
			expected: []string{"two", "factor", "login"},
		},
		{
			name:     "mixed case",
			input:    "REFUND Policy",
			expected: []string{"refund", "policy"},
		},
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "numbers are kept",
			input:    "order 1234 error 5",
			expected: []string{"order", "1234", "error", "5"},
		},
		{
			name:     "single letters dropped",
			input:    "plan a b c upgrade",
			expected: []string{"plan", "upgrade"},
		},
		{
			name:     "duplicates removed in order",
			input:    "billing invoice billing INVOICE",
			expected: []string{"billing", "invoice"},
		},
		{
			name:     "accented letters",
			input:    "Réinitialiser mot de passe",
			expected: []string{"réinitialiser", "mot", "de", "passe"},
		},
		{
			name:     "non-latin script",
			input:    "איפוס סיסמה",
			expected: []string{"איפוס", "סיסמה"},
		},
		{
			name:     "symbols only",
			input:    "?!... ---",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractMeaningfulTokens(tt.input))
		})
	}
}

func TestBuildTokenSet(t *testing.T) {
	set := BuildTokenSet("How do I reset my password?", "", "Reset it from the login page", "   ")

	assert.Len(t, set, 4)
	for _, token := range []string{"reset", "password", "login", "page"} {
		assert.Contains(t, set, token)
	}
}

func TestCountMatchedTokens(t *testing.T) {
	set := BuildTokenSet("Use the forgot password link on the login page")

	tests := []struct {
		name     string
		tokens   []string
		expected int
	}{
		{"all present", []string{"password", "login"}, 2},
		{"some present", []string{"password", "refund"}, 1},
		{"none present", []string{"refund", "invoice"}, 0},
		{"empty tokens", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CountMatchedTokens(set, tt.tokens))
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"How do I reset my password?", "how do i reset my password"},
		{"  Multiple   spaces\tand\nlines ", "multiple spaces and lines"},
		{"", ""},
		{"Two-Factor", "two factor"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeText(tt.input))
		})
	}
}

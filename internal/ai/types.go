// Package ai provides the backend gateway to interchangeable AI services
// (API-key vendor, OAuth cloud, local model server, vendor CLI) and the
// orchestrator that orders them and handles fallback.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// BackendType identifies one backend variant
type BackendType string

const (
	BackendOpenAI BackendType = "openai" // vendor API with key
	BackendAzure  BackendType = "azure"  // OAuth-authenticated cloud
	BackendLocal  BackendType = "local"  // local OpenAI-compatible model server
	BackendCLI    BackendType = "cli"    // vendor CLI subprocess with its own OAuth login
)

// ParseBackendType validates a configured backend name
func ParseBackendType(name string) (BackendType, error) {
	switch t := BackendType(strings.ToLower(strings.TrimSpace(name))); t {
	case BackendOpenAI, BackendAzure, BackendLocal, BackendCLI:
		return t, nil
	default:
		return "", fmt.Errorf("unknown AI backend %q", name)
	}
}

var (
	// ErrMalformedResponse means the backend answered but the output could not be parsed or validated
	ErrMalformedResponse = errors.New("malformed AI response")
	// ErrBackendTimeout means the per-call deadline elapsed before the backend answered
	ErrBackendTimeout = errors.New("AI backend timed out")
	// ErrUnsupported means the backend variant cannot perform the operation
	ErrUnsupported = errors.New("operation not supported by AI backend")
	// ErrAllBackendsExhausted means every backend in a fallback chain failed
	ErrAllBackendsExhausted = errors.New("all AI backends exhausted")
	// ErrNoBackends means no backend is configured for the operation
	ErrNoBackends = errors.New("no AI backend configured")
)

// Prompt is one system/user exchange sent to a backend
type Prompt struct {
	System string
	User   string
	JSON   bool // ask the backend for a JSON object
}

// Backend is the transport-level contract every variant implements.
// Typed operations live on Gateway and are built on Complete and Embed.
type Backend interface {
	Type() BackendType
	Complete(ctx context.Context, prompt Prompt) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbeddingFamily names the vector space Embed produces
	EmbeddingFamily() string
}

// QuestionClassification is the result of classifyQuestion
type QuestionClassification struct {
	IsQuestion     bool     `json:"is_question"`
	Confidence     int      `json:"confidence"`
	Summary        string   `json:"summary"`
	Sentiment      string   `json:"sentiment"`
	SuggestedTags  []string `json:"suggested_tags"`
	SuggestedReply *string  `json:"suggested_reply,omitempty"`
}

// ReplyEvaluation is the result of evaluateReply
type ReplyEvaluation struct {
	RelevanceScore    int    `json:"relevance_score"`
	IsCounterQuestion bool   `json:"is_counter_question"`
	Explanation       string `json:"explanation"`
}

// TagDecision is the result of deduplicateTag. SimilarTag is always a member
// of the vocabulary that was sent.
type TagDecision struct {
	SimilarTag  *string `json:"similar_tag,omitempty"`
	ShouldMerge bool    `json:"should_merge"`
}

// SentimentResult is the result of aggregateSentiment
type SentimentResult struct {
	Sentiment string `json:"sentiment"`
	Reason    string `json:"reason"`
}

// KnowledgeSnippet is one candidate entry handed to synthesizeAnswer
type KnowledgeSnippet struct {
	Question string
	Answer   string
	Category *string
}

// Synthesis is the result of synthesizeAnswer
type Synthesis struct {
	CanAnswer        bool   `json:"can_answer"`
	Answer           string `json:"answer"`
	Confidence       int    `json:"confidence"`
	UsedEntryIndices []int  `json:"used_entry_indices"`
}

// Embedding is a set of vectors tagged with the family that produced them.
// Fallback is set when a backend later in the embedding order answered.
type Embedding struct {
	Vectors  [][]float32
	Family   string
	Backend  BackendType
	Fallback bool
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultCallTimeout bounds a single backend call when none is configured
const DefaultCallTimeout = 30 * time.Second

// Gateway runs the typed AI operations against one backend. Every call is
// bounded by the gateway timeout and every response is parsed narrowly.
type Gateway struct {
	backend Backend
	timeout time.Duration
}

// NewGateway wraps a backend with a per-call timeout
func NewGateway(backend Backend, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Gateway{backend: backend, timeout: timeout}
}

// Type returns the wrapped backend type
func (g *Gateway) Type() BackendType {
	return g.backend.Type()
}

// EmbeddingFamily returns the vector space of the wrapped backend
func (g *Gateway) EmbeddingFamily() string {
	return g.backend.EmbeddingFamily()
}

func (g *Gateway) complete(ctx context.Context, prompt Prompt) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.backend.Complete(callCtx, prompt)
	if err != nil {
		return "", g.wrapErr(ctx, callCtx, err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty response from %s", ErrMalformedResponse, g.backend.Type())
	}
	return raw, nil
}

// wrapErr maps an elapsed per-call deadline to ErrBackendTimeout. A caller
// cancellation stays a context error.
func (g *Gateway) wrapErr(parent, callCtx context.Context, err error) error {
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrUnsupported) {
		return err
	}
	if parent.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrBackendTimeout, g.backend.Type(), g.timeout)
	}
	return fmt.Errorf("%s backend call failed: %w", g.backend.Type(), err)
}

// ClassifyQuestion decides whether a message is a question needing a reply
func (g *Gateway) ClassifyQuestion(ctx context.Context, text string) (QuestionClassification, error) {
	raw, err := g.complete(ctx, classifyPrompt(text))
	if err != nil {
		return QuestionClassification{}, err
	}
	return parseClassification(raw)
}

// EvaluateReply scores how well a staff reply addresses a question
func (g *Gateway) EvaluateReply(ctx context.Context, question, reply string) (ReplyEvaluation, error) {
	raw, err := g.complete(ctx, evaluatePrompt(question, reply))
	if err != nil {
		return ReplyEvaluation{}, err
	}
	return parseEvaluation(raw)
}

// DeduplicateTag asks whether a candidate tag duplicates one in the vocabulary
func (g *Gateway) DeduplicateTag(ctx context.Context, candidate string, vocabulary []string) (TagDecision, error) {
	if len(vocabulary) == 0 {
		return TagDecision{}, nil
	}
	raw, err := g.complete(ctx, dedupePrompt(candidate, vocabulary))
	if err != nil {
		return TagDecision{}, err
	}
	return parseTagDecision(raw, vocabulary)
}

// AggregateSentiment rolls recent customer messages (oldest first) into one sentiment
func (g *Gateway) AggregateSentiment(ctx context.Context, messages []string) (SentimentResult, error) {
	if len(messages) == 0 {
		return SentimentResult{}, fmt.Errorf("%w: no messages to aggregate", ErrMalformedResponse)
	}
	raw, err := g.complete(ctx, sentimentPrompt(messages))
	if err != nil {
		return SentimentResult{}, err
	}
	return parseSentiment(raw)
}

// SynthesizeAnswer drafts a reply grounded only in the given entries
func (g *Gateway) SynthesizeAnswer(ctx context.Context, query string, entries []KnowledgeSnippet) (Synthesis, error) {
	if len(entries) == 0 {
		return Synthesis{CanAnswer: false}, nil
	}
	raw, err := g.complete(ctx, synthesizePrompt(query, entries))
	if err != nil {
		return Synthesis{}, err
	}
	return parseSynthesis(raw, len(entries))
}

// Embed returns one vector per input text
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vectors, err := g.backend.Embed(callCtx, texts)
	if err != nil {
		return nil, g.wrapErr(ctx, callCtx, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrMalformedResponse, len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrMalformedResponse, i)
		}
	}
	return vectors, nil
}

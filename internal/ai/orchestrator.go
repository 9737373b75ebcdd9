package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// CallObserver is notified after every backend call
type CallObserver func(op string, backend BackendType, elapsed time.Duration, err error)

// Orchestrator selects backends for each operation. Classification,
// evaluation, tag dedupe and sentiment run on the primary backend only.
// Answer synthesis and embeddings try each configured backend once, in order.
type Orchestrator struct {
	primary   *Gateway
	chain     []*Gateway
	embedders []*Gateway
	breakers  map[BackendType]*gobreaker.CircuitBreaker
	logger    zerolog.Logger
	observe   CallObserver
}

// NewOrchestrator orders the given gateways. The primary comes first in the
// synthesis chain, the rest follow the configured order. Types without a
// gateway are skipped.
func NewOrchestrator(gateways map[BackendType]*Gateway, primary BackendType, order, embeddingOrder []BackendType, logger zerolog.Logger) (*Orchestrator, error) {
	o := &Orchestrator{
		breakers: make(map[BackendType]*gobreaker.CircuitBreaker),
		logger:   logger,
	}

	o.primary = gateways[primary]
	if o.primary == nil {
		return nil, fmt.Errorf("%w: primary backend %q", ErrNoBackends, primary)
	}

	seen := map[BackendType]bool{primary: true}
	o.chain = append(o.chain, o.primary)
	for _, t := range order {
		if gw := gateways[t]; gw != nil && !seen[t] {
			seen[t] = true
			o.chain = append(o.chain, gw)
		}
	}

	seenEmbed := make(map[BackendType]bool)
	for _, t := range embeddingOrder {
		if gw := gateways[t]; gw != nil && !seenEmbed[t] && t != BackendCLI {
			seenEmbed[t] = true
			o.embedders = append(o.embedders, gw)
		}
	}

	for t := range gateways {
		o.breakers[t] = newBreaker(t, logger)
	}
	return o, nil
}

func newBreaker(t BackendType, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai-" + string(t),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("AI backend circuit breaker state changed")
		},
		// Caller cancellation is not a backend failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrUnsupported)
		},
	})
}

// SetObserver installs a hook called after every backend call
func (o *Orchestrator) SetObserver(observe CallObserver) {
	o.observe = observe
}

// Primary returns the primary gateway
func (o *Orchestrator) Primary() *Gateway {
	return o.primary
}

// Chain returns the synthesis order, primary first
func (o *Orchestrator) Chain() []BackendType {
	types := make([]BackendType, 0, len(o.chain))
	for _, gw := range o.chain {
		types = append(types, gw.Type())
	}
	return types
}

func execute[T any](o *Orchestrator, op string, gw *Gateway, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := o.breakers[gw.Type()].Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%s circuit open: %w", gw.Type(), err)
	}
	if o.observe != nil {
		o.observe(op, gw.Type(), time.Since(start), err)
	}

	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected result type from %s", ErrMalformedResponse, gw.Type())
	}
	return typed, nil
}

// ClassifyQuestion runs on the primary backend
func (o *Orchestrator) ClassifyQuestion(ctx context.Context, text string) (QuestionClassification, error) {
	return execute(o, "classify_question", o.primary, func() (QuestionClassification, error) {
		return o.primary.ClassifyQuestion(ctx, text)
	})
}

// EvaluateReply runs on the primary backend
func (o *Orchestrator) EvaluateReply(ctx context.Context, question, reply string) (ReplyEvaluation, error) {
	return execute(o, "evaluate_reply", o.primary, func() (ReplyEvaluation, error) {
		return o.primary.EvaluateReply(ctx, question, reply)
	})
}

// DeduplicateTag runs on the primary backend
func (o *Orchestrator) DeduplicateTag(ctx context.Context, candidate string, vocabulary []string) (TagDecision, error) {
	return execute(o, "deduplicate_tag", o.primary, func() (TagDecision, error) {
		return o.primary.DeduplicateTag(ctx, candidate, vocabulary)
	})
}

// AggregateSentiment runs on the primary backend
func (o *Orchestrator) AggregateSentiment(ctx context.Context, messages []string) (SentimentResult, error) {
	return execute(o, "aggregate_sentiment", o.primary, func() (SentimentResult, error) {
		return o.primary.AggregateSentiment(ctx, messages)
	})
}

// SynthesizeAnswer tries each backend once in chain order and returns the
// first success together with the backend that produced it.
func (o *Orchestrator) SynthesizeAnswer(ctx context.Context, query string, entries []KnowledgeSnippet) (Synthesis, BackendType, error) {
	var errs []error
	for _, gw := range o.chain {
		if err := ctx.Err(); err != nil {
			return Synthesis{}, "", err
		}

		result, err := execute(o, "synthesize_answer", gw, func() (Synthesis, error) {
			return gw.SynthesizeAnswer(ctx, query, entries)
		})
		if err == nil {
			return result, gw.Type(), nil
		}

		o.logger.Warn().Err(err).Str("backend", string(gw.Type())).Msg("Answer synthesis failed, trying next backend")
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return Synthesis{}, "", ErrNoBackends
	}
	return Synthesis{}, "", fmt.Errorf("%w: %w", ErrAllBackendsExhausted, errors.Join(errs...))
}

// Embed tries each embedding-capable backend once in order. The returned
// family identifies the vector space; vectors from different families must
// never be compared.
func (o *Orchestrator) Embed(ctx context.Context, texts []string) (Embedding, error) {
	var errs []error
	for i, gw := range o.embedders {
		if err := ctx.Err(); err != nil {
			return Embedding{}, err
		}

		vectors, err := execute(o, "embed", gw, func() ([][]float32, error) {
			return gw.Embed(ctx, texts)
		})
		if err == nil {
			return Embedding{Vectors: vectors, Family: gw.EmbeddingFamily(), Backend: gw.Type(), Fallback: i > 0}, nil
		}

		o.logger.Warn().Err(err).Str("backend", string(gw.Type())).Msg("Embedding failed, trying next backend")
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return Embedding{}, fmt.Errorf("%w: no embedding backend", ErrNoBackends)
	}
	return Embedding{}, fmt.Errorf("%w: %w", ErrAllBackendsExhausted, errors.Join(errs...))
}

// EmbedFamily embeds with the backend that produces the given family. Used
// when new vectors must stay comparable with an existing index.
func (o *Orchestrator) EmbedFamily(ctx context.Context, family string, texts []string) (Embedding, error) {
	for _, gw := range o.embedders {
		if gw.EmbeddingFamily() != family {
			continue
		}
		vectors, err := execute(o, "embed", gw, func() ([][]float32, error) {
			return gw.Embed(ctx, texts)
		})
		if err != nil {
			return Embedding{}, err
		}
		return Embedding{Vectors: vectors, Family: family, Backend: gw.Type()}, nil
	}
	return Embedding{}, fmt.Errorf("%w: no backend for embedding family %q", ErrNoBackends, family)
}

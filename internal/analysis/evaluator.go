package analysis

import (
	"context"
	"fmt"

	"supportwatch/internal/ai"
)

// ReplyOutcome is what a staff reply means for the issue it follows
type ReplyOutcome int

const (
	OutcomeNone            ReplyOutcome = iota // keep scanning
	OutcomeAnswered                            // relevance at or above threshold
	OutcomeCounterQuestion                     // staff asked the customer for more
)

func (o ReplyOutcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeCounterQuestion:
		return "counter_question"
	default:
		return "none"
	}
}

// Evaluator scores candidate staff replies
type Evaluator struct {
	ai        ReplyAI
	threshold int
}

// NewEvaluator creates a reply evaluator with an inclusive relevance threshold
func NewEvaluator(backend ReplyAI, threshold int) *Evaluator {
	return &Evaluator{ai: backend, threshold: threshold}
}

// Evaluate scores reply against question and classifies the outcome.
// Relevance wins over the counter-question flag.
func (e *Evaluator) Evaluate(ctx context.Context, question, reply string) (ai.ReplyEvaluation, ReplyOutcome, error) {
	result, err := e.ai.EvaluateReply(ctx, question, reply)
	if err != nil {
		return ai.ReplyEvaluation{}, OutcomeNone, fmt.Errorf("failed to evaluate reply: %w", err)
	}
	return result, e.Outcome(result), nil
}

// Outcome maps an evaluation onto the lifecycle
func (e *Evaluator) Outcome(result ai.ReplyEvaluation) ReplyOutcome {
	switch {
	case result.RelevanceScore >= e.threshold:
		return OutcomeAnswered
	case result.IsCounterQuestion:
		return OutcomeCounterQuestion
	default:
		return OutcomeNone
	}
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"supportwatch/internal/ai"
	"supportwatch/internal/models"
)

// ErrNotClassifiable is returned for staff messages and messages without text
var ErrNotClassifiable = errors.New("message is not a classification input")

// Classifier decides whether an external-party message is a question
type Classifier struct {
	ai QuestionAI
}

// NewClassifier creates a question classifier
func NewClassifier(backend QuestionAI) *Classifier {
	return &Classifier{ai: backend}
}

// ShouldClassify reports whether msg may be sent to the classifier. Staff
// messages are only ever candidate replies; empty messages are skipped.
func ShouldClassify(msg models.Message) bool {
	return !msg.IsStaff && strings.TrimSpace(msg.Text()) != ""
}

// Classify runs the classifier on one message. A backend failure or timeout
// is returned as an error, never as "not a question".
func (c *Classifier) Classify(ctx context.Context, msg models.Message) (ai.QuestionClassification, error) {
	if !ShouldClassify(msg) {
		return ai.QuestionClassification{}, ErrNotClassifiable
	}

	result, err := c.ai.ClassifyQuestion(ctx, strings.TrimSpace(msg.Text()))
	if err != nil {
		return ai.QuestionClassification{}, fmt.Errorf("failed to classify message %d: %w", msg.ID, err)
	}
	return result, nil
}

// Package analysis turns chat messages into tracked issues: question
// classification, staff reply evaluation, tag deduplication, the issue
// lifecycle state machine and customer sentiment rollup.
package analysis

import (
	"context"
	"time"

	"supportwatch/internal/ai"
	"supportwatch/internal/database"
	"supportwatch/internal/models"
)

// QuestionAI classifies one message
type QuestionAI interface {
	ClassifyQuestion(ctx context.Context, text string) (ai.QuestionClassification, error)
}

// ReplyAI scores a staff reply against a question
type ReplyAI interface {
	EvaluateReply(ctx context.Context, question, reply string) (ai.ReplyEvaluation, error)
}

// TagAI compares a candidate tag with the vocabulary
type TagAI interface {
	DeduplicateTag(ctx context.Context, candidate string, vocabulary []string) (ai.TagDecision, error)
}

// SentimentAI rolls messages into one sentiment
type SentimentAI interface {
	AggregateSentiment(ctx context.Context, messages []string) (ai.SentimentResult, error)
}

// Backend is everything the batch pipeline asks of the AI layer.
// *ai.Orchestrator satisfies it.
type Backend interface {
	QuestionAI
	ReplyAI
	TagAI
	SentimentAI
}

// IssueStore persists issues
type IssueStore interface {
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id int64) (*models.Issue, error)
	GetIssueByTrigger(ctx context.Context, messageID int64) (*models.Issue, error)
	TransitionIssue(ctx context.Context, id int64, t database.IssueTransition) (*models.Issue, error)
	TimeoutOverdueIssues(ctx context.Context, now time.Time) ([]models.Issue, error)
}

// TagStore persists the tag vocabulary and issue links
type TagStore interface {
	ListTags(ctx context.Context) ([]models.Tag, error)
	GetTagByName(ctx context.Context, name string) (*models.Tag, error)
	CreateTag(ctx context.Context, name string) (*models.Tag, error)
	AttachTag(ctx context.Context, issueID, tagID int64) (bool, error)
}

// CustomerStore reads message history and stores customer sentiment
type CustomerStore interface {
	EnsureCustomer(ctx context.Context, externalID string) (int64, error)
	RecentExternalTexts(ctx context.Context, externalPartyID string, limit int) ([]string, error)
	ReplaceCustomerSentiment(ctx context.Context, externalID, sentiment string) error
}

// MessageStore reads messages for a batch run
type MessageStore interface {
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	ListExternalMessages(ctx context.Context, since time.Time, conversationID *string) ([]models.Message, error)
	ListStaffRepliesAfter(ctx context.Context, trigger models.Message, limit int) ([]models.Message, error)
	ListPendingIssues(ctx context.Context, since time.Time, conversationID *string) ([]models.Issue, error)
}

// Store is the full persistence surface of a batch run.
// *database.Store satisfies it.
type Store interface {
	IssueStore
	TagStore
	CustomerStore
	MessageStore
}

// Tracker records analytics events
type Tracker interface {
	TrackEvent(eventType string, count int, metadata map[string]interface{}) error
}

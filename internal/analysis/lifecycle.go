package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"supportwatch/internal/ai"
	"supportwatch/internal/database"
	"supportwatch/internal/models"
)

// ErrInvalidTransition is returned for a status change outside the state machine
var ErrInvalidTransition = errors.New("invalid issue status transition")

// BotReplier is recorded as the replying party of auto replies
const BotReplier = "bot"

var transitions = map[models.IssueStatus][]models.IssueStatus{
	models.IssueStatusPending: {
		models.IssueStatusReplied,
		models.IssueStatusWaitingCustomer,
		models.IssueStatusTimeout,
		models.IssueStatusIgnored,
	},
	models.IssueStatusReplied: {
		models.IssueStatusResolved,
		models.IssueStatusIgnored,
	},
	models.IssueStatusWaitingCustomer: {
		models.IssueStatusTimeout,
		models.IssueStatusIgnored,
	},
}

// CanTransition reports whether from -> to is an edge of the state machine
func CanTransition(from, to models.IssueStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IssueDraft is the classifier output for a new issue
type IssueDraft struct {
	Trigger        models.Message
	CustomerID     *int64
	Classification ai.QuestionClassification
}

// Lifecycle creates issues and moves them through their statuses. Every
// change is a conditional update on the stored status, so concurrent writers
// cannot skip an edge.
type Lifecycle struct {
	store   IssueStore
	timeout time.Duration
	now     func() time.Time
}

// NewLifecycle creates a lifecycle engine with the given deadline offset
func NewLifecycle(store IssueStore, timeoutMinutes int) *Lifecycle {
	return &Lifecycle{
		store:   store,
		timeout: time.Duration(timeoutMinutes) * time.Minute,
		now:     time.Now,
	}
}

// Open creates a PENDING issue for the draft's trigger message. If the
// trigger already has an issue, that issue is returned with created=false.
func (l *Lifecycle) Open(ctx context.Context, draft IssueDraft) (issue *models.Issue, created bool, err error) {
	summary := strings.TrimSpace(draft.Classification.Summary)
	if summary == "" {
		summary = strings.TrimSpace(draft.Trigger.Text())
	}

	issue = &models.Issue{
		ConversationID:   draft.Trigger.ConversationID,
		TriggerMessageID: draft.Trigger.ID,
		CustomerID:       draft.CustomerID,
		Status:           models.IssueStatusPending,
		QuestionSummary:  summary,
		Sentiment:        draft.Classification.Sentiment,
		SuggestedReply:   draft.Classification.SuggestedReply,
		TimeoutAt:        draft.Trigger.CreatedAt.Add(l.timeout),
	}
	if issue.Sentiment == "" {
		issue.Sentiment = models.SentimentNeutral
	}

	err = l.store.CreateIssue(ctx, issue)
	if errors.Is(err, database.ErrDuplicate) {
		existing, getErr := l.store.GetIssueByTrigger(ctx, draft.Trigger.ID)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to load existing issue for message %d: %w", draft.Trigger.ID, getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to open issue: %w", err)
	}
	return issue, true, nil
}

// RecordReply moves the issue to REPLIED with the staff reply that answered it
func (l *Lifecycle) RecordReply(ctx context.Context, issue *models.Issue, reply models.Message, score int) (*models.Issue, error) {
	return l.recordReply(ctx, issue, models.IssueStatusReplied, reply, reply.ExternalPartyID, score, false)
}

// RecordCounterQuestion moves the issue to WAITING_CUSTOMER
func (l *Lifecycle) RecordCounterQuestion(ctx context.Context, issue *models.Issue, reply models.Message, score int) (*models.Issue, error) {
	return l.recordReply(ctx, issue, models.IssueStatusWaitingCustomer, reply, reply.ExternalPartyID, score, false)
}

// RecordAutoReply moves the issue to REPLIED with the bot's outbound message,
// using the retrieval confidence as the relevance score.
func (l *Lifecycle) RecordAutoReply(ctx context.Context, issue *models.Issue, reply models.Message, confidence int) (*models.Issue, error) {
	return l.recordReply(ctx, issue, models.IssueStatusReplied, reply, BotReplier, confidence, true)
}

func (l *Lifecycle) recordReply(ctx context.Context, issue *models.Issue, to models.IssueStatus, reply models.Message, repliedBy string, score int, auto bool) (*models.Issue, error) {
	repliedAt := reply.CreatedAt
	if repliedAt.IsZero() {
		repliedAt = l.now()
	}
	return l.transition(ctx, issue, database.IssueTransition{
		To:             to,
		ReplyMessageID: &reply.ID,
		RepliedBy:      &repliedBy,
		RepliedAt:      &repliedAt,
		RelevanceScore: &score,
		AutoReplied:    auto,
	})
}

// SetStatus applies a manual status update. Only RESOLVED and IGNORED may be
// requested; RESOLVED always stamps the resolution time.
func (l *Lifecycle) SetStatus(ctx context.Context, id int64, to models.IssueStatus) (*models.Issue, error) {
	if to != models.IssueStatusResolved && to != models.IssueStatusIgnored {
		return nil, fmt.Errorf("%w: %s cannot be set manually", ErrInvalidTransition, to)
	}

	issue, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	t := database.IssueTransition{To: to}
	if to == models.IssueStatusResolved {
		resolvedAt := l.now()
		t.ResolvedAt = &resolvedAt
	}
	return l.transition(ctx, issue, t)
}

// Get loads an issue and applies the lazy timeout check
func (l *Lifecycle) Get(ctx context.Context, id int64) (*models.Issue, error) {
	issue, err := l.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.CheckTimeout(ctx, issue)
}

// CheckTimeout moves a PENDING or WAITING_CUSTOMER issue whose deadline has
// passed to TIMEOUT. Other issues are returned unchanged.
func (l *Lifecycle) CheckTimeout(ctx context.Context, issue *models.Issue) (*models.Issue, error) {
	now := l.now()
	if !CanTransition(issue.Status, models.IssueStatusTimeout) || !now.After(issue.TimeoutAt) {
		return issue, nil
	}

	updated, err := l.transition(ctx, issue, database.IssueTransition{
		To:             models.IssueStatusTimeout,
		At:             now,
		DeadlineBefore: &now,
	})
	if errors.Is(err, database.ErrConflict) {
		// someone else moved it first
		return l.store.GetIssue(ctx, issue.ID)
	}
	return updated, err
}

// SweepTimeouts times out every overdue issue in one statement
func (l *Lifecycle) SweepTimeouts(ctx context.Context) ([]models.Issue, error) {
	issues, err := l.store.TimeoutOverdueIssues(ctx, l.now())
	if err != nil {
		return nil, fmt.Errorf("failed to sweep timeouts: %w", err)
	}
	return issues, nil
}

func (l *Lifecycle) transition(ctx context.Context, issue *models.Issue, t database.IssueTransition) (*models.Issue, error) {
	if !CanTransition(issue.Status, t.To) {
		return nil, fmt.Errorf("%w: issue %d %s -> %s", ErrInvalidTransition, issue.ID, issue.Status, t.To)
	}
	t.From = issue.Status
	if t.At.IsZero() {
		t.At = l.now()
	}

	updated, err := l.store.TransitionIssue(ctx, issue.ID, t)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

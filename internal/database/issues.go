package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"supportwatch/internal/models"
)

const issueColumns = `id, conversation_id, trigger_message_id, customer_id, status, question_summary,
	sentiment, suggested_reply, timeout_at, relevance_score, reply_message_id, replied_by,
	auto_replied, created_at, replied_at, resolved_at, updated_at`

// CreateIssue inserts a new issue. A second issue for the same trigger
// message returns ErrDuplicate.
func (s *Store) CreateIssue(ctx context.Context, issue *models.Issue) error {
	query := `
		INSERT INTO issues (
			conversation_id, trigger_message_id, customer_id, status, question_summary, sentiment,
			suggested_reply, timeout_at, relevance_score, reply_message_id, replied_by, auto_replied,
			replied_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`
	row := s.db.QueryRowxContext(ctx, query,
		issue.ConversationID, issue.TriggerMessageID, issue.CustomerID, issue.Status, issue.QuestionSummary,
		issue.Sentiment, issue.SuggestedReply, issue.TimeoutAt, issue.RelevanceScore, issue.ReplyMessageID,
		issue.RepliedBy, issue.AutoReplied, issue.RepliedAt, issue.ResolvedAt,
	)
	if err := row.Scan(&issue.ID, &issue.CreatedAt, &issue.UpdatedAt); err != nil {
		return mapErr(err, "failed to create issue for message %d", issue.TriggerMessageID)
	}
	return nil
}

// GetIssue returns one issue
func (s *Store) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	var issue models.Issue
	if err := s.db.GetContext(ctx, &issue, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id); err != nil {
		return nil, mapErr(err, "failed to get issue %d", id)
	}
	return &issue, nil
}

// GetIssueByTrigger returns the issue created for a trigger message
func (s *Store) GetIssueByTrigger(ctx context.Context, messageID int64) (*models.Issue, error) {
	var issue models.Issue
	err := s.db.GetContext(ctx, &issue, `SELECT `+issueColumns+` FROM issues WHERE trigger_message_id = $1`, messageID)
	if err != nil {
		return nil, mapErr(err, "failed to get issue for message %d", messageID)
	}
	return &issue, nil
}

// ListIssues returns the most recent issues, optionally filtered by status
func (s *Store) ListIssues(ctx context.Context, status *models.IssueStatus, limit int) ([]models.Issue, error) {
	var issues []models.Issue
	err := ExecuteReadOnlyQuery(ctx, s.db, &issues, `
		SELECT `+issueColumns+` FROM issues
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

// ListPendingIssues returns PENDING issues whose trigger message falls inside
// the window, optionally restricted to one conversation.
func (s *Store) ListPendingIssues(ctx context.Context, since time.Time, conversationID *string) ([]models.Issue, error) {
	var issues []models.Issue
	err := s.db.SelectContext(ctx, &issues, `
		SELECT i.id, i.conversation_id, i.trigger_message_id, i.customer_id, i.status, i.question_summary,
			i.sentiment, i.suggested_reply, i.timeout_at, i.relevance_score, i.reply_message_id, i.replied_by,
			i.auto_replied, i.created_at, i.replied_at, i.resolved_at, i.updated_at
		FROM issues i
		JOIN messages m ON m.id = i.trigger_message_id
		WHERE i.status = $1
			AND m.created_at >= $2
			AND ($3::text IS NULL OR i.conversation_id = $3)
		ORDER BY m.created_at, i.id
	`, models.IssueStatusPending, since, conversationID)
	if err != nil {
		return nil, mapErr(err, "failed to list pending issues")
	}
	return issues, nil
}

// IssueTransition is a conditional status change. Nil fields leave the
// stored value untouched.
type IssueTransition struct {
	From           models.IssueStatus
	To             models.IssueStatus
	At             time.Time
	ReplyMessageID *int64
	RepliedBy      *string
	RepliedAt      *time.Time
	RelevanceScore *int
	AutoReplied    bool
	ResolvedAt     *time.Time
	// DeadlineBefore, when set, requires timeout_at < DeadlineBefore
	DeadlineBefore *time.Time
}

// TransitionIssue applies t only if the issue is still in t.From. A row that
// moved on in the meantime returns ErrConflict.
func (s *Store) TransitionIssue(ctx context.Context, id int64, t IssueTransition) (*models.Issue, error) {
	query := `
		UPDATE issues SET
			status = $3,
			reply_message_id = COALESCE($4, reply_message_id),
			replied_by = COALESCE($5, replied_by),
			replied_at = COALESCE($6, replied_at),
			relevance_score = COALESCE($7, relevance_score),
			auto_replied = auto_replied OR $8,
			resolved_at = COALESCE($9, resolved_at),
			updated_at = $10
		WHERE id = $1
			AND status = $2
			AND ($11::timestamptz IS NULL OR timeout_at < $11)
		RETURNING ` + issueColumns

	var issue models.Issue
	err := s.db.GetContext(ctx, &issue, query,
		id, t.From, t.To, t.ReplyMessageID, t.RepliedBy, t.RepliedAt, t.RelevanceScore,
		t.AutoReplied, t.ResolvedAt, t.At, t.DeadlineBefore,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %d not in status %s: %w", id, t.From, ErrConflict)
	}
	if err != nil {
		return nil, mapErr(err, "failed to transition issue %d to %s", id, t.To)
	}
	return &issue, nil
}

// TimeoutOverdueIssues moves every PENDING or WAITING_CUSTOMER issue whose
// deadline is strictly before now to TIMEOUT and returns them.
func (s *Store) TimeoutOverdueIssues(ctx context.Context, now time.Time) ([]models.Issue, error) {
	var issues []models.Issue
	err := s.db.SelectContext(ctx, &issues, `
		UPDATE issues SET status = $1, updated_at = $2
		WHERE status IN ($3, $4) AND timeout_at < $2
		RETURNING `+issueColumns,
		models.IssueStatusTimeout, now, models.IssueStatusPending, models.IssueStatusWaitingCustomer,
	)
	if err != nil {
		return nil, mapErr(err, "failed to time out overdue issues")
	}
	return issues, nil
}

// ListTags returns the full tag vocabulary
func (s *Store) ListTags(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	if err := s.db.SelectContext(ctx, &tags, `SELECT id, name, usage_count, created_at FROM tags ORDER BY name`); err != nil {
		return nil, mapErr(err, "failed to list tags")
	}
	return tags, nil
}

// GetTagByName returns the tag with exactly this name
func (s *Store) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	var tag models.Tag
	err := s.db.GetContext(ctx, &tag, `SELECT id, name, usage_count, created_at FROM tags WHERE name = $1`, name)
	if err != nil {
		return nil, mapErr(err, "failed to get tag %q", name)
	}
	return &tag, nil
}

// CreateTag inserts a new tag. An existing name returns ErrDuplicate.
func (s *Store) CreateTag(ctx context.Context, name string) (*models.Tag, error) {
	var tag models.Tag
	err := s.db.GetContext(ctx, &tag, `
		INSERT INTO tags (name) VALUES ($1)
		RETURNING id, name, usage_count, created_at
	`, name)
	if err != nil {
		return nil, mapErr(err, "failed to create tag %q", name)
	}
	return &tag, nil
}

// AttachTag links a tag to an issue once and increments the tag usage
// counter when the link is new.
func (s *Store) AttachTag(ctx context.Context, issueID, tagID int64) (attached bool, err error) {
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO issue_tags (issue_id, tag_id) VALUES ($1, $2)
			ON CONFLICT (issue_id, tag_id) DO NOTHING
		`, issueID, tagID)
		if err != nil {
			return mapErr(err, "failed to attach tag %d to issue %d", tagID, issueID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		attached = true
		if _, err := tx.ExecContext(ctx, `UPDATE tags SET usage_count = usage_count + 1 WHERE id = $1`, tagID); err != nil {
			return mapErr(err, "failed to increment usage for tag %d", tagID)
		}
		return nil
	})
	return attached, err
}

// ListIssueTags returns the tags attached to an issue
func (s *Store) ListIssueTags(ctx context.Context, issueID int64) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.db.SelectContext(ctx, &tags, `
		SELECT t.id, t.name, t.usage_count, t.created_at
		FROM tags t
		JOIN issue_tags it ON it.tag_id = t.id
		WHERE it.issue_id = $1
		ORDER BY t.name
	`, issueID)
	if err != nil {
		return nil, mapErr(err, "failed to list tags for issue %d", issueID)
	}
	return tags, nil
}

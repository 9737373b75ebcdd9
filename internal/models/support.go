package models

import "time"

// IssueStatus is the reply-lifecycle state of an Issue
type IssueStatus string

const (
	IssueStatusPending         IssueStatus = "PENDING"
	IssueStatusReplied         IssueStatus = "REPLIED"
	IssueStatusWaitingCustomer IssueStatus = "WAITING_CUSTOMER"
	IssueStatusResolved        IssueStatus = "RESOLVED"
	IssueStatusTimeout         IssueStatus = "TIMEOUT"
	IssueStatusIgnored         IssueStatus = "IGNORED"
)

// IsTerminal reports whether no further transitions leave this status
func (s IssueStatus) IsTerminal() bool {
	return s == IssueStatusResolved || s == IssueStatusTimeout || s == IssueStatusIgnored
}

// Sentiment values produced by the classifier and the customer rollup
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentAtRisk   = "at_risk"
)

// Conversation is one channel thread with a customer
type Conversation struct {
	ID               string    `db:"id" json:"id"`
	Channel          string    `db:"channel" json:"channel"`
	CustomerID       *int64    `db:"customer_id" json:"customer_id,omitempty"`
	ContactAddress   *string   `db:"contact_address" json:"contact_address,omitempty"` // where outbound replies go (email channel)
	AutoReplyEnabled bool      `db:"auto_reply_enabled" json:"auto_reply_enabled"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Message is an immutable chat message. Content is nil for non-text messages.
type Message struct {
	ID              int64     `db:"id" json:"id"`
	ConversationID  string    `db:"conversation_id" json:"conversation_id"`
	ExternalID      *string   `db:"external_id" json:"external_id,omitempty"`
	ExternalPartyID string    `db:"external_party_id" json:"external_party_id"`
	IsStaff         bool      `db:"is_staff" json:"is_staff"`
	Content         *string   `db:"content" json:"content,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Text returns the message content or an empty string
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Issue is one detected customer question and its reply lifecycle
type Issue struct {
	ID               int64       `db:"id" json:"id"`
	ConversationID   string      `db:"conversation_id" json:"conversation_id"`
	TriggerMessageID int64       `db:"trigger_message_id" json:"trigger_message_id"`
	CustomerID       *int64      `db:"customer_id" json:"customer_id,omitempty"`
	Status           IssueStatus `db:"status" json:"status"`
	QuestionSummary  string      `db:"question_summary" json:"question_summary"`
	Sentiment        string      `db:"sentiment" json:"sentiment"`
	SuggestedReply   *string     `db:"suggested_reply" json:"suggested_reply,omitempty"`
	TimeoutAt        time.Time   `db:"timeout_at" json:"timeout_at"`
	RelevanceScore   *int        `db:"relevance_score" json:"relevance_score,omitempty"`
	ReplyMessageID   *int64      `db:"reply_message_id" json:"reply_message_id,omitempty"`
	RepliedBy        *string     `db:"replied_by" json:"replied_by,omitempty"`
	AutoReplied      bool        `db:"auto_replied" json:"auto_replied"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	RepliedAt        *time.Time  `db:"replied_at" json:"replied_at,omitempty"`
	ResolvedAt       *time.Time  `db:"resolved_at" json:"resolved_at,omitempty"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// Tag is a unique issue label with a usage counter
type Tag struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	UsageCount int       `db:"usage_count" json:"usage_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Customer holds the current rolled-up sentiment for one external party
type Customer struct {
	ID         int64     `db:"id" json:"id"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Sentiment  string    `db:"sentiment" json:"sentiment"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Embedding generation states for knowledge entries
const (
	EmbeddingStatusPending = "pending"
	EmbeddingStatusReady   = "ready"
	EmbeddingStatusFailed  = "failed"
)

// KnowledgeEntry is a question/answer pair available for retrieval
type KnowledgeEntry struct {
	ID              int64     `db:"id" json:"id"`
	Question        string    `db:"question" json:"question"`
	Answer          string    `db:"answer" json:"answer"`
	Category        *string   `db:"category" json:"category,omitempty"`
	Keywords        []string  `db:"-" json:"keywords"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	UsageCount      int       `db:"usage_count" json:"usage_count"`
	EmbeddingFamily *string   `db:"embedding_family" json:"embedding_family,omitempty"`
	EmbeddingStatus string    `db:"embedding_status" json:"embedding_status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// EmbeddingText is the text embedded for vector retrieval
func (k KnowledgeEntry) EmbeddingText() string {
	return k.Question + "\n" + k.Answer
}

// Auto-reply log sources
const (
	AutoReplySourceAutoReply  = "auto_reply"
	AutoReplySourceSearchTest = "search_test"
)

// AutoReplyLog is an append-only record of one retrieval decision
type AutoReplyLog struct {
	ID               int64     `db:"id" json:"id"`
	ConversationID   *string   `db:"conversation_id" json:"conversation_id,omitempty"`
	MessageID        *int64    `db:"message_id" json:"message_id,omitempty"`
	Query            string    `db:"query" json:"query"`
	Matched          bool      `db:"matched" json:"matched"`
	Confidence       int       `db:"confidence" json:"confidence"`
	KnowledgeEntryID *int64    `db:"knowledge_entry_id" json:"knowledge_entry_id,omitempty"`
	IsGenerated      bool      `db:"is_generated" json:"is_generated"`
	Source           string    `db:"source" json:"source"`
	Error            *string   `db:"error" json:"error,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// InboundEvent is a normalized message event emitted by channel ingestion
// @Description Normalized inbound chat message
type InboundEvent struct {
	ConversationID  string    `json:"conversation_id" example:"line:U123"`
	MessageID       string    `json:"message_id,omitempty" example:"m-789"` // Channel-native message id
	Channel         string    `json:"channel,omitempty" example:"line"`
	ExternalPartyID string    `json:"external_party_id" example:"U123"`
	IsStaffAuthor   bool      `json:"is_staff_author" example:"false"`
	Text            *string   `json:"text,omitempty" example:"How do I reset my password?"`
	ContactAddress  string    `json:"contact_address,omitempty" example:"customer@example.com"`
	Timestamp       time.Time `json:"timestamp" example:"2026-01-01T00:00:00Z"`
}

package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// AnalysisRunRequest selects the batch analysis window
// @Description Batch analysis parameters
type AnalysisRunRequest struct {
	ConversationID *string    `json:"conversation_id,omitempty" example:"line:U123"`
	Since          *time.Time `json:"since,omitempty" example:"2026-01-01T00:00:00Z"`
}

// AnalysisRunResponse reports the outcome of one batch analysis run
// @Description Batch analysis result
type AnalysisRunResponse struct {
	RunID            string `json:"run_id" example:"7f9c..."`
	MessagesAnalyzed int    `json:"messages_analyzed" example:"42"`
	IssuesCreated    int    `json:"issues_created" example:"3"`
	IssuesReplied    int    `json:"issues_replied" example:"2"`
	TagsCreated      int    `json:"tags_created" example:"1"`
	IssuesTimedOut   int    `json:"issues_timed_out" example:"0"`
	CustomersUpdated int    `json:"customers_updated" example:"2"`
	Failures         int    `json:"failures" example:"0"`
	Error            string `json:"error,omitempty" example:""`
}

// KnowledgeSearchRequest is the operator search-test request
// @Description Knowledge search request
type KnowledgeSearchRequest struct {
	Query          string   `json:"query" example:"How do I reset my password?"`
	ConversationID *string  `json:"conversation_id,omitempty"`
	Categories     []string `json:"categories,omitempty"`
}

// KnowledgeSearchResponse is the retrieval result shape exposed to callers
// @Description Knowledge search result
type KnowledgeSearchResponse struct {
	Matched     bool    `json:"matched" example:"true"`
	Answer      *string `json:"answer,omitempty" example:"Click forgot password on the login page."`
	Confidence  int     `json:"confidence" example:"75"`
	Category    *string `json:"category,omitempty" example:"account"`
	IsGenerated bool    `json:"is_generated" example:"false"`
	EntryID     *int64  `json:"entry_id,omitempty" example:"12"`
	Error       string  `json:"error,omitempty" example:""`
}

// IssueStatusRequest is a manual status update
// @Description Manual issue status update
type IssueStatusRequest struct {
	Status IssueStatus `json:"status" example:"RESOLVED"`
}

// IssueResponse wraps an issue for the API
// @Description Issue response
type IssueResponse struct {
	Issue *Issue `json:"issue,omitempty"`
	Tags  []Tag  `json:"tags,omitempty"`
	Error string `json:"error,omitempty" example:""`
}

// IssueListResponse is a page of recent issues
// @Description Issue list
type IssueListResponse struct {
	Issues []Issue `json:"issues"`
	Count  int     `json:"count" example:"2"`
	Error  string  `json:"error,omitempty" example:""`
}

// ConversationAutoReplyRequest switches auto-reply for one conversation
// @Description Auto-reply switch
type ConversationAutoReplyRequest struct {
	Enabled *bool `json:"enabled" example:"false"`
}

// ConversationResponse wraps a conversation for the API
// @Description Conversation response
type ConversationResponse struct {
	Conversation *Conversation `json:"conversation,omitempty"`
	Error        string        `json:"error,omitempty" example:""`
}

// EmbeddingJobResponse reports a launched or inspected embedding job
// @Description Embedding job status
type EmbeddingJobResponse struct {
	Success   bool   `json:"success" example:"true"`
	JobName   string `json:"job_name,omitempty" example:"embed-knowledge-1700000000"`
	Status    string `json:"status,omitempty" example:"running"`
	Active    int32  `json:"active"`
	Succeeded int32  `json:"succeeded"`
	Failed    int32  `json:"failed"`
	Error     string `json:"error,omitempty" example:""`
}

// WebhookAck acknowledges an inbound event
// @Description Webhook acknowledgement
type WebhookAck struct {
	Accepted bool   `json:"accepted" example:"true"`
	Error    string `json:"error,omitempty" example:""`
}

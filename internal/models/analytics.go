package models

import "time"

// AnalyticsEvent represents a tracked event
type AnalyticsEvent struct {
	ID        int       `db:"id" json:"id"`
	EventType string    `db:"event_type" json:"event_type"` // analysis_run, auto_reply_sent, auto_reply_skipped, knowledge_search, ai_backend_call, issues_timed_out
	Count     int       `db:"count" json:"count"`
	Metadata  *string   `db:"metadata" json:"metadata,omitempty"` // JSON metadata (backend, operation, etc.)
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AnalyticsSummary represents aggregated analytics for a time period
type AnalyticsSummary struct {
	Period             string    `json:"period"`               // "today", "yesterday", "last_7_days", "last_30_days"
	AnalysisRuns       int       `json:"analysis_runs"`        // Batch analysis runs
	AutoRepliesSent    int       `json:"auto_replies_sent"`    // Outbound auto replies
	AutoRepliesSkipped int       `json:"auto_replies_skipped"` // Qualifying messages left for staff
	KnowledgeSearches  int       `json:"knowledge_searches"`   // Retrieval attempts
	BackendCalls       int       `json:"backend_calls"`        // AI backend calls
	BackendFailures    int       `json:"backend_failures"`     // Failed AI backend calls
	IssuesTimedOut     int       `json:"issues_timed_out"`     // Issues moved to TIMEOUT by sweeps
	StartDate          time.Time `json:"start_date"`           // Period start
	EndDate            time.Time `json:"end_date"`             // Period end
}

// AnalyticsResponse represents the API response for analytics
// @Description Analytics response payload
type AnalyticsResponse struct {
	Success bool              `json:"success" example:"true"`
	Summary *AnalyticsSummary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty" example:""`
}

package handlers

import (
	"context"

	"supportwatch/internal/analysis"
	"supportwatch/internal/autoreply"
	"supportwatch/internal/k8s"
	"supportwatch/internal/knowledge"
	"supportwatch/internal/models"
)

// MessageHandler processes one inbound chat event.
// *autoreply.Gate satisfies it.
type MessageHandler interface {
	HandleInboundMessage(ctx context.Context, event models.InboundEvent) (*autoreply.Outcome, error)
}

// AnalysisRunner runs batch analysis. *analysis.Analyzer satisfies it.
type AnalysisRunner interface {
	RunAnalysis(ctx context.Context, opts analysis.RunOptions) (*analysis.RunResult, error)
}

// KnowledgeSearcher answers knowledge queries. *knowledge.Engine satisfies it.
type KnowledgeSearcher interface {
	Search(ctx context.Context, q knowledge.Query) (*knowledge.Result, error)
}

// IssueService reads and updates issues through the lifecycle rules.
// *analysis.Lifecycle satisfies it.
type IssueService interface {
	Get(ctx context.Context, id int64) (*models.Issue, error)
	SetStatus(ctx context.Context, id int64, to models.IssueStatus) (*models.Issue, error)
	CheckTimeout(ctx context.Context, issue *models.Issue) (*models.Issue, error)
}

// IssueLister lists recent issues. *database.Store satisfies it.
type IssueLister interface {
	ListIssues(ctx context.Context, status *models.IssueStatus, limit int) ([]models.Issue, error)
}

// ConversationSettings reads and switches per-conversation auto-reply.
// *database.Store satisfies it.
type ConversationSettings interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	SetConversationAutoReply(ctx context.Context, id string, enabled bool) error
}

// IssueTagLister lists tags attached to an issue. *database.Store satisfies it.
type IssueTagLister interface {
	ListIssueTags(ctx context.Context, issueID int64) ([]models.Tag, error)
}

// JobRunner launches and inspects embedding jobs. *k8s.Client satisfies it.
type JobRunner interface {
	CreateEmbeddingJob(ctx context.Context, opts k8s.EmbeddingJobOptions) (string, error)
	GetJobStatus(ctx context.Context, jobName string) (*k8s.JobStatus, error)
}

// SummaryProvider reports analytics. *analytics.Service satisfies it.
type SummaryProvider interface {
	GetSummary(ctx context.Context, period string) (*models.AnalyticsSummary, error)
}

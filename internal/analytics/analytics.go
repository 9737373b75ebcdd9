package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"supportwatch/internal/ai"
	"supportwatch/internal/models"
)

// EventType constants for tracking different events
const (
	EventAnalysisRun      = "analysis_run"
	EventAutoReplySent    = "auto_reply_sent"
	EventAutoReplySkipped = "auto_reply_skipped"
	EventKnowledgeSearch  = "knowledge_search"
	EventAIBackendCall    = "ai_backend_call"
	EventIssuesTimedOut   = "issues_timed_out"
	EventEmbeddingRun     = "embedding_run"
)

// Period constants for analytics queries
const (
	PeriodToday      = "today"
	PeriodYesterday  = "yesterday"
	PeriodLast7Days  = "last_7_days"
	PeriodLast30Days = "last_30_days"
)

// Service handles analytics tracking and retrieval
type Service struct {
	db     *sqlx.DB
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewService creates a new analytics service
func NewService(db *sqlx.DB, logger zerolog.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required for analytics service")
	}

	service := &Service{
		db:     db,
		logger: logger.With().Str("component", "analytics").Logger(),
	}

	// Create analytics tables if they don't exist
	if err := service.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create analytics tables: %w", err)
	}

	return service, nil
}

// createTables creates the analytics tables in the database
func (s *Service) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS analytics_events (
			id SERIAL PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			count INT DEFAULT 1,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_event_type ON analytics_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_created_at ON analytics_events(created_at)`,
		// Daily aggregates table for faster queries
		`CREATE TABLE IF NOT EXISTS analytics_daily (
			id SERIAL PRIMARY KEY,
			date DATE NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			total_count INT DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(date, event_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_daily_date ON analytics_daily(date)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// TrackEvent records an analytics event
func (s *Service) TrackEvent(eventType string, count int, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON *string
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			str := string(raw)
			metadataJSON = &str
		}
	}

	query := `INSERT INTO analytics_events (event_type, count, metadata) VALUES ($1, $2, $3)`
	if _, err := s.db.Exec(query, eventType, count, metadataJSON); err != nil {
		return fmt.Errorf("failed to track event: %w", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	aggregateQuery := `
		INSERT INTO analytics_daily (date, event_type, total_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (date, event_type) DO UPDATE SET
			total_count = analytics_daily.total_count + EXCLUDED.total_count,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.Exec(aggregateQuery, today, eventType, count); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("Failed to update daily aggregate")
	}

	return nil
}

// TrackBackendCall records one AI backend call. Its signature matches
// ai.CallObserver so it can be installed on the orchestrator directly.
func (s *Service) TrackBackendCall(operation string, backend ai.BackendType, elapsed time.Duration, err error) {
	metadata := map[string]interface{}{
		"operation":   operation,
		"backend":     string(backend),
		"success":     err == nil,
		"duration_ms": elapsed.Milliseconds(),
	}
	if trackErr := s.TrackEvent(EventAIBackendCall, 1, metadata); trackErr != nil {
		s.logger.Warn().Err(trackErr).Str("backend", string(backend)).Msg("Failed to track backend call")
	}
}

// TrackAutoReply records whether a qualifying message got an automatic reply
func (s *Service) TrackAutoReply(sent bool, reason string, confidence int) error {
	eventType := EventAutoReplySkipped
	if sent {
		eventType = EventAutoReplySent
	}
	return s.TrackEvent(eventType, 1, map[string]interface{}{
		"reason":     reason,
		"confidence": confidence,
	})
}

// TrackKnowledgeSearch records one retrieval attempt
func (s *Service) TrackKnowledgeSearch(source string, matched, generated bool) error {
	return s.TrackEvent(EventKnowledgeSearch, 1, map[string]interface{}{
		"source":    source,
		"matched":   matched,
		"generated": generated,
	})
}

// TrackIssuesTimedOut records a timeout sweep that moved issues
func (s *Service) TrackIssuesTimedOut(count int) error {
	if count == 0 {
		return nil
	}
	return s.TrackEvent(EventIssuesTimedOut, count, nil)
}

// periodRange resolves a named period to UTC bounds; unknown names fall back to today
func periodRange(period string, now time.Time) (string, time.Time, time.Time) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case PeriodYesterday:
		return period, midnight.AddDate(0, 0, -1), midnight
	case PeriodLast7Days:
		return period, now.AddDate(0, 0, -7), now
	case PeriodLast30Days:
		return period, now.AddDate(0, 0, -30), now
	case PeriodToday:
		return period, midnight, now
	default:
		return PeriodToday, midnight, now
	}
}

// GetSummary retrieves analytics summary for a time period
func (s *Service) GetSummary(ctx context.Context, period string) (*models.AnalyticsSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	period, startDate, endDate := periodRange(period, time.Now())
	summary := &models.AnalyticsSummary{
		Period:    period,
		StartDate: startDate,
		EndDate:   endDate,
	}

	var totals []struct {
		EventType string `db:"event_type"`
		Total     int    `db:"total"`
	}
	err := s.db.SelectContext(ctx, &totals, `
		SELECT event_type, COALESCE(SUM(total_count), 0) AS total
		FROM analytics_daily
		WHERE date >= $1 AND date <= $2
		GROUP BY event_type
	`, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics summary: %w", err)
	}

	for _, row := range totals {
		switch row.EventType {
		case EventAnalysisRun:
			summary.AnalysisRuns = row.Total
		case EventAutoReplySent:
			summary.AutoRepliesSent = row.Total
		case EventAutoReplySkipped:
			summary.AutoRepliesSkipped = row.Total
		case EventKnowledgeSearch:
			summary.KnowledgeSearches = row.Total
		case EventAIBackendCall:
			summary.BackendCalls = row.Total
		case EventIssuesTimedOut:
			summary.IssuesTimedOut = row.Total
		}
	}

	// Failures live only in event metadata
	failureQuery := `
		SELECT COALESCE(SUM(count), 0) FROM analytics_events
		WHERE event_type = $1 AND created_at >= $2 AND created_at <= $3
			AND metadata->>'success' = 'false'
	`
	if err := s.db.GetContext(ctx, &summary.BackendFailures, failureQuery, EventAIBackendCall, startDate, endDate); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count backend failures")
	}

	return summary, nil
}

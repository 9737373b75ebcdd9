package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"supportwatch/internal/analytics"
	"supportwatch/internal/database"
	"supportwatch/internal/models"
)

// Defaults for a batch run
const (
	DefaultWindow         = 24 * time.Hour
	DefaultReplyScanLimit = 5
)

// Config tunes the batch analyzer
type Config struct {
	TimeoutMinutes     int
	RelevanceThreshold int
	ReplyScanLimit     int
	SentimentWindow    int
	Window             time.Duration
}

// RunOptions narrows a batch run. Nil fields use the defaults.
type RunOptions struct {
	ConversationID *string
	Since          *time.Time
}

// RunResult summarizes one batch run
type RunResult struct {
	RunID            string
	MessagesAnalyzed int
	IssuesCreated    int
	IssuesReplied    int
	TagsCreated      int
	IssuesTimedOut   int
	CustomersUpdated int
	Failures         int
}

// Response converts the result to its API shape
func (r *RunResult) Response() models.AnalysisRunResponse {
	return models.AnalysisRunResponse{
		RunID:            r.RunID,
		MessagesAnalyzed: r.MessagesAnalyzed,
		IssuesCreated:    r.IssuesCreated,
		IssuesReplied:    r.IssuesReplied,
		TagsCreated:      r.TagsCreated,
		IssuesTimedOut:   r.IssuesTimedOut,
		CustomersUpdated: r.CustomersUpdated,
		Failures:         r.Failures,
	}
}

// Analyzer runs batch analysis over a window of messages
type Analyzer struct {
	store      Store
	classifier *Classifier
	evaluator  *Evaluator
	tags       *TagDeduplicator
	lifecycle  *Lifecycle
	sentiment  *SentimentAggregator
	tracker    Tracker
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAnalyzer creates a batch analyzer. tracker may be nil.
func NewAnalyzer(store Store, backend Backend, tracker Tracker, cfg Config, logger zerolog.Logger) *Analyzer {
	if cfg.ReplyScanLimit <= 0 {
		cfg.ReplyScanLimit = DefaultReplyScanLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	logger = logger.With().Str("component", "analyzer").Logger()
	return &Analyzer{
		store:      store,
		classifier: NewClassifier(backend),
		evaluator:  NewEvaluator(backend, cfg.RelevanceThreshold),
		tags:       NewTagDeduplicator(backend, store, logger),
		lifecycle:  NewLifecycle(store, cfg.TimeoutMinutes),
		sentiment:  NewSentimentAggregator(backend, store, cfg.SentimentWindow),
		tracker:    tracker,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Lifecycle exposes the analyzer's lifecycle engine
func (a *Analyzer) Lifecycle() *Lifecycle {
	return a.lifecycle
}

// RunAnalysis classifies external messages in the window, opens issues for
// questions, matches staff replies and refreshes customer sentiment. A
// failure on one message is counted and logged; only an unreadable window
// or a cancelled context aborts the run.
func (a *Analyzer) RunAnalysis(ctx context.Context, opts RunOptions) (*RunResult, error) {
	started := a.now()
	result := &RunResult{RunID: uuid.NewString()}
	logger := a.logger.With().Str("run_id", result.RunID).Logger()

	since := started.Add(-a.cfg.Window)
	if opts.Since != nil {
		since = *opts.Since
	}

	cache, err := NewTagCache(ctx, a.store)
	if err != nil {
		return result, err
	}

	messages, err := a.store.ListExternalMessages(ctx, since, opts.ConversationID)
	if err != nil {
		return result, err
	}
	logger.Info().Time("since", since).Int("messages", len(messages)).Msg("Starting analysis run")

	var parties []string
	seenParty := make(map[string]struct{})
	opened := make(map[int64]struct{})

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, ok := seenParty[msg.ExternalPartyID]; !ok {
			seenParty[msg.ExternalPartyID] = struct{}{}
			parties = append(parties, msg.ExternalPartyID)
		}

		issue, err := a.analyzeMessage(ctx, cache, msg, result, logger)
		if err != nil {
			result.Failures++
			logger.Warn().Err(err).Int64("message_id", msg.ID).Str("conversation_id", msg.ConversationID).Msg("Message analysis failed")
			continue
		}
		if issue != nil {
			opened[issue.ID] = struct{}{}
		}
	}

	a.rescanPending(ctx, since, opts.ConversationID, opened, result, logger)

	for _, party := range parties {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, updated, err := a.sentiment.Refresh(ctx, party)
		if err != nil {
			result.Failures++
			logger.Warn().Err(err).Str("external_party_id", party).Msg("Sentiment refresh failed")
			continue
		}
		if updated {
			result.CustomersUpdated++
		}
	}

	elapsed := a.now().Sub(started)
	logger.Info().
		Int("messages_analyzed", result.MessagesAnalyzed).
		Int("issues_created", result.IssuesCreated).
		Int("issues_replied", result.IssuesReplied).
		Int("tags_created", result.TagsCreated).
		Int("failures", result.Failures).
		Dur("duration_ms", elapsed).
		Msg("Analysis run finished")

	a.track(result, elapsed, logger)
	return result, nil
}

// analyzeMessage handles one external message and returns the issue it opened, if any
func (a *Analyzer) analyzeMessage(ctx context.Context, cache *TagCache, msg models.Message, result *RunResult, logger zerolog.Logger) (*models.Issue, error) {
	if !ShouldClassify(msg) {
		return nil, nil
	}

	_, err := a.store.GetIssueByTrigger(ctx, msg.ID)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	result.MessagesAnalyzed++
	classification, err := a.classifier.Classify(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !classification.IsQuestion {
		return nil, nil
	}

	var customerID *int64
	if id, err := a.store.EnsureCustomer(ctx, msg.ExternalPartyID); err != nil {
		logger.Warn().Err(err).Str("external_party_id", msg.ExternalPartyID).Msg("Failed to resolve customer")
	} else {
		customerID = &id
	}

	issue, created, err := a.lifecycle.Open(ctx, IssueDraft{
		Trigger:        msg,
		CustomerID:     customerID,
		Classification: classification,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	result.IssuesCreated++
	result.TagsCreated += a.tags.AttachSuggested(ctx, cache, issue.ID, classification.SuggestedTags)

	issue, outcome := a.scanReplies(ctx, issue, msg, logger)
	if outcome == OutcomeAnswered {
		result.IssuesReplied++
	}
	if outcome == OutcomeNone {
		checked, err := a.lifecycle.CheckTimeout(ctx, issue)
		if err != nil {
			logger.Warn().Err(err).Int64("issue_id", issue.ID).Msg("Timeout check failed")
			return issue, nil
		}
		if checked.Status == models.IssueStatusTimeout {
			result.IssuesTimedOut++
		}
		issue = checked
	}
	return issue, nil
}

// rescanPending gives issues opened by earlier runs another look at new staff replies
func (a *Analyzer) rescanPending(ctx context.Context, since time.Time, conversationID *string, skip map[int64]struct{}, result *RunResult, logger zerolog.Logger) {
	pending, err := a.store.ListPendingIssues(ctx, since, conversationID)
	if err != nil {
		result.Failures++
		logger.Warn().Err(err).Msg("Failed to list pending issues")
		return
	}

	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		issue := &pending[i]
		if _, ok := skip[issue.ID]; ok {
			continue
		}

		issue, err := a.lifecycle.CheckTimeout(ctx, issue)
		if err != nil {
			result.Failures++
			logger.Warn().Err(err).Int64("issue_id", pending[i].ID).Msg("Timeout check failed")
			continue
		}
		if issue.Status == models.IssueStatusTimeout {
			result.IssuesTimedOut++
			continue
		}
		if issue.Status != models.IssueStatusPending {
			continue
		}

		trigger, err := a.store.GetMessage(ctx, issue.TriggerMessageID)
		if err != nil {
			result.Failures++
			logger.Warn().Err(err).Int64("issue_id", issue.ID).Msg("Failed to load trigger message")
			continue
		}
		if _, outcome := a.scanReplies(ctx, issue, *trigger, logger); outcome == OutcomeAnswered {
			result.IssuesReplied++
		}
	}
}

// scanReplies evaluates the staff messages that follow the trigger and
// applies the first decisive outcome. A candidate whose evaluation fails is
// skipped.
func (a *Analyzer) scanReplies(ctx context.Context, issue *models.Issue, trigger models.Message, logger zerolog.Logger) (*models.Issue, ReplyOutcome) {
	replies, err := a.store.ListStaffRepliesAfter(ctx, trigger, a.cfg.ReplyScanLimit)
	if err != nil {
		logger.Warn().Err(err).Int64("issue_id", issue.ID).Msg("Failed to list staff replies")
		return issue, OutcomeNone
	}

	question := trigger.Text()
	for _, reply := range replies {
		if reply.Text() == "" {
			continue
		}

		evaluation, outcome, err := a.evaluator.Evaluate(ctx, question, reply.Text())
		if err != nil {
			logger.Warn().Err(err).Int64("issue_id", issue.ID).Int64("reply_id", reply.ID).Msg("Skipping reply candidate")
			continue
		}

		var updated *models.Issue
		switch outcome {
		case OutcomeAnswered:
			updated, err = a.lifecycle.RecordReply(ctx, issue, reply, evaluation.RelevanceScore)
		case OutcomeCounterQuestion:
			updated, err = a.lifecycle.RecordCounterQuestion(ctx, issue, reply, evaluation.RelevanceScore)
		default:
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Int64("issue_id", issue.ID).Str("outcome", outcome.String()).Msg("Failed to record reply")
			return issue, OutcomeNone
		}

		logger.Debug().Int64("issue_id", issue.ID).Str("outcome", outcome.String()).Int("relevance", evaluation.RelevanceScore).Msg("Reply matched")
		return updated, outcome
	}
	return issue, OutcomeNone
}

func (a *Analyzer) track(result *RunResult, elapsed time.Duration, logger zerolog.Logger) {
	if a.tracker == nil {
		return
	}
	err := a.tracker.TrackEvent(analytics.EventAnalysisRun, 1, map[string]interface{}{
		"run_id":            result.RunID,
		"messages_analyzed": result.MessagesAnalyzed,
		"issues_created":    result.IssuesCreated,
		"issues_replied":    result.IssuesReplied,
		"tags_created":      result.TagsCreated,
		"failures":          result.Failures,
		"duration_ms":       elapsed.Milliseconds(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to track analysis run")
	}
}

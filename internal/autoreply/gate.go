// Package autoreply handles inbound webhook messages: it stores them,
// decides whether a customer question deserves an automatic answer from the
// knowledge base, and records the outcome on the issue.
package autoreply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"supportwatch/internal/ai"
	"supportwatch/internal/analysis"
	"supportwatch/internal/config"
	"supportwatch/internal/database"
	"supportwatch/internal/knowledge"
	"supportwatch/internal/models"
)

// ErrInvalidEvent rejects events missing their conversation or author
var ErrInvalidEvent = errors.New("invalid inbound event")

// Reasons recorded when no knowledge answer was sent
const (
	ReasonSent              = "sent"
	ReasonNotQuestion       = "not_question"
	ReasonAutoReplyDisabled = "auto_reply_disabled"
	ReasonNoAnswer          = "no_answer"
	ReasonBelowThreshold    = "below_threshold"
	ReasonRetrievalFailed   = "retrieval_failed"
	ReasonSendFailed        = "send_failed"
	ReasonNoSender          = "no_sender"
	ReasonClassifyFailed    = "classify_failed"
)

// Store is the persistence the gate needs. *database.Store satisfies it.
type Store interface {
	analysis.IssueStore
	analysis.TagStore
	EnsureConversation(ctx context.Context, in database.ConversationInput) (*models.Conversation, error)
	InsertMessage(ctx context.Context, msg *models.Message) (inserted bool, err error)
	EnsureCustomer(ctx context.Context, externalID string) (int64, error)
}

// Backend classifies questions and deduplicates their tags
type Backend interface {
	analysis.QuestionAI
	analysis.TagAI
}

// Retriever answers a query from the knowledge base. *knowledge.Engine
// satisfies it.
type Retriever interface {
	Search(ctx context.Context, q knowledge.Query) (*knowledge.Result, error)
}

// ReplySender delivers an outbound message and returns its channel id
type ReplySender interface {
	Send(ctx context.Context, conv *models.Conversation, text string) (messageID string, err error)
}

// Tracker records auto-reply analytics
type Tracker interface {
	TrackAutoReply(sent bool, reason string, confidence int) error
}

// Config tunes the decision gate
type Config struct {
	ConfidenceThreshold int // classifier and retrieval gate, inclusive
	TimeoutMinutes      int
	BotAliases          []string
	NoAnswerMessage     string
	DefaultAutoReply    bool // auto-reply setting for conversations seen for the first time
}

// Outcome describes what happened to one inbound event
type Outcome struct {
	MessageID    int64  `json:"message_id"`
	Duplicate    bool   `json:"duplicate"`
	Mentioned    bool   `json:"mentioned"`
	IsQuestion   bool   `json:"is_question"`
	IssueID      *int64 `json:"issue_id,omitempty"`
	Replied      bool   `json:"replied"`
	FallbackSent bool   `json:"fallback_sent"`
	Reason       string `json:"reason,omitempty"`
	Confidence   int    `json:"confidence"`
}

// Gate is the streaming entry point for inbound messages
type Gate struct {
	store      Store
	classifier *analysis.Classifier
	tags       *analysis.TagDeduplicator
	lifecycle  *analysis.Lifecycle
	retriever  Retriever
	sender     ReplySender
	tracker    Tracker
	mentions   *MentionDetector
	locks      *conversationLocks
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time
}

// NewGate creates an auto-reply gate. sender may be nil, in which case no
// outbound message is ever sent.
func NewGate(store Store, backend Backend, retriever Retriever, sender ReplySender, tracker Tracker, cfg Config, logger zerolog.Logger) *Gate {
	if strings.TrimSpace(cfg.NoAnswerMessage) == "" {
		cfg.NoAnswerMessage = config.DefaultNoAnswerMessage
	}
	logger = logger.With().Str("component", "autoreply").Logger()
	return &Gate{
		store:      store,
		classifier: analysis.NewClassifier(backend),
		tags:       analysis.NewTagDeduplicator(backend, store, logger),
		lifecycle:  analysis.NewLifecycle(store, cfg.TimeoutMinutes),
		retriever:  retriever,
		sender:     sender,
		tracker:    tracker,
		mentions:   NewMentionDetector(cfg.BotAliases),
		locks:      newConversationLocks(),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleInboundMessage stores one event and, for customer questions, runs
// retrieval and the reply decision. Events of one conversation are handled
// one at a time.
func (g *Gate) HandleInboundMessage(ctx context.Context, event models.InboundEvent) (*Outcome, error) {
	if strings.TrimSpace(event.ConversationID) == "" || strings.TrimSpace(event.ExternalPartyID) == "" {
		return nil, fmt.Errorf("%w: conversation_id and external_party_id are required", ErrInvalidEvent)
	}

	unlock := g.locks.Lock(event.ConversationID)
	defer unlock()

	logger := g.logger.With().Str("conversation_id", event.ConversationID).Logger()

	conv, err := g.store.EnsureConversation(ctx, conversationInput(event, g.cfg.DefaultAutoReply))
	if err != nil {
		return nil, err
	}

	msg := g.messageFromEvent(event)
	inserted, err := g.store.InsertMessage(ctx, &msg)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{MessageID: msg.ID}
	if !inserted {
		logger.Debug().Int64("message_id", msg.ID).Msg("Ignoring redelivered message")
		outcome.Duplicate = true
		return outcome, nil
	}
	if !analysis.ShouldClassify(msg) {
		return outcome, nil
	}

	text := strings.TrimSpace(msg.Text())
	outcome.Mentioned = g.mentions.Mentioned(text)

	classification, err := g.classify(ctx, msg, outcome.Mentioned)
	if err != nil {
		// A redelivery is a duplicate and would not retry; the stored message
		// is classified by the next batch run instead.
		logger.Warn().Err(err).Int64("message_id", msg.ID).Msg("Classification failed, leaving message for batch analysis")
		outcome.Reason = ReasonClassifyFailed
		g.track(outcome, logger)
		return outcome, nil
	}
	if !classification.IsQuestion || classification.Confidence < g.cfg.ConfidenceThreshold {
		outcome.Reason = ReasonNotQuestion
		return outcome, nil
	}
	outcome.IsQuestion = true

	issue, err := g.openIssue(ctx, msg, classification, logger)
	if err != nil {
		return outcome, err
	}
	if issue == nil {
		// opened by an earlier delivery or a batch run
		return outcome, nil
	}
	outcome.IssueID = &issue.ID
	logger = logger.With().Int64("issue_id", issue.ID).Logger()

	result, searchErr := g.retriever.Search(ctx, knowledge.Query{
		Text:           text,
		ConversationID: &msg.ConversationID,
		MessageID:      &msg.ID,
		Source:         models.AutoReplySourceAutoReply,
	})
	if searchErr != nil {
		logger.Warn().Err(searchErr).Msg("Knowledge retrieval failed, treating as no answer")
	}

	g.reply(ctx, conv, issue, result, searchErr, outcome, logger)
	g.track(outcome, logger)
	return outcome, nil
}

func (g *Gate) classify(ctx context.Context, msg models.Message, mentioned bool) (ai.QuestionClassification, error) {
	if mentioned {
		// addressing the bot is a question by definition
		return ai.QuestionClassification{
			IsQuestion: true,
			Confidence: 100,
			Summary:    strings.TrimSpace(msg.Text()),
			Sentiment:  models.SentimentNeutral,
		}, nil
	}
	return g.classifier.Classify(ctx, msg)
}

func (g *Gate) openIssue(ctx context.Context, msg models.Message, classification ai.QuestionClassification, logger zerolog.Logger) (*models.Issue, error) {
	var customerID *int64
	if id, err := g.store.EnsureCustomer(ctx, msg.ExternalPartyID); err != nil {
		logger.Warn().Err(err).Str("external_party_id", msg.ExternalPartyID).Msg("Failed to resolve customer")
	} else {
		customerID = &id
	}

	issue, created, err := g.lifecycle.Open(ctx, analysis.IssueDraft{
		Trigger:        msg,
		CustomerID:     customerID,
		Classification: classification,
	})
	if err != nil || !created {
		return nil, err
	}

	if len(classification.SuggestedTags) > 0 {
		cache, err := analysis.NewTagCache(ctx, g.store)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to load tag vocabulary, skipping tags")
		} else {
			g.tags.AttachSuggested(ctx, cache, issue.ID, classification.SuggestedTags)
		}
	}
	return issue, nil
}

// reply applies the send rules: a knowledge answer goes out when the bot was
// addressed or the retrieval confidence clears the threshold; an addressed
// bot with nothing to say sends the fallback message instead.
func (g *Gate) reply(ctx context.Context, conv *models.Conversation, issue *models.Issue, result *knowledge.Result, searchErr error, outcome *Outcome, logger zerolog.Logger) {
	answered := result != nil && result.Matched && strings.TrimSpace(result.Answer) != ""
	if result != nil {
		outcome.Confidence = result.Confidence
	}

	if !conv.AutoReplyEnabled {
		outcome.Reason = ReasonAutoReplyDisabled
		return
	}
	if g.sender == nil {
		outcome.Reason = ReasonNoSender
		return
	}

	switch {
	case answered && (outcome.Mentioned || result.Confidence >= g.cfg.ConfidenceThreshold):
		botMsg, err := g.send(ctx, conv, result.Answer, logger)
		if err != nil {
			outcome.Reason = ReasonSendFailed
			return
		}
		if _, err := g.lifecycle.RecordAutoReply(ctx, issue, *botMsg, result.Confidence); err != nil {
			logger.Error().Err(err).Msg("Failed to record auto reply on issue")
		}
		outcome.Replied = true
		outcome.Reason = ReasonSent

	case outcome.Mentioned:
		if _, err := g.send(ctx, conv, g.cfg.NoAnswerMessage, logger); err != nil {
			outcome.Reason = ReasonSendFailed
			return
		}
		outcome.FallbackSent = true
		outcome.Reason = noAnswerReason(searchErr)

	case answered:
		outcome.Reason = ReasonBelowThreshold

	default:
		outcome.Reason = noAnswerReason(searchErr)
	}
}

func noAnswerReason(searchErr error) string {
	if searchErr != nil {
		return ReasonRetrievalFailed
	}
	return ReasonNoAnswer
}

// send delivers text and stores it as a staff message authored by the bot
func (g *Gate) send(ctx context.Context, conv *models.Conversation, text string, logger zerolog.Logger) (*models.Message, error) {
	externalID, err := g.sender.Send(ctx, conv, text)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to send auto reply")
		return nil, err
	}

	msg := &models.Message{
		ConversationID:  conv.ID,
		ExternalPartyID: analysis.BotReplier,
		IsStaff:         true,
		Content:         &text,
		CreatedAt:       g.now().UTC(),
	}
	if externalID != "" {
		msg.ExternalID = &externalID
	}
	if _, err := g.store.InsertMessage(ctx, msg); err != nil {
		logger.Error().Err(err).Msg("Failed to store bot reply")
		return nil, err
	}
	return msg, nil
}

func (g *Gate) track(outcome *Outcome, logger zerolog.Logger) {
	if g.tracker != nil {
		if err := g.tracker.TrackAutoReply(outcome.Replied, outcome.Reason, outcome.Confidence); err != nil {
			logger.Warn().Err(err).Msg("Failed to track auto reply")
		}
	}

	logger.Info().
		Bool("mentioned", outcome.Mentioned).
		Bool("replied", outcome.Replied).
		Bool("fallback_sent", outcome.FallbackSent).
		Str("reason", outcome.Reason).
		Int("confidence", outcome.Confidence).
		Msg("Auto-reply decision")
}

func (g *Gate) messageFromEvent(event models.InboundEvent) models.Message {
	msg := models.Message{
		ConversationID:  event.ConversationID,
		ExternalPartyID: event.ExternalPartyID,
		IsStaff:         event.IsStaffAuthor,
		Content:         event.Text,
		CreatedAt:       event.Timestamp,
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = g.now().UTC()
	}
	if id := strings.TrimSpace(event.MessageID); id != "" {
		msg.ExternalID = &id
	}
	return msg
}

func conversationInput(event models.InboundEvent, defaultAutoReply bool) database.ConversationInput {
	in := database.ConversationInput{
		ID:               event.ConversationID,
		Channel:          event.Channel,
		AutoReplyEnabled: defaultAutoReply,
	}
	if addr := strings.TrimSpace(event.ContactAddress); addr != "" {
		in.ContactAddress = &addr
	}
	return in
}

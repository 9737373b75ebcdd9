package autoreply

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"supportwatch/internal/ai"
	"supportwatch/internal/database"
	"supportwatch/internal/knowledge"
	"supportwatch/internal/models"
)

func strPtr(s string) *string { return &s }

// gateStore is an in-memory Store
type gateStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      []models.Message
	issues        map[int64]*models.Issue
	tags          map[string]*models.Tag
	issueTags     map[int64][]int64
	customers     map[string]int64
	nextID        int64
}

func newGateStore() *gateStore {
	return &gateStore{
		conversations: make(map[string]*models.Conversation),
		issues:        make(map[int64]*models.Issue),
		tags:          make(map[string]*models.Tag),
		issueTags:     make(map[int64][]int64),
		customers:     make(map[string]int64),
	}
}

func (s *gateStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *gateStore) EnsureConversation(_ context.Context, in database.ConversationInput) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[in.ID]
	if !ok {
		conv = &models.Conversation{ID: in.ID, Channel: in.Channel, AutoReplyEnabled: in.AutoReplyEnabled, CreatedAt: time.Now()}
		s.conversations[in.ID] = conv
	}
	if in.ContactAddress != nil {
		conv.ContactAddress = in.ContactAddress
	}
	out := *conv
	return &out, nil
}

func (s *gateStore) setAutoReply(id string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[id]; ok {
		conv.AutoReplyEnabled = enabled
		return
	}
	s.conversations[id] = &models.Conversation{ID: id, AutoReplyEnabled: enabled}
}

func (s *gateStore) InsertMessage(_ context.Context, msg *models.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ExternalID != nil {
		for _, m := range s.messages {
			if m.ConversationID == msg.ConversationID && m.ExternalID != nil && *m.ExternalID == *msg.ExternalID {
				*msg = m
				return false, nil
			}
		}
	}
	msg.ID = s.id()
	s.messages = append(s.messages, *msg)
	return true, nil
}

func (s *gateStore) EnsureCustomer(_ context.Context, externalID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.customers[externalID]; ok {
		return id, nil
	}
	id := s.id()
	s.customers[externalID] = id
	return id, nil
}

func (s *gateStore) CreateIssue(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.issues {
		if existing.TriggerMessageID == issue.TriggerMessageID {
			return database.ErrDuplicate
		}
	}
	issue.ID = s.id()
	issue.CreatedAt = time.Now()
	stored := *issue
	s.issues[issue.ID] = &stored
	return nil
}

func (s *gateStore) GetIssue(_ context.Context, id int64) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := *issue
	return &out, nil
}

func (s *gateStore) GetIssueByTrigger(_ context.Context, messageID int64) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, issue := range s.issues {
		if issue.TriggerMessageID == messageID {
			out := *issue
			return &out, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *gateStore) TransitionIssue(_ context.Context, id int64, t database.IssueTransition) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok || issue.Status != t.From {
		return nil, database.ErrConflict
	}
	issue.Status = t.To
	if t.ReplyMessageID != nil {
		issue.ReplyMessageID = t.ReplyMessageID
	}
	if t.RepliedBy != nil {
		issue.RepliedBy = t.RepliedBy
	}
	if t.RepliedAt != nil {
		issue.RepliedAt = t.RepliedAt
	}
	if t.RelevanceScore != nil {
		issue.RelevanceScore = t.RelevanceScore
	}
	issue.AutoReplied = issue.AutoReplied || t.AutoReplied
	out := *issue
	return &out, nil
}

func (s *gateStore) TimeoutOverdueIssues(context.Context, time.Time) ([]models.Issue, error) {
	return nil, nil
}

func (s *gateStore) ListTags(context.Context) ([]models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, *t)
	}
	return out, nil
}

func (s *gateStore) GetTagByName(_ context.Context, name string) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tags[name]; ok {
		out := *t
		return &out, nil
	}
	return nil, database.ErrNotFound
}

func (s *gateStore) CreateTag(_ context.Context, name string) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[name]; ok {
		return nil, database.ErrDuplicate
	}
	t := &models.Tag{ID: s.id(), Name: name}
	s.tags[name] = t
	out := *t
	return &out, nil
}

func (s *gateStore) AttachTag(_ context.Context, issueID, tagID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.issueTags[issueID] {
		if id == tagID {
			return false, nil
		}
	}
	s.issueTags[issueID] = append(s.issueTags[issueID], tagID)
	return true, nil
}

func (s *gateStore) issueList() []models.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Issue, 0, len(s.issues))
	for _, issue := range s.issues {
		out = append(out, *issue)
	}
	return out
}

func (s *gateStore) staffMessages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.IsStaff {
			out = append(out, m)
		}
	}
	return out
}

// fakeAI classifies with a configurable func and never merges tags
type fakeAI struct {
	mu         sync.Mutex
	classify   func(text string) (ai.QuestionClassification, error)
	classified []string
}

func (f *fakeAI) ClassifyQuestion(_ context.Context, text string) (ai.QuestionClassification, error) {
	f.mu.Lock()
	f.classified = append(f.classified, text)
	f.mu.Unlock()
	if f.classify == nil {
		return ai.QuestionClassification{}, errors.New("classifier not configured")
	}
	return f.classify(text)
}

func (f *fakeAI) DeduplicateTag(context.Context, string, []string) (ai.TagDecision, error) {
	return ai.TagDecision{}, nil
}

func (f *fakeAI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.classified)
}

func question(confidence int, tags ...string) func(string) (ai.QuestionClassification, error) {
	return func(text string) (ai.QuestionClassification, error) {
		return ai.QuestionClassification{
			IsQuestion:    true,
			Confidence:    confidence,
			Summary:       "summary: " + text,
			Sentiment:     models.SentimentNeutral,
			SuggestedTags: tags,
		}, nil
	}
}

// fakeRetriever returns a fixed result
type fakeRetriever struct {
	mu      sync.Mutex
	result  *knowledge.Result
	err     error
	queries []knowledge.Query
}

func (f *fakeRetriever) Search(_ context.Context, q knowledge.Query) (*knowledge.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.result == nil {
		return &knowledge.Result{Err: f.err}, f.err
	}
	r := *f.result
	return &r, f.err
}

func matched(answer string, confidence int, generated bool) *knowledge.Result {
	return &knowledge.Result{Matched: true, Answer: answer, Confidence: confidence, IsGenerated: generated}
}

type sentReply struct {
	conversationID string
	text           string
}

// fakeSender records outbound messages
type fakeSender struct {
	mu   sync.Mutex
	sent []sentReply
	err  error
}

func (f *fakeSender) Send(_ context.Context, conv *models.Conversation, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentReply{conv.ID, text})
	return fmt.Sprintf("out-%d", len(f.sent)), nil
}

type trackedReply struct {
	sent       bool
	reason     string
	confidence int
}

type fakeTracker struct {
	mu      sync.Mutex
	replies []trackedReply
}

func (f *fakeTracker) TrackAutoReply(sent bool, reason string, confidence int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, trackedReply{sent, reason, confidence})
	return nil
}

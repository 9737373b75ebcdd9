package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"supportwatch/internal/ai"
	"supportwatch/internal/database"
	"supportwatch/internal/models"
)

// memStore is an in-memory Store with the same conflict semantics as Postgres
type memStore struct {
	mu          sync.Mutex
	messages    []models.Message
	issues      map[int64]*models.Issue
	tags        []models.Tag
	issueTags   map[int64]map[int64]bool
	customers   map[string]*models.Customer
	nextIssueID int64
	nextTagID   int64
	nextCustID  int64
}

func newMemStore() *memStore {
	return &memStore{
		issues:    make(map[int64]*models.Issue),
		issueTags: make(map[int64]map[int64]bool),
		customers: make(map[string]*models.Customer),
	}
}

func (s *memStore) addMessage(conv, party string, staff bool, text string, at time.Time) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := models.Message{
		ID:              int64(len(s.messages) + 1),
		ConversationID:  conv,
		ExternalPartyID: party,
		IsStaff:         staff,
		CreatedAt:       at,
	}
	if text != "" {
		msg.Content = &text
	}
	s.messages = append(s.messages, msg)
	return msg
}

func (s *memStore) issueList() []models.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Issue, 0, len(s.issues))
	for _, issue := range s.issues {
		out = append(out, *issue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) tagsOf(issueID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id := range s.issueTags[issueID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *memStore) CreateIssue(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.issues {
		if existing.TriggerMessageID == issue.TriggerMessageID {
			return fmt.Errorf("failed to create issue: %w", database.ErrDuplicate)
		}
	}
	s.nextIssueID++
	issue.ID = s.nextIssueID
	issue.CreatedAt = time.Now()
	issue.UpdatedAt = issue.CreatedAt
	stored := *issue
	s.issues[issue.ID] = &stored
	return nil
}

func (s *memStore) GetIssue(_ context.Context, id int64) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := *issue
	return &out, nil
}

func (s *memStore) GetIssueByTrigger(_ context.Context, messageID int64) (*models.Issue, error) {
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

func (s *memStore) TransitionIssue(_ context.Context, id int64, t database.IssueTransition) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok || issue.Status != t.From {
		return nil, database.ErrConflict
	}
	if t.DeadlineBefore != nil && !issue.TimeoutAt.Before(*t.DeadlineBefore) {
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
	if t.ResolvedAt != nil {
		issue.ResolvedAt = t.ResolvedAt
	}
	issue.AutoReplied = issue.AutoReplied || t.AutoReplied
	issue.UpdatedAt = t.At
	out := *issue
	return &out, nil
}

func (s *memStore) TimeoutOverdueIssues(_ context.Context, now time.Time) ([]models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var moved []models.Issue
	for _, issue := range s.issues {
		overdue := issue.TimeoutAt.Before(now)
		open := issue.Status == models.IssueStatusPending || issue.Status == models.IssueStatusWaitingCustomer
		if overdue && open {
			issue.Status = models.IssueStatusTimeout
			issue.UpdatedAt = now
			moved = append(moved, *issue)
		}
	}
	return moved, nil
}

func (s *memStore) ListTags(_ context.Context) ([]models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Tag(nil), s.tags...), nil
}

func (s *memStore) GetTagByName(_ context.Context, name string) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tag := range s.tags {
		if tag.Name == name {
			out := tag
			return &out, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) CreateTag(_ context.Context, name string) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tag := range s.tags {
		if tag.Name == name {
			return nil, database.ErrDuplicate
		}
	}
	s.nextTagID++
	tag := models.Tag{ID: s.nextTagID, Name: name, CreatedAt: time.Now()}
	s.tags = append(s.tags, tag)
	return &tag, nil
}

func (s *memStore) AttachTag(_ context.Context, issueID, tagID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.issueTags[issueID] == nil {
		s.issueTags[issueID] = make(map[int64]bool)
	}
	if s.issueTags[issueID][tagID] {
		return false, nil
	}
	s.issueTags[issueID][tagID] = true
	for i := range s.tags {
		if s.tags[i].ID == tagID {
			s.tags[i].UsageCount++
		}
	}
	return true, nil
}

func (s *memStore) EnsureCustomer(_ context.Context, externalID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.customers[externalID]; ok {
		return c.ID, nil
	}
	s.nextCustID++
	s.customers[externalID] = &models.Customer{ID: s.nextCustID, ExternalID: externalID, Sentiment: models.SentimentNeutral}
	return s.nextCustID, nil
}

func (s *memStore) RecentExternalTexts(_ context.Context, externalPartyID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var texts []string
	for _, msg := range s.messages {
		if msg.ExternalPartyID == externalPartyID && !msg.IsStaff && strings.TrimSpace(msg.Text()) != "" {
			texts = append(texts, msg.Text())
		}
	}
	if len(texts) > limit {
		texts = texts[len(texts)-limit:]
	}
	return texts, nil
}

func (s *memStore) ReplaceCustomerSentiment(_ context.Context, externalID, sentiment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[externalID]
	if !ok {
		s.nextCustID++
		c = &models.Customer{ID: s.nextCustID, ExternalID: externalID}
		s.customers[externalID] = c
	}
	c.Sentiment = sentiment
	return nil
}

func (s *memStore) sentimentOf(externalID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.customers[externalID]; ok {
		return c.Sentiment
	}
	return ""
}

func (s *memStore) GetMessage(_ context.Context, id int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range s.messages {
		if msg.ID == id {
			out := msg
			return &out, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) ListExternalMessages(_ context.Context, since time.Time, conversationID *string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, msg := range s.messages {
		if msg.IsStaff || msg.CreatedAt.Before(since) {
			continue
		}
		if conversationID != nil && msg.ConversationID != *conversationID {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *memStore) ListStaffRepliesAfter(_ context.Context, trigger models.Message, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := make(map[int64]bool)
	for _, issue := range s.issues {
		if issue.ReplyMessageID != nil {
			used[*issue.ReplyMessageID] = true
		}
	}

	var out []models.Message
	for _, msg := range s.messages {
		if !msg.IsStaff || msg.ConversationID != trigger.ConversationID || used[msg.ID] {
			continue
		}
		if msg.CreatedAt.Before(trigger.CreatedAt) || (msg.CreatedAt.Equal(trigger.CreatedAt) && msg.ID < trigger.ID) {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) ListPendingIssues(_ context.Context, since time.Time, conversationID *string) ([]models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Issue
	for _, issue := range s.issues {
		if issue.Status != models.IssueStatusPending {
			continue
		}
		if conversationID != nil && issue.ConversationID != *conversationID {
			continue
		}
		out = append(out, *issue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeAI answers every analysis call from the configured funcs
type fakeAI struct {
	mu        sync.Mutex
	classify  func(text string) (ai.QuestionClassification, error)
	evaluate  func(question, reply string) (ai.ReplyEvaluation, error)
	dedupe    func(candidate string, vocabulary []string) (ai.TagDecision, error)
	sentiment func(messages []string) (ai.SentimentResult, error)

	classified     []string
	evaluated      []string
	dedupeCalls    int
	sentimentCalls [][]string
}

func (f *fakeAI) ClassifyQuestion(_ context.Context, text string) (ai.QuestionClassification, error) {
	f.mu.Lock()
	f.classified = append(f.classified, text)
	f.mu.Unlock()
	if f.classify == nil {
		return ai.QuestionClassification{Sentiment: models.SentimentNeutral}, nil
	}
	return f.classify(text)
}

func (f *fakeAI) EvaluateReply(_ context.Context, question, reply string) (ai.ReplyEvaluation, error) {
	f.mu.Lock()
	f.evaluated = append(f.evaluated, reply)
	f.mu.Unlock()
	if f.evaluate == nil {
		return ai.ReplyEvaluation{}, nil
	}
	return f.evaluate(question, reply)
}

func (f *fakeAI) DeduplicateTag(_ context.Context, candidate string, vocabulary []string) (ai.TagDecision, error) {
	f.mu.Lock()
	f.dedupeCalls++
	f.mu.Unlock()
	if f.dedupe == nil {
		return ai.TagDecision{}, nil
	}
	return f.dedupe(candidate, vocabulary)
}

func (f *fakeAI) AggregateSentiment(_ context.Context, messages []string) (ai.SentimentResult, error) {
	f.mu.Lock()
	f.sentimentCalls = append(f.sentimentCalls, messages)
	f.mu.Unlock()
	if f.sentiment == nil {
		return ai.SentimentResult{Sentiment: models.SentimentNeutral}, nil
	}
	return f.sentiment(messages)
}

type trackedEvent struct {
	eventType string
	count     int
	metadata  map[string]interface{}
}

type fakeTracker struct {
	mu     sync.Mutex
	events []trackedEvent
}

func (f *fakeTracker) TrackEvent(eventType string, count int, metadata map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, trackedEvent{eventType, count, metadata})
	return nil
}

func question(summary string, tags ...string) func(string) (ai.QuestionClassification, error) {
	return func(string) (ai.QuestionClassification, error) {
		return ai.QuestionClassification{
			IsQuestion:    true,
			Confidence:    85,
			Summary:       summary,
			Sentiment:     models.SentimentNeutral,
			SuggestedTags: tags,
		}, nil
	}
}

func scored(score int, counter bool) func(string, string) (ai.ReplyEvaluation, error) {
	return func(string, string) (ai.ReplyEvaluation, error) {
		return ai.ReplyEvaluation{RelevanceScore: score, IsCounterQuestion: counter}, nil
	}
}

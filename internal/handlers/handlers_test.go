package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"supportwatch/internal/analysis"
	"supportwatch/internal/autoreply"
	"supportwatch/internal/database"
	"supportwatch/internal/k8s"
	"supportwatch/internal/knowledge"
	"supportwatch/internal/models"
)

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

type fakeGate struct {
	event   models.InboundEvent
	outcome *autoreply.Outcome
	err     error
}

func (f *fakeGate) HandleInboundMessage(_ context.Context, event models.InboundEvent) (*autoreply.Outcome, error) {
	f.event = event
	return f.outcome, f.err
}

func TestInboundMessageHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		gate           *fakeGate
		expectedStatus int
	}{
		{
			name:           "accepted",
			body:           `{"conversation_id":"line:U1","external_party_id":"U1","text":"hi?"}`,
			gate:           &fakeGate{outcome: &autoreply.Outcome{MessageID: 5, Replied: true, Reason: autoreply.ReasonSent}},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "malformed body",
			body:           `{"conversation_id":`,
			gate:           &fakeGate{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid event",
			body:           `{"text":"hi"}`,
			gate:           &fakeGate{err: fmt.Errorf("%w: missing ids", autoreply.ErrInvalidEvent)},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "processing failure",
			body:           `{"conversation_id":"line:U1","external_party_id":"U1"}`,
			gate:           &fakeGate{err: errors.New("db down")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodPost, "/api/webhooks/messages", tt.body)

			require.NoError(t, InboundMessageHandler(tt.gate, zerolog.Nop())(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestInboundMessageHandler_ReturnsOutcome(t *testing.T) {
	gate := &fakeGate{outcome: &autoreply.Outcome{MessageID: 9, IsQuestion: true, Reason: autoreply.ReasonBelowThreshold, Confidence: 30}}
	c, rec := newContext(http.MethodPost, "/api/webhooks/messages", `{"conversation_id":"line:U1","external_party_id":"U1","text":"refund?"}`)

	require.NoError(t, InboundMessageHandler(gate, zerolog.Nop())(c))

	var outcome autoreply.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, int64(9), outcome.MessageID)
	assert.Equal(t, autoreply.ReasonBelowThreshold, outcome.Reason)
	require.NotNil(t, gate.event.Text)
	assert.Equal(t, "refund?", *gate.event.Text)
}

type fakeRunner struct {
	opts   analysis.RunOptions
	result *analysis.RunResult
	err    error
}

func (f *fakeRunner) RunAnalysis(_ context.Context, opts analysis.RunOptions) (*analysis.RunResult, error) {
	f.opts = opts
	return f.result, f.err
}

func TestRunAnalysisHandler(t *testing.T) {
	runner := &fakeRunner{result: &analysis.RunResult{RunID: "r1", MessagesAnalyzed: 4, IssuesCreated: 2}}
	c, rec := newContext(http.MethodPost, "/api/analysis/run", `{"conversation_id":"line:U1","since":"2026-01-01T00:00:00Z"}`)

	require.NoError(t, RunAnalysisHandler(runner, zerolog.Nop())(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var response models.AnalysisRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "r1", response.RunID)
	assert.Equal(t, 2, response.IssuesCreated)

	require.NotNil(t, runner.opts.ConversationID)
	assert.Equal(t, "line:U1", *runner.opts.ConversationID)
	require.NotNil(t, runner.opts.Since)
	assert.Equal(t, 2026, runner.opts.Since.Year())
}

func TestRunAnalysisHandler_EmptyBodyAndFailure(t *testing.T) {
	runner := &fakeRunner{result: &analysis.RunResult{RunID: "r2"}}
	c, rec := newContext(http.MethodPost, "/api/analysis/run", "")
	require.NoError(t, RunAnalysisHandler(runner, zerolog.Nop())(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, runner.opts.ConversationID)

	runner = &fakeRunner{result: &analysis.RunResult{RunID: "r3", Failures: 1}, err: context.Canceled}
	c, rec = newContext(http.MethodPost, "/api/analysis/run", "")
	require.NoError(t, RunAnalysisHandler(runner, zerolog.Nop())(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var response models.AnalysisRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "r3", response.RunID)
	assert.Equal(t, 1, response.Failures)
	assert.NotEmpty(t, response.Error)
}

type fakeSearcher struct {
	query  knowledge.Query
	result *knowledge.Result
	err    error
}

func (f *fakeSearcher) Search(_ context.Context, q knowledge.Query) (*knowledge.Result, error) {
	f.query = q
	return f.result, f.err
}

func TestKnowledgeSearchHandler(t *testing.T) {
	searcher := &fakeSearcher{result: &knowledge.Result{Matched: true, Answer: "Use the reset link.", Confidence: 75}}
	c, rec := newContext(http.MethodPost, "/api/knowledge/search", `{"query":"reset password","categories":["account"]}`)

	require.NoError(t, KnowledgeSearchHandler(searcher, zerolog.Nop())(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AutoReplySourceSearchTest, searcher.query.Source)
	assert.Equal(t, []string{"account"}, searcher.query.Categories)

	var response models.KnowledgeSearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Matched)
	require.NotNil(t, response.Answer)
	assert.Equal(t, "Use the reset link.", *response.Answer)
	assert.Equal(t, 75, response.Confidence)
}

func TestKnowledgeSearchHandler_Errors(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/knowledge/search", `{"query":"   "}`)
	require.NoError(t, KnowledgeSearchHandler(&fakeSearcher{}, zerolog.Nop())(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	failure := errors.New("failed to synthesize answer: all backends down")
	searcher := &fakeSearcher{result: &knowledge.Result{Err: failure}, err: failure}
	c, rec = newContext(http.MethodPost, "/api/knowledge/search", `{"query":"refund"}`)
	require.NoError(t, KnowledgeSearchHandler(searcher, zerolog.Nop())(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var response models.KnowledgeSearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.False(t, response.Matched)
	assert.Contains(t, response.Error, "failed to synthesize answer")
}

type fakeIssues struct {
	issue  *models.Issue
	err    error
	set    models.IssueStatus
	expire bool // CheckTimeout moves PENDING issues to TIMEOUT
}

func (f *fakeIssues) CheckTimeout(_ context.Context, issue *models.Issue) (*models.Issue, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := *issue
	if f.expire && out.Status == models.IssueStatusPending {
		out.Status = models.IssueStatusTimeout
	}
	return &out, nil
}

func (f *fakeIssues) Get(context.Context, int64) (*models.Issue, error) {
	return f.issue, f.err
}

func (f *fakeIssues) SetStatus(_ context.Context, _ int64, to models.IssueStatus) (*models.Issue, error) {
	f.set = to
	if f.err != nil {
		return nil, f.err
	}
	out := *f.issue
	out.Status = to
	return &out, nil
}

type fakeTags struct {
	tags []models.Tag
	err  error
}

func (f fakeTags) ListIssueTags(context.Context, int64) ([]models.Tag, error) {
	return f.tags, f.err
}

func TestGetIssueHandler(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		issues         *fakeIssues
		tags           IssueTagLister
		expectedStatus int
		expectedTags   int
	}{
		{"found with tags", "3", &fakeIssues{issue: &models.Issue{ID: 3, Status: models.IssueStatusTimeout}}, fakeTags{tags: []models.Tag{{ID: 1, Name: "billing"}}}, http.StatusOK, 1},
		{"tag lookup fails", "3", &fakeIssues{issue: &models.Issue{ID: 3}}, fakeTags{err: errors.New("boom")}, http.StatusOK, 0},
		{"no tag store", "3", &fakeIssues{issue: &models.Issue{ID: 3}}, nil, http.StatusOK, 0},
		{"not found", "3", &fakeIssues{err: database.ErrNotFound}, nil, http.StatusNotFound, 0},
		{"invalid id", "abc", &fakeIssues{}, nil, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodGet, "/api/issues/"+tt.id, "")
			c.SetParamNames("id")
			c.SetParamValues(tt.id)

			require.NoError(t, GetIssueHandler(tt.issues, tt.tags, zerolog.Nop())(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)

			var response models.IssueResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.Len(t, response.Tags, tt.expectedTags)
		})
	}
}

func TestUpdateIssueStatusHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		issues         *fakeIssues
		expectedStatus int
	}{
		{"resolve", `{"status":"RESOLVED"}`, &fakeIssues{issue: &models.Issue{ID: 1, Status: models.IssueStatusReplied}}, http.StatusOK},
		{"missing status", `{}`, &fakeIssues{}, http.StatusBadRequest},
		{"invalid transition", `{"status":"PENDING"}`, &fakeIssues{err: analysis.ErrInvalidTransition}, http.StatusConflict},
		{"concurrent change", `{"status":"IGNORED"}`, &fakeIssues{err: database.ErrConflict}, http.StatusConflict},
		{"unknown issue", `{"status":"IGNORED"}`, &fakeIssues{err: database.ErrNotFound}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodPatch, "/api/issues/1/status", tt.body)
			c.SetParamNames("id")
			c.SetParamValues("1")

			require.NoError(t, UpdateIssueStatusHandler(tt.issues, zerolog.Nop())(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

type fakeLister struct {
	issues []models.Issue
	err    error
	status *models.IssueStatus
	limit  int
}

func (f *fakeLister) ListIssues(_ context.Context, status *models.IssueStatus, limit int) ([]models.Issue, error) {
	f.status, f.limit = status, limit
	return f.issues, f.err
}

func TestListIssuesHandler(t *testing.T) {
	recent := []models.Issue{
		{ID: 2, Status: models.IssueStatusPending},
		{ID: 1, Status: models.IssueStatusPending},
	}

	tests := []struct {
		name           string
		query          string
		issues         *fakeIssues
		lister         *fakeLister
		expectedStatus int
		expectedIDs    []int64
		expectedLimit  int
	}{
		{"defaults", "", &fakeIssues{}, &fakeLister{issues: recent}, http.StatusOK, []int64{2, 1}, 50},
		{"limit is capped", "?limit=1000", &fakeIssues{}, &fakeLister{issues: recent}, http.StatusOK, []int64{2, 1}, 200},
		{"timed out issues leave a pending filter", "?status=pending", &fakeIssues{expire: true}, &fakeLister{issues: recent}, http.StatusOK, []int64{}, 50},
		{"timed out issues stay in an unfiltered list", "", &fakeIssues{expire: true}, &fakeLister{issues: recent}, http.StatusOK, []int64{2, 1}, 50},
		{"timeout check failure keeps stored status", "?status=PENDING", &fakeIssues{err: errors.New("boom")}, &fakeLister{issues: recent}, http.StatusOK, []int64{2, 1}, 50},
		{"unknown status", "?status=OPEN", &fakeIssues{}, &fakeLister{}, http.StatusBadRequest, nil, 0},
		{"bad limit", "?limit=-3", &fakeIssues{}, &fakeLister{}, http.StatusBadRequest, nil, 0},
		{"store failure", "", &fakeIssues{}, &fakeLister{err: errors.New("db down")}, http.StatusInternalServerError, nil, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodGet, "/api/issues"+tt.query, "")

			require.NoError(t, ListIssuesHandler(tt.issues, tt.lister, zerolog.Nop())(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedLimit, tt.lister.limit)
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var response models.IssueListResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			ids := make([]int64, 0, len(response.Issues))
			for _, issue := range response.Issues {
				ids = append(ids, issue.ID)
			}
			assert.Equal(t, tt.expectedIDs, ids)
			assert.Equal(t, len(tt.expectedIDs), response.Count)
		})
	}
}

func TestListIssuesHandler_PassesStatusFilter(t *testing.T) {
	lister := &fakeLister{}
	c, _ := newContext(http.MethodGet, "/api/issues?status=replied", "")

	require.NoError(t, ListIssuesHandler(&fakeIssues{}, lister, zerolog.Nop())(c))
	require.NotNil(t, lister.status)
	assert.Equal(t, models.IssueStatusReplied, *lister.status)
}

type fakeConversations struct {
	conv   *models.Conversation
	setErr error
	set    []bool
}

func (f *fakeConversations) GetConversation(context.Context, string) (*models.Conversation, error) {
	return f.conv, nil
}

func (f *fakeConversations) SetConversationAutoReply(_ context.Context, _ string, enabled bool) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.set = append(f.set, enabled)
	f.conv.AutoReplyEnabled = enabled
	return nil
}

func TestUpdateConversationAutoReplyHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setErr         error
		expectedStatus int
		expectedSet    []bool
	}{
		{"disable", `{"enabled":false}`, nil, http.StatusOK, []bool{false}},
		{"enable", `{"enabled":true}`, nil, http.StatusOK, []bool{true}},
		{"missing flag", `{}`, nil, http.StatusBadRequest, nil},
		{"unknown conversation", `{"enabled":false}`, fmt.Errorf("conversation line:U1: %w", database.ErrNotFound), http.StatusNotFound, nil},
		{"store failure", `{"enabled":false}`, errors.New("db down"), http.StatusInternalServerError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			convs := &fakeConversations{conv: &models.Conversation{ID: "line:U1", AutoReplyEnabled: true}, setErr: tt.setErr}
			c, rec := newContext(http.MethodPatch, "/api/conversations/line:U1/auto-reply", tt.body)
			c.SetParamNames("id")
			c.SetParamValues("line:U1")

			require.NoError(t, UpdateConversationAutoReplyHandler(convs, zerolog.Nop())(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedSet, convs.set)

			if tt.expectedStatus == http.StatusOK {
				var response models.ConversationResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
				require.NotNil(t, response.Conversation)
				assert.Equal(t, tt.expectedSet[0], response.Conversation.AutoReplyEnabled)
			}
		})
	}
}

func TestUpdateConversationAutoReplyHandler_NotConfigured(t *testing.T) {
	c, rec := newContext(http.MethodPatch, "/api/conversations/line:U1/auto-reply", `{"enabled":false}`)
	c.SetParamNames("id")
	c.SetParamValues("line:U1")

	require.NoError(t, UpdateConversationAutoReplyHandler(nil, zerolog.Nop())(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeJobs struct {
	opts      k8s.EmbeddingJobOptions
	createErr error
	status    *k8s.JobStatus
	statusErr error
}

func (f *fakeJobs) CreateEmbeddingJob(_ context.Context, opts k8s.EmbeddingJobOptions) (string, error) {
	f.opts = opts
	if f.createErr != nil {
		return "", f.createErr
	}
	return "embed-knowledge-1", nil
}

func (f *fakeJobs) GetJobStatus(context.Context, string) (*k8s.JobStatus, error) {
	return f.status, f.statusErr
}

func TestTriggerEmbeddingJobHandler(t *testing.T) {
	jobs := &fakeJobs{}
	c, rec := newContext(http.MethodPost, "/api/knowledge/embeddings/jobs", `{"all":true,"family":"openai"}`)
	require.NoError(t, TriggerEmbeddingJobHandler(jobs, zerolog.Nop())(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, k8s.EmbeddingJobOptions{All: true, Family: "openai"}, jobs.opts)

	var response models.EmbeddingJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, "embed-knowledge-1", response.JobName)

	c, rec = newContext(http.MethodPost, "/api/knowledge/embeddings/jobs", "")
	require.NoError(t, TriggerEmbeddingJobHandler(&fakeJobs{createErr: k8s.ErrNoImage}, zerolog.Nop())(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c, rec = newContext(http.MethodPost, "/api/knowledge/embeddings/jobs", "")
	require.NoError(t, TriggerEmbeddingJobHandler(nil, zerolog.Nop())(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEmbeddingJobStatusHandler(t *testing.T) {
	notFound := apierrors.NewNotFound(schema.GroupResource{Group: "batch", Resource: "jobs"}, "missing")

	tests := []struct {
		name           string
		jobs           *fakeJobs
		expectedStatus int
	}{
		{"running", &fakeJobs{status: &k8s.JobStatus{JobName: "embed-knowledge-1", Status: "running", Active: 1}}, http.StatusOK},
		{"not found", &fakeJobs{statusErr: fmt.Errorf("failed to get job: %w", notFound)}, http.StatusNotFound},
		{"api failure", &fakeJobs{statusErr: errors.New("connection refused")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodGet, "/api/knowledge/embeddings/jobs/embed-knowledge-1", "")
			c.SetParamNames("name")
			c.SetParamValues("embed-knowledge-1")

			require.NoError(t, EmbeddingJobStatusHandler(tt.jobs)(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

type fakeSummaries struct {
	period string
	err    error
}

func (f *fakeSummaries) GetSummary(_ context.Context, period string) (*models.AnalyticsSummary, error) {
	f.period = period
	if f.err != nil {
		return nil, f.err
	}
	return &models.AnalyticsSummary{Period: period, AutoRepliesSent: 3}, nil
}

func TestAnalyticsHandler(t *testing.T) {
	summaries := &fakeSummaries{}
	c, rec := newContext(http.MethodGet, "/api/analytics", "")
	require.NoError(t, AnalyticsHandler(summaries, zerolog.Nop())(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "yesterday", summaries.period)

	var response models.AnalyticsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, 3, response.Summary.AutoRepliesSent)

	c, rec = newContext(http.MethodGet, "/api/analytics?period=last_7_days", "")
	require.NoError(t, AnalyticsHandler(&fakeSummaries{err: errors.New("boom")}, zerolog.Nop())(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	c, rec = newContext(http.MethodGet, "/api/analytics", "")
	require.NoError(t, AnalyticsHandler(nil, zerolog.Nop())(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"supportwatch/internal/analysis"
	"supportwatch/internal/database"
	"supportwatch/internal/models"
)

const (
	defaultIssueListLimit = 50
	maxIssueListLimit     = 200
)

var listableStatuses = map[models.IssueStatus]bool{
	models.IssueStatusPending:         true,
	models.IssueStatusReplied:         true,
	models.IssueStatusWaitingCustomer: true,
	models.IssueStatusResolved:        true,
	models.IssueStatusTimeout:         true,
	models.IssueStatusIgnored:         true,
}

func issueID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// issueErrorStatus maps lifecycle and store errors to HTTP status codes
func issueErrorStatus(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrInvalidTransition), errors.Is(err, database.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ListIssuesHandler returns the most recent issues, newest first
// @Summary List issues
// @Description Overdue PENDING and WAITING_CUSTOMER issues are moved to TIMEOUT before they are listed.
// @Tags issues
// @Produce json
// @Param status query string false "Filter by status (PENDING, REPLIED, WAITING_CUSTOMER, RESOLVED, TIMEOUT, IGNORED)"
// @Param limit query int false "Maximum issues returned" default(50)
// @Success 200 {object} models.IssueListResponse
// @Failure 400 {object} models.IssueListResponse
// @Failure 500 {object} models.IssueListResponse
// @Router /api/issues [get]
func ListIssuesHandler(issues IssueService, lister IssueLister, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "issues_handler").Logger()

	return func(c echo.Context) error {
		if lister == nil {
			return c.JSON(http.StatusServiceUnavailable, models.IssueListResponse{Error: "issue store not configured"})
		}

		var status *models.IssueStatus
		if raw := strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))); raw != "" {
			s := models.IssueStatus(raw)
			if !listableStatuses[s] {
				return c.JSON(http.StatusBadRequest, models.IssueListResponse{Error: "unknown status " + raw})
			}
			status = &s
		}

		limit := defaultIssueListLimit
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.JSON(http.StatusBadRequest, models.IssueListResponse{Error: "limit must be a positive integer"})
			}
			limit = min(n, maxIssueListLimit)
		}

		ctx := c.Request().Context()
		listed, err := lister.ListIssues(ctx, status, limit)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.IssueListResponse{Error: err.Error()})
		}

		out := make([]models.Issue, 0, len(listed))
		for i := range listed {
			issue := &listed[i]
			if issues != nil {
				checked, err := issues.CheckTimeout(ctx, issue)
				if err != nil {
					logger.Warn().Err(err).Int64("issue_id", issue.ID).Msg("Timeout check failed")
				} else {
					issue = checked
				}
			}
			// a PENDING filter must not return what just timed out
			if status != nil && issue.Status != *status {
				continue
			}
			out = append(out, *issue)
		}
		return c.JSON(http.StatusOK, models.IssueListResponse{Issues: out, Count: len(out)})
	}
}

// GetIssueHandler returns one issue, applying the timeout check on read
// @Summary Get an issue
// @Description Returns the issue and its tags. An overdue PENDING or WAITING_CUSTOMER issue is moved to TIMEOUT first.
// @Tags issues
// @Produce json
// @Param id path int true "Issue ID"
// @Success 200 {object} models.IssueResponse
// @Failure 400 {object} models.IssueResponse
// @Failure 404 {object} models.IssueResponse
// @Router /api/issues/{id} [get]
func GetIssueHandler(issues IssueService, tags IssueTagLister, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "issues_handler").Logger()

	return func(c echo.Context) error {
		id, ok := issueID(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, models.IssueResponse{Error: "invalid issue id"})
		}

		ctx := c.Request().Context()
		issue, err := issues.Get(ctx, id)
		if err != nil {
			return c.JSON(issueErrorStatus(err), models.IssueResponse{Error: err.Error()})
		}

		response := models.IssueResponse{Issue: issue}
		if tags != nil {
			if response.Tags, err = tags.ListIssueTags(ctx, id); err != nil {
				logger.Warn().Err(err).Int64("issue_id", id).Msg("Failed to load issue tags")
			}
		}
		return c.JSON(http.StatusOK, response)
	}
}

// UpdateIssueStatusHandler applies a manual RESOLVED or IGNORED update
// @Summary Update issue status
// @Description Only RESOLVED (from REPLIED) and IGNORED (from any non-terminal status) may be set manually
// @Tags issues
// @Accept json
// @Produce json
// @Param id path int true "Issue ID"
// @Param request body models.IssueStatusRequest true "Target status"
// @Success 200 {object} models.IssueResponse
// @Failure 400 {object} models.IssueResponse
// @Failure 404 {object} models.IssueResponse
// @Failure 409 {object} models.IssueResponse
// @Router /api/issues/{id}/status [patch]
func UpdateIssueStatusHandler(issues IssueService, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "issues_handler").Logger()

	return func(c echo.Context) error {
		id, ok := issueID(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, models.IssueResponse{Error: "invalid issue id"})
		}

		var req models.IssueStatusRequest
		if err := c.Bind(&req); err != nil || req.Status == "" {
			return c.JSON(http.StatusBadRequest, models.IssueResponse{Error: "status is required"})
		}

		issue, err := issues.SetStatus(c.Request().Context(), id, req.Status)
		if err != nil {
			return c.JSON(issueErrorStatus(err), models.IssueResponse{Error: err.Error()})
		}

		logger.Info().Int64("issue_id", id).Str("status", string(issue.Status)).Msg("Issue status updated manually")
		return c.JSON(http.StatusOK, models.IssueResponse{Issue: issue})
	}
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"supportwatch/internal/k8s"
	"supportwatch/internal/knowledge"
	"supportwatch/internal/models"
)

// KnowledgeSearchHandler lets operators test retrieval against the knowledge base
// @Summary Search the knowledge base
// @Description Runs vector search with keyword fallback and answer synthesis, logged as a search test
// @Tags knowledge
// @Accept json
// @Produce json
// @Param request body models.KnowledgeSearchRequest true "Search query"
// @Success 200 {object} models.KnowledgeSearchResponse
// @Failure 400 {object} models.KnowledgeSearchResponse
// @Failure 500 {object} models.KnowledgeSearchResponse
// @Router /api/knowledge/search [post]
func KnowledgeSearchHandler(searcher KnowledgeSearcher, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "knowledge_handler").Logger()

	return func(c echo.Context) error {
		var req models.KnowledgeSearchRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.KnowledgeSearchResponse{Error: "Invalid request body"})
		}
		if strings.TrimSpace(req.Query) == "" {
			return c.JSON(http.StatusBadRequest, models.KnowledgeSearchResponse{Error: "query is required"})
		}

		result, err := searcher.Search(c.Request().Context(), knowledge.Query{
			Text:           req.Query,
			ConversationID: req.ConversationID,
			Categories:     req.Categories,
			Source:         models.AutoReplySourceSearchTest,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Knowledge search failed")
			response := models.KnowledgeSearchResponse{Error: err.Error()}
			if result != nil {
				response = result.Response()
			}
			return c.JSON(http.StatusInternalServerError, response)
		}

		return c.JSON(http.StatusOK, result.Response())
	}
}

// TriggerEmbeddingJobRequest selects which entries the job embeds
type TriggerEmbeddingJobRequest struct {
	All    bool   `json:"all" example:"false"`                 // Re-embed every active entry
	Family string `json:"family,omitempty" example:"openai"` // Pin the embedding family
}

// TriggerEmbeddingJobHandler launches a Kubernetes Job running embed-knowledge
// @Summary Trigger knowledge embedding job
// @Description Launches a one-off Kubernetes Job that generates embeddings for knowledge entries
// @Tags knowledge
// @Accept json
// @Produce json
// @Param request body TriggerEmbeddingJobRequest false "Job parameters"
// @Success 202 {object} models.EmbeddingJobResponse
// @Failure 400 {object} models.EmbeddingJobResponse
// @Failure 500 {object} models.EmbeddingJobResponse
// @Failure 503 {object} models.EmbeddingJobResponse
// @Router /api/knowledge/embeddings/jobs [post]
func TriggerEmbeddingJobHandler(jobs JobRunner, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "embedding_jobs").Logger()

	return func(c echo.Context) error {
		if jobs == nil {
			return c.JSON(http.StatusServiceUnavailable, models.EmbeddingJobResponse{Error: "Kubernetes is not configured"})
		}

		var req TriggerEmbeddingJobRequest
		if c.Request().ContentLength != 0 {
			if err := c.Bind(&req); err != nil {
				return c.JSON(http.StatusBadRequest, models.EmbeddingJobResponse{Error: "Invalid request body"})
			}
		}

		jobName, err := jobs.CreateEmbeddingJob(c.Request().Context(), k8s.EmbeddingJobOptions{All: req.All, Family: req.Family})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create embedding job")
			status := http.StatusInternalServerError
			if errors.Is(err, k8s.ErrNoImage) {
				status = http.StatusServiceUnavailable
			}
			return c.JSON(status, models.EmbeddingJobResponse{Error: err.Error()})
		}

		logger.Info().Str("job_name", jobName).Bool("all", req.All).Msg("Embedding job created")
		return c.JSON(http.StatusAccepted, models.EmbeddingJobResponse{
			Success: true,
			JobName: jobName,
			Status:  "pending",
		})
	}
}

// EmbeddingJobStatusHandler reports the state of an embedding job
// @Summary Get embedding job status
// @Tags knowledge
// @Produce json
// @Param name path string true "Job name"
// @Success 200 {object} models.EmbeddingJobResponse
// @Failure 404 {object} models.EmbeddingJobResponse
// @Failure 500 {object} models.EmbeddingJobResponse
// @Failure 503 {object} models.EmbeddingJobResponse
// @Router /api/knowledge/embeddings/jobs/{name} [get]
func EmbeddingJobStatusHandler(jobs JobRunner) echo.HandlerFunc {
	return func(c echo.Context) error {
		if jobs == nil {
			return c.JSON(http.StatusServiceUnavailable, models.EmbeddingJobResponse{Error: "Kubernetes is not configured"})
		}

		status, err := jobs.GetJobStatus(c.Request().Context(), c.Param("name"))
		if err != nil {
			code := http.StatusInternalServerError
			if apierrors.IsNotFound(err) {
				code = http.StatusNotFound
			}
			return c.JSON(code, models.EmbeddingJobResponse{JobName: c.Param("name"), Error: err.Error()})
		}

		return c.JSON(http.StatusOK, models.EmbeddingJobResponse{
			Success:   true,
			JobName:   status.JobName,
			Status:    status.Status,
			Active:    status.Active,
			Succeeded: status.Succeeded,
			Failed:    status.Failed,
		})
	}
}

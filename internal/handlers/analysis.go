package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"supportwatch/internal/analysis"
	"supportwatch/internal/models"
)

// RunAnalysisHandler runs one batch analysis pass synchronously
// @Summary Run batch analysis
// @Description Classifies recent customer messages, opens issues, matches staff replies and refreshes customer sentiment
// @Tags analysis
// @Accept json
// @Produce json
// @Param request body models.AnalysisRunRequest false "Analysis window"
// @Success 200 {object} models.AnalysisRunResponse
// @Failure 400 {object} models.AnalysisRunResponse
// @Failure 500 {object} models.AnalysisRunResponse
// @Router /api/analysis/run [post]
func RunAnalysisHandler(runner AnalysisRunner, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "analysis_handler").Logger()

	return func(c echo.Context) error {
		var req models.AnalysisRunRequest
		if c.Request().ContentLength != 0 {
			if err := c.Bind(&req); err != nil {
				return c.JSON(http.StatusBadRequest, models.AnalysisRunResponse{Error: "Invalid request body"})
			}
		}

		result, err := runner.RunAnalysis(c.Request().Context(), analysis.RunOptions{
			ConversationID: req.ConversationID,
			Since:          req.Since,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Batch analysis failed")
			response := models.AnalysisRunResponse{Error: err.Error()}
			if result != nil {
				response = result.Response()
				response.Error = err.Error()
			}
			return c.JSON(http.StatusInternalServerError, response)
		}

		return c.JSON(http.StatusOK, result.Response())
	}
}

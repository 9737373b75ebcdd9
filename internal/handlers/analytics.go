package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"supportwatch/internal/analytics"
	"supportwatch/internal/models"
)

// AnalyticsHandler returns analytics summary for a given period
// @Summary Get analytics summary
// @Description Get analytics summary for a specified time period (today, yesterday, last_7_days, last_30_days)
// @Tags analytics
// @Produce json
// @Param period query string false "Time period (today, yesterday, last_7_days, last_30_days)" default(yesterday)
// @Success 200 {object} models.AnalyticsResponse
// @Failure 500 {object} models.AnalyticsResponse
// @Failure 503 {object} models.AnalyticsResponse
// @Router /api/analytics [get]
func AnalyticsHandler(summaries SummaryProvider, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "analytics_handler").Logger()

	return func(c echo.Context) error {
		if summaries == nil {
			return c.JSON(http.StatusServiceUnavailable, models.AnalyticsResponse{Error: "Analytics is not configured"})
		}

		period := c.QueryParam("period")
		if period == "" {
			period = analytics.PeriodYesterday
		}

		summary, err := summaries.GetSummary(c.Request().Context(), period)
		if err != nil {
			logger.Error().Err(err).Str("period", period).Msg("Failed to get analytics summary")
			return c.JSON(http.StatusInternalServerError, models.AnalyticsResponse{
				Error: fmt.Sprintf("Failed to get analytics summary: %v", err),
			})
		}

		return c.JSON(http.StatusOK, models.AnalyticsResponse{
			Success: true,
			Summary: summary,
		})
	}
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"supportwatch/internal/database"
	"supportwatch/internal/models"
)

// UpdateConversationAutoReplyHandler turns auto-reply on or off for an
// existing conversation
// @Summary Switch conversation auto-reply
// @Description Issues are still created and retrieval still logged while auto-reply is off; only the outbound reply is suppressed.
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param request body models.ConversationAutoReplyRequest true "Auto-reply switch"
// @Success 200 {object} models.ConversationResponse
// @Failure 400 {object} models.ConversationResponse
// @Failure 404 {object} models.ConversationResponse
// @Failure 503 {object} models.ConversationResponse
// @Router /api/conversations/{id}/auto-reply [patch]
func UpdateConversationAutoReplyHandler(conversations ConversationSettings, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "conversations_handler").Logger()

	return func(c echo.Context) error {
		if conversations == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ConversationResponse{Error: "conversation store not configured"})
		}

		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			return c.JSON(http.StatusBadRequest, models.ConversationResponse{Error: "conversation id is required"})
		}

		var req models.ConversationAutoReplyRequest
		if err := c.Bind(&req); err != nil || req.Enabled == nil {
			return c.JSON(http.StatusBadRequest, models.ConversationResponse{Error: "enabled is required"})
		}

		ctx := c.Request().Context()
		if err := conversations.SetConversationAutoReply(ctx, id, *req.Enabled); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, database.ErrNotFound) {
				status = http.StatusNotFound
			}
			return c.JSON(status, models.ConversationResponse{Error: err.Error()})
		}

		conv, err := conversations.GetConversation(ctx, id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ConversationResponse{Error: err.Error()})
		}

		logger.Info().Str("conversation_id", id).Bool("auto_reply_enabled", *req.Enabled).Msg("Conversation auto-reply updated")
		return c.JSON(http.StatusOK, models.ConversationResponse{Conversation: conv})
	}
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"supportwatch/internal/autoreply"
	"supportwatch/internal/models"
)

// InboundMessageHandler accepts a normalized chat event, stores it and runs
// the auto-reply gate before acknowledging.
// @Summary Receive an inbound chat message
// @Description Stores the message, classifies it and sends an automatic reply when the knowledge base has a confident answer
// @Tags webhooks
// @Accept json
// @Produce json
// @Param event body models.InboundEvent true "Normalized inbound event"
// @Success 202 {object} autoreply.Outcome
// @Failure 400 {object} models.WebhookAck
// @Failure 500 {object} models.WebhookAck
// @Router /api/webhooks/messages [post]
func InboundMessageHandler(gate MessageHandler, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "webhook").Logger()

	return func(c echo.Context) error {
		var event models.InboundEvent
		if err := c.Bind(&event); err != nil {
			return c.JSON(http.StatusBadRequest, models.WebhookAck{Error: "Invalid request body"})
		}

		outcome, err := gate.HandleInboundMessage(c.Request().Context(), event)
		if err != nil {
			if errors.Is(err, autoreply.ErrInvalidEvent) {
				return c.JSON(http.StatusBadRequest, models.WebhookAck{Error: err.Error()})
			}
			logger.Error().Err(err).Str("conversation_id", event.ConversationID).Msg("Failed to handle inbound message")
			return c.JSON(http.StatusInternalServerError, models.WebhookAck{Error: "Failed to process message"})
		}

		return c.JSON(http.StatusAccepted, outcome)
	}
}

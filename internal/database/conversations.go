package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"supportwatch/internal/models"
)

const messageColumns = `id, conversation_id, external_id, external_party_id, is_staff, content, created_at`

// ConversationInput describes a conversation seen on an inbound event
type ConversationInput struct {
	ID               string
	Channel          string
	ContactAddress   *string
	CustomerID       *int64
	AutoReplyEnabled bool // used only when the conversation is new
}

// EnsureConversation creates the conversation on first sight. Existing rows
// keep their auto-reply setting; a contact address or customer is filled in
// when newly known.
func (s *Store) EnsureConversation(ctx context.Context, in ConversationInput) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (id, channel, customer_id, contact_address, auto_reply_enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			contact_address = COALESCE(EXCLUDED.contact_address, conversations.contact_address),
			customer_id = COALESCE(conversations.customer_id, EXCLUDED.customer_id)
		RETURNING id, channel, customer_id, contact_address, auto_reply_enabled, created_at
	`
	var conv models.Conversation
	err := s.db.GetContext(ctx, &conv, query, in.ID, in.Channel, in.CustomerID, in.ContactAddress, in.AutoReplyEnabled)
	if err != nil {
		return nil, mapErr(err, "failed to ensure conversation %s", in.ID)
	}
	return &conv, nil
}

// GetConversation returns one conversation
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.GetContext(ctx, &conv, `
		SELECT id, channel, customer_id, contact_address, auto_reply_enabled, created_at
		FROM conversations WHERE id = $1
	`, id)
	if err != nil {
		return nil, mapErr(err, "failed to get conversation %s", id)
	}
	return &conv, nil
}

// SetConversationAutoReply enables or disables auto-reply for one conversation
func (s *Store) SetConversationAutoReply(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET auto_reply_enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return mapErr(err, "failed to update conversation %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapErr(ErrNotFound, "conversation %s", id)
	}
	return nil
}

// InsertMessage stores a message once per (conversation, external id). When
// the message already exists the stored row is loaded into msg and inserted
// is false.
func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) (inserted bool, err error) {
	query := `
		INSERT INTO messages (conversation_id, external_id, external_party_id, is_staff, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id, external_id) DO NOTHING
		RETURNING id
	`
	err = s.db.GetContext(ctx, &msg.ID, query,
		msg.ConversationID, msg.ExternalID, msg.ExternalPartyID, msg.IsStaff, msg.Content, msg.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) || msg.ExternalID == nil {
		return false, mapErr(err, "failed to insert message")
	}

	// conflict: the channel redelivered a message we already have
	existing, err := s.GetMessageByExternalID(ctx, msg.ConversationID, *msg.ExternalID)
	if err != nil {
		return false, err
	}
	*msg = *existing
	return false, nil
}

// GetMessage returns one message
func (s *Store) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	var msg models.Message
	err := s.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr(err, "failed to get message %d", id)
	}
	return &msg, nil
}

// GetMessageByExternalID looks up a message by its channel-native id
func (s *Store) GetMessageByExternalID(ctx context.Context, conversationID, externalID string) (*models.Message, error) {
	var msg models.Message
	err := s.db.GetContext(ctx, &msg, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND external_id = $2
	`, conversationID, externalID)
	if err != nil {
		return nil, mapErr(err, "failed to get message %s/%s", conversationID, externalID)
	}
	return &msg, nil
}

// ListExternalMessages returns external-party messages created at or after
// since, oldest first, optionally restricted to one conversation.
func (s *Store) ListExternalMessages(ctx context.Context, since time.Time, conversationID *string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.SelectContext(ctx, &messages, `
		SELECT `+messageColumns+` FROM messages
		WHERE is_staff = FALSE
			AND created_at >= $1
			AND ($2::text IS NULL OR conversation_id = $2)
		ORDER BY created_at, id
	`, since, conversationID)
	if err != nil {
		return nil, mapErr(err, "failed to list external messages")
	}
	return messages, nil
}

// ListStaffRepliesAfter returns up to limit staff messages that follow the
// given message in its conversation, oldest first. Messages already recorded
// as another issue's reply are excluded.
func (s *Store) ListStaffRepliesAfter(ctx context.Context, trigger models.Message, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.SelectContext(ctx, &messages, `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.conversation_id = $1
			AND m.is_staff = TRUE
			AND (m.created_at > $2 OR (m.created_at = $2 AND m.id > $3))
			AND NOT EXISTS (SELECT 1 FROM issues i WHERE i.reply_message_id = m.id)
		ORDER BY m.created_at, m.id
		LIMIT $4
	`, trigger.ConversationID, trigger.CreatedAt, trigger.ID, limit)
	if err != nil {
		return nil, mapErr(err, "failed to list staff replies for message %d", trigger.ID)
	}
	return messages, nil
}

// RecentExternalTexts returns the party's most recent non-empty messages,
// at most limit, ordered oldest first.
func (s *Store) RecentExternalTexts(ctx context.Context, externalPartyID string, limit int) ([]string, error) {
	var texts []string
	err := s.db.SelectContext(ctx, &texts, `
		SELECT content FROM messages
		WHERE external_party_id = $1
			AND is_staff = FALSE
			AND content IS NOT NULL
			AND btrim(content) <> ''
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, externalPartyID, limit)
	if err != nil {
		return nil, mapErr(err, "failed to list recent messages for %s", externalPartyID)
	}

	for i, j := 0, len(texts)-1; i < j; i, j = i+1, j-1 {
		texts[i], texts[j] = texts[j], texts[i]
	}
	return texts, nil
}

// EnsureCustomer returns the customer id for an external party, creating it on first sight
func (s *Store) EnsureCustomer(ctx context.Context, externalID string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO customers (external_id) VALUES ($1)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING id
	`, externalID)
	if err != nil {
		return 0, mapErr(err, "failed to ensure customer %s", externalID)
	}
	return id, nil
}

// GetCustomer returns a customer by external party id
func (s *Store) GetCustomer(ctx context.Context, externalID string) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer, `
		SELECT id, external_id, sentiment, updated_at FROM customers WHERE external_id = $1
	`, externalID)
	if err != nil {
		return nil, mapErr(err, "failed to get customer %s", externalID)
	}
	return &customer, nil
}

// ReplaceCustomerSentiment overwrites the customer's sentiment
func (s *Store) ReplaceCustomerSentiment(ctx context.Context, externalID, sentiment string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (external_id, sentiment, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (external_id) DO UPDATE SET
			sentiment = EXCLUDED.sentiment,
			updated_at = NOW()
	`, externalID, sentiment)
	if err != nil {
		return mapErr(err, "failed to update sentiment for %s", externalID)
	}
	return nil
}

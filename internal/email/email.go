package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"supportwatch/internal/models"
)

// ErrNoRecipient is returned when a conversation has no contact address
var ErrNoRecipient = errors.New("conversation has no contact address")

// mailClient is the part of the SendGrid client the service uses
type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Service sends auto replies and escalation mails via SendGrid
type Service struct {
	client       mailClient
	supportEmail string
	fromEmail    string
	fromName     string
	now          func() time.Time
}

// NewService creates a SendGrid-backed email service
func NewService(apiKey, supportEmail, fromEmail string) (*Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("SendGrid API key not configured")
	}
	if fromEmail == "" {
		fromEmail = supportEmail
	}
	if fromEmail == "" {
		return nil, fmt.Errorf("REPLY_FROM_EMAIL or SUPPORT_EMAIL must be set")
	}
	return &Service{
		client:       sendgrid.NewSendClient(apiKey),
		supportEmail: supportEmail,
		fromEmail:    fromEmail,
		fromName:     "Support",
		now:          time.Now,
	}, nil
}

// Send mails text to the conversation's contact address and returns the
// SendGrid message id.
func (s *Service) Send(ctx context.Context, conv *models.Conversation, text string) (string, error) {
	if conv == nil || conv.ContactAddress == nil || strings.TrimSpace(*conv.ContactAddress) == "" {
		return "", ErrNoRecipient
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("", strings.TrimSpace(*conv.ContactAddress))
	message := mail.NewSingleEmail(from, "Re: your support request", to, text, toHTML(text))

	response, err := s.send(ctx, message)
	if err != nil {
		return "", err
	}
	return messageID(response), nil
}

// NotifyTimeouts sends one summary mail to support listing issues that ran
// out of time without a reply.
func (s *Service) NotifyTimeouts(ctx context.Context, issues []models.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	if s.supportEmail == "" {
		return fmt.Errorf("SUPPORT_EMAIL not configured")
	}

	from := mail.NewEmail("SupportWatch", s.fromEmail)
	to := mail.NewEmail("Support Team", s.supportEmail)
	subject := fmt.Sprintf("%d customer question(s) timed out without a reply", len(issues))
	body := timeoutBody(issues, s.now())

	_, err := s.send(ctx, mail.NewSingleEmail(from, subject, to, body, toHTML(body)))
	return err
}

func (s *Service) send(ctx context.Context, message *mail.SGMailV3) (*rest.Response, error) {
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return nil, fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return response, nil
}

func timeoutBody(issues []models.Issue, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following customer questions received no reply before their deadline.\n\nGenerated: %s\n\n", now.UTC().Format(time.RFC3339))
	for _, issue := range issues {
		fmt.Fprintf(&b, "Issue #%d (conversation %s)\n", issue.ID, issue.ConversationID)
		fmt.Fprintf(&b, "  Question: %s\n", issue.QuestionSummary)
		fmt.Fprintf(&b, "  Sentiment: %s\n", issue.Sentiment)
		fmt.Fprintf(&b, "  Deadline: %s\n\n", issue.TimeoutAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func toHTML(text string) string {
	return "<p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p>"
}

func messageID(response *rest.Response) string {
	if response == nil {
		return ""
	}
	for key, values := range response.Headers {
		if strings.EqualFold(key, "X-Message-Id") && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

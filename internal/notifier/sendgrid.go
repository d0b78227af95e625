package notifier

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var ErrEmailNotConfigured = errors.New("notifier: sendgrid is not configured")

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	ToEmail   string
	ToName    string
}

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid emails each notification to one fixed recipient.
type SendGrid struct {
	client mailClient
	from   *mail.Email
	to     *mail.Email
}

func NewSendGrid(cfg SendGridConfig) (*SendGrid, error) {
	if cfg.APIKey == "" || cfg.FromEmail == "" || cfg.ToEmail == "" {
		return nil, ErrEmailNotConfigured
	}
	return newSendGrid(sendgrid.NewSendClient(cfg.APIKey), cfg), nil
}

func newSendGrid(client mailClient, cfg SendGridConfig) *SendGrid {
	return &SendGrid{
		client: client,
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		to:     mail.NewEmail(cfg.ToName, cfg.ToEmail),
	}
}

func (s *SendGrid) Send(ctx context.Context, n Notification) error {
	subject := "Reminder: " + n.Title
	if n.PreReminder {
		subject = n.Title
	}
	plain := fmt.Sprintf("%s\n\n%s", n.Title, n.Body)
	htmlContent := fmt.Sprintf("<p><strong>%s</strong></p><p>%s</p>", html.EscapeString(n.Title), html.EscapeString(n.Body))

	message := mail.NewSingleEmail(s.from, subject, s.to, plain, htmlContent)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notifier: sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notifier: sendgrid: status %d", resp.StatusCode)
	}
	return nil
}

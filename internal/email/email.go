package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"edumod/internal/config"
	"edumod/internal/events"
	"edumod/internal/models"
)

// Service sends escalation alerts to the oversight mailbox
type Service struct {
	config *config.EmailConfig
	dialer *net.Dialer
}

// NewService creates a new email service
func NewService(cfg *config.EmailConfig) *Service {
	return &Service{
		config: cfg,
		dialer: &net.Dialer{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a server and recipients are configured
func (s *Service) Enabled() bool {
	return s.config.SMTPHost != "" && len(s.config.EscalationRecipients) > 0
}

var escalationTemplate = template.Must(template.New("escalation").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Escalation</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: {{if .Urgent}}#c0392b{{else}}#4a90e2{{end}};">{{if .Urgent}}Urgent escalation{{else}}Escalation{{end}}</h2>
        <p>An item needs professional oversight.</p>
        <table style="border-collapse: collapse;">
            <tr><td style="padding: 4px 12px 4px 0;"><strong>Item</strong></td><td>{{.ItemID}}</td></tr>
            <tr><td style="padding: 4px 12px 4px 0;"><strong>Reason</strong></td><td>{{.Reason}}</td></tr>
            <tr><td style="padding: 4px 12px 4px 0;"><strong>Risk</strong></td><td>{{printf "%.2f" .RiskScore}}</td></tr>
            <tr><td style="padding: 4px 12px 4px 0;"><strong>Priority</strong></td><td>{{.Priority}}</td></tr>
            <tr><td style="padding: 4px 12px 4px 0;"><strong>Raised</strong></td><td>{{.RaisedAt}}</td></tr>
        </table>
        {{if .Link}}<div style="text-align: center; margin: 30px 0;">
            <a href="{{.Link}}" style="background-color: #4a90e2; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Open item</a>
        </div>{{end}}
        <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">This is an automated email. Please do not reply.</p>
    </div>
</body>
</html>
`))

type escalationView struct {
	ItemID    string
	Reason    string
	RiskScore float64
	Priority  int
	Urgent    bool
	RaisedAt  string
	Link      string
}

// Publish mails EscalationRaised events; other events are ignored
func (s *Service) Publish(ctx context.Context, event events.Event) error {
	if event.Type != events.EscalationRaised {
		return nil
	}
	payload, ok := event.Payload.(events.EscalationPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	subject, body, err := s.renderEscalation(event, payload)
	if err != nil {
		return err
	}
	return s.sendEmail(ctx, s.config.EscalationRecipients, subject, body)
}

func (s *Service) renderEscalation(event events.Event, payload events.EscalationPayload) (string, string, error) {
	view := escalationView{
		ItemID:    event.ItemID.String(),
		Reason:    payload.Reason,
		RiskScore: payload.RiskScore,
		Priority:  payload.Priority,
		Urgent:    payload.Urgency == models.UrgencyUrgent,
		RaisedAt:  event.Timestamp.UTC().Format(time.RFC1123),
	}
	if s.config.ConsoleURL != "" {
		view.Link = strings.TrimRight(s.config.ConsoleURL, "/") + "/" + view.ItemID
	}

	var body bytes.Buffer
	if err := escalationTemplate.Execute(&body, view); err != nil {
		return "", "", fmt.Errorf("failed to render escalation email: %w", err)
	}

	reason := strings.NewReplacer("\r", " ", "\n", " ").Replace(payload.Reason)
	subject := fmt.Sprintf("Escalation: %s (risk %.2f)", reason, payload.RiskScore)
	if view.Urgent {
		subject = "[URGENT] " + subject
	}
	return subject, body.String(), nil
}

// sendEmail sends an email using SMTP
func (s *Service) sendEmail(ctx context.Context, to []string, subject, body string) error {
	// Create the email message
	headers := [][2]string{
		{"From", s.config.SMTPFrom},
		{"To", strings.Join(to, ", ")},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	// Build the message
	var message bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&message, "%s: %s\r\n", h[0], h[1])
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	// Connect to SMTP server
	addr := net.JoinHostPort(s.config.SMTPHost, s.config.SMTPPort)
	slog.Debug("Attempting to connect to SMTP server", "address", addr)

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func(conn net.Conn) {
		if err := conn.Close(); err != nil {
			slog.Debug("Failed to close SMTP connection", "error", err)
		}
	}(conn)
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Create SMTP client
	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func(client *smtp.Client) {
		_ = client.Close()
	}(client)

	// Authenticate only if credentials are provided
	// For development (e.g., Mailpit), no authentication is needed
	if s.config.SMTPUsername != "" && s.config.SMTPPassword != "" {
		auth := smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(s.config.SMTPFrom); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	if _, err := wc.Write(message.Bytes()); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := closeData(wc); err != nil {
		return err
	}
	if err := client.Quit(); err != nil {
		slog.Debug("SMTP quit failed", "error", err)
	}

	slog.Info("Escalation email sent", "recipients", len(to), "subject", subject)
	return nil
}

func closeData(wc io.WriteCloser) error {
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return nil
}

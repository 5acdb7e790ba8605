package email

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"edumod/internal/config"
	"edumod/internal/events"
	"edumod/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSMTP accepts one session and records the envelope and message
type fakeSMTP struct {
	listener net.Listener
	wg       sync.WaitGroup

	mu      sync.Mutex
	rcpts   []string
	message string
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{listener: l}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		_ = l.Close()
		s.wg.Wait()
	})
	return s
}

func (s *fakeSMTP) serve() {
	defer s.wg.Done()
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	reply("220 localhost ready")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.mu.Lock()
			s.rcpts = append(s.rcpts, strings.Trim(strings.TrimSpace(line)[len("RCPT TO:"):], "<>"))
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 end with .")
			var msg strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				msg.WriteString(l)
			}
			s.mu.Lock()
			s.message = msg.String()
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (s *fakeSMTP) port() string {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	return port
}

func escalation(urgency models.Urgency) events.Event {
	item := &models.ModerationItem{
		ID:        uuid.New(),
		RiskScore: 0.91,
		Priority:  10,
		Status:    models.StatusEscalated,
		UpdatedAt: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
		Escalation: &models.Escalation{
			Reason:      models.ReasonAutoRejected,
			Urgency:     urgency,
			EscalatedBy: models.SystemActor,
			EscalatedAt: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
			Count:       1,
		},
	}
	return events.NewEscalationRaised(item)
}

func TestPublishSendsEscalationMail(t *testing.T) {
	server := startFakeSMTP(t)
	svc := NewService(&config.EmailConfig{
		SMTPHost:             "127.0.0.1",
		SMTPPort:             server.port(),
		SMTPFrom:             "moderation@example.com",
		EscalationRecipients: []string{"oversight@example.com", "lead@example.com"},
		ConsoleURL:           "https://console.example.com/items/",
	})
	require.True(t, svc.Enabled())

	event := escalation(models.UrgencyUrgent)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Publish(ctx, event))

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, []string{"oversight@example.com", "lead@example.com"}, server.rcpts)
	assert.Contains(t, server.message, "Subject: [URGENT] Escalation: auto_rejected (risk 0.91)")
	assert.Contains(t, server.message, "https://console.example.com/items/"+event.ItemID.String())
	assert.Contains(t, server.message, "Urgent escalation")
}

func TestPublishIgnoresOtherEvents(t *testing.T) {
	// no server: any dial attempt would fail
	svc := NewService(&config.EmailConfig{SMTPHost: "127.0.0.1", SMTPPort: "1", EscalationRecipients: []string{"x@example.com"}})
	err := svc.Publish(context.Background(), events.Event{Type: events.QueueItemCreated})
	assert.NoError(t, err)
}

func TestRenderEscalationEscapesReason(t *testing.T) {
	svc := NewService(&config.EmailConfig{})
	assert.False(t, svc.Enabled())

	event := escalation(models.UrgencyNormal)
	payload := event.Payload.(events.EscalationPayload)
	payload.Reason = "<script>alert(1)</script>"

	subject, body, err := svc.renderEscalation(event, payload)
	require.NoError(t, err)
	assert.NotContains(t, subject, "[URGENT]")
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, "Open item")
}

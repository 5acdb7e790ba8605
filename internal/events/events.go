package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"edumod/internal/models"
	"edumod/internal/workflow"

	"github.com/google/uuid"
)

// Type names an outbound event
type Type string

const (
	QueueItemCreated         Type = "queue_item_created"
	EscalationRaised         Type = "escalation_raised"
	ModerationActionRecorded Type = "moderation_action_recorded"
)

// Event is one outbound notification. Payload is one of the *Payload types.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	ItemID    uuid.UUID `json:"item_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// QueueItemPayload describes a newly queued item
type QueueItemPayload struct {
	Status       models.Status `json:"status"`
	RiskScore    float64       `json:"risk_score"`
	Priority     int           `json:"priority"`
	WorkflowType workflow.Type `json:"workflow_type"`
	Flags        []string      `json:"flags"`
	AuditSample  bool          `json:"audit_sample"`
}

// EscalationPayload is delivered to oversight
type EscalationPayload struct {
	Reason    string         `json:"reason"`
	Urgency   models.Urgency `json:"urgency"`
	Priority  int            `json:"priority"`
	RiskScore float64        `json:"risk_score"`
	Status    models.Status  `json:"status"`
}

// NewQueueItemCreated builds the event for a newly queued item
func NewQueueItemCreated(item *models.ModerationItem) Event {
	return Event{
		ID:        uuid.New(),
		Type:      QueueItemCreated,
		ItemID:    item.ID,
		Timestamp: item.CreatedAt,
		Payload: QueueItemPayload{
			Status:       item.Status,
			RiskScore:    item.RiskScore,
			Priority:     item.Priority,
			WorkflowType: item.WorkflowType,
			Flags:        append([]string(nil), item.Flags...),
			AuditSample:  item.AuditSample,
		},
	}
}

// NewEscalationRaised builds the event for an item's latest escalation
func NewEscalationRaised(item *models.ModerationItem) Event {
	e := Event{
		ID:        uuid.New(),
		Type:      EscalationRaised,
		ItemID:    item.ID,
		Timestamp: item.UpdatedAt,
	}
	payload := EscalationPayload{
		Priority:  item.Priority,
		RiskScore: item.RiskScore,
		Status:    item.Status,
	}
	if item.Escalation != nil {
		payload.Reason = item.Escalation.Reason
		payload.Urgency = item.Escalation.Urgency
		e.Timestamp = item.Escalation.EscalatedAt
	}
	e.Payload = payload
	return e
}

// NewActionRecorded builds the event for one audit append
func NewActionRecorded(action models.ModerationAction) Event {
	return Event{
		ID:        uuid.New(),
		Type:      ModerationActionRecorded,
		ItemID:    action.ItemID,
		Timestamp: action.Timestamp,
		Payload:   action,
	}
}

// Publisher delivers events to an external collaborator
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event Event) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// LogPublisher writes events to the structured log
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a log publisher; a nil logger uses slog.Default
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "Event published",
		"event_id", event.ID,
		"event_type", event.Type,
		"item_id", event.ItemID,
	)
	return nil
}

// Multi fans an event out to several publishers. Every publisher is tried;
// failures are joined.
type Multi []Publisher

// Publish delivers to each publisher in order
func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filter forwards only the listed event types
func Filter(next Publisher, types ...Type) Publisher {
	allowed := make(map[Type]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return PublisherFunc(func(ctx context.Context, event Event) error {
		if !allowed[event.Type] {
			return nil
		}
		return next.Publish(ctx, event)
	})
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records the event
func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns everything recorded so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of one type
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrQueueFull is returned when the async dispatcher cannot accept more events
var ErrQueueFull = errors.New("event queue is full")

// WebhookPublisher POSTs events as JSON to an oversight endpoint
type WebhookPublisher struct {
	url    string
	client *http.Client
}

// NewWebhookPublisher creates a webhook publisher
func NewWebhookPublisher(url string, timeout time.Duration) *WebhookPublisher {
	return &WebhookPublisher{url: url, client: &http.Client{Timeout: timeout}}
}

// Publish sends the event; non-2xx answers are errors, 4xx ones permanent
func (p *WebhookPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to encode event: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("webhook rejected event with status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook answered with status %d", resp.StatusCode)
	}
}

// ResilientConfig tunes retries and the circuit breaker
type ResilientConfig struct {
	Name            string
	MaxFailures     uint32
	OpenTimeout     time.Duration
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
}

// ResilientPublisher retries deliveries with exponential backoff behind a
// circuit breaker. While the breaker is open, deliveries fail immediately.
type ResilientPublisher struct {
	next    Publisher
	breaker *gobreaker.CircuitBreaker
	cfg     ResilientConfig
	logger  *slog.Logger
}

// NewResilientPublisher wraps next with retry and breaker
func NewResilientPublisher(next Publisher, cfg ResilientConfig, logger *slog.Logger) *ResilientPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "event-delivery"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = 10 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			var permanent *backoff.PermanentError
			return err == nil || errors.As(err, &permanent)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &ResilientPublisher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		cfg:     cfg,
		logger:  logger,
	}
}

// State reports the breaker state
func (p *ResilientPublisher) State() gobreaker.State {
	return p.breaker.State()
}

// Publish delivers the event, retrying transient failures
func (p *ResilientPublisher) Publish(ctx context.Context, event Event) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialInterval
	bo.MaxElapsedTime = p.cfg.MaxElapsedTime

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, p.next.Publish(ctx, event)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if err != nil {
			p.logger.Warn("Event delivery failed",
				"error", err, "event_type", event.Type, "item_id", event.ItemID, "attempt", attempt)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

// AsyncPublisher hands events to a background worker so callers never
// wait on slow delivery. Events are delivered in publish order.
type AsyncPublisher struct {
	next   Publisher
	queue  chan Event
	logger *slog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewAsyncPublisher creates a dispatcher with a bounded queue
func NewAsyncPublisher(next Publisher, size int, logger *slog.Logger) *AsyncPublisher {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncPublisher{
		next:   next,
		queue:  make(chan Event, size),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start runs the delivery worker until Stop
func (p *AsyncPublisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	go func() {
		defer close(p.done)
		for event := range p.queue {
			if err := p.next.Publish(ctx, event); err != nil {
				p.logger.Error("Dropping undeliverable event",
					"error", err, "event_type", event.Type, "item_id", event.ItemID)
			}
		}
	}()
}

// Publish enqueues the event without blocking
func (p *AsyncPublisher) Publish(_ context.Context, event Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return fmt.Errorf("publisher stopped: %w", ErrQueueFull)
	}
	select {
	case p.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains queued events, waiting at most until ctx is done
func (p *AsyncPublisher) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()
	if !started {
		return
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		<-p.done
	}
	if p.cancel != nil {
		p.cancel()
	}
}

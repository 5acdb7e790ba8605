package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"edumod/internal/models"
	"edumod/internal/workflow"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testItem() *models.ModerationItem {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &models.ModerationItem{
		ID:           uuid.New(),
		RiskScore:    0.85,
		Priority:     12,
		Status:       models.StatusPending,
		WorkflowType: workflow.Express,
		Flags:        []string{"privacy_phone_uk"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestEventConstructors(t *testing.T) {
	item := testItem()

	created := NewQueueItemCreated(item)
	assert.Equal(t, QueueItemCreated, created.Type)
	assert.Equal(t, item.ID, created.ItemID)
	payload, ok := created.Payload.(QueueItemPayload)
	require.True(t, ok)
	assert.Equal(t, workflow.Express, payload.WorkflowType)
	item.Flags[0] = "mutated"
	assert.Equal(t, "privacy_phone_uk", payload.Flags[0])

	escalatedAt := item.CreatedAt.Add(5 * time.Hour)
	item.Status = models.StatusEscalated
	item.Escalation = &models.Escalation{
		Reason:      models.ReasonTimeoutExceeded,
		Urgency:     models.UrgencyUrgent,
		EscalatedAt: escalatedAt,
		Count:       1,
	}
	raised := NewEscalationRaised(item)
	assert.Equal(t, escalatedAt, raised.Timestamp)
	esc, ok := raised.Payload.(EscalationPayload)
	require.True(t, ok)
	assert.Equal(t, models.ReasonTimeoutExceeded, esc.Reason)
	assert.Equal(t, models.UrgencyUrgent, esc.Urgency)

	action := models.NewAction(item, "mod-1", models.ActionEscalate, models.StatusInReview, escalatedAt)
	recorded := NewActionRecorded(action)
	assert.Equal(t, ModerationActionRecorded, recorded.Type)
	assert.Equal(t, item.ID, recorded.ItemID)
}

func TestMultiAndFilter(t *testing.T) {
	var rec Recorder
	failing := PublisherFunc(func(context.Context, Event) error { return errors.New("down") })

	m := Multi{failing, nil, Filter(&rec, EscalationRaised)}
	item := testItem()

	err := m.Publish(context.Background(), NewQueueItemCreated(item))
	assert.Error(t, err)
	assert.Empty(t, rec.Events())

	err = m.Publish(context.Background(), NewEscalationRaised(item))
	assert.Error(t, err)
	assert.Len(t, rec.OfType(EscalationRaised), 1)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestResilientPublisherRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewResilientPublisher(NewWebhookPublisher(srv.URL, time.Second), ResilientConfig{
		MaxFailures:     5,
		InitialInterval: time.Millisecond,
		MaxElapsedTime:  2 * time.Second,
	}, quietLogger())

	require.NoError(t, p.Publish(context.Background(), NewEscalationRaised(testItem())))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestResilientPublisherDoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewResilientPublisher(NewWebhookPublisher(srv.URL, time.Second), ResilientConfig{
		MaxFailures:     1,
		InitialInterval: time.Millisecond,
		MaxElapsedTime:  time.Second,
	}, quietLogger())

	err := p.Publish(context.Background(), NewEscalationRaised(testItem()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestResilientPublisherOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewResilientPublisher(NewWebhookPublisher(srv.URL, time.Second), ResilientConfig{
		MaxFailures:     2,
		OpenTimeout:     time.Minute,
		InitialInterval: time.Millisecond,
		MaxElapsedTime:  2 * time.Second,
	}, quietLogger())

	err := p.Publish(context.Background(), NewEscalationRaised(testItem()))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, p.State())
	assert.Equal(t, int32(2), calls.Load())

	// open breaker fails fast without touching the endpoint
	err = p.Publish(context.Background(), NewEscalationRaised(testItem()))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAsyncPublisher(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var rec Recorder
	p := NewAsyncPublisher(&rec, 8, quietLogger())
	p.Start(context.Background())

	items := []*models.ModerationItem{testItem(), testItem(), testItem()}
	for _, item := range items {
		require.NoError(t, p.Publish(context.Background(), NewQueueItemCreated(item)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Stop(ctx)

	got := rec.Events()
	require.Len(t, got, 3)
	for i, item := range items {
		assert.Equal(t, item.ID, got[i].ItemID)
	}
	assert.ErrorIs(t, p.Publish(context.Background(), NewQueueItemCreated(testItem())), ErrQueueFull)
}

func TestAsyncPublisherQueueFull(t *testing.T) {
	var rec Recorder
	p := NewAsyncPublisher(&rec, 1, quietLogger())

	require.NoError(t, p.Publish(context.Background(), NewQueueItemCreated(testItem())))
	assert.ErrorIs(t, p.Publish(context.Background(), NewQueueItemCreated(testItem())), ErrQueueFull)

	// never started; must not block
	p.Stop(context.Background())
	assert.Empty(t, rec.Events())
}

func TestHubBroadcast(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub(4, quietLogger(), WithPingInterval(time.Second))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "oversight-1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	item := testItem()
	require.NoError(t, hub.Publish(context.Background(), NewEscalationRaised(item)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EscalationRaised, got.Type)
	assert.Equal(t, item.ID, got.ItemID)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(4, quietLogger(), WithAllowedOrigins([]string{"https://oversight.example"}))
	defer hub.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "intruder")
	}))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Clients())
}

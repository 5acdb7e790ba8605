package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edumod/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestObservations(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveSubmission("approve", time.Millisecond)
	m.ObserveSubmission("approve", time.Millisecond)
	m.ObserveTransition(models.ActionClaim, models.StatusInReview)
	m.ObserveConflict("claim")
	m.ObserveEscalation(models.ReasonTimeoutExceeded, models.UrgencyUrgent)
	m.ObserveSweep(time.Second, 3, 1, nil)
	m.ObserveSweep(time.Second, 0, 0, errors.New("store down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("claim", "in_review")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsTotal.WithLabelValues("claim")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EscalationsTotal.WithLabelValues("timeout_exceeded", "urgent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRunsTotal.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRunsTotal.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepEscalatedTotal))
}

func TestSetQueueStats(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SetQueueStats(&models.QueueStats{
		ByStatus:       map[models.Status]int{models.StatusPending: 4, models.StatusPendingOversight: 2},
		Overdue:        1,
		OpenEscalation: 2,
	})
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueItems.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueOverdue))

	m.SetQueueStats(&models.QueueStats{ByStatus: map[models.Status]int{models.StatusInReview: 1}})
	assert.Equal(t, 0, testutil.CollectAndCount(m.QueueItems)-1)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSubmission("reject", time.Millisecond)
		m.ObserveTransition(models.ActionApprove, models.StatusApproved)
		m.ObserveConflict("approve")
		m.ObserveEscalation("manual", models.UrgencyNormal)
		m.ObserveSweep(time.Second, 1, 0, nil)
		m.SetQueueStats(&models.QueueStats{})
	})
}

func TestHandler(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	m.ObserveConflict("claim")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "moderation_queue_conflicts_total")
}

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"edumod/internal/config"
	"edumod/internal/models"
	"edumod/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeQueue struct {
	sweeps  atomic.Int32
	stats   atomic.Int32
	lastNow atomic.Value
	fail    bool
}

func (q *fakeQueue) TimeoutSweep(_ context.Context, now time.Time) (service.SweepResult, error) {
	q.sweeps.Add(1)
	q.lastNow.Store(now)
	if q.fail {
		return service.SweepResult{}, errors.New("storage down")
	}
	return service.SweepResult{Scanned: 1, Escalated: 1}, nil
}

func (q *fakeQueue) Stats(context.Context) (*models.QueueStats, error) {
	q.stats.Add(1)
	return &models.QueueStats{}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	_, err := NewScheduler(&fakeQueue{}, &config.SchedulerConfig{SweepCron: "every minute"}, quietLogger())
	assert.Error(t, err)

	_, err = NewScheduler(&fakeQueue{}, &config.SchedulerConfig{SweepCron: "@every 1m", StatsCron: "61 * * * *"}, quietLogger())
	assert.Error(t, err)
}

func TestSchedulerRunsSweepAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &fakeQueue{}
	s, err := NewScheduler(q, &config.SchedulerConfig{SweepCron: "@every 1s", StatsCron: "@every 1s"}, quietLogger())
	require.NoError(t, err)

	s.Start()
	s.Start()
	require.Eventually(t, func() bool {
		return q.sweeps.Load() >= 1 && q.stats.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	ran := q.sweeps.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, ran, q.sweeps.Load())
}

func TestRunOnceUsesClockAndSurvivesErrors(t *testing.T) {
	q := &fakeQueue{fail: true}
	s, err := NewScheduler(q, &config.SchedulerConfig{SweepCron: "@every 1m"}, quietLogger())
	require.NoError(t, err)
	at := time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	s.RunOnce()
	assert.Equal(t, int32(1), q.sweeps.Load())
	assert.Equal(t, at, q.lastNow.Load())

	require.NoError(t, s.Stop(context.Background()))
	s.RunOnce()
	assert.Equal(t, int32(1), q.sweeps.Load())
}

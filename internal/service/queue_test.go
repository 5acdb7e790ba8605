package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"edumod/internal/apperrors"
	"edumod/internal/events"
	"edumod/internal/models"
	"edumod/internal/patterns"
	"edumod/internal/repository"
	"edumod/internal/roles"
	"edumod/internal/workflow"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSealer stands in for Vault
type fakeSealer struct{}

func (fakeSealer) Seal(_ context.Context, plaintext string) (string, error) {
	return "sealed:" + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (fakeSealer) Open(_ context.Context, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, "sealed:"))
	return string(raw), err
}

type fixture struct {
	store     *repository.MemoryStore
	queue     *QueueService
	mods      *ModeratorService
	recorder  *events.Recorder
	clock     *fakeClock
	workflows *workflow.Definitions
}

func newFixture(t *testing.T, opts ...QueueOption) *fixture {
	t.Helper()
	f := &fixture{
		store:     repository.NewMemoryStore(),
		recorder:  &events.Recorder{},
		clock:     &fakeClock{now: t0},
		workflows: workflow.Default(),
	}
	registry := roles.DefaultRegistry()
	base := []QueueOption{
		WithPublisher(f.recorder),
		WithClock(f.clock.Now),
		WithSealer(fakeSealer{}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.queue = NewQueueService(f.store, registry, f.workflows, append(base, opts...)...)
	f.mods = NewModeratorService(f.store, registry)

	for id, tier := range map[string]roles.Tier{
		"junior-1": roles.Junior,
		"junior-2": roles.Junior,
		"senior-1": roles.Senior,
		"senior-2": roles.Senior,
		"pro-1":    roles.Professional,
	} {
		_, err := f.mods.Register(context.Background(), id, id, tier)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) seed(t *testing.T, risk float64, wf workflow.Type, priority int) *models.ModerationItem {
	t.Helper()
	now := f.clock.Now()
	item := &models.ModerationItem{
		ID:           uuid.New(),
		ContentID:    uuid.NewString(),
		ContentType:  "post",
		Body:         "seeded body",
		RiskScore:    risk,
		Priority:     priority,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		WorkflowType: wf,
	}
	require.NoError(t, f.store.CreateItem(context.Background(), item))
	return item
}

func (f *fixture) claimed(t *testing.T, risk float64, wf workflow.Type, moderatorID string) *models.ModerationItem {
	t.Helper()
	item := f.seed(t, risk, wf, 5)
	claimed, err := f.queue.Claim(context.Background(), item.ID, moderatorID)
	require.NoError(t, err)
	return claimed
}

func TestConcurrentClaimExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.seed(t, 0.5, workflow.Standard, 5)

	const n = 16
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("racer-%02d", i)
		_, err := f.mods.Register(ctx, ids[i], ids[i], roles.Senior)
		require.NoError(t, err)
	}

	results := make([]error, n)
	var g errgroup.Group
	for i := range ids {
		g.Go(func() error {
			_, results[i] = f.queue.Claim(ctx, item.ID, ids[i])
			return nil
		})
	}
	require.NoError(t, g.Wait())

	winners, assigned := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, apperrors.ErrAlreadyAssigned):
			assigned++
		default:
			t.Errorf("unexpected claim error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, assigned)

	stored, err := f.store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, stored.Status)
	require.True(t, stored.IsAssigned())

	history, err := f.queue.History(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, *stored.AssignedTo, history[0].ModeratorID)
}

func TestClaimRespectsRiskCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.seed(t, 0.75, workflow.Standard, 5)

	_, err := f.queue.Claim(ctx, item.ID, "junior-1")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermission)

	claimed, err := f.queue.Claim(ctx, item.ID, "senior-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, claimed.Status)
	assert.True(t, claimed.AssignedToModerator("senior-1"))
	require.NotNil(t, claimed.ReviewDeadline)
	assert.Equal(t, t0.Add(f.workflows.Timeout(workflow.Standard, roles.Senior)), *claimed.ReviewDeadline)

	mod, err := f.mods.Get(ctx, "senior-1")
	require.NoError(t, err)
	assert.Equal(t, 1, mod.Stats.Claimed)
}

func TestClaimIsIdempotentForTheAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.claimed(t, 0.5, workflow.Standard, "senior-1")

	again, err := f.queue.Claim(ctx, item.ID, "senior-1")
	require.NoError(t, err)
	assert.Equal(t, item.Version, again.Version)

	_, err = f.queue.Claim(ctx, item.ID, "senior-2")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyAssigned)

	history, err := f.queue.History(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestClaimTakesOverFromInactiveModerator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.claimed(t, 0.5, workflow.Standard, "senior-1")

	_, err := f.mods.SetActive(ctx, "senior-1", false)
	require.NoError(t, err)

	taken, err := f.queue.Claim(ctx, item.ID, "senior-2")
	require.NoError(t, err)
	assert.True(t, taken.AssignedToModerator("senior-2"))

	history, err := f.queue.History(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, reasonInactiveTakeover, history[1].Reason)

	_, err = f.queue.Claim(ctx, item.ID, "senior-1")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermission)
}

func TestRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.claimed(t, 0.5, workflow.Standard, "junior-1")

	_, err := f.queue.Release(ctx, item.ID, "junior-2")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermission)

	released, err := f.queue.Release(ctx, item.ID, "pro-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, released.Status)
	assert.False(t, released.IsAssigned())
	assert.Nil(t, released.ReviewDeadline)

	_, err = f.queue.Release(ctx, item.ID, "junior-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestTimeoutSweepEscalatesOverdueClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.claimed(t, 0.3, workflow.Standard, "junior-1")
	require.Equal(t, t0.Add(4*time.Hour), *item.ReviewDeadline)
	untouched := f.claimed(t, 0.3, workflow.Standard, "junior-2")
	f.recorder.Reset()

	result, err := f.queue.TimeoutSweep(ctx, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)

	// the second claim is made later, so only the first item is overdue
	_, err = f.queue.Release(ctx, untouched.ID, "junior-2")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	_, err = f.queue.Claim(ctx, untouched.ID, "junior-2")
	require.NoError(t, err)
	f.recorder.Reset()

	result, err = f.queue.TimeoutSweep(ctx, t0.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Escalated: 1}, result)

	swept, err := f.store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOversight, swept.Status)
	assert.False(t, swept.IsAssigned())
	require.NotNil(t, swept.Escalation)
	assert.Equal(t, models.ReasonTimeoutExceeded, swept.Escalation.Reason)
	assert.Equal(t, models.UrgencyUrgent, swept.Escalation.Urgency)
	assert.Equal(t, models.SystemActor, swept.Escalation.EscalatedBy)
	assert.Greater(t, swept.Priority, item.Priority)
	assert.Equal(t, models.MaxPriority, swept.Priority)

	raised := f.recorder.OfType(events.EscalationRaised)
	require.Len(t, raised, 1)
	assert.Equal(t, item.ID, raised[0].ItemID)

	other, err := f.store.GetItem(ctx, untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, other.Status)

	result, err = f.queue.TimeoutSweep(ctx, t0.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Escalated)
	assert.Len(t, f.recorder.OfType(events.EscalationRaised), 1)
}

func TestJuniorApproveGoesToOversight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.claimed(t, 0.5, workflow.Standard, "junior-1")

	approved, err := f.queue.Approve(ctx, item.ID, "junior-1", "looks fine")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOversight, approved.Status)
	assert.Equal(t, models.StatusApproved, approved.ProposedStatus)
	require.NotNil(t, approved.Escalation)
	assert.Equal(t, models.ReasonOversightRequired, approved.Escalation.Reason)
	assert.Equal(t, item.Priority+1, approved.Priority)
	assert.Len(t, f.recorder.OfType(events.EscalationRaised), 1)

	mod, err := f.mods.Get(ctx, "junior-1")
	require.NoError(t, err)
	assert.Equal(t, 1, mod.Stats.Approved)
}

func TestJuniorApproveLowRiskCloses(t *testing.T) {
	f := newFixture(t)
	item := f.claimed(t, 0.3, workflow.Standard, "junior-1")

	approved, err := f.queue.Approve(context.Background(), item.ID, "junior-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Nil(t, approved.Escalation)
	assert.Nil(t, approved.ReviewDeadline)
	assert.Empty(t, f.recorder.OfType(events.EscalationRaised))
}

func TestHighRiskClosureNeedsOversight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	approved, err := f.queue.Approve(ctx, f.claimed(t, 0.8, workflow.Express, "senior-1").ID, "senior-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOversight, approved.Status)
	assert.Equal(t, models.ReasonHighRiskClosure, approved.Escalation.Reason)

	rejected, err := f.queue.Reject(ctx, f.claimed(t, 0.8, workflow.Express, "senior-1").ID, "senior-1", "abuse", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOversight, rejected.Status)
	assert.Equal(t, models.StatusRejected, rejected.ProposedStatus)

	closed, err := f.queue.Approve(ctx, f.claimed(t, 0.9, workflow.Express, "pro-1").ID, "pro-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, closed.Status)

	flagged, err := f.queue.Flag(ctx, f.claimed(t, 0.8, workflow.Express, "senior-1").ID, "senior-1",
		FlagInput{Reason: "off_topic", Severity: patterns.SeverityLow})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOversight, flagged.Status)
	assert.Equal(t, models.StatusFlagged, flagged.ProposedStatus)
	assert.Equal(t, models.ReasonHighRiskClosure, flagged.Escalation.Reason)

	// a suggested edit only returns the content for a re-analyzed resubmission
	edited, err := f.queue.SuggestEdit(ctx, f.claimed(t, 0.8, workflow.Express, "senior-1").ID, "senior-1", "Remove the account number.", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusEditSuggested, edited.Status)
}

func TestFlagSeverity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	flagged, err := f.queue.Flag(ctx, f.claimed(t, 0.3, workflow.Standard, "senior-1").ID, "senior-1",
		FlagInput{Reason: "off_topic", Severity: patterns.SeverityMedium})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFlagged, flagged.Status)
	assert.Contains(t, flagged.Flags, "review_off_topic")

	severe, err := f.queue.Flag(ctx, f.claimed(t, 0.3, workflow.Standard, "senior-1").ID, "senior-1",
		FlagInput{Reason: "self_harm", Severity: patterns.SeverityCritical})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOversight, severe.Status)
	assert.Equal(t, models.ReasonSevereFlag, severe.Escalation.Reason)
	assert.Equal(t, models.UrgencyUrgent, severe.Escalation.Urgency)
	assert.Equal(t, models.MaxPriority, severe.Priority)

	_, err = f.queue.Flag(ctx, uuid.New(), "senior-1", FlagInput{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSuggestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.claimed(t, 0.3, workflow.Standard, "senior-1")

	_, err := f.queue.SuggestEdit(ctx, item.ID, "senior-1", "", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	edited, err := f.queue.SuggestEdit(ctx, item.ID, "senior-1", "Rephrase as general information.", "Avoid direct instructions.")
	require.NoError(t, err)
	assert.Equal(t, models.StatusEditSuggested, edited.Status)
	assert.Equal(t, "Rephrase as general information.", edited.SuggestedEdit)
	assert.Contains(t, edited.EducationalNotes, "Avoid direct instructions.")
}

func TestDecisionsRequireTheAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.seed(t, 0.3, workflow.Standard, 5)
	_, err := f.queue.Approve(ctx, pending.ID, "senior-1", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	held := f.claimed(t, 0.3, workflow.Standard, "senior-1")
	_, err = f.queue.Reject(ctx, held.ID, "senior-2", "spam", "")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyAssigned)

	_, err = f.queue.Approve(ctx, uuid.New(), "senior-1", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.queue.Approve(ctx, held.ID, "nobody", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestEscalateAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.seed(t, 0.3, workflow.Standard, 5)

	_, err := f.queue.Escalate(ctx, item.ID, "senior-1", "", models.UrgencyNormal)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	escalated, err := f.queue.Escalate(ctx, item.ID, "senior-1", "legal_question", models.UrgencyNormal)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOversight, escalated.Status)
	assert.Equal(t, 6, escalated.Priority)
	assert.Equal(t, 1, escalated.Escalation.Count)

	_, err = f.queue.OversightResolve(ctx, item.ID, "senior-1", models.StatusApproved, "")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermission)

	_, err = f.queue.OversightResolve(ctx, item.ID, "pro-1", models.StatusResolved, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	resolved, err := f.queue.OversightResolve(ctx, item.ID, "pro-1", models.StatusApproved, "fine as general info")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, resolved.Status)
	assert.Equal(t, 0, resolved.Priority)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, models.StatusApproved, resolved.Resolution.Outcome)
	assert.Equal(t, "pro-1", resolved.Resolution.ResolvedBy)
	assert.False(t, resolved.Resolution.Overrode)
}

func TestOversightOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.claimed(t, 0.5, workflow.Standard, "junior-1")

	_, err := f.queue.Approve(ctx, item.ID, "junior-1", "")
	require.NoError(t, err)

	resolved, err := f.queue.OversightResolve(ctx, item.ID, "pro-1", models.StatusRejected, "personal advice")
	require.NoError(t, err)
	assert.True(t, resolved.Resolution.Overrode)

	mod, err := f.mods.Get(ctx, "pro-1")
	require.NoError(t, err)
	assert.Equal(t, 1, mod.Stats.Resolved)
}

func TestUrgentWorkflowResolvesFromEscalated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.seed(t, 0.9, workflow.Urgent, 10)

	escalated, err := f.queue.Escalate(ctx, item.ID, "pro-1", "crisis", models.UrgencyUrgent)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEscalated, escalated.Status)
	assert.Equal(t, models.MaxPriority, escalated.Priority)

	resolved, err := f.queue.OversightResolve(ctx, item.ID, "pro-1", models.StatusRejected, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, resolved.Status)
}

func TestResolveRequiresOversightState(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, 0.3, workflow.Standard, 5)

	_, err := f.queue.OversightResolve(context.Background(), item.ID, "pro-1", models.StatusApproved, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestTerminalItemsNeverTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rejected := f.claimed(t, 0.3, workflow.Standard, "senior-1")
	_, err := f.queue.Reject(ctx, rejected.ID, "senior-1", "spam", "")
	require.NoError(t, err)

	resolved := f.seed(t, 0.3, workflow.Standard, 5)
	_, err = f.queue.Escalate(ctx, resolved.ID, "senior-1", "unsure", models.UrgencyNormal)
	require.NoError(t, err)
	_, err = f.queue.OversightResolve(ctx, resolved.ID, "pro-1", models.StatusApproved, "")
	require.NoError(t, err)

	for _, id := range []uuid.UUID{rejected.ID, resolved.ID} {
		before, err := f.store.GetItem(ctx, id)
		require.NoError(t, err)

		ops := map[string]func() error{
			"claim":   func() error { _, err := f.queue.Claim(ctx, id, "pro-1"); return err },
			"release": func() error { _, err := f.queue.Release(ctx, id, "pro-1"); return err },
			"approve": func() error { _, err := f.queue.Approve(ctx, id, "pro-1", ""); return err },
			"escalate": func() error {
				_, err := f.queue.Escalate(ctx, id, "pro-1", "again", models.UrgencyUrgent)
				return err
			},
			"resolve": func() error {
				_, err := f.queue.OversightResolve(ctx, id, "pro-1", models.StatusFlagged, "")
				return err
			},
		}
		for name, op := range ops {
			assert.ErrorIs(t, op(), apperrors.ErrInvalidTransition, name)
		}
		_, err = f.queue.TimeoutSweep(ctx, t0.Add(48*time.Hour))
		require.NoError(t, err)

		after, err := f.store.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	}
}

func TestListFiltersByRiskCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	low := f.seed(t, 0.3, workflow.Standard, 3)
	f.clock.Advance(time.Minute)
	f.seed(t, 0.7, workflow.Standard, 9)
	f.clock.Advance(time.Minute)
	mid := f.seed(t, 0.5, workflow.Standard, 8)
	f.clock.Advance(time.Minute)
	sameRank := f.seed(t, 0.4, workflow.Standard, 3)

	items, total, err := f.queue.List(ctx, "junior-1", ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, []uuid.UUID{mid.ID, low.ID, sameRank.ID}, []uuid.UUID{items[0].ID, items[1].ID, items[2].ID})

	items, total, err = f.queue.List(ctx, "senior-1", ListQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, items, 1)
	assert.Equal(t, mid.ID, items[0].ID)

	_, _, err = f.queue.List(ctx, "senior-1", ListQuery{Statuses: []models.Status{"bogus"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGetHidesItemsAboveCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.seed(t, 0.9, workflow.Express, 5)

	_, _, err := f.queue.Get(ctx, item.ID, "junior-1")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermission)

	got, history, err := f.queue.Get(ctx, item.ID, "pro-1")
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Empty(t, history)
}

func TestRevealOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item := f.seed(t, 0.4, workflow.Standard, 5)
	_, err := f.queue.RevealOriginal(ctx, item.ID, "pro-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	sealed, err := fakeSealer{}.Seal(ctx, "Call me on 07911123456")
	require.NoError(t, err)
	withOriginal := f.seed(t, 0.4, workflow.Standard, 5)
	withOriginal.SealedOriginal = sealed
	withOriginal.ID = uuid.New()
	require.NoError(t, f.store.CreateItem(ctx, withOriginal))

	_, err = f.queue.RevealOriginal(ctx, withOriginal.ID, "senior-1")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermission)

	original, err := f.queue.RevealOriginal(ctx, withOriginal.ID, "pro-1")
	require.NoError(t, err)
	assert.Equal(t, "Call me on 07911123456", original)

	history, err := f.queue.History(ctx, withOriginal.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionRevealOriginal, history[0].Kind)
	assert.Equal(t, "pro-1", history[0].ModeratorID)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seed(t, 0.3, workflow.Standard, 5)
	f.claimed(t, 0.3, workflow.Express, "senior-1")
	escalated := f.seed(t, 0.3, workflow.Standard, 5)
	_, err := f.queue.Escalate(ctx, escalated.ID, "senior-2", "unsure", models.UrgencyNormal)
	require.NoError(t, err)

	f.clock.Advance(3 * time.Hour)
	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.StatusPending])
	assert.Equal(t, 1, stats.ByStatus[models.StatusInReview])
	assert.Equal(t, 1, stats.OpenEscalation)
	assert.Equal(t, 1, stats.Overdue)
	assert.Equal(t, 2, stats.ByWorkflow[workflow.Standard])
}

// conflictStore loses every compare-and-set
type conflictStore struct {
	*repository.MemoryStore
	attempts int
}

func (s *conflictStore) TransitionItem(context.Context, *models.ModerationItem, int64, ...models.ModerationAction) error {
	s.attempts++
	return fmt.Errorf("simulated race: %w", apperrors.ErrStateConflict)
}

func TestLostRacesAreRetriedThenReported(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, 0.3, workflow.Standard, 5)

	store := &conflictStore{MemoryStore: f.store}
	queue := NewQueueService(store, roles.DefaultRegistry(), f.workflows,
		WithCASRetries(2), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err := queue.Claim(context.Background(), item.ID, "senior-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 2, store.attempts)
}

// racingStore lets a competing claim commit just before the first write
type racingStore struct {
	*repository.MemoryStore
	compete func()
	raced   bool
}

func (s *racingStore) TransitionItem(ctx context.Context, next *models.ModerationItem, expected int64, actions ...models.ModerationAction) error {
	if !s.raced {
		s.raced = true
		s.compete()
		return fmt.Errorf("simulated race: %w", apperrors.ErrStateConflict)
	}
	return s.MemoryStore.TransitionItem(ctx, next, expected, actions...)
}

func TestClaimLoserSeesAlreadyAssignedWithoutRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.seed(t, 0.5, workflow.Standard, 5)

	store := &racingStore{MemoryStore: f.store, compete: func() {
		_, err := f.queue.Claim(ctx, item.ID, "senior-2")
		require.NoError(t, err)
	}}
	queue := NewQueueService(store, roles.DefaultRegistry(), f.workflows,
		WithCASRetries(1), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err := queue.Claim(ctx, item.ID, "senior-1")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyAssigned)
	assert.False(t, apperrors.IsRetryable(err))

	got, err := f.store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.AssignedToModerator("senior-2"))
}

// faultyStore fails every write to one item
type faultyStore struct {
	*repository.MemoryStore
	mu     sync.Mutex
	broken uuid.UUID
}

func (s *faultyStore) breakItem(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = id
}

func (s *faultyStore) TransitionItem(ctx context.Context, next *models.ModerationItem, expected int64, actions ...models.ModerationAction) error {
	s.mu.Lock()
	broken := s.broken
	s.mu.Unlock()
	if next.ID == broken {
		return fmt.Errorf("disk full: %w", apperrors.ErrStorageUnavailable)
	}
	return s.MemoryStore.TransitionItem(ctx, next, expected, actions...)
}

func TestTimeoutSweepIsolatesItemFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stuck := f.claimed(t, 0.3, workflow.Standard, "junior-1")
	healthy := f.claimed(t, 0.3, workflow.Standard, "junior-2")

	store := &faultyStore{MemoryStore: f.store}
	store.breakItem(stuck.ID)
	queue := NewQueueService(store, roles.DefaultRegistry(), f.workflows,
		WithClock(f.clock.Now), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	result, err := queue.TimeoutSweep(ctx, t0.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 2, Escalated: 1, Failed: 1}, result)

	got, err := f.store.GetItem(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOversight, got.Status)
	got, err = f.store.GetItem(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, got.Status)

	store.breakItem(uuid.Nil)
	result, err = queue.TimeoutSweep(ctx, t0.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Escalated: 1}, result)

	got, err = f.store.GetItem(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOversight, got.Status)
	assert.Equal(t, models.ReasonTimeoutExceeded, got.Escalation.Reason)
}

func TestInactiveModeratorCannotAct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.seed(t, 0.3, workflow.Standard, 5)

	_, err := f.mods.SetActive(ctx, "junior-1", false)
	require.NoError(t, err)

	_, err = f.queue.Claim(ctx, item.ID, "junior-1")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermission)
}

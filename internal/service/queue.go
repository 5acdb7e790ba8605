package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"edumod/internal/apperrors"
	"edumod/internal/events"
	"edumod/internal/metrics"
	"edumod/internal/models"
	"edumod/internal/patterns"
	"edumod/internal/repository"
	"edumod/internal/roles"
	"edumod/internal/workflow"

	"github.com/google/uuid"
)

// Risk levels that force a decision through oversight
const (
	OversightRiskThreshold = 0.4
	HighRiskThreshold      = 0.8
)

const (
	defaultCASRetries = 3
	defaultSweepBatch = 200
	defaultPageSize   = 50
	maxPageSize       = 200

	reasonInactiveTakeover = "inactive_assignee_takeover"
)

// QueueService runs the moderation queue state machine. Every transition is
// a compare-and-set on the item version; nothing locks the queue as a whole.
type QueueService struct {
	store      repository.Store
	registry   *roles.Registry
	workflows  *workflow.Definitions
	publisher  events.Publisher
	sealer     Sealer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	casRetries int
	sweepBatch int
	now        func() time.Time
}

// QueueOption configures a QueueService
type QueueOption func(*QueueService)

// WithPublisher sets the outbound event sink
func WithPublisher(p events.Publisher) QueueOption {
	return func(s *QueueService) { s.publisher = p }
}

// WithSealer enables revealing sealed originals
func WithSealer(sealer Sealer) QueueOption {
	return func(s *QueueService) { s.sealer = sealer }
}

// WithMetrics records queue metrics
func WithMetrics(m *metrics.Metrics) QueueOption {
	return func(s *QueueService) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) QueueOption {
	return func(s *QueueService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) QueueOption {
	return func(s *QueueService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCASRetries sets how often a lost compare-and-set is retried
func WithCASRetries(n int) QueueOption {
	return func(s *QueueService) {
		if n > 0 {
			s.casRetries = n
		}
	}
}

// WithSweepBatchSize caps how many overdue items one sweep handles
func WithSweepBatchSize(n int) QueueOption {
	return func(s *QueueService) {
		if n > 0 {
			s.sweepBatch = n
		}
	}
}

// NewQueueService creates a queue service
func NewQueueService(store repository.Store, registry *roles.Registry, workflows *workflow.Definitions, opts ...QueueOption) *QueueService {
	s := &QueueService{
		store:      store,
		registry:   registry,
		workflows:  workflows,
		publisher:  events.Multi{},
		logger:     slog.Default(),
		casRetries: defaultCASRetries,
		sweepBatch: defaultSweepBatch,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// transition mutates a private copy of an item and returns the audit records
// to append. Returning no actions means nothing changed.
type transition func(item *models.ModerationItem, now time.Time) ([]models.ModerationAction, error)

// mutate applies fn with optimistic locking. A lost race re-reads the item
// and re-runs fn, so the decision is always made against committed state.
func (s *QueueService) mutate(ctx context.Context, op string, id uuid.UUID, at time.Time, fn transition) (*models.ModerationItem, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.store.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status.Terminal() {
			return nil, fmt.Errorf("item %s is %s: %w", id, current.Status, apperrors.ErrInvalidTransition)
		}

		now := at
		if now.IsZero() {
			now = s.now()
		}
		next := current.Clone()
		actions, err := fn(next, now)
		if err != nil {
			return nil, err
		}
		if len(actions) == 0 {
			return current, nil
		}
		next.UpdatedAt = now

		err = s.store.TransitionItem(ctx, next, current.Version, actions...)
		if err == nil {
			s.afterCommit(ctx, current, next, actions)
			return next, nil
		}
		if !errors.Is(err, apperrors.ErrStateConflict) {
			return nil, err
		}
		s.metrics.ObserveConflict(op)
		if attempt >= s.casRetries {
			return nil, s.recheck(ctx, id, at, fn, err)
		}
		s.logger.Debug("Retrying after concurrent update", "operation", op, "item_id", id, "attempt", attempt)
	}
}

// recheck runs fn against the winner's state once retries are spent. A
// contract error there (the item was claimed, closed or escalated) is what
// the caller must see; otherwise the conflict stands.
func (s *QueueService) recheck(ctx context.Context, id uuid.UUID, at time.Time, fn transition, conflict error) error {
	current, err := s.store.GetItem(ctx, id)
	if err != nil {
		return conflict
	}
	if current.Status.Terminal() {
		return fmt.Errorf("item %s is %s: %w", id, current.Status, apperrors.ErrInvalidTransition)
	}
	now := at
	if now.IsZero() {
		now = s.now()
	}
	if _, err := fn(current.Clone(), now); err != nil {
		return err
	}
	return conflict
}

// afterCommit fans out side effects of a committed change. Delivery failures
// are logged; the change itself stands.
func (s *QueueService) afterCommit(ctx context.Context, before, after *models.ModerationItem, actions []models.ModerationAction) {
	for _, a := range actions {
		s.metrics.ObserveTransition(a.Kind, a.ToStatus)
		if a.ModeratorID != models.SystemActor {
			if err := s.store.RecordActivity(ctx, a.ModeratorID, a.Kind, a.Timestamp); err != nil {
				s.logger.Warn("Failed to update moderator statistics",
					"error", err, "moderator_id", a.ModeratorID, "action", a.Kind)
			}
		}
		s.publish(ctx, events.NewActionRecorded(a))
	}

	if escalationRaised(before, after) {
		s.metrics.ObserveEscalation(after.Escalation.Reason, after.Escalation.Urgency)
		s.logger.Info("Item escalated to oversight",
			"item_id", after.ID,
			"reason", after.Escalation.Reason,
			"urgency", after.Escalation.Urgency,
			"priority", after.Priority,
			"status", after.Status,
		)
		s.publish(ctx, events.NewEscalationRaised(after))
	}
}

func escalationRaised(before, after *models.ModerationItem) bool {
	if after.Escalation == nil {
		return false
	}
	return before == nil || before.Escalation == nil || after.Escalation.Count > before.Escalation.Count
}

func (s *QueueService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			"error", err, "event_type", event.Type, "item_id", event.ItemID)
	}
}

// escalate moves an item to oversight. Items of a direct-to-oversight
// workflow wait as escalated; all others continue to pending_oversight.
func (s *QueueService) escalate(item *models.ModerationItem, actor string, kind models.ActionKind,
	reason string, urgency models.Urgency, now time.Time) models.ModerationAction {
	from := item.Status
	count := 1
	if item.Escalation != nil {
		count = item.Escalation.Count + 1
	}

	item.Status = models.StatusEscalated
	item.ClearAssignment()
	item.Escalation = &models.Escalation{
		Reason:      reason,
		Urgency:     urgency,
		EscalatedBy: actor,
		EscalatedAt: now,
		Count:       count,
	}
	if urgency == models.UrgencyUrgent {
		item.Priority = models.MaxPriority
	} else {
		item.Priority = min(item.Priority+1, models.MaxPriority)
	}
	if !s.workflows.DirectToOversight(item.WorkflowType) {
		item.Status = models.StatusPendingOversight
	}

	action := models.NewAction(item, actor, kind, from, now)
	action.Reason = reason
	return action
}

// activeModerator loads a moderator that may act right now
func (s *QueueService) activeModerator(ctx context.Context, moderatorID string, perm roles.Permission) (*models.Moderator, error) {
	if moderatorID == "" {
		return nil, fmt.Errorf("moderator id is required: %w", apperrors.ErrInvalidInput)
	}
	mod, err := s.store.GetModerator(ctx, moderatorID)
	if err != nil {
		return nil, err
	}
	if !mod.Active {
		return nil, fmt.Errorf("moderator %s is inactive: %w", moderatorID, apperrors.ErrInsufficientPermission)
	}
	if !s.registry.Can(mod.Tier, perm) {
		return nil, fmt.Errorf("tier %s lacks %s: %w", mod.Tier, perm, apperrors.ErrInsufficientPermission)
	}
	return mod, nil
}

// Claim assigns an item to a moderator. Re-claiming one's own item is a
// no-op; an item held by a deactivated moderator may be taken over.
func (s *QueueService) Claim(ctx context.Context, id uuid.UUID, moderatorID string) (*models.ModerationItem, error) {
	mod, err := s.activeModerator(ctx, moderatorID, roles.PermClaim)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "claim", id, time.Time{}, func(item *models.ModerationItem, now time.Time) ([]models.ModerationAction, error) {
		if item.RiskScore > mod.MaxRiskLevel {
			return nil, fmt.Errorf("risk %.2f exceeds %s ceiling %.2f: %w",
				item.RiskScore, mod.Tier, mod.MaxRiskLevel, apperrors.ErrInsufficientPermission)
		}

		reason := ""
		switch item.Status {
		case models.StatusPending:
		case models.StatusInReview:
			if item.AssignedToModerator(mod.ID) {
				return nil, nil
			}
			if item.IsAssigned() {
				holder, err := s.store.GetModerator(ctx, *item.AssignedTo)
				if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
					return nil, err
				}
				if err == nil && holder.Active {
					return nil, fmt.Errorf("item %s is held by %s: %w", item.ID, holder.ID, apperrors.ErrAlreadyAssigned)
				}
			}
			reason = reasonInactiveTakeover
		default:
			return nil, fmt.Errorf("cannot claim %s item: %w", item.Status, apperrors.ErrInvalidTransition)
		}

		from := item.Status
		deadline := now.Add(s.workflows.Timeout(item.WorkflowType, mod.Tier))
		assignee := mod.ID
		assignedAt := now
		item.Status = models.StatusInReview
		item.AssignedTo = &assignee
		item.AssignedAt = &assignedAt
		item.ReviewDeadline = &deadline

		action := models.NewAction(item, mod.ID, models.ActionClaim, from, now)
		action.Reason = reason
		return []models.ModerationAction{action}, nil
	})
}

// Release hands a claimed item back to the pending pool
func (s *QueueService) Release(ctx context.Context, id uuid.UUID, moderatorID string) (*models.ModerationItem, error) {
	mod, err := s.activeModerator(ctx, moderatorID, roles.PermClaim)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "release", id, time.Time{}, func(item *models.ModerationItem, now time.Time) ([]models.ModerationAction, error) {
		if item.Status != models.StatusInReview {
			return nil, fmt.Errorf("cannot release %s item: %w", item.Status, apperrors.ErrInvalidTransition)
		}
		if !item.AssignedToModerator(mod.ID) && !s.registry.Can(mod.Tier, roles.PermReleaseAny) {
			return nil, fmt.Errorf("item %s is not assigned to %s: %w", item.ID, mod.ID, apperrors.ErrInsufficientPermission)
		}

		item.Status = models.StatusPending
		item.ClearAssignment()
		return []models.ModerationAction{models.NewAction(item, mod.ID, models.ActionRelease, models.StatusInReview, now)}, nil
	})
}

// decide records a reviewer decision on an item the moderator holds
func (s *QueueService) decide(ctx context.Context, op string, id uuid.UUID, moderatorID string,
	apply func(item *models.ModerationItem, mod *models.Moderator, now time.Time) (models.ModerationAction, error)) (*models.ModerationItem, error) {
	mod, err := s.activeModerator(ctx, moderatorID, roles.PermReview)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, op, id, time.Time{}, func(item *models.ModerationItem, now time.Time) ([]models.ModerationAction, error) {
		if item.Status != models.StatusInReview {
			return nil, fmt.Errorf("cannot %s %s item: %w", op, item.Status, apperrors.ErrInvalidTransition)
		}
		if !item.AssignedToModerator(mod.ID) {
			return nil, fmt.Errorf("item %s is not assigned to %s: %w", item.ID, mod.ID, apperrors.ErrAlreadyAssigned)
		}
		action, err := apply(item, mod, now)
		if err != nil {
			return nil, err
		}
		return []models.ModerationAction{action}, nil
	})
}

// closureGuard names the reason a closing decision must go to oversight, if any
func closureGuard(item *models.ModerationItem, mod *models.Moderator) string {
	switch {
	case mod.RequiresOversight && item.RiskScore > OversightRiskThreshold:
		return models.ReasonOversightRequired
	case mod.Tier != roles.Professional && item.RiskScore >= HighRiskThreshold:
		return models.ReasonHighRiskClosure
	}
	return ""
}

// conclude applies a final reviewer outcome or, when guarded, proposes it to oversight
func (s *QueueService) conclude(item *models.ModerationItem, mod *models.Moderator, kind models.ActionKind,
	outcome models.Status, escalateReason string, urgency models.Urgency, notes string, now time.Time) models.ModerationAction {
	if escalateReason != "" {
		item.ProposedStatus = outcome
		action := s.escalate(item, mod.ID, kind, escalateReason, urgency, now)
		action.Notes = notes
		return action
	}

	item.Status = outcome
	item.ReviewDeadline = nil
	action := models.NewAction(item, mod.ID, kind, models.StatusInReview, now)
	action.Notes = notes
	return action
}

// Approve accepts the content as published
func (s *QueueService) Approve(ctx context.Context, id uuid.UUID, moderatorID, notes string) (*models.ModerationItem, error) {
	return s.decide(ctx, "approve", id, moderatorID, func(item *models.ModerationItem, mod *models.Moderator, now time.Time) (models.ModerationAction, error) {
		return s.conclude(item, mod, models.ActionApprove, models.StatusApproved,
			closureGuard(item, mod), models.UrgencyNormal, notes, now), nil
	})
}

// FlagInput describes a reviewer flag
type FlagInput struct {
	Reason   string
	Severity patterns.Severity
	Notes    string
}

// Flag marks the content as problematic. High and critical flags go to
// oversight, as does any flag a non-Professional raises on a high-risk item.
func (s *QueueService) Flag(ctx context.Context, id uuid.UUID, moderatorID string, in FlagInput) (*models.ModerationItem, error) {
	if in.Reason == "" {
		return nil, fmt.Errorf("flag reason is required: %w", apperrors.ErrInvalidInput)
	}
	if in.Severity == "" {
		in.Severity = patterns.SeverityMedium
	}
	if in.Severity.Rank() == 0 {
		return nil, fmt.Errorf("unknown severity %q: %w", in.Severity, apperrors.ErrInvalidInput)
	}

	return s.decide(ctx, "flag", id, moderatorID, func(item *models.ModerationItem, mod *models.Moderator, now time.Time) (models.ModerationAction, error) {
		flag := "review_" + in.Reason
		if !containsFlag(item.Flags, flag) {
			item.Flags = append(item.Flags, flag)
		}

		reason, urgency := "", models.UrgencyNormal
		if in.Severity.Rank() >= patterns.SeverityHigh.Rank() {
			reason = models.ReasonSevereFlag
			if in.Severity == patterns.SeverityCritical {
				urgency = models.UrgencyUrgent
			}
		} else if mod.Tier != roles.Professional && item.RiskScore >= HighRiskThreshold {
			// nothing moves a flagged item on, so high-risk flags wait for oversight
			reason = models.ReasonHighRiskClosure
		}
		action := s.conclude(item, mod, models.ActionFlag, models.StatusFlagged, reason, urgency, in.Notes, now)
		if reason == "" {
			action.Reason = in.Reason
		}
		return action, nil
	})
}

// SuggestEdit returns the content to its author with a proposed rewrite
func (s *QueueService) SuggestEdit(ctx context.Context, id uuid.UUID, moderatorID, edit, notes string) (*models.ModerationItem, error) {
	if edit == "" {
		return nil, fmt.Errorf("suggested edit is required: %w", apperrors.ErrInvalidInput)
	}

	return s.decide(ctx, "suggest_edit", id, moderatorID, func(item *models.ModerationItem, mod *models.Moderator, now time.Time) (models.ModerationAction, error) {
		item.SuggestedEdit = edit
		if notes != "" {
			item.EducationalNotes = append(item.EducationalNotes, notes)
		}
		return s.conclude(item, mod, models.ActionSuggestEdit, models.StatusEditSuggested, "", models.UrgencyNormal, notes, now), nil
	})
}

// Reject blocks the content permanently, unless oversight has to confirm it
func (s *QueueService) Reject(ctx context.Context, id uuid.UUID, moderatorID, reason, notes string) (*models.ModerationItem, error) {
	return s.decide(ctx, "reject", id, moderatorID, func(item *models.ModerationItem, mod *models.Moderator, now time.Time) (models.ModerationAction, error) {
		guard := closureGuard(item, mod)
		action := s.conclude(item, mod, models.ActionReject, models.StatusRejected, guard, models.UrgencyNormal, notes, now)
		if guard == "" {
			action.Reason = reason
		}
		return action, nil
	})
}

// Escalate raises an item to oversight on a moderator's request
func (s *QueueService) Escalate(ctx context.Context, id uuid.UUID, moderatorID, reason string, urgency models.Urgency) (*models.ModerationItem, error) {
	if reason == "" {
		return nil, fmt.Errorf("escalation reason is required: %w", apperrors.ErrInvalidInput)
	}
	if urgency == "" {
		urgency = models.UrgencyNormal
	}
	if urgency != models.UrgencyNormal && urgency != models.UrgencyUrgent {
		return nil, fmt.Errorf("unknown urgency %q: %w", urgency, apperrors.ErrInvalidInput)
	}
	mod, err := s.activeModerator(ctx, moderatorID, roles.PermEscalate)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "escalate", id, time.Time{}, func(item *models.ModerationItem, now time.Time) ([]models.ModerationAction, error) {
		if item.Status == models.StatusInReview && !item.AssignedToModerator(mod.ID) && mod.Tier != roles.Professional {
			return nil, fmt.Errorf("item %s is held by another moderator: %w", item.ID, apperrors.ErrAlreadyAssigned)
		}
		return []models.ModerationAction{s.escalate(item, mod.ID, models.ActionEscalate, reason, urgency, now)}, nil
	})
}

// OversightResolve records the final outcome decided by a professional
func (s *QueueService) OversightResolve(ctx context.Context, id uuid.UUID, moderatorID string, outcome models.Status, notes string) (*models.ModerationItem, error) {
	switch outcome {
	case models.StatusApproved, models.StatusFlagged, models.StatusEditSuggested, models.StatusRejected:
	default:
		return nil, fmt.Errorf("outcome %q is not a review outcome: %w", outcome, apperrors.ErrInvalidInput)
	}
	mod, err := s.activeModerator(ctx, moderatorID, roles.PermOversightResolve)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "oversight_resolve", id, time.Time{}, func(item *models.ModerationItem, now time.Time) ([]models.ModerationAction, error) {
		switch {
		case item.Status == models.StatusPendingOversight:
		case item.Status == models.StatusEscalated && s.workflows.DirectToOversight(item.WorkflowType):
		default:
			return nil, fmt.Errorf("cannot resolve %s item in %s workflow: %w",
				item.Status, item.WorkflowType, apperrors.ErrInvalidTransition)
		}

		from := item.Status
		item.Status = models.StatusResolved
		item.Priority = 0
		item.ClearAssignment()
		item.Resolution = &models.Resolution{
			Outcome:    outcome,
			ResolvedBy: mod.ID,
			ResolvedAt: now,
			Overrode:   item.ProposedStatus != "" && item.ProposedStatus != outcome,
			Notes:      notes,
		}

		action := models.NewAction(item, mod.ID, models.ActionOversightResolve, from, now)
		action.Reason = string(outcome)
		action.Notes = notes
		return []models.ModerationAction{action}, nil
	})
}

// SweepResult summarizes one timeout sweep
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
}

// TimeoutSweep escalates every in-review item whose deadline passed before
// now. A failing item is logged and left for the next run.
func (s *QueueService) TimeoutSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	start := time.Now()
	var result SweepResult

	overdue, err := s.store.ListOverdue(ctx, now, s.sweepBatch)
	if err != nil {
		s.metrics.ObserveSweep(time.Since(start), 0, 0, err)
		return result, fmt.Errorf("failed to list overdue items: %w", err)
	}
	result.Scanned = len(overdue)

	for _, candidate := range overdue {
		changed := false
		_, err := s.mutate(ctx, "timeout", candidate.ID, now, func(item *models.ModerationItem, at time.Time) ([]models.ModerationAction, error) {
			changed = false
			// another writer may have acted since the listing
			if item.Status != models.StatusInReview || item.ReviewDeadline == nil || !item.ReviewDeadline.Before(now) {
				return nil, nil
			}
			changed = true
			action := s.escalate(item, models.SystemActor, models.ActionTimeout,
				models.ReasonTimeoutExceeded, models.UrgencyUrgent, at)
			if candidate.AssignedTo != nil {
				action.Notes = "review deadline missed by " + *candidate.AssignedTo
			}
			return []models.ModerationAction{action}, nil
		})
		switch {
		case err != nil:
			result.Failed++
			s.logger.Error("Timeout sweep failed for item", "error", err, "item_id", candidate.ID)
		case changed:
			result.Escalated++
		}
	}

	s.metrics.ObserveSweep(time.Since(start), result.Escalated, result.Failed, nil)
	if result.Scanned > 0 {
		s.logger.Info("Timeout sweep finished",
			"scanned", result.Scanned, "escalated", result.Escalated, "failed", result.Failed)
	}
	return result, nil
}

// ListQuery pages the queue for a moderator
type ListQuery struct {
	Statuses []models.Status
	Limit    int
	Offset   int
}

// List returns items the moderator is allowed to review, most urgent first
func (s *QueueService) List(ctx context.Context, moderatorID string, q ListQuery) ([]*models.ModerationItem, int, error) {
	mod, err := s.activeModerator(ctx, moderatorID, roles.PermClaim)
	if err != nil {
		return nil, 0, err
	}
	for _, st := range q.Statuses {
		if !st.Valid() {
			return nil, 0, fmt.Errorf("unknown status %q: %w", st, apperrors.ErrInvalidInput)
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	maxRisk := mod.MaxRiskLevel

	return s.store.ListItems(ctx, models.ItemQuery{
		Statuses: q.Statuses,
		MaxRisk:  &maxRisk,
		Limit:    limit,
		Offset:   max(q.Offset, 0),
	})
}

// Get returns an item the moderator may see, with its audit history
func (s *QueueService) Get(ctx context.Context, id uuid.UUID, moderatorID string) (*models.ModerationItem, []models.ModerationAction, error) {
	mod, err := s.activeModerator(ctx, moderatorID, roles.PermClaim)
	if err != nil {
		return nil, nil, err
	}
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if item.RiskScore > mod.MaxRiskLevel && !s.registry.Can(mod.Tier, roles.PermViewAll) {
		return nil, nil, fmt.Errorf("item %s is above %s ceiling: %w", id, mod.Tier, apperrors.ErrInsufficientPermission)
	}
	history, err := s.History(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return item, history, nil
}

// History returns the audit trail of an item in order
func (s *QueueService) History(ctx context.Context, id uuid.UUID) ([]models.ModerationAction, error) {
	return s.store.ListActions(ctx, id)
}

// Stats summarizes the queue and refreshes the queue gauges
func (s *QueueService) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats, err := s.store.QueueStats(ctx, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.SetQueueStats(stats)
	return stats, nil
}

// RevealOriginal decrypts the unredacted body for a professional. Every
// reveal is audited.
func (s *QueueService) RevealOriginal(ctx context.Context, id uuid.UUID, moderatorID string) (string, error) {
	mod, err := s.activeModerator(ctx, moderatorID, roles.PermRevealOriginal)
	if err != nil {
		return "", err
	}
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return "", err
	}
	if item.SealedOriginal == "" || s.sealer == nil {
		return "", fmt.Errorf("no sealed original for item %s: %w", id, apperrors.ErrNotFound)
	}

	action := models.NewAction(item, mod.ID, models.ActionRevealOriginal, item.Status, s.now())
	if err := s.store.AppendAction(ctx, action); err != nil {
		return "", err
	}
	original, err := s.sealer.Open(ctx, item.SealedOriginal)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed original: %w: %v", apperrors.ErrStorageUnavailable, err)
	}
	s.publish(ctx, events.NewActionRecorded(action))
	s.logger.Info("Original content revealed", "item_id", id, "moderator_id", mod.ID)
	return original, nil
}

func containsFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"edumod/internal/analyzer"
	"edumod/internal/apperrors"
	"edumod/internal/events"
	"edumod/internal/models"
	"edumod/internal/policy"
	"edumod/internal/workflow"

	"github.com/google/uuid"
)

const (
	defaultContentType = "post"
	duplicateNote      = "Identical content was submitted again."
)

// Submission is inbound content with author metadata
type Submission struct {
	Body        string `json:"body"`
	ContentType string `json:"content_type"`
	Category    string `json:"category"`
	AuthorRef   string `json:"author_ref"`
}

// SubmitResult is what the author side gets back
type SubmitResult struct {
	Analysis *analyzer.Result       `json:"analysis"`
	Decision policy.Decision        `json:"decision"`
	Item     *models.ModerationItem `json:"item,omitempty"`
	Merged   bool                   `json:"merged"`
}

// SubmissionService runs submitted content through analysis and policy and
// queues what needs a human
type SubmissionService struct {
	analyzer   *analyzer.Analyzer
	queue      *QueueService
	sealer     Sealer
	sampleRate float64
}

// NewSubmissionService creates a submission service on top of the queue
func NewSubmissionService(a *analyzer.Analyzer, queue *QueueService, sealer Sealer, sampleRate float64) *SubmissionService {
	return &SubmissionService{
		analyzer:   a,
		queue:      queue,
		sealer:     sealer,
		sampleRate: sampleRate,
	}
}

func (s *SubmissionService) logger() *slog.Logger { return s.queue.logger }

// Preview analyzes and decides without side effects
func (s *SubmissionService) Preview(ctx context.Context, sub Submission) (*SubmitResult, error) {
	result, err := s.analyzer.Analyze(sub.Body)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Analysis: result, Decision: policy.Decide(result)}, nil
}

// Submit analyzes content, decides on it and queues it when a human has to
// look at it
func (s *SubmissionService) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	return s.submit(ctx, sub, nil)
}

// Resubmit takes a revised body for an item that came back with a suggested
// edit. The revision gets a linked item when it still needs review.
func (s *SubmissionService) Resubmit(ctx context.Context, previousID uuid.UUID, sub Submission) (*SubmitResult, error) {
	prev, err := s.queue.store.GetItem(ctx, previousID)
	if err != nil {
		return nil, err
	}
	if prev.Status != models.StatusEditSuggested {
		return nil, fmt.Errorf("item %s is %s, not %s: %w",
			previousID, prev.Status, models.StatusEditSuggested, apperrors.ErrInvalidTransition)
	}
	if sub.ContentType == "" {
		sub.ContentType = prev.ContentType
	}
	if sub.Category == "" {
		sub.Category = prev.Category
	}
	if sub.AuthorRef == "" {
		sub.AuthorRef = prev.AuthorRef
	}

	res, err := s.submit(ctx, sub, prev)
	if err != nil {
		return nil, err
	}

	action := models.NewAction(prev, models.SystemActor, models.ActionResubmit, prev.Status, s.queue.now())
	action.Reason = string(res.Decision.Action)
	if res.Item != nil {
		action.Notes = "revision queued as " + res.Item.ID.String()
	}
	if err := s.queue.store.AppendAction(ctx, action); err != nil {
		s.logger().Warn("Failed to audit resubmission", "error", err, "item_id", prev.ID)
	} else {
		s.queue.publish(ctx, events.NewActionRecorded(action))
	}
	return res, nil
}

func (s *SubmissionService) submit(ctx context.Context, sub Submission, previous *models.ModerationItem) (*SubmitResult, error) {
	sub.ContentType = strings.TrimSpace(sub.ContentType)
	if sub.ContentType == "" {
		sub.ContentType = defaultContentType
	}

	start := time.Now()
	analysis, err := s.analyzer.Analyze(sub.Body)
	if err != nil {
		return nil, err
	}
	decision := policy.Decide(analysis)
	s.queue.metrics.ObserveSubmission(string(decision.Action), time.Since(start))

	res := &SubmitResult{Analysis: analysis, Decision: decision}
	fingerprint := Fingerprint(sub.Body)

	wf, audit := decision.Workflow, false
	if !decision.RequiresReview {
		if !sampled(fingerprint, s.sampleRate) {
			s.logger().Debug("Submission published without review",
				"content_id", fingerprint, "decision", decision.Action, "risk_score", decision.RiskScore)
			return res, nil
		}
		wf, audit = workflow.Standard, true
	}

	if previous == nil {
		existing, err := s.queue.store.FindOpenByContent(ctx, fingerprint)
		switch {
		case err == nil:
			item, err := s.mergeDuplicate(ctx, existing.ID, decision)
			if err != nil {
				return nil, err
			}
			res.Item, res.Merged = item, true
			return res, nil
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, err
		}
	}

	item, err := s.createItem(ctx, sub, fingerprint, analysis, decision, wf, audit, previous)
	if err != nil {
		return nil, err
	}
	res.Item = item
	return res, nil
}

// mergeDuplicate bumps an open item instead of queueing the same content twice
func (s *SubmissionService) mergeDuplicate(ctx context.Context, id uuid.UUID, decision policy.Decision) (*models.ModerationItem, error) {
	return s.queue.mutate(ctx, "resubmit_duplicate", id, time.Time{}, func(item *models.ModerationItem, now time.Time) ([]models.ModerationAction, error) {
		from := item.Status
		item.Priority = min(item.Priority+1, models.MaxPriority)
		item.EducationalNotes = append(item.EducationalNotes, duplicateNote)

		if decision.Action == policy.Reject && from != models.StatusEscalated && from != models.StatusPendingOversight {
			item.ProposedStatus = models.StatusRejected
			return []models.ModerationAction{s.queue.escalate(item, models.SystemActor, models.ActionEscalate,
				models.ReasonAutoRejected, models.UrgencyUrgent, now)}, nil
		}

		action := models.NewAction(item, models.SystemActor, models.ActionSubmit, from, now)
		action.Notes = duplicateNote
		return []models.ModerationAction{action}, nil
	})
}

func (s *SubmissionService) createItem(ctx context.Context, sub Submission, fingerprint string, analysis *analyzer.Result,
	decision policy.Decision, wf workflow.Type, audit bool, previous *models.ModerationItem) (*models.ModerationItem, error) {
	now := s.queue.now()
	item := &models.ModerationItem{
		ID:               uuid.New(),
		ContentID:        fingerprint,
		ContentType:      sub.ContentType,
		Category:         sub.Category,
		AuthorRef:        sub.AuthorRef,
		Body:             analysis.RedactedBody,
		PrivacyScore:     analysis.PrivacyScore,
		EducationalScore: analysis.EducationalScore,
		QualityScore:     analysis.QualityScore,
		RiskScore:        analysis.RiskScore,
		Priority:         decision.Priority,
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
		WorkflowType:     wf,
		Flags:            append([]string(nil), analysis.Flags...),
		EducationalNotes: policy.Notes(analysis),
		PatternVersion:   analysis.PatternVersion,
		AuditSample:      audit,
	}
	if previous != nil {
		prevID := previous.ID
		item.PreviousItemID = &prevID
	}
	if analysis.RedactedBody != sub.Body {
		item.SealedOriginal = s.seal(ctx, item.ID, sub.Body)
	}

	submitted := models.NewAction(item, models.SystemActor, models.ActionSubmit, "", now)
	submitted.Reason = string(decision.Action)
	actions := []models.ModerationAction{submitted}
	if decision.Action == policy.Reject {
		item.ProposedStatus = models.StatusRejected
		actions = append(actions, s.queue.escalate(item, models.SystemActor, models.ActionEscalate,
			models.ReasonAutoRejected, models.UrgencyUrgent, now))
	}

	if err := s.queue.store.CreateItem(ctx, item, actions...); err != nil {
		return nil, err
	}

	s.logger().Info("Queued submission for review",
		"item_id", item.ID,
		"content_id", fingerprint,
		"decision", decision.Action,
		"risk_score", item.RiskScore,
		"priority", item.Priority,
		"workflow", item.WorkflowType,
		"audit_sample", audit,
	)
	s.queue.publish(ctx, events.NewQueueItemCreated(item))
	s.queue.afterCommit(ctx, nil, item, actions)
	return item, nil
}

// seal keeps the unredacted body for oversight. Without a sealer, or when
// sealing fails, the original is dropped rather than stored in clear.
func (s *SubmissionService) seal(ctx context.Context, itemID uuid.UUID, original string) string {
	if s.sealer == nil {
		return ""
	}
	sealed, err := s.sealer.Seal(ctx, original)
	if err != nil {
		s.logger().Warn("Failed to seal original content", "error", err, "item_id", itemID)
		return ""
	}
	return sealed
}

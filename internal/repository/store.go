package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edumod/internal/apperrors"
	"edumod/internal/models"

	"github.com/google/uuid"
)

// ItemStore persists moderation items together with their audit trail.
// TransitionItem is the only way to change a stored item: it succeeds only
// when the stored version still equals expectedVersion, and it appends the
// given actions in the same atomic step.
type ItemStore interface {
	CreateItem(ctx context.Context, item *models.ModerationItem, actions ...models.ModerationAction) error
	GetItem(ctx context.Context, id uuid.UUID) (*models.ModerationItem, error)
	TransitionItem(ctx context.Context, item *models.ModerationItem, expectedVersion int64, actions ...models.ModerationAction) error
	ListItems(ctx context.Context, query models.ItemQuery) ([]*models.ModerationItem, int, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.ModerationItem, error)
	FindOpenByContent(ctx context.Context, contentID string) (*models.ModerationItem, error)
	ListActions(ctx context.Context, itemID uuid.UUID) ([]models.ModerationAction, error)
	// AppendAction audits an event that leaves the item unchanged
	AppendAction(ctx context.Context, action models.ModerationAction) error
	QueueStats(ctx context.Context, now time.Time) (*models.QueueStats, error)
}

// ModeratorStore persists moderators and their lifetime counters
type ModeratorStore interface {
	GetModerator(ctx context.Context, id string) (*models.Moderator, error)
	SaveModerator(ctx context.Context, moderator *models.Moderator) error
	ListModerators(ctx context.Context) ([]*models.Moderator, error)
	RecordActivity(ctx context.Context, moderatorID string, kind models.ActionKind, at time.Time) error
}

// Store is the full persistence surface used by the services
type Store interface {
	ItemStore
	ModeratorStore
	Ping(ctx context.Context) error
	Close() error
}

// storageErr marks a driver failure as StorageUnavailable while keeping the cause
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %v", op, apperrors.ErrStorageUnavailable, err)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, apperrors.ErrNotFound)
}

func validateNewItem(item *models.ModerationItem) error {
	if item.ID == uuid.Nil {
		return fmt.Errorf("item id is required: %w", apperrors.ErrInvalidInput)
	}
	if !item.Status.Valid() {
		return fmt.Errorf("item status %q: %w", item.Status, apperrors.ErrInvalidInput)
	}
	if item.RiskScore < 0 || item.RiskScore > 1 {
		return fmt.Errorf("risk score %v out of range: %w", item.RiskScore, apperrors.ErrInvalidInput)
	}
	return nil
}

// matches applies the non-paging parts of a query
func matches(item *models.ModerationItem, q models.ItemQuery) bool {
	if len(q.Statuses) > 0 {
		found := false
		for _, s := range q.Statuses {
			if item.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.MaxRisk != nil && item.RiskScore > *q.MaxRisk {
		return false
	}
	if q.AssignedTo != "" && !item.AssignedToModerator(q.AssignedTo) {
		return false
	}
	if q.WorkflowType != "" && item.WorkflowType != q.WorkflowType {
		return false
	}
	return true
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"edumod/internal/apperrors"
	"edumod/internal/models"
	"edumod/internal/workflow"

	"github.com/google/uuid"
)

type itemEntry struct {
	mu      sync.Mutex
	item    *models.ModerationItem
	actions []models.ModerationAction
}

// MemoryStore keeps everything in process. The index lock is held only to
// find or insert an entry; each item has its own lock, so transitions on
// different items never wait on each other.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[uuid.UUID]*itemEntry
	byContent map[string]uuid.UUID

	modMu      sync.RWMutex
	moderators map[string]*models.Moderator
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:      make(map[uuid.UUID]*itemEntry),
		byContent:  make(map[string]uuid.UUID),
		moderators: make(map[string]*models.Moderator),
	}
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// CreateItem stores a new item with its initial audit records
func (s *MemoryStore) CreateItem(ctx context.Context, item *models.ModerationItem, actions ...models.ModerationAction) error {
	if err := ctx.Err(); err != nil {
		return storageErr("create item", err)
	}
	if err := validateNewItem(item); err != nil {
		return err
	}

	if item.Version == 0 {
		item.Version = 1
	}
	entry := &itemEntry{
		item:    item.Clone(),
		actions: append([]models.ModerationAction(nil), actions...),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("item %s already exists: %w", item.ID, apperrors.ErrStateConflict)
	}
	s.items[item.ID] = entry
	if item.ContentID != "" && item.Status.Open() {
		s.byContent[item.ContentID] = item.ID
	}
	return nil
}

func (s *MemoryStore) entry(id uuid.UUID) (*itemEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	return e, ok
}

// GetItem returns a copy of the stored item
func (s *MemoryStore) GetItem(ctx context.Context, id uuid.UUID) (*models.ModerationItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("get item", err)
	}
	e, ok := s.entry(id)
	if !ok {
		return nil, notFound("item", id.String())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.item.Clone(), nil
}

// TransitionItem replaces the stored item if its version still matches
func (s *MemoryStore) TransitionItem(ctx context.Context, item *models.ModerationItem, expectedVersion int64, actions ...models.ModerationAction) error {
	if err := ctx.Err(); err != nil {
		return storageErr("transition item", err)
	}
	e, ok := s.entry(item.ID)
	if !ok {
		return notFound("item", item.ID.String())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.item.Version != expectedVersion {
		return fmt.Errorf("item %s at version %d, expected %d: %w",
			item.ID, e.item.Version, expectedVersion, apperrors.ErrStateConflict)
	}
	if e.item.Status.Terminal() {
		return fmt.Errorf("item %s is %s: %w", item.ID, e.item.Status, apperrors.ErrInvalidTransition)
	}

	item.Version = expectedVersion + 1
	e.item = item.Clone()
	e.actions = append(e.actions, actions...)
	return nil
}

func (s *MemoryStore) snapshot() []*models.ModerationItem {
	s.mu.RLock()
	entries := make([]*itemEntry, 0, len(s.items))
	for _, e := range s.items {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*models.ModerationItem, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.item.Clone())
		e.mu.Unlock()
	}
	return out
}

// ListItems returns matching items ordered by priority desc then createdAt asc
func (s *MemoryStore) ListItems(ctx context.Context, q models.ItemQuery) ([]*models.ModerationItem, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, storageErr("list items", err)
	}

	var filtered []*models.ModerationItem
	for _, item := range s.snapshot() {
		if matches(item, q) {
			filtered = append(filtered, item)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	total := len(filtered)
	start := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	return filtered[start:end], total, nil
}

// ListOverdue returns in_review items whose deadline has passed, oldest deadline first
func (s *MemoryStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.ModerationItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("list overdue", err)
	}

	var overdue []*models.ModerationItem
	for _, item := range s.snapshot() {
		if item.Status == models.StatusInReview && item.ReviewDeadline != nil && item.ReviewDeadline.Before(now) {
			overdue = append(overdue, item)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].ReviewDeadline.Before(*overdue[j].ReviewDeadline)
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}

// FindOpenByContent returns the open item for a content fingerprint
func (s *MemoryStore) FindOpenByContent(ctx context.Context, contentID string) (*models.ModerationItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("find item by content", err)
	}

	s.mu.RLock()
	id, ok := s.byContent[contentID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("open item for content", contentID)
	}

	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.Status.Open() {
		return nil, notFound("open item for content", contentID)
	}
	return item, nil
}

// ListActions returns the audit trail of an item in append order
func (s *MemoryStore) ListActions(ctx context.Context, itemID uuid.UUID) ([]models.ModerationAction, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("list actions", err)
	}
	e, ok := s.entry(itemID)
	if !ok {
		return nil, notFound("item", itemID.String())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.ModerationAction(nil), e.actions...), nil
}

// AppendAction adds an audit record without touching the item
func (s *MemoryStore) AppendAction(ctx context.Context, action models.ModerationAction) error {
	if err := ctx.Err(); err != nil {
		return storageErr("append action", err)
	}
	e, ok := s.entry(action.ItemID)
	if !ok {
		return notFound("item", action.ItemID.String())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, action)
	return nil
}

// QueueStats counts items per status and workflow
func (s *MemoryStore) QueueStats(ctx context.Context, now time.Time) (*models.QueueStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("queue stats", err)
	}

	stats := &models.QueueStats{
		ByStatus:   make(map[models.Status]int),
		ByWorkflow: make(map[workflow.Type]int),
	}
	for _, item := range s.snapshot() {
		stats.Total++
		stats.ByStatus[item.Status]++
		stats.ByWorkflow[item.WorkflowType]++
		if item.Status == models.StatusInReview && item.ReviewDeadline != nil && item.ReviewDeadline.Before(now) {
			stats.Overdue++
		}
		if item.Status == models.StatusEscalated || item.Status == models.StatusPendingOversight {
			stats.OpenEscalation++
		}
	}
	return stats, nil
}

// GetModerator returns a copy of a moderator
func (s *MemoryStore) GetModerator(ctx context.Context, id string) (*models.Moderator, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("get moderator", err)
	}
	s.modMu.RLock()
	defer s.modMu.RUnlock()
	m, ok := s.moderators[id]
	if !ok {
		return nil, notFound("moderator", id)
	}
	c := *m
	return &c, nil
}

// SaveModerator inserts or replaces a moderator
func (s *MemoryStore) SaveModerator(ctx context.Context, moderator *models.Moderator) error {
	if err := ctx.Err(); err != nil {
		return storageErr("save moderator", err)
	}
	if moderator.ID == "" {
		return fmt.Errorf("moderator id is required: %w", apperrors.ErrInvalidInput)
	}
	c := *moderator
	s.modMu.Lock()
	defer s.modMu.Unlock()
	s.moderators[moderator.ID] = &c
	return nil
}

// ListModerators returns all moderators ordered by id
func (s *MemoryStore) ListModerators(ctx context.Context) ([]*models.Moderator, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("list moderators", err)
	}
	s.modMu.RLock()
	defer s.modMu.RUnlock()
	out := make([]*models.Moderator, 0, len(s.moderators))
	for _, m := range s.moderators {
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecordActivity bumps the moderator's counter for kind and their last activity
func (s *MemoryStore) RecordActivity(ctx context.Context, moderatorID string, kind models.ActionKind, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return storageErr("record activity", err)
	}
	s.modMu.Lock()
	defer s.modMu.Unlock()
	m, ok := s.moderators[moderatorID]
	if !ok {
		return notFound("moderator", moderatorID)
	}
	m.Stats.Record(kind)
	m.LastActiveAt = &at
	m.UpdatedAt = at
	return nil
}

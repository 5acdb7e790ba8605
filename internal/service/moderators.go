package service

import (
	"context"
	"fmt"
	"strings"

	"edumod/internal/apperrors"
	"edumod/internal/models"
	"edumod/internal/repository"
	"edumod/internal/roles"
)

// ModeratorService manages moderator records
type ModeratorService struct {
	store    repository.ModeratorStore
	registry *roles.Registry
}

// NewModeratorService creates a new moderator service
func NewModeratorService(store repository.ModeratorStore, registry *roles.Registry) *ModeratorService {
	return &ModeratorService{store: store, registry: registry}
}

// Register creates or updates a moderator; limits always follow the tier
func (s *ModeratorService) Register(ctx context.Context, id, name string, tier roles.Tier) (*models.Moderator, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == models.SystemActor {
		return nil, fmt.Errorf("invalid moderator id %q: %w", id, apperrors.ErrInvalidInput)
	}
	mod, ok := models.NewModerator(id, name, tier, s.registry)
	if !ok {
		return nil, fmt.Errorf("unknown tier %d: %w", tier, apperrors.ErrInvalidInput)
	}

	if existing, err := s.store.GetModerator(ctx, id); err == nil {
		mod.Stats = existing.Stats
		mod.CreatedAt = existing.CreatedAt
		mod.LastActiveAt = existing.LastActiveAt
	}
	if err := s.store.SaveModerator(ctx, mod); err != nil {
		return nil, err
	}
	return mod, nil
}

// Get returns a moderator with lifetime statistics
func (s *ModeratorService) Get(ctx context.Context, id string) (*models.Moderator, error) {
	return s.store.GetModerator(ctx, id)
}

// List returns all moderators
func (s *ModeratorService) List(ctx context.Context) ([]*models.Moderator, error) {
	return s.store.ListModerators(ctx)
}

// SetActive activates or deactivates a moderator. Items held by an inactive
// moderator may be taken over by others.
func (s *ModeratorService) SetActive(ctx context.Context, id string, active bool) (*models.Moderator, error) {
	mod, err := s.store.GetModerator(ctx, id)
	if err != nil {
		return nil, err
	}
	mod.Active = active
	if err := s.store.SaveModerator(ctx, mod); err != nil {
		return nil, err
	}
	return mod, nil
}

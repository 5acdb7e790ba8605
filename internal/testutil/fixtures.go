package testutil

import (
	"context"
	"testing"
	"time"

	"edumod/internal/models"
	"edumod/internal/repository"
	"edumod/internal/roles"
	"edumod/internal/workflow"

	"github.com/google/uuid"
)

// Fixtures holds one active moderator per tier
type Fixtures struct {
	Store        repository.Store
	Junior       *models.Moderator
	Senior       *models.Moderator
	Professional *models.Moderator
}

// SetupFixtures stores a moderator for every tier
func SetupFixtures(t *testing.T, store repository.Store) *Fixtures {
	t.Helper()
	registry := roles.DefaultRegistry()

	return &Fixtures{
		Store:        store,
		Junior:       createModerator(t, store, registry, "junior-test", roles.Junior),
		Senior:       createModerator(t, store, registry, "senior-test", roles.Senior),
		Professional: createModerator(t, store, registry, "pro-test", roles.Professional),
	}
}

// For returns the fixture moderator of a tier
func (f *Fixtures) For(tier roles.Tier) *models.Moderator {
	switch tier {
	case roles.Professional:
		return f.Professional
	case roles.Senior:
		return f.Senior
	default:
		return f.Junior
	}
}

func createModerator(t *testing.T, store repository.Store, registry *roles.Registry, id string, tier roles.Tier) *models.Moderator {
	t.Helper()

	mod, ok := models.NewModerator(id, id, tier, registry)
	if !ok {
		t.Fatalf("Unknown tier %v", tier)
	}
	if err := store.SaveModerator(context.Background(), mod); err != nil {
		t.Fatalf("Failed to create moderator %s: %v", id, err)
	}
	return mod
}

// NewItem builds a pending item that has not been stored yet
func NewItem(risk float64, wf workflow.Type, priority int) *models.ModerationItem {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.ModerationItem{
		ID:           uuid.New(),
		ContentID:    uuid.NewString(),
		ContentType:  "post",
		Body:         "fixture body",
		RiskScore:    risk,
		Priority:     priority,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		WorkflowType: wf,
		Flags:        []string{},
	}
}

// CreateItem stores a pending item with its submit action
func CreateItem(t *testing.T, store repository.Store, risk float64, wf workflow.Type, priority int) *models.ModerationItem {
	t.Helper()

	item := NewItem(risk, wf, priority)
	submitted := models.NewAction(item, models.SystemActor, models.ActionSubmit, "", item.CreatedAt)
	if err := store.CreateItem(context.Background(), item, submitted); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	return item
}

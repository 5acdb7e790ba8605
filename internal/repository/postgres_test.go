package repository_test

import (
	"context"
	"testing"

	"edumod/internal/repository"
	"edumod/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	testutil.SkipIfShort(t)
	tc := testutil.SetupPostgres(t)

	runStoreContract(t, func(t *testing.T) repository.Store {
		t.Helper()
		if _, err := tc.DB.ExecContext(context.Background(),
			`TRUNCATE moderation_actions, moderation_items, moderators`); err != nil {
			t.Fatalf("Failed to reset tables: %v", err)
		}
		return repository.NewPostgresStore(tc.DB)
	})
}

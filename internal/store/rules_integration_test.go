//go:build integration

// Package store_test contains integration tests for the Data Access Layer.
// The '_test' suffix enforces black-box testing through the exported API.
package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/store"
	"github.com/rafaeljc/phishguard/internal/testsupport"
)

// TestPostgresStore_Integration runs sequential scenarios against one PostgreSQL container.
func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err, "failed to start postgres container")
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	repo := store.NewPostgresStore(pgContainer.DB)

	t.Run("Should seed the default library once", func(t *testing.T) {
		defs := ruleengine.DefaultDefinitions()

		n, err := repo.SeedRules(ctx, defs)
		require.NoError(t, err)
		assert.Equal(t, len(defs), n)

		again, err := repo.SeedRules(ctx, defs)
		require.NoError(t, err)
		assert.Zero(t, again, "seeding must not duplicate or overwrite rules")
	})

	t.Run("Should return enabled rules in seed order per kind", func(t *testing.T) {
		recs, err := repo.ListEnabledRules(ctx)
		require.NoError(t, err)

		var urlNames []string
		for _, r := range recs {
			if r.Kind == ruleengine.KindURL {
				urlNames = append(urlNames, r.Name)
			}
		}

		var want []string
		for _, d := range ruleengine.DefaultURLDefinitions() {
			want = append(want, d.Name)
		}
		assert.Equal(t, want, urlNames)
	})

	t.Run("Should create a rule at the end of its kind", func(t *testing.T) {
		rec := store.RecordFromDefinition(ruleengine.Definition{
			Name:   "blocked_hosts",
			Kind:   ruleengine.KindURL,
			Type:   ruleengine.RuleTypeBlocklist,
			Weight: 0.5,
			Value:  json.RawMessage(`{"hosts":["evil.test"]}`),
		})

		require.NoError(t, repo.CreateRule(ctx, rec))
		assert.NotZero(t, rec.ID)
		assert.Equal(t, int64(1), rec.Version)
		assert.Equal(t, len(ruleengine.DefaultURLDefinitions()), rec.Position)
		assert.False(t, rec.CreatedAt.IsZero())
	})

	t.Run("Should reject duplicate names within a kind", func(t *testing.T) {
		rec := store.RecordFromDefinition(ruleengine.Definition{Name: "blocked_hosts", Kind: ruleengine.KindURL, Type: "IP_HOST"})
		err := repo.CreateRule(ctx, rec)
		assert.ErrorIs(t, err, store.ErrRuleExists)
	})

	t.Run("Should get a rule with its parameters", func(t *testing.T) {
		rec, err := repo.GetRule(ctx, ruleengine.KindURL, "blocked_hosts")
		require.NoError(t, err)
		assert.JSONEq(t, `{"hosts":["evil.test"]}`, string(rec.Value))

		_, err = repo.GetRule(ctx, ruleengine.KindEmail, "blocked_hosts")
		assert.ErrorIs(t, err, store.ErrRuleNotFound)
	})

	t.Run("Should update with optimistic locking", func(t *testing.T) {
		rec, err := repo.GetRule(ctx, ruleengine.KindURL, "blocked_hosts")
		require.NoError(t, err)

		stale := *rec
		rec.Weight = 0.7
		rec.Enabled = false
		require.NoError(t, repo.UpdateRule(ctx, rec))
		assert.Equal(t, int64(2), rec.Version)

		stale.Weight = 0.1
		err = repo.UpdateRule(ctx, &stale)
		assert.ErrorIs(t, err, store.ErrVersionConflict)

		missing := *rec
		missing.Name = "does-not-exist"
		err = repo.UpdateRule(ctx, &missing)
		assert.ErrorIs(t, err, store.ErrRuleNotFound)
	})

	t.Run("Should exclude disabled rules from the enabled listing", func(t *testing.T) {
		recs, err := repo.ListEnabledRules(ctx)
		require.NoError(t, err)
		for _, r := range recs {
			assert.NotEqual(t, "blocked_hosts", r.Name)
		}
	})

	t.Run("Should paginate with totals", func(t *testing.T) {
		total := len(ruleengine.DefaultDefinitions()) + 1

		page, count, err := repo.ListRules(ctx, "", 3, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(total), count)
		assert.Len(t, page, 3)

		emails, count, err := repo.ListRules(ctx, ruleengine.KindEmail, 100, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(len(ruleengine.DefaultEmailDefinitions())), count)
		for _, r := range emails {
			assert.Equal(t, ruleengine.KindEmail, r.Kind)
		}
	})

	t.Run("Should delete a rule", func(t *testing.T) {
		require.NoError(t, repo.DeleteRule(ctx, ruleengine.KindURL, "blocked_hosts"))

		err := repo.DeleteRule(ctx, ruleengine.KindURL, "blocked_hosts")
		assert.ErrorIs(t, err, store.ErrRuleNotFound)
	})

	t.Run("Should build rule sets from stored definitions", func(t *testing.T) {
		recs, err := repo.ListEnabledRules(ctx)
		require.NoError(t, err)

		defs := make([]ruleengine.Definition, len(recs))
		for i, r := range recs {
			defs[i] = r.Definition()
		}

		for kind, group := range ruleengine.Partition(defs) {
			rs, err := ruleengine.BuildDefinitions(group)
			require.NoError(t, err, fmt.Sprintf("kind %s", kind))
			assert.Equal(t, ruleengine.DefaultRuleSets()[kind].Version(), rs.Version(),
				"stored definitions must reproduce the built-in rule set")
		}
	})
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/pkg/logger"
)

func TestKeyRepository_FindVerificationRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("assembles the full aggregate", func(t *testing.T) {
		f := newFixture(t)
		repo := NewKeyRepository(f.db, time.Second, logger.NewNoopLogger())

		expires := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
		remaining := int64(7)
		f.create(t, &models.Identity{ID: "id_1", ExternalID: "user_42", WorkspaceID: "ws_1"})
		f.key(t, "key_1", "hash_1", func(k *models.Key) {
			k.IdentityID = strPtr("id_1")
			k.Expires = &expires
			k.Remaining = &remaining
		})
		f.create(t,
			&models.Permission{ID: "perm_1", WorkspaceID: "ws_1", Slug: "documents.read"},
			&models.Permission{ID: "perm_2", WorkspaceID: "ws_1", Slug: "documents.write"},
			&models.Role{ID: "role_1", WorkspaceID: "ws_1", Name: "editor"},
			&models.KeyPermission{KeyID: "key_1", PermissionID: "perm_1"},
			&models.KeyRole{KeyID: "key_1", RoleID: "role_1"},
			&models.RolePermission{RoleID: "role_1", PermissionID: "perm_1"},
			&models.RolePermission{RoleID: "role_1", PermissionID: "perm_2"},
			&models.RateLimit{ID: "rl_1", Name: "requests", Limit: 10, Duration: 1000, AutoApply: true, IdentityID: strPtr("id_1")},
			&models.RateLimit{ID: "rl_2", Name: "tokens", Limit: 100, Duration: 60000, IdentityID: strPtr("id_1")},
			&models.RateLimit{ID: "rl_3", Name: "requests", Limit: 5, Duration: 1000, AutoApply: true, KeyID: strPtr("key_1")},
		)

		rec, err := repo.FindVerificationRecord(ctx, "hash_1")
		require.NoError(t, err)
		require.NotNil(t, rec)

		assert.Equal(t, "key_1", rec.Key.ID)
		assert.Equal(t, "api_1", rec.Api.ID)
		require.NotNil(t, rec.OwningWorkspace)
		assert.True(t, rec.OwningWorkspace.Enabled)
		assert.Nil(t, rec.ForWorkspace)
		require.NotNil(t, rec.Identity)
		assert.Equal(t, "user_42", rec.Identity.ExternalID)

		assert.Equal(t, []string{"documents.read", "documents.write"}, rec.Permissions)
		assert.Equal(t, []string{"editor"}, rec.Roles)

		require.Len(t, rec.Ratelimits, 2)
		assert.Equal(t, int64(5), rec.Ratelimits["requests"].Limit)
		assert.Equal(t, int64(100), rec.Ratelimits["tokens"].Limit)

		require.NotNil(t, rec.Key.Expires)
		assert.Equal(t, expires.UnixMilli(), rec.Key.Expires.UnixMilli())
		require.NotNil(t, rec.Key.Remaining)
		assert.Equal(t, int64(7), *rec.Key.Remaining)
	})

	t.Run("unknown hash is not found", func(t *testing.T) {
		f := newFixture(t)
		repo := NewKeyRepository(f.db, time.Second, logger.NewNoopLogger())

		rec, err := repo.FindVerificationRecord(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("soft-deleted key is not found", func(t *testing.T) {
		f := newFixture(t)
		repo := NewKeyRepository(f.db, time.Second, logger.NewNoopLogger())
		k := f.key(t, "key_1", "hash_1")
		require.NoError(t, f.db.Delete(k).Error)

		rec, err := repo.FindVerificationRecord(ctx, "hash_1")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("deleted api is not found", func(t *testing.T) {
		f := newFixture(t)
		repo := NewKeyRepository(f.db, time.Second, logger.NewNoopLogger())
		f.key(t, "key_1", "hash_1")
		require.NoError(t, f.db.Delete(&f.api).Error)

		rec, err := repo.FindVerificationRecord(ctx, "hash_1")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("key without keyspace is not found", func(t *testing.T) {
		f := newFixture(t)
		repo := NewKeyRepository(f.db, time.Second, logger.NewNoopLogger())
		f.key(t, "key_1", "hash_1", func(k *models.Key) { k.KeyAuthID = "ks_missing" })

		rec, err := repo.FindVerificationRecord(ctx, "hash_1")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("missing owning workspace leaves a gap", func(t *testing.T) {
		f := newFixture(t)
		repo := NewKeyRepository(f.db, time.Second, logger.NewNoopLogger())
		f.key(t, "key_1", "hash_1", func(k *models.Key) { k.WorkspaceID = "ws_unknown" })

		rec, err := repo.FindVerificationRecord(ctx, "hash_1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Nil(t, rec.OwningWorkspace)
		assert.Empty(t, rec.Permissions)
		assert.Empty(t, rec.Ratelimits)
	})

	t.Run("root key resolves its target workspace", func(t *testing.T) {
		f := newFixture(t)
		repo := NewKeyRepository(f.db, time.Second, logger.NewNoopLogger())
		f.create(t, &models.Workspace{ID: "ws_target", Name: "customer", Enabled: false})
		f.key(t, "key_root", "hash_root", func(k *models.Key) { k.ForWorkspaceID = strPtr("ws_target") })

		rec, err := repo.FindVerificationRecord(ctx, "hash_root")
		require.NoError(t, err)
		require.NotNil(t, rec)
		require.NotNil(t, rec.ForWorkspace)
		assert.Equal(t, "ws_target", rec.ForWorkspace.ID)
		assert.False(t, rec.ForWorkspace.Enabled)
		assert.True(t, rec.Key.IsRootKey())
	})
}

func TestMergeRatelimits(t *testing.T) {
	merged := mergeRatelimits([]models.RateLimit{
		{Name: "a", Limit: 1, KeyID: strPtr("k")},
		{Name: "a", Limit: 2, IdentityID: strPtr("i")},
		{Name: "b", Limit: 3, IdentityID: strPtr("i")},
	})
	assert.Equal(t, int64(1), merged["a"].Limit)
	assert.Equal(t, int64(3), merged["b"].Limit)
}

func TestDedupeSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupeSorted([]string{"c", "a", "b", "a"}))
	assert.Empty(t, dedupeSorted(nil))
}

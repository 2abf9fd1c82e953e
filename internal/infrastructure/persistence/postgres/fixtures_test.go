package postgres

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/apikeyd/internal/domain/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "apikeyd.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllTables()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	db        *gorm.DB
	workspace models.Workspace
	api       models.Api
	keyAuth   models.KeyAuth
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:        newTestDB(t),
		workspace: models.Workspace{ID: "ws_1", Name: "acme", Enabled: true},
		api:       models.Api{ID: "api_1", WorkspaceID: "ws_1", Name: "payments"},
		keyAuth:   models.KeyAuth{ID: "ks_1", WorkspaceID: "ws_1", ApiID: "api_1"},
	}
	f.create(t, &f.workspace, &f.api, &f.keyAuth)
	return f
}

func (f *fixture) create(t *testing.T, values ...interface{}) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, f.db.Create(v).Error)
	}
}

func (f *fixture) key(t *testing.T, id, hash string, mutate ...func(*models.Key)) *models.Key {
	t.Helper()
	k := &models.Key{
		ID:          id,
		Hash:        hash,
		Start:       "sk_",
		WorkspaceID: f.workspace.ID,
		KeyAuthID:   f.keyAuth.ID,
		Enabled:     true,
		CreatedAt:   time.Now().UTC(),
	}
	for _, m := range mutate {
		m(k)
	}
	f.create(t, k)
	return k
}

func strPtr(s string) *string { return &s }

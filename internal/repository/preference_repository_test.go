package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cafezinho/discovery/internal/db"
	"github.com/cafezinho/discovery/internal/repository"
)

// setup in-memory DB
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

func TestPreferenceSet_Overwrites(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPreferenceRepository(setupTestDB(t))

	require.NoError(t, repo.Set(ctx, "session:1", "token", "a"))
	require.NoError(t, repo.Set(ctx, "session:1", "token", "b"))

	v, err := repo.Get(ctx, "session:1", "token")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestPreferenceGet_Missing(t *testing.T) {
	repo := repository.NewPreferenceRepository(setupTestDB(t))

	_, err := repo.Get(context.Background(), "session:1", "token")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPreferenceListDeleteClear(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPreferenceRepository(setupTestDB(t))

	_ = repo.Set(ctx, "session:1", "token", "t")
	_ = repo.Set(ctx, "session:1", "filters", "{}")
	_ = repo.Set(ctx, "session:2", "token", "other")

	all, err := repo.List(ctx, "session:1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"token": "t", "filters": "{}"}, all)

	require.NoError(t, repo.Delete(ctx, "session:1", "filters"))
	all, _ = repo.List(ctx, "session:1")
	assert.Len(t, all, 1)

	require.NoError(t, repo.Clear(ctx, "session:1"))
	all, _ = repo.List(ctx, "session:1")
	assert.Empty(t, all)

	// other namespaces untouched
	v, err := repo.Get(ctx, "session:2", "token")
	require.NoError(t, err)
	assert.Equal(t, "other", v)
}

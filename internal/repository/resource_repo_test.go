package repository

import (
	"context"
	"testing"
	"time"

	"crawlsync/internal/model"
	"crawlsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResource(id int64, url string) *model.Resource {
	return &model.Resource{
		ID:          id,
		SourceURL:   url,
		ContentHash: "h1",
		Title:       "title",
		Body:        "body",
		FetchedAt:   t0,
		Version:     1,
	}
}

func TestResourceRepository_GetBySourceURL(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewResourceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, newResource(1, "https://example.com/a")))

	got, err := repo.GetBySourceURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 1, got.ID)

	missing, err := repo.GetBySourceURL(ctx, "https://example.com/b")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.GetByID(ctx, 42)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestResourceRepository_SourceURLIsUnique(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewResourceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, newResource(1, "https://example.com/a")))
	assert.Error(t, repo.Create(ctx, nil, newResource(2, "https://example.com/a")))
}

func TestResourceRepository_UpdateContent_OptimisticLock(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewResourceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, newResource(1, "https://example.com/a")))

	upd := newResource(1, "https://example.com/a")
	upd.ContentHash = "h2"
	upd.Body = "new body"
	upd.UpdatedAt = t0.Add(time.Minute)
	require.NoError(t, repo.UpdateContent(ctx, db, upd, 1))
	assert.EqualValues(t, 2, upd.Version)

	stale := newResource(1, "https://example.com/a")
	stale.ContentHash = "h3"
	assert.ErrorIs(t, repo.UpdateContent(ctx, db, stale, 1), ErrOptimisticLock)

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Version)
	assert.Equal(t, "h2", got.ContentHash)
}

func TestResourceRepository_MarkDeleted(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewResourceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, newResource(1, "https://example.com/a")))
	require.NoError(t, repo.MarkDeleted(ctx, db, 1, 1, t0))

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.EqualValues(t, 2, got.Version)

	assert.ErrorIs(t, repo.MarkDeleted(ctx, db, 1, 2, t0), ErrResourceDeleted)

	upd := newResource(1, "https://example.com/a")
	assert.ErrorIs(t, repo.UpdateContent(ctx, db, upd, 2), ErrResourceDeleted)
}

func TestResourceRepository_TouchFetchedAt(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewResourceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, newResource(1, "https://example.com/a")))
	later := t0.Add(time.Hour)
	require.NoError(t, repo.TouchFetchedAt(ctx, 1, later))

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.FetchedAt.Equal(later))
	assert.EqualValues(t, 1, got.Version)
}

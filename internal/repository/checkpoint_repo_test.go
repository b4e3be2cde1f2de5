package repository

import (
	"context"
	"testing"

	"crawlsync/internal/model"
	"crawlsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRepository_AdvanceOnlyMovesForward(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewCheckpointRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Advance(ctx, nil, 1, 5, model.EventTypeCreated, t0))
	require.NoError(t, repo.Advance(ctx, nil, 1, 3, model.EventTypeUpdated, t0))

	cp, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5, cp.SequenceID)
	assert.Equal(t, model.EventTypeCreated, cp.EventType)

	require.NoError(t, repo.Advance(ctx, nil, 1, 9, model.EventTypeDeleted, t0))
	cp, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 9, cp.SequenceID)
	assert.Equal(t, model.EventTypeDeleted, cp.EventType)

	missing, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

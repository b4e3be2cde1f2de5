package job

import (
	"context"
	"testing"
	"time"

	"crawlsync/internal/config"
	"crawlsync/internal/model"
	"crawlsync/internal/repository"
	"crawlsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func finishEvent(t *testing.T, db *gorm.DB, ev *model.OutboxEvent, status string, processedAt time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&model.OutboxEvent{}).
		Where("sequence_id = ?", ev.SequenceID).
		Updates(map[string]interface{}{"status": status, "processed_at": processedAt}).Error)
}

func TestOutboxPruneJob_RemovesOnlyExpiredDoneEvents(t *testing.T) {
	db := testutil.NewDB(t)

	oldDone := seedEvent(t, db, 1, model.EventTypeCreated, "a")
	oldFailed := seedEvent(t, db, 2, model.EventTypeCreated, "b")
	freshDone := seedEvent(t, db, 3, model.EventTypeCreated, "c")
	pending := seedEvent(t, db, 4, model.EventTypeCreated, "d")

	finishEvent(t, db, oldDone, model.OutboxStatusDone, t0.Add(-10*24*time.Hour))
	finishEvent(t, db, oldFailed, model.OutboxStatusFailed, t0.Add(-10*24*time.Hour))
	finishEvent(t, db, freshDone, model.OutboxStatusDone, t0.Add(-time.Hour))

	job := NewOutboxPruneJob(db, &config.DispatcherConfig{Retention: 7 * 24 * time.Hour})
	job.now = func() time.Time { return t0 }
	job.batchSize = 1

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	repo := repository.NewOutboxRepository(db)
	_, err = repo.GetBySequenceID(context.Background(), oldDone.SequenceID)
	assert.ErrorIs(t, err, repository.ErrEventNotFound)

	for _, ev := range []*model.OutboxEvent{oldFailed, freshDone, pending} {
		_, err := repo.GetBySequenceID(context.Background(), ev.SequenceID)
		assert.NoError(t, err)
	}
}

func TestOutboxPruneJob_DrainsInBatches(t *testing.T) {
	db := testutil.NewDB(t)
	for i := int64(1); i <= 5; i++ {
		ev := seedEvent(t, db, i, model.EventTypeCreated, "x")
		finishEvent(t, db, ev, model.OutboxStatusDone, t0.Add(-30*24*time.Hour))
	}

	job := NewOutboxPruneJob(db, &config.DispatcherConfig{Retention: 24 * time.Hour})
	job.now = func() time.Time { return t0 }
	job.batchSize = 2

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestOutboxPruneJob_ZeroRetentionKeepsEverything(t *testing.T) {
	db := testutil.NewDB(t)
	ev := seedEvent(t, db, 1, model.EventTypeCreated, "a")
	finishEvent(t, db, ev, model.OutboxStatusDone, t0.Add(-365*24*time.Hour))

	job := NewOutboxPruneJob(db, &config.DispatcherConfig{})
	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxPruneJob_StopEndsStartAndIsIdempotent(t *testing.T) {
	job := NewOutboxPruneJob(testutil.NewDB(t), &config.DispatcherConfig{PruneEvery: time.Hour})

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	job.Stop()
	assert.NotPanics(t, job.Stop)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("prune job did not stop")
	}
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteStreamLifecycle(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stream := &models.Stream{
		ID:            "stream_0123456789abcdef",
		BroadcasterID: "user-1",
		Title:         "Rinjani summit",
		Status:        models.StreamStatusScheduled,
		Quality:       models.QualityMedium,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.CreateStream(ctx, stream))

	got, err := repo.GetStream(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rinjani summit", got.Title)
	assert.Nil(t, got.StartedAt)

	started := now.Add(time.Minute)
	got.Status = models.StreamStatusLive
	got.StartedAt = &started
	require.NoError(t, repo.UpdateStream(ctx, got))

	live, err := repo.ListStreamsByStatus(ctx, models.StreamStatusLive)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.NotNil(t, live[0].StartedAt)
	assert.True(t, live[0].StartedAt.Equal(started))

	require.NoError(t, repo.SetViewerCount(ctx, stream.ID, 7))
	got, err = repo.GetStream(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.ViewerCount)
}

func TestSQLiteMissingStream(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	_, err := repo.GetStream(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.SetViewerCount(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.UpdateStream(ctx, &models.Stream{ID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteMessages(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, repo.CreateMessage(ctx, &models.ChatMessage{
			ID:        ulid.Make().String(),
			StreamID:  "s1",
			Username:  "budi",
			Message:   text,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.CreateMessage(ctx, &models.ChatMessage{
		ID: ulid.Make().String(), StreamID: "s2", Username: "sari", Message: "elsewhere", CreatedAt: base,
	}))

	msgs, err := repo.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Message)
	assert.Equal(t, "third", msgs[2].Message)

	n, err := repo.DeleteMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	msgs, err = repo.ListMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = repo.ListMessages(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSQLiteClassificationsNewestFirst(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, cond := range []models.TrailCondition{models.ConditionClear, models.ConditionFoggy} {
		require.NoError(t, repo.CreateClassification(ctx, &models.Classification{
			ID:         ulid.Make().String(),
			StreamID:   "s1",
			Condition:  cond,
			Confidence: 0.8,
			Status:     models.ClassificationSuccess,
			Attempts:   1,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := repo.ListClassifications(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.ConditionFoggy, records[0].Condition)

	records, err = repo.ListClassifications(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

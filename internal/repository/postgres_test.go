package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/models"
)

// newTestPostgres connects to TEST_DATABASE_URL and skips when it is unset.
func newTestPostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := NewPostgresRepository(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestPostgresStreamLifecycle(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	stream := &models.Stream{
		ID:            "stream_" + ulid.Make().String(),
		BroadcasterID: "user-1",
		Title:         "Semeru at dawn",
		Status:        models.StreamStatusScheduled,
		Quality:       models.QualityHigh,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.CreateStream(ctx, stream))

	got, err := repo.GetStream(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, "Semeru at dawn", got.Title)
	assert.Nil(t, got.StartedAt)

	started := now.Add(time.Minute)
	got.Status = models.StreamStatusLive
	got.StartedAt = &started
	require.NoError(t, repo.UpdateStream(ctx, got))

	live, err := repo.ListStreamsByStatus(ctx, models.StreamStatusLive)
	require.NoError(t, err)
	var found *models.Stream
	for _, s := range live {
		if s.ID == stream.ID {
			found = s
		}
	}
	require.NotNil(t, found)
	require.NotNil(t, found.StartedAt)
	assert.True(t, found.StartedAt.Equal(started))

	require.NoError(t, repo.SetViewerCount(ctx, stream.ID, 4))
	got, err = repo.GetStream(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.ViewerCount)
}

func TestPostgresMissingStream(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	id := "stream_" + ulid.Make().String()

	_, err := repo.GetStream(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.SetViewerCount(ctx, id, 1), ErrNotFound)
	assert.ErrorIs(t, repo.UpdateStream(ctx, &models.Stream{ID: id}), ErrNotFound)
}

func TestPostgresMessages(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	base := time.Now().UTC()
	streamID := "stream_" + ulid.Make().String()

	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, repo.CreateMessage(ctx, &models.ChatMessage{
			ID:        ulid.Make().String(),
			StreamID:  streamID,
			Username:  "budi",
			Message:   text,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := repo.ListMessages(ctx, streamID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Message)
	assert.Equal(t, "third", msgs[2].Message)

	n, err := repo.DeleteMessages(ctx, streamID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	msgs, err = repo.ListMessages(ctx, streamID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPostgresClassificationsNewestFirst(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	base := time.Now().UTC()
	streamID := "stream_" + ulid.Make().String()

	for i, cond := range []models.TrailCondition{models.ConditionCloudy, models.ConditionSnowy, models.ConditionMuddy} {
		require.NoError(t, repo.CreateClassification(ctx, &models.Classification{
			ID:         ulid.Make().String(),
			StreamID:   streamID,
			Condition:  cond,
			Confidence: 0.6,
			Status:     models.ClassificationSuccess,
			Attempts:   1,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := repo.ListClassifications(ctx, streamID, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.ConditionMuddy, records[0].Condition)
	assert.Equal(t, models.ConditionSnowy, records[1].Condition)
}

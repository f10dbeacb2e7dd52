package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Companion-Memory/server/internal/config"
	"Companion-Memory/server/internal/models"
)

func newSQLiteLog(t *testing.T) *GormLog {
	t.Helper()
	log, err := NewGormLog(config.ProviderSQLite, "file::memory:", config.Default().Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestClockIsStrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &Clock{now: func() time.Time { return fixed }}

	first := clock.Now()
	second := clock.Now()
	third := clock.Now()

	assert.True(t, first.Equal(fixed))
	assert.True(t, second.After(first))
	assert.True(t, third.After(second))
}

func TestClockConcurrent(t *testing.T) {
	clock := NewClock()
	seen := make(map[int64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ts := clock.Now().UnixMicro()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1000)
}

func TestNewMessageIDSortable(t *testing.T) {
	now := time.Now()
	a := NewMessageID(now)
	b := NewMessageID(now)
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func TestGormLogAppendAndRecent(t *testing.T) {
	log := newSQLiteLog(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, log.Append(ctx, &models.Message{
			UserID: "u1",
			Text:   fmt.Sprintf("u1: message %d", i),
			Mood:   models.MoodNeutral,
		}))
	}
	require.NoError(t, log.Append(ctx, &models.Message{UserID: "u2", Text: "u2: hi", Mood: models.MoodPositive}))

	recent, err := log.Recent(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	for i, msg := range recent {
		assert.Equal(t, fmt.Sprintf("u1: message %d", 6-i), msg.Text)
		assert.Equal(t, "u1", msg.UserID)
		assert.Len(t, msg.ID, 26)
	}

	other, err := log.Recent(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, models.MoodPositive, other[0].Mood)

	none, err := log.Recent(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormLogAssignsIDAndTimestamp(t *testing.T) {
	log := newSQLiteLog(t)
	msg := &models.Message{UserID: "u1", Text: "u1: hello", Mood: models.MoodNeutral}

	require.NoError(t, log.Append(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestGormLogRecentNormalizesStoredMood(t *testing.T) {
	log := newSQLiteLog(t)
	ctx := context.Background()

	loud := &models.Message{UserID: "u1", Text: "u1: great", Mood: models.MoodPositive}
	odd := &models.Message{UserID: "u1", Text: "u1: hmm", Mood: models.MoodNeutral}
	require.NoError(t, log.Append(ctx, loud))
	require.NoError(t, log.Append(ctx, odd))
	require.NoError(t, log.db.Exec("UPDATE messages SET mood = ? WHERE id = ?", " POSITIVE", loud.ID).Error)
	require.NoError(t, log.db.Exec("UPDATE messages SET mood = ? WHERE id = ?", "furious", odd.ID).Error)

	recent, err := log.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, models.MoodNeutral, recent[0].Mood)
	assert.Equal(t, models.MoodPositive, recent[1].Mood)
}

func TestGormLogZeroLimit(t *testing.T) {
	log := newSQLiteLog(t)
	recent, err := log.Recent(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestNewConversationLogSQLite(t *testing.T) {
	creds, err := config.ParseDocStoreCredentials(`{"provider":"sqlite","dsn":"file::memory:"}`)
	require.NoError(t, err)

	log, err := NewConversationLog(context.Background(), creds, config.Default().Database)
	require.NoError(t, err)
	defer log.Close()

	_, ok := log.(*GormLog)
	assert.True(t, ok)
}

func TestNewConversationLogUnknownProvider(t *testing.T) {
	_, err := NewConversationLog(context.Background(), &config.DocStoreCredentials{Provider: "cassandra"}, config.Default().Database)
	assert.Error(t, err)
}

func TestMemoryKey(t *testing.T) {
	assert.Equal(t, "memory:abc", memoryKey("abc"))
}

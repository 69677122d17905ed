package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &Record{
		ID:           "c1",
		Title:        "A story",
		StoryText:    "TITLE: A story\nIt was a dark night.",
		BackgroundID: "minecraft",
		MusicID:      "lofi_beat",
	}
	require.NoError(t, s.Create(ctx, rec))

	got, ok, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A story", got.Title)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "minecraft", got.BackgroundID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteStore_GetUnknown(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_CreateRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &Record{ID: "c1", StoryText: "text"}))
	require.Error(t, s.Create(ctx, &Record{ID: "c1", StoryText: "other"}))
}

func TestSQLiteStore_StatusTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &Record{ID: "c1", StoryText: "text"}))

	require.NoError(t, s.MarkProcessing(ctx, "c1"))
	got, _, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)

	require.NoError(t, s.MarkCompleted(ctx, "c1", "/out/video_c1.mp4", "/tmp/voice_c1.mp3"))
	got, _, err = s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "/out/video_c1.mp4", got.VideoPath)
	assert.Equal(t, "/tmp/voice_c1.mp3", got.VoiceoverPath)
	assert.Empty(t, got.Error)
}

func TestSQLiteStore_MarkFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &Record{ID: "c1", StoryText: "text"}))
	require.NoError(t, s.MarkFailed(ctx, "c1", "encode blew up"))

	got, _, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "encode blew up", got.Error)
}

func TestSQLiteStore_UpdateUnknownID(t *testing.T) {
	s := newTestStore(t)

	err := s.MarkCompleted(context.Background(), "missing", "/v.mp4", "/a.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_SetSelections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &Record{ID: "c1", StoryText: "text"}))
	require.NoError(t, s.SetSelections(ctx, "c1", "nature_3", "tiktok_123"))

	got, _, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "nature_3", got.BackgroundID)
	assert.Equal(t, "tiktok_123", got.MusicID)
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &Record{ID: "older", StoryText: "a"}))
	older, _, err := s.Get(ctx, "older")
	require.NoError(t, err)

	newer := &Record{ID: "newer", StoryText: "b", CreatedAt: older.CreatedAt.Add(1e9)}
	require.NoError(t, s.Create(ctx, newer))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].ID)
	assert.Equal(t, "older", list[1].ID)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, &Record{ID: "c1", StoryText: "text"}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)
}

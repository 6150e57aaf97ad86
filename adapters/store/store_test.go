package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roberta039/Gym-Trainer/domain"
)

func mustOpenDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenDB_WALMode(t *testing.T) {
	db := mustOpenDB(t)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpenDB_MissingDirectory(t *testing.T) {
	_, err := OpenDB(filepath.Join(t.TempDir(), "missing", "history.db"))
	assert.Error(t, err)
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := mustOpenDB(t)

	require.NoError(t, MigrateUp(db))
	require.NoError(t, MigrateUp(db))

	version, err := MigrationVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestConversationStore_ListOrdersByTime(t *testing.T) {
	s := NewConversationStore(mustOpenDB(t))
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, domain.Turn{SessionID: "s1", Role: domain.AssistantRole, Content: "second", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.Append(ctx, domain.Turn{SessionID: "s1", Role: domain.UserRole, Content: "first", CreatedAt: base}))
	require.NoError(t, s.Append(ctx, domain.Turn{SessionID: "s2", Role: domain.UserRole, Content: "other", CreatedAt: base}))

	turns, err := s.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, domain.UserRole, turns[0].Role)
	assert.Equal(t, "second", turns[1].Content)
	assert.True(t, turns[0].CreatedAt.Equal(base))
}

func TestConversationStore_SameTimestampKeepsInsertionOrder(t *testing.T) {
	s := NewConversationStore(mustOpenDB(t))
	ctx := context.Background()
	at := time.Now()

	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(ctx, domain.Turn{SessionID: "s1", Role: domain.UserRole, Content: c, CreatedAt: at}))
	}

	turns, err := s.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{turns[0].Content, turns[1].Content, turns[2].Content})
}

func TestConversationStore_DeleteAllThenListIsEmpty(t *testing.T) {
	s := NewConversationStore(mustOpenDB(t))
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, domain.Turn{SessionID: "s1", Role: domain.UserRole, Content: "hi"}))
	require.NoError(t, s.Append(ctx, domain.Turn{SessionID: "s2", Role: domain.UserRole, Content: "keep"}))

	require.NoError(t, s.DeleteAll(ctx, "s1"))
	require.NoError(t, s.DeleteAll(ctx, "s1"))

	turns, err := s.List(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	others, err := s.List(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestConversationStore_RejectsUnknownRole(t *testing.T) {
	s := NewConversationStore(mustOpenDB(t))
	err := s.Append(context.Background(), domain.Turn{SessionID: "s1", Role: "system", Content: "x"})
	assert.Error(t, err)
}
